// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// APITokenStore implements auth.APITokenStore using PostgreSQL.
type APITokenStore struct {
	db DB
}

// NewAPITokenStore creates an APITokenStore.
func NewAPITokenStore(db DB) *APITokenStore {
	return &APITokenStore{db: db}
}

// Get retrieves a token by its bearer value.
func (s *APITokenStore) Get(ctx context.Context, token string) (*auth.APIToken, error) {
	row := s.db.QueryRow(ctx, `
		SELECT token, user_id, scope, times_used, created_at, last_used
		FROM api_tokens
		WHERE token = $1
	`, token)

	result, err := scanAPIToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_FAILED").
			With("operation", "get api token").
			Wrap(err)
	}
	return result, nil
}

// Save inserts a new token.
func (s *APITokenStore) Save(ctx context.Context, token *auth.APIToken) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO api_tokens (token, user_id, scope, times_used, created_at, last_used)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		token.Token,
		token.UserID,
		token.Scope,
		token.TimesUsed,
		token.CreatedAt,
		token.LastUsed,
	)
	if err != nil {
		return oops.Code("TOKEN_SAVE_FAILED").
			With("operation", "insert api token").
			With("user_id", token.UserID).
			Wrap(err)
	}
	return nil
}

// Update persists scope and usage changes.
func (s *APITokenStore) Update(ctx context.Context, token *auth.APIToken) error {
	result, err := s.db.Exec(ctx, `
		UPDATE api_tokens SET
			scope = $2,
			times_used = $3,
			last_used = $4
		WHERE token = $1
	`,
		token.Token,
		token.Scope,
		token.TimesUsed,
		token.LastUsed,
	)
	if err != nil {
		return oops.Code("TOKEN_UPDATE_FAILED").
			With("operation", "update api token").
			With("user_id", token.UserID).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteForUser removes every token owned by the user id.
func (s *APITokenStore) DeleteForUser(ctx context.Context, userID int64) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM api_tokens WHERE user_id = $1
	`, userID)
	if err != nil {
		return oops.Code("TOKEN_DELETE_FAILED").
			With("operation", "delete api tokens").
			With("user_id", userID).
			Wrap(err)
	}
	return nil
}

// scanAPIToken scans a single row into an APIToken.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAPIToken(row pgx.Row) (*auth.APIToken, error) {
	var (
		token     string
		userID    int64
		scope     int
		timesUsed int
		createdAt time.Time
		lastUsed  *time.Time
	)

	if err := row.Scan(&token, &userID, &scope, &timesUsed, &createdAt, &lastUsed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("TOKEN_SCAN_FAILED").
			With("operation", "scan api token").
			Wrap(err)
	}

	return &auth.APIToken{
		Token:     token,
		UserID:    userID,
		Scope:     scope,
		TimesUsed: timesUsed,
		CreatedAt: createdAt,
		LastUsed:  lastUsed,
	}, nil
}

// Compile-time interface check.
var _ auth.APITokenStore = (*APITokenStore)(nil)
