// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// DefaultRequestWindow is how far back RequestCount looks when counting
// recovery-token requests against the service's ceiling.
const DefaultRequestWindow = 24 * time.Hour

// ResetTokenStore implements auth.ResetTokenStore using PostgreSQL.
type ResetTokenStore struct {
	db     DB
	window time.Duration
}

// NewResetTokenStore creates a ResetTokenStore. A non-positive window
// falls back to DefaultRequestWindow.
func NewResetTokenStore(db DB, window time.Duration) *ResetTokenStore {
	if window <= 0 {
		window = DefaultRequestWindow
	}
	return &ResetTokenStore{db: db, window: window}
}

// Get retrieves a token by id.
func (s *ResetTokenStore) Get(ctx context.Context, id ulid.ULID) (*auth.ResetToken, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, secret_hash, status, created_at
		FROM reset_tokens
		WHERE id = $1
	`, id.String())

	token, err := scanResetToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_FAILED").
			With("operation", "get reset token").
			With("id", id.String()).
			Wrap(err)
	}
	return token, nil
}

// Save inserts a new token.
func (s *ResetTokenStore) Save(ctx context.Context, token *auth.ResetToken) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO reset_tokens (id, user_id, secret_hash, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		token.ID.String(),
		token.UserID,
		token.SecretHash,
		int(token.Status),
		token.CreatedAt,
	)
	if err != nil {
		return oops.Code("TOKEN_SAVE_FAILED").
			With("operation", "insert reset token").
			With("id", token.ID.String()).
			Wrap(err)
	}
	return nil
}

// Update persists a status transition.
func (s *ResetTokenStore) Update(ctx context.Context, token *auth.ResetToken) error {
	result, err := s.db.Exec(ctx, `
		UPDATE reset_tokens SET status = $2 WHERE id = $1
	`, token.ID.String(), int(token.Status))
	if err != nil {
		return oops.Code("TOKEN_UPDATE_FAILED").
			With("operation", "update reset token").
			With("id", token.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("TOKEN_NOT_FOUND").
			With("id", token.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RequestCount counts recovery tokens issued for the record inside the
// configured window, regardless of their current status.
func (s *ResetTokenStore) RequestCount(ctx context.Context, record *auth.Record) (int, error) {
	row := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM reset_tokens
		WHERE user_id = $1 AND created_at > $2
	`, record.UserID, time.Now().Add(-s.window))

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, oops.Code("TOKEN_COUNT_FAILED").
			With("operation", "count reset tokens").
			With("user_id", record.UserID).
			Wrap(err)
	}
	return count, nil
}

// InvalidateUnusedTokens revokes every unused token for the record.
func (s *ResetTokenStore) InvalidateUnusedTokens(ctx context.Context, record *auth.Record) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reset_tokens SET status = $2
		WHERE user_id = $1 AND status = $3
	`, record.UserID, int(auth.TokenInvalid), int(auth.TokenUnused))
	if err != nil {
		return oops.Code("TOKEN_INVALIDATE_FAILED").
			With("operation", "invalidate unused tokens").
			With("user_id", record.UserID).
			Wrap(err)
	}
	return nil
}

// scanResetToken scans a single row into a ResetToken.
// Callers are responsible for handling pgx.ErrNoRows.
func scanResetToken(row pgx.Row) (*auth.ResetToken, error) {
	var (
		idStr      string
		userID     int64
		secretHash string
		status     int
		createdAt  time.Time
	)

	if err := row.Scan(&idStr, &userID, &secretHash, &status, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("TOKEN_SCAN_FAILED").
			With("operation", "scan reset token").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_ID").
			With("operation", "parse token id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.ResetToken{
		ID:         id,
		UserID:     userID,
		SecretHash: secretHash,
		Status:     auth.TokenStatus(status),
		CreatedAt:  createdAt,
	}, nil
}

// Compile-time interface check.
var _ auth.ResetTokenStore = (*ResetTokenStore)(nil)
