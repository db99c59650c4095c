// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// RecordStore implements auth.RecordStore using PostgreSQL.
type RecordStore struct {
	db DB
}

// NewRecordStore creates a RecordStore.
func NewRecordStore(db DB) *RecordStore {
	return &RecordStore{db: db}
}

// FindByUsername retrieves a record by username, case-insensitively.
func (s *RecordStore) FindByUsername(ctx context.Context, username string) (*auth.Record, error) {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, username, password_hash, session_key, created_at, updated_at
		FROM auth_records
		WHERE LOWER(username) = LOWER($1)
	`, username)

	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RECORD_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RECORD_FIND_FAILED").
			With("operation", "find record by username").
			With("username", username).
			Wrap(err)
	}
	return record, nil
}

// FindByUserID retrieves the record owned by a user id.
func (s *RecordStore) FindByUserID(ctx context.Context, userID int64) (*auth.Record, error) {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, username, password_hash, session_key, created_at, updated_at
		FROM auth_records
		WHERE user_id = $1
	`, userID)

	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RECORD_NOT_FOUND").
			With("user_id", userID).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RECORD_FIND_FAILED").
			With("operation", "find record by user id").
			With("user_id", userID).
			Wrap(err)
	}
	return record, nil
}

// Create constructs a validated record. Persistence happens in Save.
func (s *RecordStore) Create(_ context.Context, user auth.User, username, passwordHash, sessionKey string) (*auth.Record, error) {
	return auth.NewRecord(user.GetID(), username, passwordHash, sessionKey)
}

// Save inserts a new record. A unique violation on the username or the
// user id surfaces as a username collision.
func (s *RecordStore) Save(ctx context.Context, record *auth.Record) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO auth_records (user_id, username, password_hash, session_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		record.UserID,
		record.Username,
		record.PasswordHash,
		record.SessionKey,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code(auth.CodeUsernameTaken).
				With("username", record.Username).
				Wrap(err)
		}
		return oops.Code("RECORD_SAVE_FAILED").
			With("operation", "insert record").
			With("user_id", record.UserID).
			Wrap(err)
	}
	return nil
}

// Update persists changes to an existing record.
func (s *RecordStore) Update(ctx context.Context, record *auth.Record) error {
	result, err := s.db.Exec(ctx, `
		UPDATE auth_records SET
			username = $2,
			password_hash = $3,
			updated_at = $4
		WHERE user_id = $1
	`,
		record.UserID,
		record.Username,
		record.PasswordHash,
		record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code(auth.CodeUsernameTaken).
				With("username", record.Username).
				Wrap(err)
		}
		return oops.Code("RECORD_UPDATE_FAILED").
			With("operation", "update record").
			With("user_id", record.UserID).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("RECORD_NOT_FOUND").
			With("user_id", record.UserID).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanRecord scans a single row into a Record.
// Callers are responsible for handling pgx.ErrNoRows.
func scanRecord(row pgx.Row) (*auth.Record, error) {
	var (
		userID       int64
		username     string
		passwordHash string
		sessionKey   string
		createdAt    time.Time
		updatedAt    time.Time
	)

	if err := row.Scan(&userID, &username, &passwordHash, &sessionKey, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("RECORD_SCAN_FAILED").
			With("operation", "scan record").
			Wrap(err)
	}

	return &auth.Record{
		UserID:       userID,
		Username:     username,
		PasswordHash: passwordHash,
		SessionKey:   sessionKey,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Compile-time interface check.
var _ auth.RecordStore = (*RecordStore)(nil)
