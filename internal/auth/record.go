// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/samber/oops"
)

// Record is the stored authentication material for one user: username,
// password hash, and the per-record session key material that the
// cookie protocol derives the user key from.
//
// Invariants: UserID is set at construction and never reassigned;
// SessionKey is generated once at creation and never rotated in place
// (replacing the record is the "log out everywhere" lever, since every
// outstanding session cookie is keyed by it); Username is globally
// unique under the lowercase comparison policy.
type Record struct {
	UserID       int64
	Username     string
	PasswordHash string
	// SessionKey is the base64-encoded per-record symmetric key material.
	SessionKey string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewRecord creates a validated Record. The sessionKey must be the
// base64 encoding of crypto.KeySize bytes of random key material.
func NewRecord(userID int64, username, passwordHash, sessionKey string) (*Record, error) {
	if userID <= 0 {
		return nil, oops.Code(CodePersistedUserNeeded).
			With("user_id", userID).
			Errorf("record requires a persisted user id")
	}
	if username == "" {
		return nil, oops.Code("AUTH_INVALID_RECORD").Errorf("username cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_RECORD").Errorf("password hash cannot be empty")
	}
	if _, err := base64.StdEncoding.DecodeString(sessionKey); err != nil || sessionKey == "" {
		return nil, oops.Code("AUTH_INVALID_RECORD").Errorf("session key must be base64 key material")
	}

	now := time.Now()
	return &Record{
		UserID:       userID,
		Username:     username,
		PasswordHash: passwordHash,
		SessionKey:   sessionKey,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// RawSessionKey decodes the per-record key material.
func (r *Record) RawSessionKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(r.SessionKey)
	if err != nil {
		return nil, oops.Code("AUTH_BAD_SESSION_KEY").
			With("user_id", r.UserID).
			Wrap(err)
	}
	return key, nil
}

// Touch marks the record as written, refreshing UpdatedAt.
func (r *Record) Touch() {
	r.UpdatedAt = time.Now()
}

// RecordStore manages credential record persistence. Username lookups
// are case-insensitive: implementations must apply the same fold to
// lookup and storage.
type RecordStore interface {
	// FindByUsername retrieves a record by username.
	// Returns ErrNotFound if no record owns the username.
	FindByUsername(ctx context.Context, username string) (*Record, error)

	// FindByUserID retrieves the record owned by the given user id.
	// Returns ErrNotFound if the user has no record.
	FindByUserID(ctx context.Context, userID int64) (*Record, error)

	// Create constructs a new record for the user. It does not persist;
	// Save does. Splitting the two mirrors the create-then-attach flow
	// of Service.Create.
	Create(ctx context.Context, user User, username, passwordHash, sessionKey string) (*Record, error)

	// Save persists a new record.
	Save(ctx context.Context, record *Record) error

	// Update persists changes to an existing record.
	Update(ctx context.Context, record *Record) error
}
