// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Reset token configuration.
const (
	// ResetSecretBytes is the entropy of a recovery-token secret.
	ResetSecretBytes = 32 // 32 bytes = 64 hex chars

	// DefaultResetTokenTTL bounds how long an unused token stays redeemable.
	DefaultResetTokenTTL = time.Hour
)

// TokenStatus is the lifecycle state of a ResetToken.
type TokenStatus int

const (
	// TokenUnused is the state of a freshly issued token.
	TokenUnused TokenStatus = iota

	// TokenUsed marks a token consumed by a successful redemption.
	// A token reaches this state at most once.
	TokenUsed

	// TokenInvalid marks a token revoked before use, e.g. because a
	// newer token was issued for the same record.
	TokenInvalid
)

// ResetToken is a single-use, time-bounded grant allowing a password
// change without the current password. The core stores only the SHA256
// of the secret; the plaintext exists once, at issuance, for the
// caller to deliver out of band.
type ResetToken struct {
	ID         ulid.ULID
	UserID     int64 // owner credential record, by user id
	SecretHash string
	Status     TokenStatus
	CreatedAt  time.Time
}

// NewResetToken creates a token for the record and returns it together
// with the plaintext secret.
func NewResetToken(record *Record) (*ResetToken, string, error) {
	if record == nil {
		return nil, "", oops.Code("AUTH_INVALID_TOKEN").Errorf("record cannot be nil")
	}

	raw := make([]byte, ResetSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", oops.Code("AUTH_TOKEN_GENERATE_FAILED").
			With("requested_bytes", ResetSecretBytes).
			Wrap(err)
	}
	secret := hex.EncodeToString(raw)

	return &ResetToken{
		ID:         ulid.Make(),
		UserID:     record.UserID,
		SecretHash: hashResetSecret(secret),
		Status:     TokenUnused,
		CreatedAt:  time.Now(),
	}, secret, nil
}

// Redeemable reports whether the token can be consumed: the presented
// secret must match, the token must be unused, and it must not have
// outlived ttl at the given instant. Secret comparison is constant-time.
func (t *ResetToken) Redeemable(secret string, now time.Time, ttl time.Duration) bool {
	if secret == "" {
		return false
	}
	computed := hashResetSecret(secret)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(t.SecretHash)) != 1 {
		return false
	}
	if t.Status != TokenUnused {
		return false
	}
	return !now.After(t.CreatedAt.Add(ttl))
}

// MarkUsed transitions the token to TokenUsed.
func (t *ResetToken) MarkUsed() {
	t.Status = TokenUsed
}

// hashResetSecret computes the hex SHA256 of a token secret.
func hashResetSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// ResetTokenStore manages recovery-token persistence.
type ResetTokenStore interface {
	// Get retrieves a token by id.
	// Returns ErrNotFound if the id does not resolve.
	Get(ctx context.Context, id ulid.ULID) (*ResetToken, error)

	// Save persists a new token.
	Save(ctx context.Context, token *ResetToken) error

	// Update persists a status transition.
	Update(ctx context.Context, token *ResetToken) error

	// RequestCount reports how many recovery tokens were recently
	// requested for the record. "Recently" is the store's window; the
	// service only compares the count against its configured ceiling.
	RequestCount(ctx context.Context, record *Record) (int, error)

	// InvalidateUnusedTokens revokes all TokenUnused tokens for the record.
	InvalidateUnusedTokens(ctx context.Context, record *Record) error
}
