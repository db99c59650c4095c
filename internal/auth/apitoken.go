// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// APIToken scopes, a bit-flag set. ScopeNone issues a token that can
// only prove identity; hosts define their own flags above it.
const ScopeNone = 0

// APIToken is a long-lived bearer token for non-cookie clients. The
// token value is a UUID; usage is tracked for audit.
type APIToken struct {
	Token     string // uuid, the bearer value
	UserID    int64
	Scope     int
	TimesUsed int
	CreatedAt time.Time
	LastUsed  *time.Time
}

// NewAPIToken creates a token for a persisted user.
func NewAPIToken(user User, scope int) (*APIToken, error) {
	if user == nil || user.GetID() <= 0 {
		return nil, oops.Code(CodePersistedUserNeeded).
			Errorf("api tokens require a persisted user")
	}
	return &APIToken{
		Token:     uuid.NewString(),
		UserID:    user.GetID(),
		Scope:     scope,
		CreatedAt: time.Now(),
	}, nil
}

// AddScope grants additional scope flags.
func (t *APIToken) AddScope(scope int) {
	t.Scope |= scope
}

// RemoveScope revokes the given scope flags.
func (t *APIToken) RemoveScope(scope int) {
	t.Scope &^= scope
}

// HasScope reports whether every bit of scope is granted.
func (t *APIToken) HasScope(scope int) bool {
	return t.Scope&scope == scope
}

// ClearScope drops all scope flags.
func (t *APIToken) ClearScope() {
	t.Scope = ScopeNone
}

// TagUse records one use of the token.
func (t *APIToken) TagUse() {
	t.TimesUsed++
	now := time.Now()
	t.LastUsed = &now
}

// APITokenStore manages API token persistence.
type APITokenStore interface {
	// Get retrieves a token by its bearer value.
	// Returns ErrNotFound if the value does not resolve.
	Get(ctx context.Context, token string) (*APIToken, error)

	// Save persists a new token.
	Save(ctx context.Context, token *APIToken) error

	// Update persists scope and usage changes.
	Update(ctx context.Context, token *APIToken) error

	// DeleteForUser removes all tokens owned by the user id.
	DeleteForUser(ctx context.Context, userID int64) error
}
