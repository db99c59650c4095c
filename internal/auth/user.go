// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import "context"

// User is the host application's user capability. The core references
// users but does not own them: it never creates, deletes, or persists
// a User, only the credential Record attached to one.
//
// GetID returns the persisted numeric identity; zero or negative means
// the user has not been persisted yet. Exactly zero or one Record
// exists per user.
type User interface {
	GetID() int64
	GetEmail() string
	GetAuthRecord() *Record
	SetAuthRecord(record *Record)
}

// UserStore resolves User entities. Implemented by the host
// application; email comparison follows the same case-insensitive
// policy as usernames (callers pass lowercased values).
type UserStore interface {
	// FindByEmail retrieves a user by email address.
	// Returns ErrNotFound if no user has the given email.
	FindByEmail(ctx context.Context, email string) (User, error)

	// GetUser retrieves a user by persisted id.
	// Returns ErrNotFound if the id does not resolve.
	GetUser(ctx context.Context, id int64) (User, error)
}
