// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth_test

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/keyward/keyward/internal/auth"
)

// stubUser is a minimal host-side user.
type stubUser struct {
	id     int64
	email  string
	record *auth.Record
}

func (u *stubUser) GetID() int64                      { return u.id }
func (u *stubUser) GetEmail() string                  { return u.email }
func (u *stubUser) GetAuthRecord() *auth.Record       { return u.record }
func (u *stubUser) SetAuthRecord(record *auth.Record) { u.record = record }

// stubRecordStore holds records in memory and counts lookups so tests
// can assert which verification stages reached the store.
type stubRecordStore struct {
	byUsername map[string]*auth.Record
	byUserID   map[int64]*auth.Record

	findByUsernameCalls int
	findByIDCalls       int
	saveCalls           int
	updateCalls         int

	findErr   error
	saveErr   error
	updateErr error
}

func newStubRecordStore(records ...*auth.Record) *stubRecordStore {
	s := &stubRecordStore{
		byUsername: make(map[string]*auth.Record),
		byUserID:   make(map[int64]*auth.Record),
	}
	for _, r := range records {
		s.add(r)
	}
	return s
}

func (s *stubRecordStore) add(r *auth.Record) {
	s.byUsername[strings.ToLower(r.Username)] = r
	s.byUserID[r.UserID] = r
}

func (s *stubRecordStore) FindByUsername(_ context.Context, username string) (*auth.Record, error) {
	s.findByUsernameCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	record, ok := s.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return record, nil
}

func (s *stubRecordStore) FindByUserID(_ context.Context, userID int64) (*auth.Record, error) {
	s.findByIDCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	record, ok := s.byUserID[userID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return record, nil
}

func (s *stubRecordStore) Create(_ context.Context, user auth.User, username, passwordHash, sessionKey string) (*auth.Record, error) {
	return auth.NewRecord(user.GetID(), username, passwordHash, sessionKey)
}

func (s *stubRecordStore) Save(_ context.Context, record *auth.Record) error {
	s.saveCalls++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.add(record)
	return nil
}

func (s *stubRecordStore) Update(_ context.Context, record *auth.Record) error {
	s.updateCalls++
	if s.updateErr != nil {
		return s.updateErr
	}
	s.add(record)
	return nil
}

// stubUserStore resolves stub users, counting resolutions.
type stubUserStore struct {
	byEmail map[string]*stubUser
	byID    map[int64]*stubUser

	findByEmailCalls int
	getUserCalls     int
}

func newStubUserStore(users ...*stubUser) *stubUserStore {
	s := &stubUserStore{
		byEmail: make(map[string]*stubUser),
		byID:    make(map[int64]*stubUser),
	}
	for _, u := range users {
		s.byEmail[strings.ToLower(u.email)] = u
		s.byID[u.id] = u
	}
	return s
}

func (s *stubUserStore) FindByEmail(_ context.Context, email string) (auth.User, error) {
	s.findByEmailCalls++
	user, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return user, nil
}

func (s *stubUserStore) GetUser(_ context.Context, id int64) (auth.User, error) {
	s.getUserCalls++
	user, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return user, nil
}

// stubResetStore keeps recovery tokens in memory with a programmable
// recent-request count.
type stubResetStore struct {
	tokens map[ulid.ULID]*auth.ResetToken
	count  int

	saveCalls       int
	updateCalls     int
	invalidateCalls int
}

func newStubResetStore() *stubResetStore {
	return &stubResetStore{tokens: make(map[ulid.ULID]*auth.ResetToken)}
}

func (s *stubResetStore) Get(_ context.Context, id ulid.ULID) (*auth.ResetToken, error) {
	token, ok := s.tokens[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return token, nil
}

func (s *stubResetStore) Save(_ context.Context, token *auth.ResetToken) error {
	s.saveCalls++
	s.tokens[token.ID] = token
	return nil
}

func (s *stubResetStore) Update(_ context.Context, token *auth.ResetToken) error {
	s.updateCalls++
	s.tokens[token.ID] = token
	return nil
}

func (s *stubResetStore) RequestCount(_ context.Context, _ *auth.Record) (int, error) {
	return s.count, nil
}

func (s *stubResetStore) InvalidateUnusedTokens(_ context.Context, _ *auth.Record) error {
	s.invalidateCalls++
	for _, token := range s.tokens {
		if token.Status == auth.TokenUnused {
			token.Status = auth.TokenInvalid
		}
	}
	return nil
}

// stubAPITokenStore keeps API tokens in memory.
type stubAPITokenStore struct {
	tokens map[string]*auth.APIToken

	updateCalls int
	deleteCalls int
}

func newStubAPITokenStore() *stubAPITokenStore {
	return &stubAPITokenStore{tokens: make(map[string]*auth.APIToken)}
}

func (s *stubAPITokenStore) Get(_ context.Context, token string) (*auth.APIToken, error) {
	t, ok := s.tokens[token]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return t, nil
}

func (s *stubAPITokenStore) Save(_ context.Context, token *auth.APIToken) error {
	s.tokens[token.Token] = token
	return nil
}

func (s *stubAPITokenStore) Update(_ context.Context, token *auth.APIToken) error {
	s.updateCalls++
	s.tokens[token.Token] = token
	return nil
}

func (s *stubAPITokenStore) DeleteForUser(_ context.Context, userID int64) error {
	s.deleteCalls++
	for value, token := range s.tokens {
		if token.UserID == userID {
			delete(s.tokens, value)
		}
	}
	return nil
}

// fakeHasher avoids argon2's cost in service tests. Hashes are
// "hashed:" + password; anything else needs an upgrade.
type fakeHasher struct {
	hashCalls int
}

func (h *fakeHasher) Hash(password string) (string, error) {
	h.hashCalls++
	return "hashed:" + password, nil
}

func (h *fakeHasher) Verify(password, hash string) (bool, error) {
	return hash == "hashed:"+password || hash == "legacy:"+password, nil
}

func (h *fakeHasher) NeedsUpgrade(hash string) bool {
	return !strings.HasPrefix(hash, "hashed:")
}
