// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/crypto"
	"github.com/keyward/keyward/pkg/errutil"
)

// DefaultRecoveryCeiling is the default cap on recent recovery-token
// requests per record before further requests are refused.
const DefaultRecoveryCeiling = 5

// ServiceConfig carries the deployment policy knobs of the service.
// Zero values fall back to the package defaults.
type ServiceConfig struct {
	// DisablePasswordReset turns the recovery-token flow off entirely.
	// The flow is also off when no ResetTokenStore is wired.
	DisablePasswordReset bool

	// RecoveryCeiling refuses new recovery tokens once the store's
	// recent-request count for a record reaches it.
	RecoveryCeiling int

	// ResetTokenTTL bounds how long an unused recovery token stays
	// redeemable.
	ResetTokenTTL time.Duration
}

// Service is the authentication core's public contract. One instance
// serves one request scope: it caches at most a single resolved
// identity plus the cookie bundle state the external writer consumes.
type Service struct {
	records   RecordStore
	users     UserStore
	resets    ResetTokenStore // nil means recovery is prohibited
	apiTokens APITokenStore   // nil means API tokens are unavailable
	hasher    PasswordHasher
	checker   PasswordChecker
	codec     *Codec
	cfg       ServiceConfig
	logger    *slog.Logger

	identity User
	resumed  bool
	pending  *Bundle
	cleared  bool
}

// NewService creates a Service. records, users, hasher, checker, and
// codec are required; resets may be nil to prohibit password recovery.
func NewService(records RecordStore, users UserStore, resets ResetTokenStore, hasher PasswordHasher, checker PasswordChecker, codec *Codec, cfg ServiceConfig) (*Service, error) {
	return NewServiceWithLogger(records, users, resets, hasher, checker, codec, cfg, slog.Default())
}

// NewServiceWithLogger is NewService with an explicit logger.
func NewServiceWithLogger(records RecordStore, users UserStore, resets ResetTokenStore, hasher PasswordHasher, checker PasswordChecker, codec *Codec, cfg ServiceConfig, logger *slog.Logger) (*Service, error) {
	if records == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("record store is required")
	}
	if users == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("user store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("password hasher is required")
	}
	if checker == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("password checker is required")
	}
	if codec == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("cookie codec is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("logger is required")
	}
	if cfg.RecoveryCeiling <= 0 {
		cfg.RecoveryCeiling = DefaultRecoveryCeiling
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = DefaultResetTokenTTL
	}
	return &Service{
		records: records,
		users:   users,
		resets:  resets,
		hasher:  hasher,
		checker: checker,
		codec:   codec,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// WithAPITokens wires the optional API token store and returns the
// service for chaining.
func (s *Service) WithAPITokens(store APITokenStore) *Service {
	s.apiTokens = store
	return s
}

// Authenticate establishes identity from an identifier/password pair.
// The identifier is tried as a username first, then as an email
// address. On success the identity is cached for the request, a fresh
// cookie bundle is staged for the response writer, and the credential
// record is touched so the store observes the login.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (User, error) {
	identifier = fold(identifier)

	record, err := s.records.FindByUsername(ctx, identifier)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, oops.With("operation", "find record by username").Wrap(err)
	}

	var user User
	if record == nil || errors.Is(err, ErrNotFound) {
		// Not a username; second chance as an email address.
		user, err = s.users.FindByEmail(ctx, identifier)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, oops.Code(CodeNoSuchUser).Errorf("no user for that identifier")
			}
			return nil, oops.With("operation", "find user by email").Wrap(err)
		}
		record = user.GetAuthRecord()
		if record == nil {
			return nil, oops.Code(CodeNoSuchUser).Errorf("no user for that identifier")
		}
	}

	valid, err := s.hasher.Verify(password, record.PasswordHash)
	if err != nil {
		return nil, oops.With("operation", "verify password").Wrap(err)
	}
	if !valid {
		return nil, oops.Code(CodeBadPassword).Errorf("password mismatch")
	}

	if user == nil {
		user, err = s.users.GetUser(ctx, record.UserID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, oops.Code(CodeNoSuchUser).
					With("user_id", record.UserID).
					Errorf("credential record has no owning user")
			}
			return nil, oops.With("operation", "resolve user").With("user_id", record.UserID).Wrap(err)
		}
	}

	// Transparent hash upgrade on successful verification.
	if s.hasher.NeedsUpgrade(record.PasswordHash) {
		if newHash, hashErr := s.hasher.Hash(password); hashErr == nil {
			record.PasswordHash = newHash
		}
	}

	// The login write must occur; store faults pass through unre-coded.
	record.Touch()
	if err := s.records.Update(ctx, record); err != nil {
		return nil, oops.With("operation", "update record on login").Wrap(err)
	}

	bundle, err := s.codec.Issue(record, time.Now())
	if err != nil {
		return nil, err
	}

	s.identity = user
	s.resumed = true
	s.pending = bundle
	s.cleared = false
	return user, nil
}

// HasIdentity reports whether an identity is currently established.
// It does not attempt cookie resumption; Identity does.
func (s *Service) HasIdentity() bool {
	return s.identity != nil
}

// Identity returns the established identity, attempting cookie-based
// resumption exactly once per service instance when none exists yet.
// The cookie set is an explicit immutable snapshot of the inbound
// request's cookies; the service never reads ambient state. A nil
// result means not authenticated: the resumption path never errors.
func (s *Service) Identity(ctx context.Context, cookies map[string]string) User {
	if s.identity != nil {
		return s.identity
	}
	if s.resumed {
		return nil
	}
	s.resumed = true
	s.identity = s.resume(ctx, cookies)
	return s.identity
}

// resume walks the fail-closed cookie verification ladder. Cheap
// stateless checks run before any store access; the record lookup is
// gated by verify_a, the user resolution by verify_b. Every failure
// collapses to nil.
func (s *Service) resume(ctx context.Context, cookies map[string]string) User {
	in, ok := s.codec.locate(cookies)
	if !ok {
		return nil
	}

	if !s.codec.verifyUserCookie(in) {
		s.logger.DebugContext(ctx, "session cookie rejected", "stage", "verify_a")
		return nil
	}

	userID, dynamicName, ok := s.codec.decodeUserTuple(in)
	if !ok {
		s.logger.DebugContext(ctx, "session cookie rejected", "stage", "user_tuple")
		return nil
	}

	hashCookie := cookies[s.codec.HashPrefix()+dynamicName]
	if hashCookie == "" {
		return nil
	}

	record, err := s.records.FindByUserID(ctx, userID)
	if err != nil {
		return nil
	}

	if !s.codec.verifyHashCookie(in, hashCookie, record) {
		s.logger.DebugContext(ctx, "session cookie rejected", "stage", "verify_b", "user_id", userID)
		return nil
	}

	if !s.codec.decodePayload(hashCookie, record) {
		s.logger.DebugContext(ctx, "session cookie rejected", "stage", "payload", "user_id", userID)
		return nil
	}

	user, err := s.users.GetUser(ctx, record.UserID)
	if err != nil {
		return nil
	}
	return user
}

// ClearIdentity drops the cached identity and flags the session
// cookies for invalidation on the response. The external writer reads
// CookiesCleared to know it must expire the bundle.
func (s *Service) ClearIdentity() {
	s.identity = nil
	s.resumed = true
	s.pending = nil
	s.cleared = true
}

// PendingBundle returns the cookie bundle staged by a successful
// Authenticate, or nil. The external cookie writer consumes it.
func (s *Service) PendingBundle() *Bundle {
	return s.pending
}

// CookiesCleared reports whether ClearIdentity flagged the session
// cookies for expiry.
func (s *Service) CookiesCleared() bool {
	return s.cleared
}

// ChangeUsername renames the user's credential record. Renaming to the
// current username is a no-op with no store write.
func (s *Service) ChangeUsername(ctx context.Context, user User, newUsername string) error {
	record := user.GetAuthRecord()
	if record == nil {
		return oops.Code(CodeNoAuthRecord).
			With("user_id", user.GetID()).
			Errorf("user has no authentication record")
	}

	newUsername = fold(newUsername)
	if newUsername == fold(record.Username) {
		return nil
	}

	existing, err := s.records.FindByUsername(ctx, newUsername)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return oops.With("operation", "find record by username").Wrap(err)
	}
	if existing != nil && existing.UserID != record.UserID {
		return oops.Code(CodeUsernameTaken).
			With("username", newUsername).
			Errorf("username is already registered")
	}

	record.Username = newUsername
	record.Touch()
	if err := s.records.Update(ctx, record); err != nil {
		return oops.With("operation", "update record").Wrap(err)
	}
	return nil
}

// VerifyPassword checks a password against the user's stored hash with
// no side effects. The user must be persisted.
func (s *Service) VerifyPassword(ctx context.Context, user User, password string) (bool, error) {
	if user.GetID() <= 0 {
		return false, oops.Code(CodePersistedUserNeeded).
			Errorf("cannot verify a password for an unpersisted user")
	}

	record := user.GetAuthRecord()
	if record == nil {
		var err error
		record, err = s.records.FindByUserID(ctx, user.GetID())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return false, oops.Code(CodeNoAuthRecord).
					With("user_id", user.GetID()).
					Errorf("user has no authentication record")
			}
			return false, oops.With("operation", "find record by user id").Wrap(err)
		}
	}

	valid, err := s.hasher.Verify(password, record.PasswordHash)
	if err != nil {
		return false, oops.With("operation", "verify password").Wrap(err)
	}
	return valid, nil
}

// Create registers authentication material for a persisted user.
// Collision guards run in a fixed order: username ownership, then
// email-shaped usernames against other users' emails, then against the
// user's own email, then the strength policy.
func (s *Service) Create(ctx context.Context, user User, username, password string) (*Record, error) {
	if user.GetID() <= 0 {
		return nil, oops.Code(CodePersistedUserNeeded).
			Errorf("cannot create credentials for an unpersisted user")
	}

	username = fold(username)

	existing, err := s.records.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, oops.With("operation", "find record by username").Wrap(err)
	}
	if existing != nil && existing.UserID != user.GetID() {
		return nil, oops.Code(CodeUsernameTaken).
			With("username", username).
			Errorf("username is already registered")
	}

	if looksLikeEmail(username) {
		owner, err := s.users.FindByEmail(ctx, username)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, oops.With("operation", "find user by email").Wrap(err)
		}
		if owner != nil && owner.GetID() != user.GetID() {
			return nil, oops.Code(CodeEmailUsernameTaken).
				With("username", username).
				Errorf("that email address belongs to another account")
		}
		if username != fold(user.GetEmail()) {
			return nil, oops.Code(CodeMismatchedEmails).
				Errorf("email-style usernames must match the account email")
		}
	}

	if err := s.checker.Check(password, []string{user.GetEmail(), username}); err != nil {
		return nil, oops.Code(CodeWeakPassword).Wrap(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.With("operation", "hash password").Wrap(err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	record, err := s.records.Create(ctx, user, username, hash, base64.StdEncoding.EncodeToString(key))
	if err != nil {
		return nil, oops.With("operation", "create record").Wrap(err)
	}
	if err := s.records.Save(ctx, record); err != nil {
		return nil, oops.With("operation", "save record").Wrap(err)
	}

	user.SetAuthRecord(record)
	return record, nil
}

// ResetPassword re-hashes and persists a new password for a user that
// already holds a credential record.
func (s *Service) ResetPassword(ctx context.Context, user User, newPassword string) error {
	record := user.GetAuthRecord()
	if record == nil {
		return oops.Code(CodeNoAuthRecord).
			With("user_id", user.GetID()).
			Errorf("user has no authentication record")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.With("operation", "hash password").Wrap(err)
	}

	record.PasswordHash = hash
	record.Touch()
	if err := s.records.Update(ctx, record); err != nil {
		return oops.With("operation", "update record").Wrap(err)
	}
	return nil
}

// CreateRecoveryToken issues a single-use password-recovery token,
// invalidating all previously unused tokens for the record. Requests
// are refused once the store's recent-request count reaches the
// configured ceiling; two racing requests can both pass that check, an
// accepted risk unless the store counts atomically.
func (s *Service) CreateRecoveryToken(ctx context.Context, user User) (*ResetToken, string, error) {
	if s.cfg.DisablePasswordReset || s.resets == nil {
		return nil, "", oops.Code(CodeResetProhibited).
			Errorf("password recovery is not enabled")
	}

	record := user.GetAuthRecord()
	if record == nil {
		return nil, "", oops.Code(CodeNoAuthRecord).
			With("user_id", user.GetID()).
			Errorf("user has no authentication record")
	}

	count, err := s.resets.RequestCount(ctx, record)
	if err != nil {
		return nil, "", oops.With("operation", "count recovery requests").Wrap(err)
	}
	if count >= s.cfg.RecoveryCeiling {
		return nil, "", oops.Code(CodeTooManyRecoveries).
			With("count", count).
			With("ceiling", s.cfg.RecoveryCeiling).
			Errorf("too many recovery attempts")
	}

	if err := s.resets.InvalidateUnusedTokens(ctx, record); err != nil {
		return nil, "", oops.With("operation", "invalidate unused tokens").Wrap(err)
	}

	token, secret, err := NewResetToken(record)
	if err != nil {
		return nil, "", err
	}
	if err := s.resets.Save(ctx, token); err != nil {
		return nil, "", oops.With("operation", "save recovery token").Wrap(err)
	}

	errutil.LogInfo(s.logger, "recovery token issued",
		"user_id", record.UserID, "token_id", token.ID.String())
	return token, secret, nil
}

// ChangePasswordWithRecoveryToken redeems a recovery token: the token
// id must resolve, belong to the user's record, and pass its validity
// predicate (matching secret, unused, unexpired). On success the token
// is marked used and the new password persisted, each exactly once.
func (s *Service) ChangePasswordWithRecoveryToken(ctx context.Context, user User, tokenID ulid.ULID, secret, newPassword string) error {
	if s.cfg.DisablePasswordReset || s.resets == nil {
		return oops.Code(CodeResetProhibited).
			Errorf("password recovery is not enabled")
	}

	record := user.GetAuthRecord()
	if record == nil {
		return oops.Code(CodeNoAuthRecord).
			With("user_id", user.GetID()).
			Errorf("user has no authentication record")
	}

	token, err := s.resets.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeInvalidResetToken).Errorf("unknown recovery token")
		}
		return oops.With("operation", "get recovery token").Wrap(err)
	}
	if token.UserID != record.UserID || !token.Redeemable(secret, time.Now(), s.cfg.ResetTokenTTL) {
		return oops.Code(CodeInvalidResetToken).Errorf("recovery token is not redeemable")
	}

	token.MarkUsed()
	if err := s.resets.Update(ctx, token); err != nil {
		return oops.With("operation", "update recovery token").Wrap(err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.With("operation", "hash password").Wrap(err)
	}
	record.PasswordHash = hash
	record.Touch()
	if err := s.records.Update(ctx, record); err != nil {
		return oops.With("operation", "update record").Wrap(err)
	}

	errutil.LogInfo(s.logger, "password changed via recovery token",
		"user_id", record.UserID, "token_id", token.ID.String())
	return nil
}

// IssueAPIToken creates and persists a scoped API token for the user.
func (s *Service) IssueAPIToken(ctx context.Context, user User, scope int) (*APIToken, error) {
	if s.apiTokens == nil {
		return nil, oops.Code(CodeAPITokensUnavailable).Errorf("api tokens are not enabled")
	}
	token, err := NewAPIToken(user, scope)
	if err != nil {
		return nil, err
	}
	if err := s.apiTokens.Save(ctx, token); err != nil {
		return nil, oops.With("operation", "save api token").Wrap(err)
	}
	return token, nil
}

// AuthenticateAPIToken resolves a bearer token to its user, tagging
// the use. The required scope must be fully granted.
func (s *Service) AuthenticateAPIToken(ctx context.Context, bearer string, requiredScope int) (User, error) {
	if s.apiTokens == nil {
		return nil, oops.Code(CodeAPITokensUnavailable).Errorf("api tokens are not enabled")
	}
	token, err := s.apiTokens.Get(ctx, bearer)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeInvalidAPIToken).Errorf("unknown api token")
		}
		return nil, oops.With("operation", "get api token").Wrap(err)
	}
	if !token.HasScope(requiredScope) {
		return nil, oops.Code(CodeInvalidAPIToken).Errorf("api token lacks required scope")
	}

	token.TagUse()
	if err := s.apiTokens.Update(ctx, token); err != nil {
		return nil, oops.With("operation", "update api token").Wrap(err)
	}

	user, err := s.users.GetUser(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeInvalidAPIToken).Errorf("api token owner no longer exists")
		}
		return nil, oops.With("operation", "resolve user").Wrap(err)
	}
	return user, nil
}

// RevokeAPITokens removes every API token owned by the user.
func (s *Service) RevokeAPITokens(ctx context.Context, user User) error {
	if s.apiTokens == nil {
		return oops.Code(CodeAPITokensUnavailable).Errorf("api tokens are not enabled")
	}
	if err := s.apiTokens.DeleteForUser(ctx, user.GetID()); err != nil {
		return oops.With("operation", "delete api tokens").Wrap(err)
	}
	return nil
}

// fold applies the case policy: identifiers compare and store lowercased.
func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// looksLikeEmail reports whether a username is syntactically an email
// address, which subjects it to the email-collision guards.
func looksLikeEmail(s string) bool {
	if !strings.Contains(s, "@") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
