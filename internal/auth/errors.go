// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import "errors"

// ErrNotFound is returned by stores when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Error codes surfaced by Service operations. Every failure a caller
// can act on carries one of these as its oops code; store-layer faults
// pass through without a taxonomy code.
const (
	CodeNoSuchUser           = "AUTH_NO_SUCH_USER"
	CodeBadPassword          = "AUTH_BAD_PASSWORD"
	CodePersistedUserNeeded  = "AUTH_PERSISTED_USER_REQUIRED"
	CodeUsernameTaken        = "AUTH_USERNAME_TAKEN"
	CodeEmailUsernameTaken   = "AUTH_EMAIL_USERNAME_TAKEN"
	CodeMismatchedEmails     = "AUTH_MISMATCHED_EMAILS"
	CodeWeakPassword         = "AUTH_WEAK_PASSWORD"
	CodeNoAuthRecord         = "AUTH_NO_AUTH_RECORD"
	CodeResetProhibited      = "AUTH_RESET_PROHIBITED"
	CodeTooManyRecoveries    = "AUTH_TOO_MANY_RECOVERY_ATTEMPTS"
	CodeInvalidResetToken    = "AUTH_INVALID_RESET_TOKEN"
	CodeInvalidAPIToken      = "AUTH_INVALID_API_TOKEN"
	CodeAPITokensUnavailable = "AUTH_API_TOKENS_UNAVAILABLE"
)
