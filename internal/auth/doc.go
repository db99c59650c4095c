// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package auth is the Keyward identity and credential core.
//
// # Domain Types
//
// Domain types (Record, ResetToken, APIToken) should be created using
// their respective constructors:
//   - NewRecord - creates a credential record with validated fields
//   - NewResetToken - creates a password-recovery token bound to a record
//   - NewAPIToken - creates a scoped long-lived bearer token
//
// Direct struct initialization bypasses validation and may create
// invalid state. Store implementations receive pre-validated types
// from these constructors.
//
// # Service
//
// Service orchestrates the credential lifecycle (authenticate, create,
// change username, verify, reset, recovery tokens) over pluggable
// store, hasher, and strength-checker capabilities. The stateless
// session protocol lives in Codec; Service.Identity drives cookie
// resumption through it.
//
// All mutation operations fail with a reason from the error taxonomy
// in errors.go. Cookie resumption never fails with a reason: forged,
// tampered, or malformed input uniformly yields no identity.
package auth
