// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/crypto"
)

// Cookie wire names. The user tuple and the two integrity digests use
// fixed names; the per-session payload cookie's name is the configured
// prefix plus a keyed-HMAC suffix that cannot be predicted without
// both the system key and the record's key material.
const (
	CookieUser    = "kw_user"
	CookieVerifyA = "kw_verify_a"
	CookieVerifyB = "kw_verify_b"

	// DefaultHashPrefix is the default prefix of the dynamic-name cookie.
	DefaultHashPrefix = "kw_hash_"

	// DefaultSessionLifetime is the default maximum cookie session age.
	DefaultSessionLifetime = 2629743 * time.Second // one mean month
)

// Bundle is the four-cookie session state handed to the external
// response writer on issuance. It is never persisted; verification
// recomputes everything from the record and the system key.
type Bundle struct {
	UserCookie     string // CookieUser value: encrypted "{userID}:{dynamicName}"
	HashCookieName string // prefix + dynamicName
	HashCookie     string // encrypted "{issuedAt}:{userID}:{username}"
	VerifyA        string // HMAC(UserCookie, system key)
	VerifyB        string // HMAC(HashCookie, user key)
	Lifetime       time.Duration
}

// Values returns the bundle as cookie name/value pairs.
func (b *Bundle) Values() map[string]string {
	return map[string]string{
		CookieUser:       b.UserCookie,
		b.HashCookieName: b.HashCookie,
		CookieVerifyA:    b.VerifyA,
		CookieVerifyB:    b.VerifyB,
	}
}

// Names returns the four cookie names of the bundle, for clearing.
func (b *Bundle) Names() []string {
	return []string{CookieUser, b.HashCookieName, CookieVerifyA, CookieVerifyB}
}

// Codec encodes and decodes the stateless session cookie bundle. All
// decode-side methods are fail-closed: they report ok/not-ok and never
// distinguish malformed from forged input.
type Codec struct {
	systemKey  []byte
	system     *crypto.Cipher
	hashPrefix string
	lifetime   time.Duration
}

// NewCodec creates a Codec over the deployment-wide system key.
// hashPrefix and lifetime fall back to the defaults when zero-valued.
func NewCodec(systemKey []byte, hashPrefix string, lifetime time.Duration) (*Codec, error) {
	system, err := crypto.NewCipher(systemKey)
	if err != nil {
		return nil, oops.Code("AUTH_BAD_SYSTEM_KEY").Wrap(err)
	}
	if hashPrefix == "" {
		hashPrefix = DefaultHashPrefix
	}
	if lifetime <= 0 {
		lifetime = DefaultSessionLifetime
	}
	return &Codec{
		systemKey:  systemKey,
		system:     system,
		hashPrefix: hashPrefix,
		lifetime:   lifetime,
	}, nil
}

// HashPrefix returns the configured dynamic-name cookie prefix.
func (c *Codec) HashPrefix() string { return c.hashPrefix }

// Lifetime returns the configured maximum session age.
func (c *Codec) Lifetime() time.Duration { return c.lifetime }

// DynamicName derives the unpredictable suffix of the hash cookie:
// HMAC(rawSessionKey || username, systemKey).
func (c *Codec) DynamicName(record *Record) (string, error) {
	raw, err := record.RawSessionKey()
	if err != nil {
		return "", err
	}
	return crypto.MAC(string(raw)+record.Username, c.systemKey), nil
}

// Issue computes the full cookie bundle for a record at the given
// instant. The inverse of the resumption path: encrypt both payloads,
// digest both values.
func (c *Codec) Issue(record *Record, now time.Time) (*Bundle, error) {
	dynamicName, err := c.DynamicName(record)
	if err != nil {
		return nil, err
	}

	userKeyCipher, err := c.userCipher(record)
	if err != nil {
		return nil, err
	}

	userCookie, err := c.system.Encrypt(fmt.Sprintf("%d:%s", record.UserID, dynamicName))
	if err != nil {
		return nil, oops.Code("AUTH_COOKIE_ISSUE_FAILED").
			With("operation", "encrypt user tuple").
			Wrap(err)
	}

	hashCookie, err := userKeyCipher.Encrypt(fmt.Sprintf("%d:%d:%s", now.Unix(), record.UserID, record.Username))
	if err != nil {
		return nil, oops.Code("AUTH_COOKIE_ISSUE_FAILED").
			With("operation", "encrypt session payload").
			Wrap(err)
	}

	raw, err := record.RawSessionKey()
	if err != nil {
		return nil, err
	}

	return &Bundle{
		UserCookie:     userCookie,
		HashCookieName: c.hashPrefix + dynamicName,
		HashCookie:     hashCookie,
		VerifyA:        crypto.MAC(userCookie, c.systemKey),
		VerifyB:        crypto.MAC(hashCookie, raw),
		Lifetime:       c.lifetime,
	}, nil
}

// inboundBundle is the located, still-unverified cookie set.
type inboundBundle struct {
	userCookie string
	verifyA    string
	verifyB    string
}

// locate performs resumption step 1: all four slots must be present
// and non-empty. The dynamic-name slot is found by prefix scan since
// its suffix is unknown until the user tuple is decrypted.
func (c *Codec) locate(cookies map[string]string) (inboundBundle, bool) {
	var in inboundBundle
	if in.userCookie = cookies[CookieUser]; in.userCookie == "" {
		return in, false
	}
	if in.verifyA = cookies[CookieVerifyA]; in.verifyA == "" {
		return in, false
	}
	if in.verifyB = cookies[CookieVerifyB]; in.verifyB == "" {
		return in, false
	}
	for name, value := range cookies {
		if strings.HasPrefix(name, c.hashPrefix) && value != "" {
			return in, true
		}
	}
	return in, false
}

// verifyUserCookie performs step 2: the system-keyed digest of the
// user cookie must match verify_a. Runs before any decryption or
// store access.
func (c *Codec) verifyUserCookie(in inboundBundle) bool {
	return crypto.MACEqual(crypto.MAC(in.userCookie, c.systemKey), in.verifyA)
}

// decodeUserTuple performs step 3: decrypt the user cookie and split
// it into a non-negative user id and the dynamic cookie name. Exactly
// two colon-delimited fields, numeric first field, or no identity.
func (c *Codec) decodeUserTuple(in inboundBundle) (userID int64, dynamicName string, ok bool) {
	plaintext, err := c.system.Decrypt(in.userCookie)
	if err != nil {
		return 0, "", false
	}
	fields := strings.Split(plaintext, ":")
	if len(fields) != 2 {
		return 0, "", false
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id < 0 {
		return 0, "", false
	}
	return id, fields[1], true
}

// verifyHashCookie performs step 5: the user-keyed digest of the hash
// cookie must match verify_b. Requires the record (for the user key),
// so the record lookup precedes it; the user-resolving lookup must not.
func (c *Codec) verifyHashCookie(in inboundBundle, hashCookie string, record *Record) bool {
	raw, err := record.RawSessionKey()
	if err != nil {
		return false
	}
	return crypto.MACEqual(crypto.MAC(hashCookie, raw), in.verifyB)
}

// decodePayload performs step 6: decrypt the hash cookie with the user
// key and cross-check the embedded id and username against the record.
func (c *Codec) decodePayload(hashCookie string, record *Record) bool {
	userKeyCipher, err := c.userCipher(record)
	if err != nil {
		return false
	}
	plaintext, err := userKeyCipher.Decrypt(hashCookie)
	if err != nil {
		return false
	}
	fields := strings.Split(plaintext, ":")
	if len(fields) != 3 {
		return false
	}
	if _, err := strconv.ParseInt(fields[0], 10, 64); err != nil {
		return false
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || id != record.UserID {
		return false
	}
	return fields[2] == record.Username
}

// userCipher builds the per-record cipher from stored key material.
func (c *Codec) userCipher(record *Record) (*crypto.Cipher, error) {
	raw, err := record.RawSessionKey()
	if err != nil {
		return nil, err
	}
	cipher, err := crypto.NewCipher(raw)
	if err != nil {
		return nil, oops.Code("AUTH_BAD_SESSION_KEY").
			With("user_id", record.UserID).
			Wrap(err)
	}
	return cipher, nil
}
