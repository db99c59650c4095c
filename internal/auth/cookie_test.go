// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/crypto"
)

// resumeFixture wires a codec, a persisted user with a credential
// record, and counting stores, so each scenario can assert both the
// resumption outcome and which stores were reached.
type resumeFixture struct {
	systemKey []byte
	codec     *auth.Codec
	record    *auth.Record
	user      *stubUser
	records   *stubRecordStore
	users     *stubUserStore
}

func newResumeFixture(t *testing.T) *resumeFixture {
	t.Helper()

	systemKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	codec, err := auth.NewCodec(systemKey, "", 0)
	require.NoError(t, err)

	sessionKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	record, err := auth.NewRecord(7, "verity", "hashed:opensesame",
		base64.StdEncoding.EncodeToString(sessionKey))
	require.NoError(t, err)

	user := &stubUser{id: 7, email: "verity@example.com", record: record}
	return &resumeFixture{
		systemKey: systemKey,
		codec:     codec,
		record:    record,
		user:      user,
		records:   newStubRecordStore(record),
		users:     newStubUserStore(user),
	}
}

func (f *resumeFixture) service(t *testing.T) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(f.records, f.users, nil, &fakeHasher{}, auth.NopChecker{}, f.codec, auth.ServiceConfig{})
	require.NoError(t, err)
	return svc
}

func (f *resumeFixture) issue(t *testing.T) *auth.Bundle {
	t.Helper()
	bundle, err := f.codec.Issue(f.record, time.Now())
	require.NoError(t, err)
	return bundle
}

// tamper flips the first byte of a cookie value.
func tamper(value string) string {
	if value == "" {
		return "x"
	}
	replacement := byte('A')
	if value[0] == 'A' {
		replacement = 'B'
	}
	return string(replacement) + value[1:]
}

func TestCodec_IssueShape(t *testing.T) {
	f := newResumeFixture(t)
	bundle := f.issue(t)

	assert.NotEmpty(t, bundle.UserCookie)
	assert.NotEmpty(t, bundle.HashCookie)
	assert.Equal(t, crypto.MAC(bundle.UserCookie, f.systemKey), bundle.VerifyA)
	assert.Equal(t, auth.DefaultSessionLifetime, bundle.Lifetime)

	dynamicName, err := f.codec.DynamicName(f.record)
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultHashPrefix+dynamicName, bundle.HashCookieName)

	values := bundle.Values()
	assert.Len(t, values, 4)
	assert.ElementsMatch(t, bundle.Names(),
		[]string{auth.CookieUser, bundle.HashCookieName, auth.CookieVerifyA, auth.CookieVerifyB})
}

func TestCodec_DynamicNameIsStablePerRecord(t *testing.T) {
	f := newResumeFixture(t)

	first, err := f.codec.DynamicName(f.record)
	require.NoError(t, err)
	second, err := f.codec.DynamicName(f.record)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := auth.NewRecord(8, "other", "hashed:pw",
		base64.StdEncoding.EncodeToString(otherKey))
	require.NoError(t, err)

	name, err := f.codec.DynamicName(other)
	require.NoError(t, err)
	assert.NotEqual(t, first, name)
}

func TestIdentity_ResumesIssuedBundle(t *testing.T) {
	f := newResumeFixture(t)
	bundle := f.issue(t)

	user := f.service(t).Identity(context.Background(), bundle.Values())
	require.NotNil(t, user)
	assert.Equal(t, int64(7), user.GetID())
	assert.Equal(t, 1, f.records.findByIDCalls)
	assert.Equal(t, 1, f.users.getUserCalls)
}

func TestIdentity_MissingCookieSubsets(t *testing.T) {
	f := newResumeFixture(t)
	bundle := f.issue(t)
	full := bundle.Values()
	names := bundle.Names()

	// Every proper subset of the four cookies fails before any store
	// access: presence of all four is the first rung of the ladder.
	for mask := 0; mask < (1 << len(names)); mask++ {
		if mask == (1<<len(names))-1 {
			continue
		}
		subset := make(map[string]string)
		for i, name := range names {
			if mask&(1<<i) != 0 {
				subset[name] = full[name]
			}
		}
		t.Run(fmt.Sprintf("subset_%04b", mask), func(t *testing.T) {
			f.records.findByIDCalls = 0
			f.users.getUserCalls = 0

			assert.Nil(t, f.service(t).Identity(context.Background(), subset))
			assert.Zero(t, f.records.findByIDCalls)
			assert.Zero(t, f.users.getUserCalls)
		})
	}
}

func TestIdentity_TamperedCookies(t *testing.T) {
	tests := []struct {
		name            string
		mutate          func(map[string]string, *auth.Bundle)
		wantRecordLooks int
		wantUserLooks   int
	}{
		{
			name: "tampered user cookie",
			mutate: func(c map[string]string, b *auth.Bundle) {
				c[auth.CookieUser] = tamper(b.UserCookie)
			},
		},
		{
			name: "tampered verify_a",
			mutate: func(c map[string]string, b *auth.Bundle) {
				c[auth.CookieVerifyA] = tamper(b.VerifyA)
			},
		},
		{
			name: "tampered hash cookie",
			mutate: func(c map[string]string, b *auth.Bundle) {
				c[b.HashCookieName] = tamper(b.HashCookie)
			},
			wantRecordLooks: 1,
		},
		{
			name: "tampered verify_b",
			mutate: func(c map[string]string, b *auth.Bundle) {
				c[auth.CookieVerifyB] = tamper(b.VerifyB)
			},
			wantRecordLooks: 1,
		},
		{
			name: "verify cookies swapped",
			mutate: func(c map[string]string, b *auth.Bundle) {
				c[auth.CookieVerifyA], c[auth.CookieVerifyB] = b.VerifyB, b.VerifyA
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newResumeFixture(t)
			bundle := f.issue(t)
			cookies := bundle.Values()
			tt.mutate(cookies, bundle)

			assert.Nil(t, f.service(t).Identity(context.Background(), cookies))
			assert.Equal(t, tt.wantRecordLooks, f.records.findByIDCalls)
			assert.Equal(t, tt.wantUserLooks, f.users.getUserCalls)
		})
	}
}

// forgeUserCookie builds a user cookie carrying the given plaintext,
// with a correctly recomputed verify_a so the failure under test is the
// tuple decode, not the digest.
func forgeUserCookie(t *testing.T, f *resumeFixture, cookies map[string]string, plaintext string) {
	t.Helper()
	system, err := crypto.NewCipher(f.systemKey)
	require.NoError(t, err)
	forged, err := system.Encrypt(plaintext)
	require.NoError(t, err)
	cookies[auth.CookieUser] = forged
	cookies[auth.CookieVerifyA] = crypto.MAC(forged, f.systemKey)
}

func TestIdentity_MalformedUserTuple(t *testing.T) {
	dynamic := func(t *testing.T, f *resumeFixture) string {
		t.Helper()
		name, err := f.codec.DynamicName(f.record)
		require.NoError(t, err)
		return name
	}

	tests := []struct {
		name      string
		plaintext func(*testing.T, *resumeFixture) string
	}{
		{"no delimiter", func(*testing.T, *resumeFixture) string { return "sevenverity" }},
		{"too many fields", func(t *testing.T, f *resumeFixture) string { return "7:" + dynamic(t, f) + ":extra" }},
		{"non-numeric id", func(t *testing.T, f *resumeFixture) string { return "seven:" + dynamic(t, f) }},
		{"negative id", func(t *testing.T, f *resumeFixture) string { return "-7:" + dynamic(t, f) }},
		{"empty tuple", func(*testing.T, *resumeFixture) string { return ":" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newResumeFixture(t)
			cookies := f.issue(t).Values()
			forgeUserCookie(t, f, cookies, tt.plaintext(t, f))

			assert.Nil(t, f.service(t).Identity(context.Background(), cookies))
			assert.Zero(t, f.records.findByIDCalls)
			assert.Zero(t, f.users.getUserCalls)
		})
	}
}

func TestIdentity_UnknownUserID(t *testing.T) {
	f := newResumeFixture(t)
	cookies := f.issue(t).Values()

	name, err := f.codec.DynamicName(f.record)
	require.NoError(t, err)
	forgeUserCookie(t, f, cookies, "9999:"+name)

	assert.Nil(t, f.service(t).Identity(context.Background(), cookies))
	assert.Equal(t, 1, f.records.findByIDCalls)
	assert.Zero(t, f.users.getUserCalls)
}

func TestIdentity_PayloadCrossCheck(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"wrong embedded id", fmt.Sprintf("%d:9999:verity", time.Now().Unix())},
		{"wrong embedded username", fmt.Sprintf("%d:7:mallory", time.Now().Unix())},
		{"non-numeric timestamp", "yesterday:7:verity"},
		{"missing field", "7:verity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newResumeFixture(t)
			bundle := f.issue(t)
			cookies := bundle.Values()

			// Re-encrypt the payload under the real user key and fix up
			// verify_b so only the payload contents are at fault.
			raw, err := f.record.RawSessionKey()
			require.NoError(t, err)
			userCipher, err := crypto.NewCipher(raw)
			require.NoError(t, err)
			forged, err := userCipher.Encrypt(tt.payload)
			require.NoError(t, err)
			cookies[bundle.HashCookieName] = forged
			cookies[auth.CookieVerifyB] = crypto.MAC(forged, raw)

			assert.Nil(t, f.service(t).Identity(context.Background(), cookies))
			assert.Equal(t, 1, f.records.findByIDCalls)
			assert.Zero(t, f.users.getUserCalls)
		})
	}
}

func TestIdentity_ResumesAtMostOnce(t *testing.T) {
	f := newResumeFixture(t)
	svc := f.service(t)

	assert.Nil(t, svc.Identity(context.Background(), nil))
	assert.False(t, svc.HasIdentity())

	// A later call with perfectly good cookies must not retry.
	bundle := f.issue(t)
	assert.Nil(t, svc.Identity(context.Background(), bundle.Values()))
	assert.Zero(t, f.records.findByIDCalls)
}

func TestIdentity_CachesResolvedUser(t *testing.T) {
	f := newResumeFixture(t)
	svc := f.service(t)
	bundle := f.issue(t)

	first := svc.Identity(context.Background(), bundle.Values())
	require.NotNil(t, first)
	second := svc.Identity(context.Background(), nil)
	assert.Same(t, first, second)
	assert.True(t, svc.HasIdentity())
	assert.Equal(t, 1, f.users.getUserCalls)
}

func TestIdentity_CustomHashPrefix(t *testing.T) {
	f := newResumeFixture(t)
	codec, err := auth.NewCodec(f.systemKey, "acme_", time.Hour)
	require.NoError(t, err)
	f.codec = codec

	bundle := f.issue(t)
	assert.Equal(t, time.Hour, bundle.Lifetime)
	require.True(t, len(bundle.HashCookieName) > 5 && bundle.HashCookieName[:5] == "acme_")

	user := f.service(t).Identity(context.Background(), bundle.Values())
	require.NotNil(t, user)
	assert.Equal(t, int64(7), user.GetID())
}

func TestNewCodec_RejectsBadKey(t *testing.T) {
	_, err := auth.NewCodec([]byte("short"), "", 0)
	require.Error(t, err)
}
