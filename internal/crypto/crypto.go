// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package crypto provides the symmetric primitives the session cookie
// protocol is built from: an authenticated cipher keyed by raw key
// bytes, keyed HMAC-SHA256 digests, and key generation.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"

	"github.com/samber/oops"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required key length in bytes for both the cipher and
// derived per-record keys.
const KeySize = chacha20poly1305.KeySize

// Cipher performs authenticated symmetric encryption with a fixed key.
// Ciphertexts are nonce-prefixed and base64-encoded; any tampering is
// rejected at decryption by the AEAD tag.
type Cipher struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// NewCipher creates a ChaCha20-Poly1305 cipher over the given raw key.
// The key must be exactly KeySize bytes; keys are not stretched or
// hashed here so that stored key material maps 1:1 to cipher keys.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, oops.Code("CRYPTO_BAD_KEY").
			With("expected_bytes", KeySize).
			With("got_bytes", len(key)).
			Errorf("key must be %d bytes", KeySize)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, oops.Code("CRYPTO_INIT_FAILED").Wrap(err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt encrypts plaintext and returns a base64-encoded result.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", oops.Code("CRYPTO_NONCE_FAILED").Wrap(err)
	}
	ciphertext := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a base64-encoded ciphertext. It fails on malformed
// encoding, truncation, and any authentication-tag mismatch.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", oops.Code("CRYPTO_DECODE_FAILED").Wrap(err)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", oops.Code("CRYPTO_DECRYPT_FAILED").Errorf("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", oops.Code("CRYPTO_DECRYPT_FAILED").Wrap(err)
	}
	return string(plaintext), nil
}

// GenerateKey returns KeySize cryptographically secure random bytes.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, oops.Code("CRYPTO_KEYGEN_FAILED").Wrap(err)
	}
	return key, nil
}

// MAC computes the hex-encoded HMAC-SHA256 of data under key.
func MAC(data string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// MACEqual compares two MAC digests in constant time.
func MACEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
