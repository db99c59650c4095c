// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package config loads Keyward deployment configuration from a YAML
// file, environment variables, and command-line flags, in that order
// of increasing precedence.
package config

import (
	"encoding/base64"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/crypto"
)

// Checker variant names accepted by the "checker" key.
const (
	CheckerNone    = "none"
	CheckerEntropy = "entropy"
	CheckerRules   = "rules"
)

// Config is the deployment configuration of the credential core.
type Config struct {
	// SystemKey is the base64-encoded deployment-wide symmetric key.
	// Falls back to the KEYWARD_SYSTEM_KEY environment variable.
	SystemKey string `koanf:"system_key"`

	// CookieHashPrefix prefixes the dynamic-name session cookie.
	CookieHashPrefix string `koanf:"cookie_hash_prefix"`

	// SessionLifetimeSeconds caps the age of issued session cookies.
	SessionLifetimeSeconds int `koanf:"session_lifetime_seconds"`

	// DisablePasswordReset turns the recovery-token flow off.
	DisablePasswordReset bool `koanf:"disable_password_reset"`

	// RecoveryCeiling is the recent-request cap for recovery tokens.
	RecoveryCeiling int `koanf:"recovery_ceiling"`

	// ResetTokenTTLSeconds bounds recovery-token redeemability.
	ResetTokenTTLSeconds int `koanf:"reset_token_ttl_seconds"`

	// Checker selects the password strength policy: none, entropy, rules.
	Checker string `koanf:"checker"`

	// MinScore is the zxcvbn floor for the entropy checker (0-4).
	MinScore int `koanf:"min_score"`

	// DatabaseURL is the PostgreSQL connection string for the bundled
	// store adapters. Falls back to the DATABASE_URL environment variable.
	DatabaseURL string `koanf:"database_url"`

	// LogFormat is "json" or "text".
	LogFormat string `koanf:"log_format"`
}

// Load reads configuration. path may be empty (no file); flags may be
// nil (no flag overrides).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "merge flags").
				Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}

	if cfg.SystemKey == "" {
		cfg.SystemKey = os.Getenv("KEYWARD_SYSTEM_KEY")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields with deployment defaults.
func (c *Config) ApplyDefaults() {
	if c.CookieHashPrefix == "" {
		c.CookieHashPrefix = auth.DefaultHashPrefix
	}
	if c.SessionLifetimeSeconds == 0 {
		c.SessionLifetimeSeconds = int(auth.DefaultSessionLifetime / time.Second)
	}
	if c.RecoveryCeiling == 0 {
		c.RecoveryCeiling = auth.DefaultRecoveryCeiling
	}
	if c.ResetTokenTTLSeconds == 0 {
		c.ResetTokenTTLSeconds = int(auth.DefaultResetTokenTTL / time.Second)
	}
	if c.Checker == "" {
		c.Checker = CheckerEntropy
	}
	if c.MinScore == 0 {
		c.MinScore = auth.DefaultMinScore
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
}

// Validate checks the configuration for deployment mistakes.
func (c *Config) Validate() error {
	if c.SystemKey == "" {
		return oops.Code("CONFIG_INVALID").Errorf("system_key is required")
	}
	if _, err := c.SystemKeyBytes(); err != nil {
		return err
	}
	switch c.Checker {
	case CheckerNone, CheckerEntropy, CheckerRules:
	default:
		return oops.Code("CONFIG_INVALID").
			With("checker", c.Checker).
			Errorf("checker must be one of none, entropy, rules")
	}
	if c.MinScore < 0 || c.MinScore > 4 {
		return oops.Code("CONFIG_INVALID").
			With("min_score", c.MinScore).
			Errorf("min_score must be between 0 and 4")
	}
	if c.SessionLifetimeSeconds < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("session_lifetime_seconds cannot be negative")
	}
	if c.RecoveryCeiling < 1 {
		return oops.Code("CONFIG_INVALID").Errorf("recovery_ceiling must be at least 1")
	}
	return nil
}

// SystemKeyBytes decodes the base64 system key and enforces its size.
func (c *Config) SystemKeyBytes() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.SystemKey)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			With("field", "system_key").
			Wrap(err)
	}
	if len(key) != crypto.KeySize {
		return nil, oops.Code("CONFIG_INVALID").
			With("expected_bytes", crypto.KeySize).
			With("got_bytes", len(key)).
			Errorf("system_key must decode to %d bytes", crypto.KeySize)
	}
	return key, nil
}

// SessionLifetime returns the lifetime as a duration.
func (c *Config) SessionLifetime() time.Duration {
	return time.Duration(c.SessionLifetimeSeconds) * time.Second
}

// ResetTokenTTL returns the token ttl as a duration.
func (c *Config) ResetTokenTTL() time.Duration {
	return time.Duration(c.ResetTokenTTLSeconds) * time.Second
}

// BuildChecker constructs the configured strength checker.
func (c *Config) BuildChecker() auth.PasswordChecker {
	switch c.Checker {
	case CheckerNone:
		return auth.NopChecker{}
	case CheckerRules:
		return auth.NewRuleChecker()
	default:
		return &auth.EntropyChecker{MinScore: c.MinScore}
	}
}
