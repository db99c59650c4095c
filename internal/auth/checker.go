// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"strings"
	"unicode"

	"github.com/nbutton23/zxcvbn-go"
	"github.com/samber/oops"
)

// PasswordChecker is the pluggable strength policy, a pass/fail
// predicate over a candidate password plus user-identifying context
// strings (email, username) used to catch trivially personalized
// passwords. A nil return accepts the password; an error carries the
// diagnostic the service wraps into its weak-password failure.
type PasswordChecker interface {
	Check(password string, userContext []string) error
}

// NopChecker accepts every password.
type NopChecker struct{}

// Check always passes.
func (NopChecker) Check(string, []string) error { return nil }

// DefaultMinScore is the zxcvbn score floor for EntropyChecker.
// Scores run 0 (trivially guessable) to 4.
const DefaultMinScore = 3

// EntropyChecker rejects passwords whose estimated crackability score
// falls below MinScore. User context strings are fed to the estimator
// so passwords derived from them score as guessable.
type EntropyChecker struct {
	MinScore int
}

// NewEntropyChecker creates an EntropyChecker with the default floor.
func NewEntropyChecker() *EntropyChecker {
	return &EntropyChecker{MinScore: DefaultMinScore}
}

// Check estimates password strength and rejects below-floor scores.
func (c *EntropyChecker) Check(password string, userContext []string) error {
	minScore := c.MinScore
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	strength := zxcvbn.PasswordStrength(password, userContext)
	if strength.Score < minScore {
		return oops.Code(CodeWeakPassword).
			With("score", strength.Score).
			With("min_score", minScore).
			Errorf("password is too guessable")
	}
	return nil
}

// RuleChecker applies a fixed policy: a length floor, a minimum number
// of distinct character classes (lower, upper, digit, other), and
// rejection of passwords containing any user context word.
type RuleChecker struct {
	MinLength  int
	MinClasses int
}

// NewRuleChecker creates a RuleChecker with a 10-character floor and
// at least three character classes.
func NewRuleChecker() *RuleChecker {
	return &RuleChecker{MinLength: 10, MinClasses: 3}
}

// Check applies the rule set.
func (c *RuleChecker) Check(password string, userContext []string) error {
	if len(password) < c.MinLength {
		return oops.Code(CodeWeakPassword).
			With("min_length", c.MinLength).
			Errorf("password must be at least %d characters", c.MinLength)
	}

	var lower, upper, digit, other bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			other = true
		}
	}
	classes := 0
	for _, present := range []bool{lower, upper, digit, other} {
		if present {
			classes++
		}
	}
	if classes < c.MinClasses {
		return oops.Code(CodeWeakPassword).
			With("classes", classes).
			With("min_classes", c.MinClasses).
			Errorf("password needs at least %d character classes", c.MinClasses)
	}

	folded := strings.ToLower(password)
	for _, word := range userContext {
		word = strings.ToLower(strings.TrimSpace(word))
		// Short fragments ("a", "io") would reject almost everything.
		if len(word) < 4 {
			continue
		}
		if strings.Contains(folded, word) {
			return oops.Code(CodeWeakPassword).
				Errorf("password must not contain your username or email")
		}
		// The local part of an email is identity-derived too.
		if at := strings.IndexByte(word, '@'); at >= 4 {
			if strings.Contains(folded, word[:at]) {
				return oops.Code(CodeWeakPassword).
					Errorf("password must not contain your username or email")
			}
		}
	}
	return nil
}
