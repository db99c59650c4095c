// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package errutil bridges oops errors and structured slog output.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context. For oops errors the
// code and attached context are extracted into attributes; standard
// errors log their string form.
func LogError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, errAttrs(err)...)
}

// LogWarn is LogError at warning level, for best-effort failures that
// do not abort the operation.
func LogWarn(logger *slog.Logger, msg string, err error) {
	logger.Warn(msg, errAttrs(err)...)
}

// LogInfo logs an informational event with key/value attributes.
func LogInfo(logger *slog.Logger, msg string, args ...any) {
	logger.Info(msg, args...)
}

func errAttrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}
