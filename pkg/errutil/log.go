// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil holds helpers for coded oops errors shared by the service
// packages and their tests.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// Code returns the oops code carried by err, or "" when err has none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch code := any(oopsErr.Code()).(type) {
	case string:
		return code
	default:
		return ""
	}
}

// HasCode reports whether err carries the given oops code.
func HasCode(err error, code string) bool {
	return err != nil && Code(err) == code
}

// Context returns the oops context attached anywhere in err's chain, or nil.
func Context(err error) map[string]any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Context()
}

// attrs flattens an error into slog key/value pairs. Oops errors contribute
// their code and context; anything else is logged as a plain string.
func attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	out := []any{"error", oopsErr.Error()}
	if code := Code(err); code != "" {
		out = append(out, "code", code)
	}
	if ctx := Context(err); len(ctx) > 0 {
		out = append(out, "context", ctx)
	}
	return out
}

// LogError logs err at error level with its code and context.
func LogError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, attrs(err)...)
}

// LogErrorContext is LogError with a request context, so trace ids flow into
// the record.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(ctx, msg, attrs(err)...)
}

// LogDebugContext logs err at debug level. Used for expected client errors
// whose detail must stay out of responses.
func LogDebugContext(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.DebugContext(ctx, msg, attrs(err)...)
}
