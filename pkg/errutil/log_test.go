// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/identity/pkg/errutil"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "oops error with code", err: oops.Code("ACCOUNT_EXISTS").Errorf("dup"), want: "ACCOUNT_EXISTS"},
		{name: "oops error without code", err: oops.Errorf("plain"), want: ""},
		{name: "standard error", err: errors.New("boom"), want: ""},
		{name: "nil", err: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errutil.Code(tt.err))
		})
	}
}

func TestHasCode(t *testing.T) {
	err := oops.Code("TOKEN_INVALID").Wrap(errors.New("expired"))
	assert.True(t, errutil.HasCode(err, "TOKEN_INVALID"))
	assert.False(t, errutil.HasCode(err, "ACCOUNT_EXISTS"))
	assert.False(t, errutil.HasCode(nil, "TOKEN_INVALID"))
}

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("TEST_ERROR").
		With("key", "value").
		Errorf("something failed")

	errutil.LogError(logger, "operation failed", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Equal(t, "operation failed", logEntry["msg"])
	assert.Equal(t, "TEST_ERROR", logEntry["code"])
	assert.Contains(t, logEntry, "context")
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Contains(t, logEntry["error"], "standard error")
	assert.NotContains(t, logEntry, "code")
}

func TestLogDebugContext_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	errutil.LogDebugContext(context.Background(), logger, "client error", oops.Code("TOKEN_INVALID").Errorf("bad"))
	assert.Empty(t, buf.String())

	buf.Reset()
	logger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	errutil.LogDebugContext(context.Background(), logger, "client error", oops.Code("TOKEN_INVALID").Errorf("bad"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "DEBUG", logEntry["level"])
	assert.Equal(t, "TOKEN_INVALID", logEntry["code"])
}

func TestContext(t *testing.T) {
	assert.Nil(t, errutil.Context(errors.New("plain")))
	assert.Nil(t, errutil.Context(nil))

	err := oops.With("operation", "signin").Wrap(oops.With("email", "a@example.com").Errorf("lookup"))
	assert.Equal(t, "signin", errutil.Context(err)["operation"])
	assert.Equal(t, "a@example.com", errutil.Context(err)["email"])
}
