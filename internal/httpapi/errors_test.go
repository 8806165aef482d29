// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/holomush/identity/internal/auth"
	"github.com/holomush/identity/internal/token"
)

func TestResponseFor(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		fallback    string
		wantStatus  int
		wantMessage string
	}{
		{"exists", oops.Code(auth.CodeAccountExists).Wrap(auth.ErrAccountExists), MsgInternal, 400, "User with this email already exists"},
		{"empty password", auth.ErrEmptyPassword, MsgInternal, 400, "Password cannot be empty"},
		{"invalid token", oops.Code(auth.CodeTokenInvalid).Wrap(token.ErrExpired), MsgInternal, 401, MsgInvalidToken},
		{"credentials", oops.Code(auth.CodeInvalidCredentials).Errorf("no"), MsgInternal, 401, "Invalid credentials"},
		{"not found", oops.Code(auth.CodeAccountNotFound).Wrap(auth.ErrNotFound), MsgInternal, 404, "User not found"},
		{"wrapped code survives", oops.With("operation", "x").Wrap(oops.Code(auth.CodeNotifyFailed).Errorf("502")), MsgInternal, 500, "Failed to send verification email"},
		{"unknown code uses fallback", oops.Code("SOMETHING_ELSE").Errorf("x"), MsgSigninFailed, 500, MsgSigninFailed},
		{"plain error uses fallback", errors.New("boom"), MsgLookupFailed, 500, MsgLookupFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, message := responseFor(tt.err, tt.fallback)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantMessage, message)
		})
	}
}

func TestWriteError_LogsServerErrorsOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/signin", nil)
	writeError(w, r, logger, oops.Code(auth.CodeInvalidCredentials).Errorf("no"), MsgSigninFailed)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, buf.String())

	w = httptest.NewRecorder()
	writeError(w, r, logger, errors.New("database on fire"), MsgSigninFailed)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Authentication failed"}`, w.Body.String())
	assert.Contains(t, buf.String(), "database on fire")
}
