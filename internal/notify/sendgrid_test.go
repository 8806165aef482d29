// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/identity/pkg/errutil"
)

func newTestNotifier(t *testing.T, handler http.HandlerFunc) *SendGridNotifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	n, err := NewSendGridNotifier(SendGridConfig{
		APIKey:      "sg-test-key",
		SenderEmail: "noreply@example.com",
		FrontendURL: "https://app.example.com",
		BaseURL:     srv.URL,
		Timeout:     2 * time.Second,
		LinkTTL:     2 * time.Minute,
	}, nil)
	require.NoError(t, err)
	return n
}

func TestNewSendGridNotifier_RequiresConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  SendGridConfig
		msg  string
	}{
		{name: "api key", cfg: SendGridConfig{SenderEmail: "a@b.c", FrontendURL: "https://x"}, msg: "api key"},
		{name: "sender", cfg: SendGridConfig{APIKey: "k", FrontendURL: "https://x"}, msg: "sender"},
		{name: "frontend", cfg: SendGridConfig{APIKey: "k", SenderEmail: "a@b.c"}, msg: "frontend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSendGridNotifier(tt.cfg, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
			errutil.AssertErrorCode(t, err, "NOTIFY_CONFIG_INVALID")
		})
	}
}

func TestSendGridNotifier_SendVerificationLink(t *testing.T) {
	var (
		gotPath, gotAuth, gotType string
		got                       sendGridMessage
	)
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	})

	err := n.SendVerificationLink(context.Background(), "user@example.com", "tok123")
	require.NoError(t, err)

	assert.Equal(t, "/v3/mail/send", gotPath)
	assert.Equal(t, "Bearer sg-test-key", gotAuth)
	assert.Contains(t, gotType, "application/json")
	require.Len(t, got.Personalizations, 1)
	assert.Equal(t, []sendGridAddress{{Email: "user@example.com"}}, got.Personalizations[0].To)
	assert.Equal(t, "noreply@example.com", got.From.Email)
	assert.Equal(t, VerificationSubject, got.Subject)
	require.Len(t, got.Content, 1)
	assert.Equal(t, "text/html", got.Content[0].Type)
	assert.Contains(t, got.Content[0].Value, "https://app.example.com/verify?token=tok123")
}

func TestSendGridNotifier_Rejected(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	})

	err := n.SendVerificationLink(context.Background(), "user@example.com", "tok")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, CodeNotifyFailed)
	errutil.AssertErrorContext(t, err, "status", http.StatusUnauthorized)
}

func TestSendGridNotifier_Timeout(t *testing.T) {
	release := make(chan struct{})
	n := newTestNotifier(t, func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusAccepted)
	})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := n.SendVerificationLink(ctx, "user@example.com", "tok")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, CodeNotifyFailed)
}
