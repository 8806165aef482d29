// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/identity/internal/token"
)

var gateNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestCodec(t *testing.T) *token.Codec {
	t.Helper()
	codec, err := token.NewCodec([]byte("gate-test-secret"), token.WithClock(func() time.Time { return gateNow }))
	require.NoError(t, err)
	return codec
}

func newTestGate(t *testing.T, codec *token.Codec) *Gate {
	t.Helper()
	gate, err := NewGate(codec, DefaultPublicRoutes, nil)
	require.NoError(t, err)
	return gate
}

func issue(t *testing.T, subject string, lifetime time.Duration, at time.Time) string {
	t.Helper()
	codec, err := token.NewCodec([]byte("gate-test-secret"), token.WithClock(func() time.Time { return at }))
	require.NoError(t, err)
	tok, err := codec.Issue(subject, lifetime)
	require.NoError(t, err)
	return tok
}

func TestGate_Classify(t *testing.T) {
	gate := newTestGate(t, newTestCodec(t))
	valid := issue(t, "user@example.com", time.Hour, gateNow)
	expired := issue(t, "user@example.com", time.Minute, gateNow.Add(-2*time.Minute))
	foreign := func() string {
		other, err := token.NewCodec([]byte("someone-else"), token.WithClock(func() time.Time { return gateNow }))
		require.NoError(t, err)
		tok, err := other.Issue("user@example.com", time.Hour)
		require.NoError(t, err)
		return tok
	}()

	tests := []struct {
		name        string
		path        string
		header      []string
		wantOutcome Outcome
		wantMessage string
		wantReason  string
		wantSubject string
	}{
		{name: "public signin without header", path: "/signin", wantOutcome: Forward, wantReason: ReasonPublic},
		{name: "public auth ignores bad header", path: "/auth", header: []string{"garbage"}, wantOutcome: Forward, wantReason: ReasonPublic},
		{name: "public setpassword", path: "/setpassword", wantOutcome: Forward, wantReason: ReasonPublic},
		{name: "missing header", path: "/users/1", wantOutcome: Reject, wantMessage: MsgMissingHeader, wantReason: ReasonMissingHeader},
		{name: "empty header is present", path: "/users/1", header: []string{""}, wantOutcome: Reject, wantMessage: MsgInvalidHeaderFormat, wantReason: ReasonInvalidFormat},
		{name: "wrong scheme", path: "/users/1", header: []string{"Token abc"}, wantOutcome: Reject, wantMessage: MsgInvalidHeaderFormat, wantReason: ReasonInvalidFormat},
		{name: "lowercase scheme", path: "/users", header: []string{"bearer " + valid}, wantOutcome: Reject, wantMessage: MsgInvalidHeaderFormat, wantReason: ReasonInvalidFormat},
		{name: "no space", path: "/users", header: []string{"Bearer" + valid}, wantOutcome: Reject, wantMessage: MsgInvalidHeaderFormat, wantReason: ReasonInvalidFormat},
		{name: "double space", path: "/users", header: []string{"Bearer  " + valid}, wantOutcome: Reject, wantMessage: MsgInvalidToken, wantReason: token.ReasonMalformed},
		{name: "empty token", path: "/users", header: []string{"Bearer "}, wantOutcome: Reject, wantMessage: MsgInvalidToken, wantReason: token.ReasonMalformed},
		{name: "garbage token", path: "/users", header: []string{"Bearer not.a.jwt"}, wantOutcome: Reject, wantMessage: MsgInvalidToken, wantReason: token.ReasonMalformed},
		{name: "expired token", path: "/users", header: []string{"Bearer " + expired}, wantOutcome: Reject, wantMessage: MsgInvalidToken, wantReason: token.ReasonExpired},
		{name: "foreign key", path: "/users", header: []string{"Bearer " + foreign}, wantOutcome: Reject, wantMessage: MsgInvalidToken, wantReason: token.ReasonSignatureInvalid},
		{name: "valid token", path: "/users/42", header: []string{"Bearer " + valid}, wantOutcome: Forward, wantReason: ReasonAuthenticated, wantSubject: "user@example.com"},
		{name: "first header wins", path: "/users", header: []string{"Bearer " + valid, "Token x"}, wantOutcome: Forward, wantReason: ReasonAuthenticated, wantSubject: "user@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for _, h := range tt.header {
				r.Header.Add("Authorization", h)
			}

			d := gate.Classify(r)

			assert.Equal(t, tt.wantOutcome, d.Outcome)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Equal(t, tt.wantSubject, d.Subject)
			if tt.wantOutcome == Reject {
				assert.Equal(t, http.StatusUnauthorized, d.Status)
				assert.Equal(t, tt.wantMessage, d.Message)
			}
		})
	}
}

func TestGate_ClassifyIsPure(t *testing.T) {
	gate := newTestGate(t, newTestCodec(t))
	r := httptest.NewRequest(http.MethodGet, "/users/1", nil)
	r.Header.Set("Authorization", "Bearer "+issue(t, "a@example.com", time.Hour, gateNow))

	first := gate.Classify(r)
	second := gate.Classify(r)
	assert.Equal(t, first, second)
	_, ok := SubjectFromContext(r.Context())
	assert.False(t, ok, "classify must not touch the request")
}

func TestGate_Middleware_WrongSchemeNeverReachesHandler(t *testing.T) {
	gate := newTestGate(t, newTestCodec(t))
	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

	r := httptest.NewRequest(http.MethodGet, "/users/123", nil)
	r.Header.Set("Authorization", "Token abc")
	w := httptest.NewRecorder()

	gate.Middleware(next).ServeHTTP(w, r)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Invalid authorization header format"}`, w.Body.String())
}

func TestGate_Middleware_ForwardsSubject(t *testing.T) {
	gate := newTestGate(t, newTestCodec(t))
	var gotSubject string
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, gotOK = SubjectFromContext(r.Context())
		w.Header().Set("X-Downstream", "yes")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("downstream body"))
	})

	r := httptest.NewRequest(http.MethodGet, "/users/123", nil)
	r.Header.Set("Authorization", "Bearer "+issue(t, "user@example.com", time.Hour, gateNow))
	w := httptest.NewRecorder()

	gate.Middleware(next).ServeHTTP(w, r)

	assert.True(t, gotOK)
	assert.Equal(t, "user@example.com", gotSubject)
	assert.Equal(t, http.StatusTeapot, w.Code, "downstream response passes through unmodified")
	assert.Equal(t, "yes", w.Header().Get("X-Downstream"))
	assert.Equal(t, "downstream body", w.Body.String())
}

func TestGate_Middleware_PublicRouteHasNoSubject(t *testing.T) {
	gate := newTestGate(t, newTestCodec(t))
	var gotOK bool
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, gotOK = SubjectFromContext(r.Context())
	})

	r := httptest.NewRequest(http.MethodPost, "/signin", nil)
	r.Header.Set("Authorization", "Bearer "+issue(t, "user@example.com", time.Hour, gateNow))
	gate.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	assert.False(t, gotOK)
}

func TestGate_Middleware_RejectionBodies(t *testing.T) {
	gate := newTestGate(t, newTestCodec(t))
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { t.Fatal("handler must not run") })

	for header, want := range map[string]string{
		"":                 MsgMissingHeader,
		"Basic dTpw":       MsgInvalidHeaderFormat,
		"Bearer abc.def.g": MsgInvalidToken,
	} {
		r := httptest.NewRequest(http.MethodGet, "/users", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		gate.Middleware(next).ServeHTTP(w, r)

		require.Equal(t, http.StatusUnauthorized, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, map[string]string{"error": want}, body)
	}
}

func TestGate_Middleware_CountsDecisions(t *testing.T) {
	gate := newTestGate(t, newTestCodec(t))
	counter := GateDecisions.WithLabelValues("reject", ReasonMissingHeader)
	before := testutil.ToFloat64(counter)

	r := httptest.NewRequest(http.MethodGet, "/users", nil)
	gate.Middleware(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestNewGate(t *testing.T) {
	t.Run("nil verifier", func(t *testing.T) {
		_, err := NewGate(nil, DefaultPublicRoutes, nil)
		require.Error(t, err)
	})

	t.Run("bad pattern", func(t *testing.T) {
		_, err := NewGate(newTestCodec(t), []string{"/docs/[a-"}, nil)
		require.Error(t, err)
	})

	t.Run("glob patterns", func(t *testing.T) {
		gate, err := NewGate(newTestCodec(t), []string{"/public/*", "/assets/**", "/signin"}, nil)
		require.NoError(t, err)

		assert.True(t, gate.IsPublic("/public/page"))
		assert.False(t, gate.IsPublic("/public/a/b"))
		assert.True(t, gate.IsPublic("/assets/css/site.css"))
		assert.True(t, gate.IsPublic("/signin"))
		assert.False(t, gate.IsPublic("/signin/extra"))
		assert.False(t, gate.IsPublic("/users"))
	})
}

func TestBearerToken(t *testing.T) {
	h := http.Header{}
	_, err := BearerToken(h)
	require.Error(t, err)

	h.Set("Authorization", "Bearer abc")
	tok, err := BearerToken(h)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	h.Set("Authorization", "BEARER abc")
	_, err = BearerToken(h)
	require.Error(t, err)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "forward", Forward.String())
	assert.Equal(t, "reject", Reject.String())
	assert.Equal(t, "unknown", Outcome(0).String())
}
