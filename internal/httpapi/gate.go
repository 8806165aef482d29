// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/holomush/identity/internal/token"
	"github.com/holomush/identity/pkg/errutil"
)

// Rejection messages written by the gate.
const (
	MsgMissingHeader       = "Missing authorization header"
	MsgInvalidHeaderFormat = "Invalid authorization header format"
	MsgInvalidToken        = "Invalid token"
)

// Error codes for bearer header problems.
const (
	CodeHeaderMissing = "AUTH_HEADER_MISSING"
	CodeHeaderInvalid = "AUTH_HEADER_INVALID"
)

// Reasons recorded with gate decisions.
const (
	ReasonPublic        = "public"
	ReasonAuthenticated = "authenticated"
	ReasonMissingHeader = "missing_header"
	ReasonInvalidFormat = "invalid_format"
)

const bearerPrefix = "Bearer "

// DefaultPublicRoutes are reachable without a token. /setpassword is listed
// because it authenticates with a verification token in its own handler.
var DefaultPublicRoutes = []string{"/auth", "/signup", "/signin", "/setpassword"}

// Outcome is the gate's verdict on a request.
type Outcome int

// Gate outcomes.
const (
	Forward Outcome = iota + 1
	Reject
)

func (o Outcome) String() string {
	switch o {
	case Forward:
		return "forward"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Decision is the result of classifying one request. Subject is set when a
// token was verified; Status and Message are set on Reject. Reason is for
// logs and metrics only and never reaches the client.
type Decision struct {
	Outcome Outcome
	Subject string
	Status  int
	Message string
	Reason  string
}

// TokenVerifier checks bearer tokens.
type TokenVerifier interface {
	Verify(tokenString string) (token.Claims, error)
}

// Gate authenticates requests to every non-public route.
type Gate struct {
	verifier TokenVerifier
	public   []glob.Glob
	logger   *slog.Logger
}

// NewGate creates a gate. publicRoutes are glob patterns over the URL path
// where '*' stops at '/' and '**' does not.
func NewGate(verifier TokenVerifier, publicRoutes []string, logger *slog.Logger) (*Gate, error) {
	if verifier == nil {
		return nil, oops.Errorf("token verifier is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	compiled := make([]glob.Glob, 0, len(publicRoutes))
	for _, pattern := range publicRoutes {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, oops.Code("GATE_CONFIG_INVALID").With("pattern", pattern).Wrap(err)
		}
		compiled = append(compiled, g)
	}
	return &Gate{verifier: verifier, public: compiled, logger: logger}, nil
}

// IsPublic reports whether path bypasses authentication.
func (g *Gate) IsPublic(path string) bool {
	for _, p := range g.public {
		if p.Match(path) {
			return true
		}
	}
	return false
}

// Classify decides whether r may proceed. It has no side effects.
func (g *Gate) Classify(r *http.Request) Decision {
	if g.IsPublic(r.URL.Path) {
		return Decision{Outcome: Forward, Reason: ReasonPublic}
	}

	raw, err := BearerToken(r.Header)
	if err != nil {
		if errutil.HasCode(err, CodeHeaderMissing) {
			return reject(MsgMissingHeader, ReasonMissingHeader)
		}
		return reject(MsgInvalidHeaderFormat, ReasonInvalidFormat)
	}

	claims, err := g.verifier.Verify(raw)
	if err != nil {
		return reject(MsgInvalidToken, token.Reason(err))
	}
	return Decision{Outcome: Forward, Subject: claims.Subject, Reason: ReasonAuthenticated}
}

func reject(message, reason string) Decision {
	return Decision{Outcome: Reject, Status: http.StatusUnauthorized, Message: message, Reason: reason}
}

// Middleware writes rejections itself and passes forwarded requests to next
// untouched, with the subject in the context when there is one.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Classify(r)
		recordGateDecision(d)

		if d.Outcome != Forward {
			g.logger.DebugContext(r.Context(), "request rejected by gate",
				"path", r.URL.Path,
				"reason", d.Reason,
				"request_id", RequestIDFromContext(r.Context()))
			writeJSON(w, d.Status, errorBody{Error: d.Message})
			return
		}

		if d.Subject != "" {
			r = r.WithContext(WithSubject(r.Context(), d.Subject))
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from an Authorization header. The scheme
// must be exactly "Bearer " (case-sensitive, one space); the remainder is
// returned as is.
func BearerToken(h http.Header) (string, error) {
	values := h.Values("Authorization")
	if len(values) == 0 {
		return "", oops.Code(CodeHeaderMissing).Errorf("missing authorization header")
	}
	raw, ok := strings.CutPrefix(values[0], bearerPrefix)
	if !ok {
		return "", oops.Code(CodeHeaderInvalid).Errorf("authorization header is not a bearer credential")
	}
	return raw, nil
}
