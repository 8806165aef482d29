// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package token issues and verifies the signed, time-bound identity tokens
// carried in Authorization headers.
//
// Tokens are compact HS256 JWTs with the claims sub, iat and exp (epoch
// seconds). The signing key is fixed for the lifetime of a Codec. Verification
// failures are reported as one of ErrMalformed, ErrSignatureInvalid or
// ErrExpired; callers must not expose which one to clients.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Verification and issuance errors. Match them with errors.Is.
var (
	ErrMalformed        = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrSigning          = errors.New("token signing failed")
)

// Reason labels used in logs and metrics.
const (
	ReasonMalformed        = "malformed"
	ReasonSignatureInvalid = "signature_invalid"
	ReasonExpired          = "expired"
	ReasonUnknown          = "unknown"
)

// Claims is the verified content of a token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock replaces the time source used for iat on issue and for the expiry
// check on verify.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// Codec signs and verifies tokens with a single HMAC key.
type Codec struct {
	key    []byte
	method *jwt.SigningMethodHMAC
	now    func() time.Time
}

// NewCodec creates a Codec for key. An empty key is a configuration error.
func NewCodec(key []byte, opts ...Option) (*Codec, error) {
	if len(key) == 0 {
		return nil, oops.In("token").Wrapf(ErrSigning, "signing key is required")
	}
	c := &Codec{
		key:    append([]byte(nil), key...),
		method: jwt.SigningMethodHS256,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue returns a signed token for subject that expires lifetime after now.
// lifetime must be a positive whole number of seconds.
func (c *Codec) Issue(subject string, lifetime time.Duration) (string, error) {
	if lifetime <= 0 {
		return "", oops.In("token").With("lifetime", lifetime.String()).Wrapf(ErrSigning, "lifetime must be positive")
	}
	if lifetime%time.Second != 0 {
		return "", oops.In("token").With("lifetime", lifetime.String()).Wrapf(ErrSigning, "lifetime must be whole seconds")
	}

	// NumericDate has second precision. iat is rounded up so exp-iat ==
	// lifetime and the token never expires before lifetime has passed.
	issuedAt := ceilSecond(c.now())
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(lifetime)),
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.key)
	if err != nil {
		return "", oops.In("token").With("cause", err.Error()).Wrap(ErrSigning)
	}
	return signed, nil
}

// Verify parses tokenString, checks its signature and expiry and returns its
// claims. It never panics on attacker-controlled input.
func (c *Codec) Verify(tokenString string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)

	var registered jwt.RegisteredClaims
	_, err := parser.ParseWithClaims(tokenString, &registered, c.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) && signatureSegmentOnly(parser, tokenString) {
			return Claims{}, oops.In("token").With("cause", err.Error()).Wrap(ErrSignatureInvalid)
		}
		return Claims{}, classify(err)
	}
	if registered.Subject == "" || registered.IssuedAt == nil {
		return Claims{}, oops.In("token").With("cause", "missing sub or iat").Wrap(ErrMalformed)
	}

	return Claims{
		Subject:   registered.Subject,
		IssuedAt:  registered.IssuedAt.Time,
		ExpiresAt: registered.ExpiresAt.Time,
	}, nil
}

// signatureSegmentOnly reports whether header and claims decode cleanly, which
// places a malformed error in the signature segment.
func signatureSegmentOnly(parser *jwt.Parser, tokenString string) bool {
	_, _, err := parser.ParseUnverified(tokenString, &jwt.RegisteredClaims{})
	return err == nil
}

func ceilSecond(t time.Time) time.Time {
	floor := t.Truncate(time.Second)
	if floor.Before(t) {
		return floor.Add(time.Second)
	}
	return floor
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return c.key, nil
}

// classify maps jwt parser errors onto the three verification errors. The
// parser only validates claims after the signature checks out, so an expired
// result implies an authentic token.
func classify(err error) error {
	var kind error
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		kind = ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		kind = ErrSignatureInvalid
	default:
		kind = ErrMalformed
	}
	return oops.In("token").With("cause", err.Error()).Wrap(kind)
}

// Reason returns the metrics label for a Verify error.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return ReasonExpired
	case errors.Is(err, ErrSignatureInvalid):
		return ReasonSignatureInvalid
	case errors.Is(err, ErrMalformed):
		return ReasonMalformed
	default:
		return ReasonUnknown
	}
}
