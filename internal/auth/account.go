// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/holomush/identity/internal/token"
)

// MaxEmailLength is the longest email address accepted (RFC 5321 path limit).
const MaxEmailLength = 254

// Account is a user account together with its credential record. An account
// never exists without a password hash.
type Account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session is an issued session token and its lifetime.
type Session struct {
	Token     string
	ExpiresIn time.Duration
}

// AccountRepository persists accounts. CreateAccount must be atomic with
// respect to email uniqueness and return an error wrapping ErrAccountExists
// when the email is taken.
type AccountRepository interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	CreateAccount(ctx context.Context, email, passwordHash string) (*Account, error)
}

// Notifier delivers verification links.
type Notifier interface {
	SendVerificationLink(ctx context.Context, email, token string) error
}

// TokenCodec issues and verifies identity tokens.
type TokenCodec interface {
	Issue(subject string, lifetime time.Duration) (string, error)
	Verify(tokenString string) (token.Claims, error)
}

// NormalizeEmail trims and lower-cases an address and checks that it parses
// as a bare addr-spec.
func NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" || len(normalized) > MaxEmailLength {
		return "", oops.Code(CodeInvalidEmail).With("length", len(normalized)).Errorf("invalid email address")
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized || addr.Name != "" {
		return "", oops.Code(CodeInvalidEmail).Errorf("invalid email address")
	}
	return normalized, nil
}
