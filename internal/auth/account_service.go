// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/holomush/identity/internal/token"
	"github.com/holomush/identity/pkg/errutil"
)

// Default token lifetimes.
const (
	DefaultVerificationTTL = 120 * time.Second
	DefaultSessionTTL      = time.Hour
)

// AccountConfig holds the token lifetimes used by AccountService.
type AccountConfig struct {
	VerificationTTL time.Duration
	SessionTTL      time.Duration
}

func (c AccountConfig) withDefaults() AccountConfig {
	if c.VerificationTTL <= 0 {
		c.VerificationTTL = DefaultVerificationTTL
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	return c
}

// AccountService orchestrates signup, set-password and signin.
type AccountService struct {
	repo   AccountRepository
	hasher CredentialHasher
	// dummyHash is verified against when the account doesn't exist so signin
	// costs the same either way. It hashes a discarded random secret with the
	// configured hasher, so its cost parameters match real hashes.
	dummyHash string
	tokens    TokenCodec
	notifier  Notifier
	cfg       AccountConfig
	logger    *slog.Logger
}

// NewAccountService creates an AccountService that discards logs.
func NewAccountService(
	repo AccountRepository,
	hasher CredentialHasher,
	tokens TokenCodec,
	notifier Notifier,
	cfg AccountConfig,
) (*AccountService, error) {
	return NewAccountServiceWithLogger(repo, hasher, tokens, notifier, cfg, slog.New(slog.DiscardHandler))
}

// NewAccountServiceWithLogger creates an AccountService that logs to logger.
func NewAccountServiceWithLogger(
	repo AccountRepository,
	hasher CredentialHasher,
	tokens TokenCodec,
	notifier Notifier,
	cfg AccountConfig,
	logger *slog.Logger,
) (*AccountService, error) {
	switch {
	case repo == nil:
		return nil, oops.Code(CodeServiceMisconfigured).Errorf("account repository is required")
	case hasher == nil:
		return nil, oops.Code(CodeServiceMisconfigured).Errorf("credential hasher is required")
	case tokens == nil:
		return nil, oops.Code(CodeServiceMisconfigured).Errorf("token codec is required")
	case notifier == nil:
		return nil, oops.Code(CodeServiceMisconfigured).Errorf("notifier is required")
	case logger == nil:
		return nil, oops.Code(CodeServiceMisconfigured).Errorf("logger is required")
	}

	dummyHash, err := hasher.Hash(context.Background(), rand.Text())
	if err != nil {
		return nil, oops.Code(CodeServiceMisconfigured).With("operation", "derive dummy hash").Wrap(err)
	}

	return &AccountService{
		repo:      repo,
		hasher:    hasher,
		dummyHash: dummyHash,
		tokens:    tokens,
		notifier:  notifier,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}, nil
}

// SessionTTL returns the lifetime of issued session tokens.
func (s *AccountService) SessionTTL() time.Duration {
	return s.cfg.SessionTTL
}

// coded wraps err with code unless it already carries one, so the most
// specific code from a lower layer survives.
func coded(err error, code, operation string) error {
	if errutil.Code(err) != "" {
		return oops.With("operation", operation).Wrap(err)
	}
	return oops.Code(code).With("operation", operation).Wrap(err)
}

// Signup starts account creation for email: it issues a short-lived
// verification token and sends it as a link. Nothing is persisted.
func (s *AccountService) Signup(ctx context.Context, email string) error {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		recordFlow(FlowSignup, OutcomeRejected)
		return err
	}

	_, err = s.repo.FindByEmail(ctx, normalized)
	switch {
	case err == nil:
		recordFlow(FlowSignup, OutcomeRejected)
		return oops.Code(CodeAccountExists).
			With("email", normalized).
			Errorf("account with this email already exists")
	case !errors.Is(err, ErrNotFound):
		recordFlow(FlowSignup, OutcomeError)
		return coded(err, CodeAccountLookupFailed, "find account by email")
	}

	verification, err := s.tokens.Issue(normalized, s.cfg.VerificationTTL)
	if err != nil {
		recordFlow(FlowSignup, OutcomeError)
		return oops.Code(CodeVerificationToken).With("operation", "issue verification token").Wrap(err)
	}

	if err := s.notifier.SendVerificationLink(ctx, normalized, verification); err != nil {
		recordFlow(FlowSignup, OutcomeError)
		return coded(err, CodeNotifyFailed, "send verification link")
	}

	recordFlow(FlowSignup, OutcomeSuccess)
	s.logger.InfoContext(ctx, "verification link sent", "ttl", s.cfg.VerificationTTL)
	return nil
}

// SetPassword finishes signup: the verification token's subject becomes the
// account email and password its credential. Returns a session token.
// Any failure leaves no account behind.
func (s *AccountService) SetPassword(ctx context.Context, verificationToken, password string) (Session, error) {
	claims, err := s.tokens.Verify(verificationToken)
	if err != nil {
		recordFlow(FlowSetPassword, OutcomeRejected)
		s.logger.DebugContext(ctx, "verification token rejected", "reason", token.Reason(err))
		return Session{}, oops.Code(CodeTokenInvalid).With("reason", token.Reason(err)).Wrap(err)
	}

	email, err := NormalizeEmail(claims.Subject)
	if err != nil {
		recordFlow(FlowSetPassword, OutcomeRejected)
		return Session{}, oops.Code(CodeTokenInvalid).With("reason", "subject").Wrap(err)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		recordFlow(FlowSetPassword, outcomeFor(err))
		return Session{}, coded(err, CodeHashFailed, "hash password")
	}

	// Issue before persisting so a signing failure cannot strand an account.
	session, err := s.issueSession(email)
	if err != nil {
		recordFlow(FlowSetPassword, OutcomeError)
		return Session{}, err
	}

	account, err := s.repo.CreateAccount(ctx, email, hash)
	if err != nil {
		recordFlow(FlowSetPassword, outcomeFor(err))
		if errors.Is(err, ErrAccountExists) {
			return Session{}, coded(err, CodeAccountExists, "create account")
		}
		return Session{}, coded(err, CodeAccountCreateFailed, "create account")
	}

	recordFlow(FlowSetPassword, OutcomeSuccess)
	s.logger.InfoContext(ctx, "account created", "account_id", account.ID.String())
	return session, nil
}

// Signin checks email and password and returns a session token. Unknown
// emails and wrong passwords are indistinguishable to the caller.
func (s *AccountService) Signin(ctx context.Context, email, password string) (Session, error) {
	targetHash := s.dummyHash
	exists := false

	normalized, normErr := NormalizeEmail(email)
	if normErr == nil {
		account, err := s.repo.FindByEmail(ctx, normalized)
		switch {
		case err == nil:
			targetHash = account.PasswordHash
			exists = true
		case !errors.Is(err, ErrNotFound):
			recordFlow(FlowSignin, OutcomeError)
			return Session{}, coded(err, CodeSigninFailed, "find account by email")
		}
	}

	// Always verify, even against the dummy hash, to keep timing uniform.
	valid, err := s.hasher.Verify(ctx, password, targetHash)
	if err != nil {
		recordFlow(FlowSignin, OutcomeError)
		return Session{}, coded(err, CodeSigninFailed, "verify password")
	}

	if !exists || !valid {
		recordFlow(FlowSignin, OutcomeRejected)
		return Session{}, oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
	}

	session, err := s.issueSession(normalized)
	if err != nil {
		recordFlow(FlowSignin, OutcomeError)
		return Session{}, err
	}

	recordFlow(FlowSignin, OutcomeSuccess)
	return session, nil
}

// CreateAccount creates an account directly with a known password.
func (s *AccountService) CreateAccount(ctx context.Context, email, password string) (*Account, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		recordFlow(FlowCreate, OutcomeRejected)
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		recordFlow(FlowCreate, outcomeFor(err))
		return nil, coded(err, CodeHashFailed, "hash password")
	}

	account, err := s.repo.CreateAccount(ctx, normalized, hash)
	if err != nil {
		recordFlow(FlowCreate, outcomeFor(err))
		if errors.Is(err, ErrAccountExists) {
			return nil, coded(err, CodeAccountExists, "create account")
		}
		return nil, coded(err, CodeAccountCreateFailed, "create account")
	}

	recordFlow(FlowCreate, OutcomeSuccess)
	s.logger.InfoContext(ctx, "account created", "account_id", account.ID.String())
	return account, nil
}

// GetAccount returns the account with id.
func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, coded(err, CodeAccountNotFound, "find account by id")
		}
		return nil, coded(err, CodeAccountLookupFailed, "find account by id")
	}
	return account, nil
}

func (s *AccountService) issueSession(email string) (Session, error) {
	signed, err := s.tokens.Issue(email, s.cfg.SessionTTL)
	if err != nil {
		return Session{}, oops.Code(CodeSessionToken).With("operation", "issue session token").Wrap(err)
	}
	return Session{Token: signed, ExpiresIn: s.cfg.SessionTTL}, nil
}

// outcomeFor separates client-caused failures from internal ones for metrics.
func outcomeFor(err error) string {
	if errors.Is(err, ErrAccountExists) || errutil.HasCode(err, CodeEmptyPassword) {
		return OutcomeRejected
	}
	return OutcomeError
}
