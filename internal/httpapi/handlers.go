// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/samber/oops"

	"github.com/holomush/identity/internal/auth"
)

// Accounts is the account service as the handlers use it.
type Accounts interface {
	Signup(ctx context.Context, email string) error
	SetPassword(ctx context.Context, verificationToken, password string) (auth.Session, error)
	Signin(ctx context.Context, email, password string) (auth.Session, error)
	CreateAccount(ctx context.Context, email, password string) (*auth.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*auth.Account, error)
}

type accountBody struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func newAccountBody(a *auth.Account) accountBody {
	return accountBody{ID: a.ID.String(), Email: a.Email, CreatedAt: a.CreatedAt}
}

// Handlers serves the account routes.
type Handlers struct {
	accounts Accounts
	schemas  *requestSchemas
	logger   *slog.Logger
}

// NewHandlers creates the route handlers. Request schemas are compiled here
// so a bad schema fails at startup.
func NewHandlers(accounts Accounts, logger *slog.Logger) (*Handlers, error) {
	if accounts == nil {
		return nil, oops.Errorf("account service is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	schemas, err := compileRequestSchemas()
	if err != nil {
		return nil, err
	}
	return &Handlers{accounts: accounts, schemas: schemas, logger: logger}, nil
}

// Signup handles POST /auth and POST /signup.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeBody(w, r, h.schemas.signup, &req); err != nil {
		writeError(w, r, h.logger, err, MsgInvalidRequest)
		return
	}
	if err := h.accounts.Signup(r.Context(), req.Email); err != nil {
		writeError(w, r, h.logger, err, MsgInternal)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Verification email sent successfully"})
}

// SetPassword handles POST /setpassword. The bearer credential is the
// verification token from the signup email.
func (h *Handlers) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req SetPasswordRequest
	if err := decodeBody(w, r, h.schemas.setPassword, &req); err != nil {
		writeError(w, r, h.logger, err, MsgInvalidRequest)
		return
	}
	verification, err := BearerToken(r.Header)
	if err != nil {
		writeError(w, r, h.logger, err, MsgInvalidHeaderFormat)
		return
	}
	session, err := h.accounts.SetPassword(r.Context(), verification, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err, MsgCreateFailed)
		return
	}
	writeJSON(w, http.StatusOK, sessionBody{
		Message:   "User created successfully",
		Token:     session.Token,
		ExpiresIn: int64(session.ExpiresIn / time.Second),
	})
}

// Signin handles POST /signin.
func (h *Handlers) Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := decodeBody(w, r, h.schemas.signin, &req); err != nil {
		writeError(w, r, h.logger, err, MsgInvalidRequest)
		return
	}
	session, err := h.accounts.Signin(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err, MsgSigninFailed)
		return
	}
	writeJSON(w, http.StatusOK, sessionBody{
		Token:     session.Token,
		ExpiresIn: int64(session.ExpiresIn / time.Second),
	})
}

// CreateUser handles POST /users.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeBody(w, r, h.schemas.createUser, &req); err != nil {
		writeError(w, r, h.logger, err, MsgInvalidRequest)
		return
	}
	account, err := h.accounts.CreateAccount(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err, MsgCreateFailed)
		return
	}
	subject, _ := SubjectFromContext(r.Context())
	h.logger.InfoContext(r.Context(), "account created by api",
		"account_id", account.ID.String(),
		"created_by", subject)
	writeJSON(w, http.StatusCreated, newAccountBody(account))
}

// GetUser handles GET /users/{id}. An id that is not a UUID cannot name an
// account and gets the same 404 as a missing one.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger,
			oops.Code(auth.CodeAccountNotFound).With("id", mux.Vars(r)["id"]).Wrap(auth.ErrNotFound),
			MsgLookupFailed)
		return
	}
	account, err := h.accounts.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err, MsgLookupFailed)
		return
	}
	writeJSON(w, http.StatusOK, newAccountBody(account))
}
