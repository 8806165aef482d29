// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/holomush/identity/internal/auth"
	"github.com/holomush/identity/pkg/errutil"
)

// CodeInvalidRequest marks a body that failed to decode or validate.
const CodeInvalidRequest = "INVALID_REQUEST"

// Fallback messages for errors with no entry in errorTable.
const (
	MsgInternal       = "Internal server error"
	MsgSigninFailed   = "Authentication failed"
	MsgCreateFailed   = "Failed to create user"
	MsgLookupFailed   = "Failed to fetch user"
	MsgInvalidRequest = "Invalid request body"
)

type errorResponse struct {
	status  int
	message string
}

// errorTable is the single mapping from error codes to responses.
var errorTable = map[string]errorResponse{
	CodeInvalidRequest:          {http.StatusBadRequest, MsgInvalidRequest},
	auth.CodeEmptyPassword:      {http.StatusBadRequest, "Password cannot be empty"},
	auth.CodeInvalidEmail:       {http.StatusBadRequest, "Invalid email address"},
	auth.CodeAccountExists:      {http.StatusBadRequest, "User with this email already exists"},
	CodeHeaderMissing:           {http.StatusBadRequest, MsgMissingHeader},
	CodeHeaderInvalid:           {http.StatusBadRequest, MsgInvalidHeaderFormat},
	auth.CodeTokenInvalid:       {http.StatusUnauthorized, MsgInvalidToken},
	auth.CodeInvalidCredentials: {http.StatusUnauthorized, "Invalid credentials"},
	auth.CodeAccountNotFound:    {http.StatusNotFound, "User not found"},
	auth.CodeVerificationToken:  {http.StatusInternalServerError, "Failed to generate verification token"},
	auth.CodeSessionToken:       {http.StatusInternalServerError, "Failed to generate authentication token"},
	auth.CodeNotifyFailed:       {http.StatusInternalServerError, "Failed to send verification email"},
}

// responseFor returns the status and client message for err. Unknown codes
// become a 500 with fallback as the message.
func responseFor(err error, fallback string) (int, string) {
	if resp, ok := errorTable[errutil.Code(err)]; ok {
		return resp.status, resp.message
	}
	return http.StatusInternalServerError, fallback
}

// writeError responds with the mapped error. Server errors are logged with
// full detail; client errors only at debug.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, fallback string) {
	status, message := responseFor(err, fallback)
	ctx := r.Context()
	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(ctx, logger, "request failed", err)
	} else {
		errutil.LogDebugContext(ctx, logger, "request rejected", err)
	}
	writeJSON(w, status, errorBody{Error: message})
}
