// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAccountExists is returned by repositories when the email is already taken.
var ErrAccountExists = errors.New("account already exists")

// Error codes attached to errors leaving this package. The HTTP layer maps
// them to responses; anything not listed there is a 500.
const (
	CodeAccountExists        = "ACCOUNT_EXISTS"
	CodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	CodeAccountCreateFailed  = "ACCOUNT_CREATE_FAILED"
	CodeAccountLookupFailed  = "ACCOUNT_LOOKUP_FAILED"
	CodeInvalidCredentials   = "AUTH_INVALID_CREDENTIALS"
	CodeSigninFailed         = "AUTH_SIGNIN_FAILED"
	CodeTokenInvalid         = "TOKEN_INVALID"
	CodeVerificationToken    = "VERIFICATION_TOKEN_FAILED"
	CodeSessionToken         = "SESSION_TOKEN_FAILED"
	CodeNotifyFailed         = "NOTIFY_FAILED"
	CodeEmptyPassword        = "AUTH_EMPTY_PASSWORD"
	CodeInvalidHash          = "AUTH_INVALID_HASH"
	CodeSaltFailed           = "AUTH_SALT_FAILED"
	CodeHashFailed           = "AUTH_HASH_FAILED"
	CodeHashConfig           = "AUTH_HASH_CONFIG"
	CodeInvalidEmail         = "AUTH_INVALID_EMAIL"
	CodeServiceMisconfigured = "AUTH_SERVICE_MISCONFIGURED"
)
