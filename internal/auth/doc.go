// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements account credentials and the account flows.
//
// # Credentials
//
// Passwords are stored as argon2id PHC strings produced by Argon2idHasher.
// BoundedHasher caps how many hashes run at once so the memory-hard work
// cannot starve request handling.
//
// # Flows
//
// AccountService coordinates the three-step signup:
//   - Signup issues a short-lived verification token and sends it as a link
//   - SetPassword redeems the token, creates the account and opens a session
//   - Signin checks a password and opens a session
//
// Nothing is persisted until SetPassword succeeds. Errors carry oops codes
// (see errors.go) which the HTTP layer maps to responses.
package auth
