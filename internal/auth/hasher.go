// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// HashParams are the argon2id cost parameters.
type HashParams struct {
	Time      uint32 // iterations
	MemoryKiB uint32
	Threads   uint8
	SaltLen   uint32
	KeyLen    uint32
}

// DefaultHashParams follow the OWASP argon2id recommendation.
var DefaultHashParams = HashParams{
	Time:      1,
	MemoryKiB: 64 * 1024,
	Threads:   4,
	SaltLen:   16,
	KeyLen:    32,
}

// Upper bounds accepted when parsing a stored hash. A hash outside them is
// treated as malformed rather than allowed to drive allocation.
const (
	maxHashTime      = 16
	maxHashMemoryKiB = 1 << 20
	maxHashKeyLen    = 1024
	minHashKeyLen    = 4
)

// ErrMalformedHash is returned by Verify when the stored hash cannot be parsed.
var ErrMalformedHash = errors.New("malformed password hash")

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code(CodeEmptyPassword).Errorf("password cannot be empty")

// PasswordHasher hashes and verifies passwords synchronously.
type PasswordHasher interface {
	// Hash produces a PHC-encoded argon2id hash with a fresh salt.
	Hash(password string) (string, error)

	// Verify returns (true, nil) on match, (false, nil) on mismatch and an
	// error wrapping ErrMalformedHash when the stored hash is unusable.
	Verify(password, hash string) (bool, error)
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct {
	params HashParams
}

// NewArgon2idHasher creates a hasher with DefaultHashParams.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultHashParams}
}

// NewArgon2idHasherWithParams creates a hasher with custom cost parameters.
func NewArgon2idHasherWithParams(params HashParams) (*Argon2idHasher, error) {
	if params.Time == 0 || params.Time > maxHashTime {
		return nil, oops.Code(CodeHashConfig).With("time", params.Time).Errorf("argon2 time must be between 1 and %d", maxHashTime)
	}
	if params.Threads == 0 {
		return nil, oops.Code(CodeHashConfig).Errorf("argon2 threads must be positive")
	}
	if params.MemoryKiB < 8*uint32(params.Threads) || params.MemoryKiB > maxHashMemoryKiB {
		return nil, oops.Code(CodeHashConfig).With("memory_kib", params.MemoryKiB).Errorf("argon2 memory out of range")
	}
	if params.SaltLen < 8 {
		return nil, oops.Code(CodeHashConfig).With("salt_len", params.SaltLen).Errorf("salt must be at least 8 bytes")
	}
	if params.KeyLen < minHashKeyLen || params.KeyLen > maxHashKeyLen {
		return nil, oops.Code(CodeHashConfig).With("key_len", params.KeyLen).Errorf("key length out of range")
	}
	return &Argon2idHasher{params: params}, nil
}

// Params returns the parameters new hashes are produced with.
func (h *Argon2idHasher) Params() HashParams {
	return h.params
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code(CodeSaltFailed).Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.MemoryKiB, h.params.Threads, h.params.KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	decoded, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), decoded.salt,
		decoded.params.Time, decoded.params.MemoryKiB, decoded.params.Threads, decoded.params.KeyLen)

	return subtle.ConstantTimeCompare(computed, decoded.key) == 1, nil
}

type decodedHash struct {
	params HashParams
	salt   []byte
	key    []byte
}

func malformedHash(format string, args ...any) error {
	return oops.Code(CodeInvalidHash).Wrapf(ErrMalformedHash, format, args...)
}

// decodeHash parses a PHC argon2id string. Every failure wraps
// ErrMalformedHash; no input makes it panic.
func decodeHash(encoded string) (decodedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return decodedHash{}, malformedHash("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return decodedHash{}, malformedHash("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return decodedHash{}, malformedHash("invalid version segment")
	}
	if version != argon2.Version {
		return decodedHash{}, malformedHash("unsupported argon2 version %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return decodedHash{}, malformedHash("invalid parameter segment")
	}
	if iterations == 0 || iterations > maxHashTime {
		return decodedHash{}, malformedHash("time value %d out of range", iterations)
	}
	if threads == 0 || threads > 255 {
		return decodedHash{}, malformedHash("threads value %d out of range", threads)
	}
	if memory == 0 || memory > maxHashMemoryKiB {
		return decodedHash{}, malformedHash("memory value %d out of range", memory)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return decodedHash{}, malformedHash("invalid salt encoding")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return decodedHash{}, malformedHash("invalid key encoding")
	}
	if len(key) < minHashKeyLen || len(key) > maxHashKeyLen {
		return decodedHash{}, malformedHash("invalid hash key length: %d", len(key))
	}

	return decodedHash{
		params: HashParams{
			Time:      iterations,
			MemoryKiB: memory,
			Threads:   uint8(threads),
			SaltLen:   uint32(len(salt)),
			KeyLen:    uint32(len(key)),
		},
		salt: salt,
		key:  key,
	}, nil
}
