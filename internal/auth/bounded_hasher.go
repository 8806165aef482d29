// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"runtime"
	"time"

	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
)

// CredentialHasher is the context-aware hasher used by AccountService.
type CredentialHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, hash string) (bool, error)
}

// BoundedHasher runs a PasswordHasher on at most a fixed number of goroutines
// at a time. Argon2 is deliberately slow and memory hungry, so unbounded
// concurrent hashing would starve request handling.
//
// A caller whose context ends stops waiting, but the running hash keeps its
// worker slot until it finishes so the bound holds.
type BoundedHasher struct {
	inner PasswordHasher
	sem   *semaphore.Weighted
}

// NewBoundedHasher wraps inner with a pool of workers. workers <= 0 means
// runtime.NumCPU().
func NewBoundedHasher(inner PasswordHasher, workers int) (*BoundedHasher, error) {
	if inner == nil {
		return nil, oops.Code(CodeServiceMisconfigured).Errorf("password hasher is required")
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &BoundedHasher{
		inner: inner,
		sem:   semaphore.NewWeighted(int64(workers)),
	}, nil
}

type hashResult struct {
	hash string
	ok   bool
	err  error
}

// Hash hashes password on a worker.
func (b *BoundedHasher) Hash(ctx context.Context, password string) (string, error) {
	res, err := b.run(ctx, "hash", func() hashResult {
		hash, err := b.inner.Hash(password)
		return hashResult{hash: hash, err: err}
	})
	if err != nil {
		return "", err
	}
	return res.hash, res.err
}

// Verify checks password against hash on a worker.
func (b *BoundedHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	res, err := b.run(ctx, "verify", func() hashResult {
		ok, err := b.inner.Verify(password, hash)
		return hashResult{ok: ok, err: err}
	})
	if err != nil {
		return false, err
	}
	return res.ok, res.err
}

func (b *BoundedHasher) run(ctx context.Context, op string, fn func() hashResult) (hashResult, error) {
	start := time.Now()
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return hashResult{}, oops.Code(CodeHashFailed).With("op", op).With("stage", "acquire worker").Wrap(err)
	}

	done := make(chan hashResult, 1)
	go func() {
		HashInFlight.Inc()
		defer func() {
			HashInFlight.Dec()
			b.sem.Release(1)
		}()
		done <- fn()
	}()

	select {
	case res := <-done:
		recordHashDuration(op, time.Since(start))
		return res, nil
	case <-ctx.Done():
		return hashResult{}, oops.Code(CodeHashFailed).With("op", op).With("stage", "wait result").Wrap(ctx.Err())
	}
}
