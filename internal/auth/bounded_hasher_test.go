// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/identity/internal/auth"
	"github.com/holomush/identity/pkg/errutil"
)

// gatedHasher blocks every call until release is closed and tracks the peak
// number of concurrent calls.
type gatedHasher struct {
	release chan struct{}
	started chan struct{}
	current atomic.Int32
	peak    atomic.Int32
}

func newGatedHasher() *gatedHasher {
	return &gatedHasher{release: make(chan struct{}), started: make(chan struct{}, 64)}
}

func (g *gatedHasher) enter() {
	n := g.current.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	g.started <- struct{}{}
	<-g.release
	g.current.Add(-1)
}

func (g *gatedHasher) Hash(password string) (string, error) {
	g.enter()
	return "hashed:" + password, nil
}

func (g *gatedHasher) Verify(password, hash string) (bool, error) {
	g.enter()
	return hash == "hashed:"+password, nil
}

func TestNewBoundedHasher_NilInner(t *testing.T) {
	h, err := auth.NewBoundedHasher(nil, 2)
	require.Error(t, err)
	assert.Nil(t, h)
	errutil.AssertErrorCode(t, err, auth.CodeServiceMisconfigured)
}

func TestBoundedHasher_DelegatesResults(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, err := auth.NewBoundedHasher(newFastHasher(t), 2)
	require.NoError(t, err)

	ctx := context.Background()
	hash, err := h.Hash(ctx, "secret")
	require.NoError(t, err)

	ok, err := h.Verify(ctx, "secret", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(ctx, "other", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Verify(ctx, "secret", "garbage")
	assert.ErrorIs(t, err, auth.ErrMalformedHash)

	_, err = h.Hash(ctx, "")
	errutil.AssertErrorCode(t, err, auth.CodeEmptyPassword)
}

func TestBoundedHasher_LimitsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	inner := newGatedHasher()
	h, err := auth.NewBoundedHasher(inner, 2)
	require.NoError(t, err)

	const callers = 6
	var wg sync.WaitGroup
	wg.Add(callers)
	for range callers {
		go func() {
			defer wg.Done()
			_, _ = h.Hash(context.Background(), "pw")
		}()
	}

	// Two workers start; nobody else gets in while they are held.
	<-inner.started
	<-inner.started
	select {
	case <-inner.started:
		t.Fatal("third hash started while two workers were busy")
	case <-time.After(50 * time.Millisecond):
	}

	close(inner.release)
	wg.Wait()
	assert.Equal(t, int32(2), inner.peak.Load())
}

func TestBoundedHasher_CallerCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	inner := newGatedHasher()
	h, err := auth.NewBoundedHasher(inner, 1)
	require.NoError(t, err)

	// Occupy the only worker.
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = h.Hash(context.Background(), "first")
	}()
	<-inner.started

	t.Run("waiting for a worker", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := h.Hash(ctx, "second")
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		errutil.AssertErrorCode(t, err, auth.CodeHashFailed)
	})

	close(inner.release)
	<-firstDone

	t.Run("waiting for a result", func(t *testing.T) {
		slow := newGatedHasher()
		h, err := auth.NewBoundedHasher(slow, 1)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		result := make(chan error, 1)
		go func() {
			_, err := h.Verify(ctx, "pw", "hashed:pw")
			result <- err
		}()
		<-slow.started
		cancel()

		err = <-result
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)

		// The worker finishes in the background and frees its slot.
		close(slow.release)
		ok, err := h.Verify(context.Background(), "pw", "hashed:pw")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
