// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode fails t unless err carries code. Codes decide the HTTP
// status and message, so a mismatch prints the whole chain.
func AssertErrorCode(t testing.TB, err error, code string) {
	t.Helper()
	require.Error(t, err, "expected error with code %s", code)
	assert.Equal(t, code, Code(err), "error: %+v", err)
}

// AssertErrorContext fails t unless err's oops context has key set to value.
func AssertErrorContext(t testing.TB, err error, key string, value any) {
	t.Helper()
	require.Error(t, err)
	ctx := Context(err)
	require.Contains(t, ctx, key, "error: %v", err)
	assert.Equal(t, value, ctx[key])
}

// AssertNoSecret fails t if any secret appears in err's message or context.
// Errors are logged, so passwords and tokens must never end up in them.
func AssertNoSecret(t testing.TB, err error, secrets ...string) {
	t.Helper()
	if err == nil {
		return
	}
	rendered := err.Error() + fmt.Sprint(Context(err))
	for _, secret := range secrets {
		assert.NotContains(t, rendered, secret)
	}
}
