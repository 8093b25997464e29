// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package errutil

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err is an oops error with the given code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, code, oopsErr.Code())
}

// AssertErrorContext asserts that err is an oops error with the given context key/value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	ctx := oopsErr.Context()
	assert.Contains(t, ctx, key)
	assert.Equal(t, value, ctx[key])
}

// AssertErrorKind asserts that the outermost classified error in err's chain
// has the given kind and, if code is non-empty, the given code.
func AssertErrorKind(t *testing.T, err error, kind, code string) {
	t.Helper()
	var classified Classified
	require.True(t, errors.As(err, &classified), "expected classified error, got %T: %v", err, err)
	assert.Equal(t, kind, classified.ErrorKind())
	if code != "" {
		assert.Equal(t, code, classified.ErrorCode())
	}
}
