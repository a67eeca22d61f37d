package domerrors

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapStore(t *testing.T) {
	t.Run("deadline exceeded becomes timeout", func(t *testing.T) {
		err := WrapStore("could not create message", context.DeadlineExceeded)
		assert.True(t, HasCode(err, CodeTimeout))
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})

	t.Run("wrapped deadline is still recognized", func(t *testing.T) {
		cause := errors.Join(errors.New("select message"), context.DeadlineExceeded)
		err := WrapStore("could not look up message", cause)
		assert.True(t, HasCode(err, CodeTimeout))
	})

	t.Run("other failures stay internal", func(t *testing.T) {
		err := WrapStore("could not create message", errors.New("connection refused"))
		assert.True(t, HasCode(err, CodeInternal))
	})

	t.Run("cancellation is not a timeout", func(t *testing.T) {
		err := WrapStore("could not create message", context.Canceled)
		assert.True(t, HasCode(err, CodeInternal))
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotFound, CodeOf(New(CodeNotFound, "message not found")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("anything uncoded")))
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		code   Code
		status int
	}{
		{CodeInvalidInput, http.StatusBadRequest},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeImmutableState, http.StatusConflict},
		{CodeIntegrity, http.StatusUnprocessableEntity},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, ToHTTPStatus(tt.code), string(tt.code))
	}
}

func TestErrorWrappingPreservesCause(t *testing.T) {
	cause := errors.New("duplicate key")
	err := Wrap(CodeConflict, "username or email already in use", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "conflict")
	assert.Contains(t, err.Error(), "duplicate key")
}
