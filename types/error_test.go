package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrCodeGraphUnavailable, "no snapshot for scope", nil)
	wrapped := fmt.Errorf("retrieve: %w", inner)

	assert.True(t, errors.Is(wrapped, &Error{Code: ErrCodeGraphUnavailable}))
	assert.False(t, errors.Is(wrapped, &Error{Code: ErrCodeIngest}))
	assert.True(t, IsCode(wrapped, ErrCodeGraphUnavailable))
	assert.Equal(t, ErrCodeGraphUnavailable, CodeOf(wrapped))
}

func TestErrorUnwrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := NewError(ErrCodeGenerationUnavailable, "provider call failed", cause)

	require.ErrorIs(t, err, cause)
	assert.True(t, err.Retryable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCodeOfPlainError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.False(t, IsCode(nil, ErrCodeIngest))
}
