package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsErrorType_ThroughWrapping(t *testing.T) {
	base := NewNotFound("node", "n1")
	wrapped := fmt.Errorf("loading parent: %w", base)

	assert.True(t, IsNotFound(base))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsErrorType(wrapped, ErrorTypeProvider))
	assert.Equal(t, ErrorTypeNotFound, TypeOf(wrapped))
}

func TestTypeOf_OutermostWins(t *testing.T) {
	cause := NewStorageFault("create edge", stderrors.New("boom"))
	partial := NewPartialFailure("create branch", cause, stderrors.New("delete failed"))

	assert.Equal(t, ErrorTypePartialFailure, TypeOf(partial))
	assert.True(t, IsErrorType(partial, ErrorTypeStorage))
	assert.Contains(t, partial.Error(), "delete failed")
}

func TestProviderError_CarriesProviderMessage(t *testing.T) {
	err := NewProviderError("gemini", 1, stderrors.New("quota exceeded"))

	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, "gemini", err.Model)
	assert.True(t, IsErrorType(err, ErrorTypeProvider))
}

func TestTypeOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrorType(""), TypeOf(stderrors.New("plain")))
	assert.False(t, IsNotFound(nil))
}
