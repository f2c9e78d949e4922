package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	err := New(ErrCodeSignatureInvalid, "signature mismatch")
	assert.Equal(t, "[SIGNATURE_INVALID] signature mismatch", err.Error())

	wrapped := Wrap(ErrCodeDatabaseError, "query failed", stderrors.New("connection reset"))
	assert.Contains(t, wrapped.Error(), "DATABASE_ERROR")
	assert.Contains(t, wrapped.Error(), "connection reset")
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := Wrap(ErrCodeDatabaseError, "query failed", cause)

	assert.ErrorIs(t, err, cause)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeUnknownCourse, CodeOf(New(ErrCodeUnknownCourse, "no such course")))
	assert.Equal(t, ErrCodeUnknownError, CodeOf(stderrors.New("plain error")))
	assert.Equal(t, ErrCodeUnknownError, CodeOf(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeDatabaseError, "db down")))
	assert.True(t, IsRetryable(New(ErrCodeTimeoutError, "timed out")))
	assert.False(t, IsRetryable(New(ErrCodeSignatureInvalid, "bad signature")))
	assert.False(t, IsRetryable(stderrors.New("plain error")))
}

func TestIsBusinessError(t *testing.T) {
	assert.True(t, IsBusinessError(New(ErrCodeInvalidAmount, "negative amount")))
	assert.True(t, IsBusinessError(New(ErrCodeUnknownUser, "no such user")))
	assert.False(t, IsBusinessError(New(ErrCodeDatabaseError, "db down")))
}
