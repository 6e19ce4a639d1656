package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageIncludesWrappedCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeAdapterFailure, "adapter call failed", cause)
	assert.Contains(t, err.Error(), "ADAPTER_FAILURE")
	assert.Contains(t, err.Error(), "adapter call failed")
	assert.Contains(t, err.Error(), "boom")
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeInternal, "failed", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestIsMatchesOnCodeOnly(t *testing.T) {
	a := New(CodeNotFound, "session \"s1\" not found")
	b := New(CodeNotFound, "agent \"a2\" not found")
	assert.True(t, errors.Is(a, b))

	c := New(CodePermissionDenied, "nope")
	assert.False(t, errors.Is(a, c))
}

func TestCodeOfDefaultsToInternalForForeignErrors(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain error")))
}

func TestCodeOfExtractsWrappedAppError(t *testing.T) {
	base := NotFound("session", "s1")
	wrapped := errors.Join(errors.New("context"), base)
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
}

func TestNotFoundMessageNamesResourceAndID(t *testing.T) {
	err := NotFound("session", "nope")
	assert.Equal(t, "Session nope not found", err.Message)
	assert.Contains(t, err.Error(), "Session nope not found")
}
