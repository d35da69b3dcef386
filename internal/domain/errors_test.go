package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Locator.Locate", ErrNotFound, "UE_5.5")
	want := "Locator.Locate: UE_5.5: not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Composer.Compose", ErrUnsupportedOperation, "")
	want := "Composer.Compose: unsupported operation"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Loader.Load", ErrMalformedManifest, "Game.uproject")
	if !errors.Is(err, ErrMalformedManifest) {
		t.Error("errors.Is should match ErrMalformedManifest")
	}
}

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeNotFound, ErrorCodeOf(ErrNotFound))
	assert.Equal(t, CodeUnsupportedPlatform, ErrorCodeOf(ErrUnsupportedPlatform))
	assert.Equal(t, CodeSearchRootMissing, ErrorCodeOf(ErrSearchRootMissing))
}

func TestErrorCodeOf_SubSystem(t *testing.T) {
	assert.Equal(t, CodeEngineNotFound, ErrorCodeOf(NewSubSystemError("engine", "Locator.Locate", ErrNotFound, "")))
	assert.Equal(t, CodeProjectNotFound, ErrorCodeOf(NewSubSystemError("project", "Loader.Load", ErrNotFound, "")))
	assert.Equal(t, CodePluginMalformed, ErrorCodeOf(NewSubSystemError("plugin", "Loader.plugin", ErrMalformedManifest, "")))
	// Unknown subsystem falls back to the category code.
	assert.Equal(t, CodeNotFound, ErrorCodeOf(NewSubSystemError("other", "Op", ErrNotFound, "")))
}

func TestErrorCodeOf_WrappedError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", ErrUnsupportedOperation)
	assert.Equal(t, CodeUnsupportedOperation, ErrorCodeOf(wrapped))
}

func TestErrorCodeOf_Nil(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(fmt.Errorf("some random error")))
}

func TestProcessExitError(t *testing.T) {
	err := error(&ProcessExitError{Task: "Build Project", Code: 6})
	require.ErrorIs(t, err, ErrProcessExitNonZero)
	assert.Equal(t, CodeProcessExitNonZero, ErrorCodeOf(err))

	var pe *ProcessExitError
	require.ErrorAs(t, fmt.Errorf("run: %w", err), &pe)
	assert.Equal(t, 6, pe.Code)
}

func TestMissingFieldError(t *testing.T) {
	err := error(&MissingFieldError{Field: "engine installation"})
	assert.ErrorIs(t, err, ErrMissingContextField)
	assert.Equal(t, "missing context field: engine installation", err.Error())
	assert.True(t, NeedsDetection(err))
}

func TestNeedsDetection(t *testing.T) {
	assert.True(t, NeedsDetection(NewSubSystemError("engine", "Locate", ErrNotFound, "")))
	assert.False(t, NeedsDetection(ErrUnsupportedPlatform))
	assert.False(t, NeedsDetection(nil))
}

func TestWrapOp(t *testing.T) {
	assert.Nil(t, WrapOp("op", nil))
	err := WrapOp("Ops.Build", ErrNotFound)
	assert.EqualError(t, err, "Ops.Build: not found")
	assert.ErrorIs(t, err, ErrNotFound)
}
