package hidock

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsAndKindOf(t *testing.T) {
	cause := errors.New("underlying")
	err := NewError(ErrUsbTimeout, cause, "op failed")

	assert.True(t, Is(err, ErrUsbTimeout))
	assert.False(t, Is(err, ErrProtocol))
	assert.Equal(t, ErrUsbTimeout, KindOf(err))
}

func TestErrorWithoutCauseFormats(t *testing.T) {
	err := NewError(ErrBusy, nil, "stream in progress")
	assert.Contains(t, err.Error(), "busy")
	assert.Contains(t, err.Error(), "stream in progress")
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError(ErrConnectionLost, cause, "lost")

	assert.ErrorIs(t, err, cause)
}

func TestKindOfNonDriverError(t *testing.T) {
	assert.Equal(t, ErrKind(0), KindOf(errors.New("plain")))
	assert.False(t, Is(errors.New("plain"), ErrNotFound))
}

func TestRetryableClassification(t *testing.T) {
	nonRetryable := []ErrKind{ErrInUseByAnother, ErrAccessDenied, ErrNotFound}
	for _, k := range nonRetryable {
		assert.False(t, k.Retryable(), "%s should not be retryable", k)
	}

	retryable := []ErrKind{ErrUsbTimeout, ErrUsbPipeError, ErrProtocol, ErrConnectionLost}
	for _, k := range retryable {
		assert.True(t, k.Retryable(), "%s should be retryable", k)
	}
}

func TestErrKindStringIsStable(t *testing.T) {
	assert.Equal(t, "not_found", ErrNotFound.String())
	assert.Equal(t, "usb_timeout", ErrUsbTimeout.String())
	assert.Equal(t, "operation_cancelled", ErrOperationCancelled.String())
	assert.Equal(t, "unknown", ErrKind(999).String())
}
