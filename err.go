/* hidock-driver - host-side driver for HiDock USB voice recorders
 *
 * Common error taxonomy
 */

package hidock

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrKind classifies a driver error into a fixed taxonomy. Callers
// should switch on Kind, not on error identity, since every Error
// wraps an underlying cause that varies by platform and device.
type ErrKind int

const (
	// ErrNotFound means the device VID/PID was not enumerated on the bus
	ErrNotFound ErrKind = iota + 1

	// ErrAccessDenied means the OS refused set_configuration or claim
	ErrAccessDenied

	// ErrInUseByAnother means the resource is claimed by another process
	ErrInUseByAnother

	// ErrUsbTimeout means a read or write timed out
	ErrUsbTimeout

	// ErrUsbPipeError means an endpoint stalled
	ErrUsbPipeError

	// ErrProtocol means a bad sync marker, truncated frame, or
	// unexpected sequence/command ID was observed
	ErrProtocol

	// ErrConnectionLost means a transport failure forced a disconnect,
	// or a health check probe failed (which does not itself disconnect)
	ErrConnectionLost

	// ErrBusy means a command was rejected because file-list streaming
	// is in progress
	ErrBusy

	// ErrOperationCancelled means the caller cancelled a queued or
	// in-progress operation
	ErrOperationCancelled

	// ErrNotSupported means the connected model's capability set does
	// not include the requested command family
	ErrNotSupported

	// ErrNotExists means a delete_file targeted a filename the device
	// does not have
	ErrNotExists

	// ErrIO means a local filesystem operation (create, write, rename)
	// backing a download failed
	ErrIO
)

// String renders a stable, device-vocabulary-free label for ErrKind
func (k ErrKind) String() string {
	switch k {
	case ErrNotFound:
		return "not_found"
	case ErrAccessDenied:
		return "access_denied"
	case ErrInUseByAnother:
		return "in_use_by_another"
	case ErrUsbTimeout:
		return "usb_timeout"
	case ErrUsbPipeError:
		return "usb_pipe_error"
	case ErrProtocol:
		return "protocol_error"
	case ErrConnectionLost:
		return "connection_lost"
	case ErrBusy:
		return "busy"
	case ErrOperationCancelled:
		return "operation_cancelled"
	case ErrNotSupported:
		return "not_supported"
	case ErrNotExists:
		return "not_exists"
	case ErrIO:
		return "io_error"
	default:
		return "unknown"
	}
}

// Retryable reports whether connect() should retry an error of this
// kind. InUseByAnother/AccessDenied/NotFound are immediate failures;
// everything else connect() may retry.
func (k ErrKind) Retryable() bool {
	switch k {
	case ErrInUseByAnother, ErrAccessDenied, ErrNotFound:
		return false
	default:
		return true
	}
}

// Error is the driver's wrapped error type: an ErrKind plus a cause
type Error struct {
	Kind    ErrKind
	Message string
	cause   error
}

// NewError builds an Error of the given kind, optionally wrapping cause
func NewError(kind ErrKind, cause error, format string, args ...interface{}) *Error {
	e := &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
	if cause != nil {
		e.cause = errors.WithStack(cause)
	}
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether err carries the given ErrKind
func Is(err error, kind ErrKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the ErrKind of err, or 0 if err is not an *Error
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
