// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for the channel bus.

package chanbus

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"

	"github.com/momentics/chanbus/api"
)

var (
	// ErrClosed is returned by Push and Send after Close, and by Pop once the
	// close sentinel has been delivered.
	ErrClosed = api.NewError(api.ErrCodeClosed, "chanbus: channel is closed")

	// ErrEmpty is returned by Pop on an empty channel that is still open.
	ErrEmpty = api.NewError(api.ErrCodeNotFound, "chanbus: channel is empty")

	// ErrDuplicateRegistration indicates the notifier handle is already registered.
	ErrDuplicateRegistration = api.NewError(api.ErrCodeAlreadyExists, "chanbus: notifier already registered")

	// ErrNotRegistered indicates the channel is not registered with the bus.
	ErrNotRegistered = api.NewError(api.ErrCodeNotFound, "chanbus: channel not registered")

	// ErrBusStopped indicates the bus reached its terminal state.
	ErrBusStopped = api.NewError(api.ErrCodeClosed, "chanbus: bus is stopped")

	// ErrBusRunning indicates Run was called while another Run is active.
	ErrBusRunning = api.NewError(api.ErrCodeInvalidArgument, "chanbus: bus is already running")
)

// NotifierError reports a failed notifier operation. Signal failures are never
// dropped: the caller owns the retry decision.
type NotifierError struct {
	Op     string // create, register, signal, drain
	Handle uintptr
	Err    error
}

func (e *NotifierError) Error() string {
	return fmt.Sprintf("chanbus: notifier %s (handle %d): %v", e.Op, e.Handle, e.Err)
}

func (e *NotifierError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure was transient. Transient failures wrap
// iox.ErrWouldBlock and may be retried; anything else leaves the channel unusable.
func (e *NotifierError) Temporary() bool {
	return errors.Is(e.Err, iox.ErrWouldBlock)
}

// IsTemporary reports whether err is a transient notifier failure.
func IsTemporary(err error) bool {
	var ne *NotifierError
	return errors.As(err, &ne) && ne.Temporary()
}
