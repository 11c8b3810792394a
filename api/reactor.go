// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interfaces for readiness notifiers and the reactor
// that multiplexes them (eventfd + epoll, or the portable counting backend).

package api

// Event encapsulates the result of an OS-level readiness notification.
type Event struct {
	Fd uintptr // notifier handle that became readable
}

// Notifier is a counting readiness primitive. Each Signal adds exactly one to
// an internal counter and makes the handle readable; Drain atomically reads
// the counter and resets it to zero.
type Notifier interface {
	// Handle returns the stable handle used as the reactor registration key.
	Handle() uintptr

	// Signal adds one to the counter. A transient failure wraps iox.ErrWouldBlock
	// and may be retried; any other failure leaves the notifier unusable.
	Signal() error

	// Drain returns the pending count and resets it. Zero means the wakeup was spurious.
	Drain() (uint64, error)

	// Close releases the underlying handle.
	Close() error
}

// Reactor defines the common interface for an event loop backend that reports
// which registered notifiers became readable.
type Reactor interface {
	// NewNotifier creates a notifier that can be registered with this reactor.
	NewNotifier() (Notifier, error)

	// Register must add the handle to the wait set.
	Register(fd uintptr) error

	// Unregister must remove the handle from the wait set. Safe while Wait is blocked.
	Unregister(fd uintptr) error

	// Wait must block until at least one handle is readable and fill events.
	// It may return (0, nil) on interruption.
	Wait(events []Event) (int, error)

	// Close must cleanup the internal poller backend.
	Close() error
}
