// File: reactor/portable.go
// Author: momentics <momentics@gmail.com>
//
// Portable reactor: in-memory counting notifiers woken through a condition
// variable. Mirrors eventfd semantics (level-triggered readiness, read-and-reset
// drain, would-block on counter saturation) without any OS handle.

package reactor

import (
	"fmt"
	"math"
	"sync"

	"code.hybscloud.com/iox"

	"github.com/momentics/chanbus/api"
)

// maxCount matches the eventfd ceiling of 2^64-2.
const maxCount = math.MaxUint64 - 1

// PortableReactor implements api.Reactor with a single mutex and sync.Cond.
type PortableReactor struct {
	mu        sync.Mutex
	cond      *sync.Cond
	nextFd    uintptr
	notifiers map[uintptr]*counter
	watched   map[uintptr]struct{}
	ready     []uintptr // readiness FIFO; a handle appears at most once
	closed    bool
}

// NewPortable creates an empty portable reactor.
func NewPortable() *PortableReactor {
	r := &PortableReactor{
		notifiers: make(map[uintptr]*counter),
		watched:   make(map[uintptr]struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// counter is a portable notifier. All state is guarded by the owning reactor's mutex.
type counter struct {
	r      *PortableReactor
	fd     uintptr
	count  uint64
	queued bool
	closed bool
}

// NewNotifier allocates a counter with a fresh synthetic handle.
func (r *PortableReactor) NewNotifier() (api.Notifier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, api.ErrReactorClosed
	}
	r.nextFd++
	c := &counter{r: r, fd: r.nextFd}
	r.notifiers[c.fd] = c
	return c, nil
}

// Register adds the handle to the wait set. A counter that is already
// non-zero becomes ready immediately, as epoll reports an fd readable on add.
func (r *PortableReactor) Register(fd uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return api.ErrReactorClosed
	}
	c, ok := r.notifiers[fd]
	if !ok {
		return fmt.Errorf("portable register fd %d: %w", fd, api.ErrNotFound)
	}
	if _, dup := r.watched[fd]; dup {
		return fmt.Errorf("portable register fd %d: %w", fd, api.ErrAlreadyExists)
	}
	r.watched[fd] = struct{}{}
	if c.count > 0 {
		r.markReadyLocked(c)
	}
	return nil
}

// Unregister removes the handle from the wait set and the readiness FIFO.
func (r *PortableReactor) Unregister(fd uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return api.ErrReactorClosed
	}
	if _, ok := r.watched[fd]; !ok {
		return fmt.Errorf("portable unregister fd %d: %w", fd, api.ErrNotFound)
	}
	delete(r.watched, fd)
	r.dropReadyLocked(fd)
	return nil
}

// Wait blocks until a watched counter is readable or the reactor is closed.
func (r *PortableReactor) Wait(events []Event) (int, error) {
	if len(events) == 0 {
		return 0, fmt.Errorf("portable wait: empty event buffer: %w", api.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.ready) == 0 && !r.closed {
		r.cond.Wait()
	}
	if r.closed {
		return 0, api.ErrReactorClosed
	}
	n := min(len(events), len(r.ready))
	for i := 0; i < n; i++ {
		fd := r.ready[i]
		events[i] = Event{Fd: fd}
		if c, ok := r.notifiers[fd]; ok {
			c.queued = false
		}
	}
	r.ready = append(r.ready[:0], r.ready[n:]...)
	return n, nil
}

// Close wakes any waiter and rejects further use.
func (r *PortableReactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.ready = nil
	r.cond.Broadcast()
	return nil
}

func (r *PortableReactor) markReadyLocked(c *counter) {
	if c.queued {
		return
	}
	if _, ok := r.watched[c.fd]; !ok {
		return
	}
	c.queued = true
	r.ready = append(r.ready, c.fd)
	r.cond.Signal()
}

func (r *PortableReactor) dropReadyLocked(fd uintptr) {
	for i, h := range r.ready {
		if h == fd {
			r.ready = append(r.ready[:i], r.ready[i+1:]...)
			break
		}
	}
	if c, ok := r.notifiers[fd]; ok {
		c.queued = false
	}
}

func (c *counter) Handle() uintptr {
	return c.fd
}

func (c *counter) Signal() error {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.closed {
		return api.ErrNotifierClosed
	}
	if c.count >= maxCount {
		return fmt.Errorf("portable notifier %d: %w", c.fd, iox.ErrWouldBlock)
	}
	c.count++
	r.markReadyLocked(c)
	return nil
}

func (c *counter) Drain() (uint64, error) {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.closed {
		return 0, api.ErrNotifierClosed
	}
	n := c.count
	c.count = 0
	return n, nil
}

func (c *counter) Close() error {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	delete(r.watched, c.fd)
	r.dropReadyLocked(c.fd)
	delete(r.notifiers, c.fd)
	return nil
}
