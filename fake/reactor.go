// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fault-injecting reactor and notifiers for testing. The fake wraps a real
// portable reactor, so readiness and counting behave exactly like the
// production backend until a fault is armed.

package fake

import (
	"errors"
	"fmt"
	"sync"

	"code.hybscloud.com/iox"

	"github.com/momentics/chanbus/api"
	"github.com/momentics/chanbus/reactor"
)

var (
	// ErrTransient is a retryable raise failure, as eventfd reports on a saturated counter.
	ErrTransient = fmt.Errorf("fake: counter saturated: %w", iox.ErrWouldBlock)

	// ErrBroken is a permanent raise failure.
	ErrBroken = errors.New("fake: notifier broken")
)

// Reactor is a fake implementation of api.Reactor.
type Reactor struct {
	inner api.Reactor

	mu        sync.Mutex
	notifiers map[uintptr]*Notifier
	order     []*Notifier
	waitErr   error
	waits     int
}

// NewReactor creates a fake reactor backed by a portable reactor.
func NewReactor() *Reactor {
	return &Reactor{
		inner:     reactor.NewPortable(),
		notifiers: make(map[uintptr]*Notifier),
	}
}

// NewNotifier creates a fault-injectable notifier.
func (r *Reactor) NewNotifier() (api.Notifier, error) {
	n, err := r.inner.NewNotifier()
	if err != nil {
		return nil, err
	}
	fn := &Notifier{inner: n}
	r.mu.Lock()
	r.notifiers[n.Handle()] = fn
	r.order = append(r.order, fn)
	r.mu.Unlock()
	return fn, nil
}

// Notifier returns the notifier with handle h, or nil.
func (r *Reactor) Notifier(h uintptr) *Notifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notifiers[h]
}

// Notifiers returns every notifier created so far, in creation order.
func (r *Reactor) Notifiers() []*Notifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Notifier(nil), r.order...)
}

// FailWait makes the next Wait return err.
func (r *Reactor) FailWait(err error) {
	r.mu.Lock()
	r.waitErr = err
	r.mu.Unlock()
}

// Waits returns how many times Wait has returned.
func (r *Reactor) Waits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waits
}

func (r *Reactor) Register(fd uintptr) error   { return r.inner.Register(fd) }
func (r *Reactor) Unregister(fd uintptr) error { return r.inner.Unregister(fd) }
func (r *Reactor) Close() error                { return r.inner.Close() }

func (r *Reactor) Wait(events []api.Event) (int, error) {
	r.mu.Lock()
	err := r.waitErr
	r.waitErr = nil
	r.mu.Unlock()
	if err != nil {
		r.count()
		return 0, err
	}
	n, err := r.inner.Wait(events)
	r.count()
	return n, err
}

func (r *Reactor) count() {
	r.mu.Lock()
	r.waits++
	r.mu.Unlock()
}

// Notifier is a fake api.Notifier that counts raises and fails on demand.
type Notifier struct {
	inner api.Notifier

	mu       sync.Mutex
	signals  uint64
	attempts uint64
	faults   []error
	sticky   error
}

// Handle returns the handle of the wrapped notifier.
func (n *Notifier) Handle() uintptr {
	return n.inner.Handle()
}

// Signal raises the wrapped notifier unless a fault is armed.
func (n *Notifier) Signal() error {
	n.mu.Lock()
	n.attempts++
	if n.sticky != nil {
		err := n.sticky
		n.mu.Unlock()
		return err
	}
	if len(n.faults) > 0 {
		err := n.faults[0]
		n.faults = n.faults[1:]
		n.mu.Unlock()
		return err
	}
	n.mu.Unlock()

	if err := n.inner.Signal(); err != nil {
		return err
	}
	n.mu.Lock()
	n.signals++
	n.mu.Unlock()
	return nil
}

func (n *Notifier) Drain() (uint64, error) { return n.inner.Drain() }
func (n *Notifier) Close() error           { return n.inner.Close() }

// FailNext makes the next count Signal calls return err without raising.
func (n *Notifier) FailNext(err error, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := 0; i < count; i++ {
		n.faults = append(n.faults, err)
	}
}

// Break makes every following Signal fail with err. A nil err heals the notifier.
func (n *Notifier) Break(err error) {
	n.mu.Lock()
	n.sticky = err
	n.mu.Unlock()
}

// Spurious raises the wrapped notifier without counting it as a signal,
// producing a wakeup with nothing queued behind it.
func (n *Notifier) Spurious() error {
	return n.inner.Signal()
}

// Signals returns the number of successful raises.
func (n *Notifier) Signals() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.signals
}

// Attempts returns the number of Signal calls, failed ones included.
func (n *Notifier) Attempts() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attempts
}

var (
	_ api.Reactor  = (*Reactor)(nil)
	_ api.Notifier = (*Notifier)(nil)
)
