// File: chanbus/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Channel is a thread-safe FIFO mailbox paired with one counting notifier and
// one callback. Any goroutine may push; only the bus dispatcher pops.

package chanbus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"code.hybscloud.com/iox"
	"github.com/eapache/queue"

	"github.com/momentics/chanbus/api"
)

// Callback is invoked by the bus once per counted readiness increment. Each
// invocation must call Pop exactly once.
type Callback[T any] func(c *Channel[T])

// Endpoint is what the bus registry holds. It is implemented by *Channel[T].
type Endpoint interface {
	Handle() uintptr
	Name() string
	Len() int

	drain() (uint64, error)
	deliverable() bool
	hasCallback() bool
	invoke() error
	finished() bool
	addBacklog(n uint64)
	takeBacklog() uint64
	credit() uint64
	closeNotifier() error
}

// Channel is an unbounded mailbox of T registered with one Bus.
type Channel[T any] struct {
	bus     *Bus
	ntf     api.Notifier
	name    string
	retries int

	mu                sync.Mutex // guards queue, closed, sentinelDelivered
	queue             *queue.Queue
	closed            bool
	sentinelDelivered bool
	sentinel          *Message[T]

	cb          atomic.Pointer[Callback[T]]
	backlog     atomic.Uint64 // drained increments not yet matched by a Pop
	releaseOnce sync.Once
	releaseErr  error
}

// New creates a channel, allocates its notifier from the bus reactor and
// registers it with bus. cb may be nil and installed later with
// RegisterMsgCallback; fixing it here avoids any race with dispatch.
func New[T any](bus *Bus, cb Callback[T], opts ...ChannelOption) (*Channel[T], error) {
	if bus == nil {
		return nil, fmt.Errorf("chanbus: nil bus: %w", api.ErrInvalidArgument)
	}
	ntf, err := bus.reactor.NewNotifier()
	if err != nil {
		return nil, &NotifierError{Op: "create", Err: err}
	}

	cfg := channelConfig{sendRetries: bus.cfg.sendRetries}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		cfg.name = fmt.Sprintf("chan-%d", ntf.Handle())
	}

	c := &Channel[T]{
		bus:      bus,
		ntf:      ntf,
		name:     cfg.name,
		retries:  cfg.sendRetries,
		queue:    queue.New(),
		sentinel: &Message[T]{closed: true},
	}
	if cb != nil {
		c.cb.Store(&cb)
	}
	if err := bus.Register(c); err != nil {
		_ = ntf.Close()
		return nil, err
	}
	return c, nil
}

// Handle returns the notifier handle the bus multiplexes. Stable for the
// channel lifetime.
func (c *Channel[T]) Handle() uintptr {
	return c.ntf.Handle()
}

// Name returns the channel label.
func (c *Channel[T]) Name() string {
	return c.name
}

// Len returns the number of queued, unpopped values.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Length()
}

// Closed reports whether Close has completed.
func (c *Channel[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Push appends v to the queue. It never blocks on queue size and does not
// raise the notifier: every successful Push must be matched by one successful
// Notify, before or after it, or the value stays invisible to the dispatcher.
func (c *Channel[T]) Push(v T) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.queue.Add(v)
	c.mu.Unlock()

	// A Notify that ran ahead of this Push left credit on the channel.
	if c.backlog.Load() > 0 {
		c.bus.kick(c)
	}
	return nil
}

// Notify raises the notifier once. A temporary *NotifierError may be retried;
// a permanent one means the channel is unusable.
func (c *Channel[T]) Notify() error {
	if err := c.ntf.Signal(); err != nil {
		ne := &NotifierError{Op: "signal", Handle: c.ntf.Handle(), Err: err}
		c.bus.recordNotifyFailure(c, ne)
		return ne
	}
	return nil
}

// Send enqueues v and raises the notifier as one step. Transient raise
// failures are retried with backoff; if the raise still fails nothing is
// enqueued, so queue length and notifier count cannot drift apart.
func (c *Channel[T]) Send(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	// Raising before the append is safe: the dispatcher inspects the queue
	// under c.mu and so observes the value once Send returns.
	if err := c.raise(); err != nil {
		return err
	}
	c.queue.Add(v)
	return nil
}

// Pop removes the head of the queue. On an empty closed channel it yields the
// close sentinel once, then ErrClosed. On an empty open channel it returns ErrEmpty.
// Only the dispatcher, from inside the callback, may call Pop.
func (c *Channel[T]) Pop() (*Message[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue.Length() > 0 {
		v, _ := c.queue.Remove().(T)
		return &Message[T]{payload: v}, nil
	}
	if c.closed {
		if c.sentinelDelivered {
			return nil, ErrClosed
		}
		c.sentinelDelivered = true
		return c.sentinel, nil
	}
	return nil, ErrEmpty
}

// RegisterMsgCallback installs or replaces the callback. Increments that
// arrived while no callback was installed are replayed after installation.
func (c *Channel[T]) RegisterMsgCallback(cb Callback[T]) error {
	if cb == nil {
		return fmt.Errorf("chanbus: nil callback: %w", api.ErrInvalidArgument)
	}
	c.cb.Store(&cb)
	if c.backlog.Load() > 0 {
		c.bus.kick(c)
	}
	return nil
}

// Close marks the channel closed and raises the notifier exactly once so the
// dispatcher delivers the close sentinel. A second Close is a no-op. If the
// raise fails the channel stays open and the error is returned for retry.
func (c *Channel[T]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if err := c.raise(); err != nil {
		return err
	}
	c.closed = true
	return nil
}

// Release unregisters the channel from its bus and closes the notifier. The
// bus calls it after delivering the close sentinel; calling it earlier drops
// whatever is still queued. Idempotent.
func (c *Channel[T]) Release() error {
	c.releaseOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		var errs []error
		if err := c.bus.Unregister(c); err != nil && !errors.Is(err, ErrNotRegistered) {
			errs = append(errs, err)
		}
		if err := c.ntf.Close(); err != nil {
			errs = append(errs, fmt.Errorf("chanbus: closing notifier of %s: %w", c.name, err))
		}
		c.releaseErr = errors.Join(errs...)
	})
	return c.releaseErr
}

// raise signals the notifier, retrying transient failures up to c.retries
// times with adaptive backoff.
func (c *Channel[T]) raise() error {
	var bo iox.Backoff
	for attempt := 0; ; attempt++ {
		err := c.Notify()
		if err == nil {
			return nil
		}
		if !IsTemporary(err) || attempt >= c.retries {
			return err
		}
		bo.Wait()
	}
}

func (c *Channel[T]) drain() (uint64, error) {
	n, err := c.ntf.Drain()
	if err != nil {
		return 0, &NotifierError{Op: "drain", Handle: c.ntf.Handle(), Err: err}
	}
	return n, nil
}

func (c *Channel[T]) deliverable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Length() > 0 || (c.closed && !c.sentinelDelivered)
}

func (c *Channel[T]) finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sentinelDelivered
}

func (c *Channel[T]) hasCallback() bool {
	return c.cb.Load() != nil
}

// invoke runs the callback, converting a panic into an error so one faulty
// callback cannot take the dispatcher down.
func (c *Channel[T]) invoke() (err error) {
	cb := c.cb.Load()
	if cb == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chanbus: callback of %s panicked: %v", c.name, r)
		}
	}()
	(*cb)(c)
	return nil
}

func (c *Channel[T]) addBacklog(n uint64) {
	c.backlog.Add(n)
}

func (c *Channel[T]) takeBacklog() uint64 {
	return c.backlog.Swap(0)
}

func (c *Channel[T]) credit() uint64 {
	return c.backlog.Load()
}

func (c *Channel[T]) closeNotifier() error {
	return c.Release()
}
