// File: chanbus/bus.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bus owns a reactor and the registry of channels multiplexed by it, and runs
// the dispatcher loop that turns notifier counts into callback invocations.

package chanbus

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"code.hybscloud.com/iox"

	"github.com/momentics/chanbus/affinity"
	"github.com/momentics/chanbus/api"
	"github.com/momentics/chanbus/control"
	"github.com/momentics/chanbus/reactor"
)

// State is the lifecycle phase of a Bus.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stats is a point-in-time copy of the bus counters.
type Stats struct {
	State          State
	Registered     int
	Wakeups        uint64
	Delivered      uint64
	Spurious       uint64
	Panics         uint64
	NotifyFailures uint64
	Retired        uint64
}

type busCounters struct {
	wakeups        atomic.Uint64
	delivered      atomic.Uint64
	spurious       atomic.Uint64
	panics         atomic.Uint64
	notifyFailures atomic.Uint64
	retired        atomic.Uint64
}

// Bus multiplexes the notifiers of its channels and dispatches their callbacks
// from the single goroutine that calls Run.
type Bus struct {
	cfg     busConfig
	reactor api.Reactor
	wake    api.Notifier
	log     Logger
	probes  *control.DebugProbes
	metrics *busMetrics

	mu       sync.RWMutex // guards registry and credited; never held across Wait
	registry map[uintptr]Endpoint
	credited map[uintptr]Endpoint // registered endpoints holding undelivered increments

	state     atomic.Int32
	quit      atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
	closeErr  error

	counters busCounters
}

var (
	defaultOnce sync.Once
	defaultBus  *Bus
	defaultErr  error
)

// Default returns the process-wide bus, creating it on first use. Safe to call
// from any goroutine; every caller observes the same instance.
func Default() (*Bus, error) {
	defaultOnce.Do(func() {
		defaultBus, defaultErr = NewBus()
	})
	return defaultBus, defaultErr
}

// NewBus creates an idle bus with its own reactor.
func NewBus(opts ...Option) (*Bus, error) {
	cfg := defaultBusConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.err != nil {
		return nil, cfg.err
	}

	r := cfg.reactor
	if r == nil {
		var err error
		if r, err = reactor.NewReactor(cfg.backend); err != nil {
			return nil, fmt.Errorf("chanbus: creating reactor: %w", err)
		}
	}

	wake, err := r.NewNotifier()
	if err != nil {
		_ = r.Close()
		return nil, &NotifierError{Op: "create", Err: err}
	}
	if err := r.Register(wake.Handle()); err != nil {
		_ = wake.Close()
		_ = r.Close()
		return nil, &NotifierError{Op: "register", Handle: wake.Handle(), Err: err}
	}

	b := &Bus{
		cfg:      cfg,
		reactor:  r,
		wake:     wake,
		log:      cfg.log,
		probes:   control.NewDebugProbes(),
		registry: make(map[uintptr]Endpoint),
		credited: make(map[uintptr]Endpoint),
		done:     make(chan struct{}),
	}
	if b.metrics, err = newBusMetrics(cfg.meterProvider, b); err != nil {
		_ = wake.Close()
		_ = r.Close()
		return nil, err
	}

	b.probes.RegisterProbe("bus.stats", func() any { return b.Stats() })
	b.probes.RegisterProbe("bus.channels", func() any {
		eps := b.snapshot()
		out := make(map[string]int, len(eps))
		for _, ep := range eps {
			out[ep.Name()] = ep.Len()
		}
		return out
	})
	control.RegisterPlatformProbes(b.probes)
	return b, nil
}

// Register adds ep to the registry and its handle to the reactor wait set.
// Channels call it from New; it is exported for endpoints unregistered and
// re-attached by the caller. Increments the dispatcher drained for ep before
// it was unregistered are delivered once it is back.
func (b *Bus) Register(ep Endpoint) error {
	if ep == nil {
		return fmt.Errorf("chanbus: nil endpoint: %w", api.ErrInvalidArgument)
	}
	h := ep.Handle()

	b.mu.Lock()
	if State(b.state.Load()) == StateStopped {
		b.mu.Unlock()
		return ErrBusStopped
	}
	if _, ok := b.registry[h]; ok {
		b.mu.Unlock()
		return ErrDuplicateRegistration.WithContext("channel", ep.Name())
	}
	if err := b.reactor.Register(h); err != nil {
		b.mu.Unlock()
		if errors.Is(err, api.ErrAlreadyExists) {
			return ErrDuplicateRegistration.WithContext("channel", ep.Name())
		}
		return &NotifierError{Op: "register", Handle: h, Err: err}
	}
	b.registry[h] = ep
	carried := ep.credit() > 0
	if carried {
		b.credited[h] = ep
	}
	b.mu.Unlock()

	b.log.Debug("channel registered", "channel", ep.Name(), "handle", h, "carried", carried)
	if carried {
		b.wakeup()
	}
	return nil
}

// Unregister removes ep from the registry and the reactor and wakes the
// dispatcher so it can re-evaluate the exit condition. Unregister does not
// wait for a callback of ep the dispatcher has already selected, so that one
// may still run once after Unregister returns; no further callback follows it.
// Increments still owed to ep stay with it until it is registered again.
func (b *Bus) Unregister(ep Endpoint) error {
	if ep == nil {
		return fmt.Errorf("chanbus: nil endpoint: %w", api.ErrInvalidArgument)
	}
	h := ep.Handle()

	b.mu.Lock()
	cur, ok := b.registry[h]
	if !ok || cur != ep {
		b.mu.Unlock()
		return ErrNotRegistered
	}
	delete(b.registry, h)
	delete(b.credited, h)
	err := b.reactor.Unregister(h)
	b.mu.Unlock()

	if err != nil && !errors.Is(err, api.ErrNotFound) && !errors.Is(err, api.ErrReactorClosed) {
		return &NotifierError{Op: "unregister", Handle: h, Err: err}
	}
	b.log.Debug("channel unregistered", "channel", ep.Name(), "handle", h)
	b.wakeup()
	return nil
}

// Run dispatches callbacks until Stop is called or, with exit-when-empty
// enabled, until no channel is registered. It must be called from exactly one
// goroutine and returns ErrBusRunning or ErrBusStopped otherwise.
func (b *Bus) Run() error {
	if !b.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		if State(b.state.Load()) == StateRunning {
			return ErrBusRunning
		}
		return ErrBusStopped
	}
	defer b.finish()

	if b.cfg.lockOSThread || b.cfg.dispatcherCPU >= 0 {
		runtime.LockOSThread()
		pinned := false
		if b.cfg.dispatcherCPU >= 0 {
			if err := affinity.SetAffinity(b.cfg.dispatcherCPU); err != nil {
				b.log.Error("dispatcher pinning failed", "cpu", b.cfg.dispatcherCPU, "error", err)
			} else {
				pinned = true
			}
		}
		// A pinned thread must not go back to the scheduler pool; leaving it
		// locked makes the runtime discard it when this goroutine exits.
		if !pinned {
			defer runtime.UnlockOSThread()
		}
	}

	b.log.Info("bus started", "channels", b.Len(), "maxEvents", b.cfg.maxEvents)
	events := make([]api.Event, b.cfg.maxEvents)
	wakeFd := b.wake.Handle()

	for {
		if b.quit.Load() {
			b.log.Info("bus stopped")
			return nil
		}
		if b.cfg.exitWhenEmpty && b.Len() == 0 {
			b.log.Info("bus drained, no channels registered")
			return nil
		}

		n, err := b.reactor.Wait(events)
		if err != nil {
			if b.quit.Load() {
				return nil
			}
			return fmt.Errorf("chanbus: reactor wait: %w", err)
		}
		b.counters.wakeups.Add(1)

		for _, ev := range events[:n] {
			if b.quit.Load() {
				break
			}
			if ev.Fd == wakeFd {
				if _, err := b.wake.Drain(); err != nil {
					b.log.Error("wake drain failed", "error", err)
				}
				continue
			}
			ep := b.lookup(ev.Fd)
			if ep == nil {
				// Unregistered between the wait and the lookup.
				continue
			}
			b.service(ep)
		}
		b.serviceCredited()
	}
}

// service drains one ready notifier and dispatches what it counted.
func (b *Bus) service(ep Endpoint) {
	n, err := ep.drain()
	if err != nil {
		b.log.Debug("drain failed", "channel", ep.Name(), "error", err)
		return
	}
	b.dispatch(ep, n)
}

// serviceCredited dispatches endpoints whose carried increments can now be
// matched after a late Push, a callback install or a re-registration.
func (b *Bus) serviceCredited() {
	for _, ep := range b.creditedSnapshot() {
		if b.quit.Load() {
			return
		}
		if b.lookup(ep.Handle()) != ep {
			continue
		}
		if ep.hasCallback() && ep.deliverable() {
			b.dispatch(ep, 0)
		}
	}
}

// dispatch invokes the callback once per increment while the channel has a
// value or the close sentinel to hand out. Increments that cannot be matched
// yet stay on the endpoint as credit and are spent when the value or the
// close they announce shows up.
func (b *Bus) dispatch(ep Endpoint, fresh uint64) {
	h := ep.Handle()
	ctx := context.Background()
	for {
		if !ep.hasCallback() {
			ep.addBacklog(fresh)
			b.markCredited(ep)
			// RegisterMsgCallback checks the credit after storing the callback,
			// so one of the two sides sees the other.
			if !ep.hasCallback() {
				return
			}
			fresh = 0
		}

		carried := ep.takeBacklog()
		total := fresh + carried
		fresh = 0

		var used uint64
		starved := false
		for used < total {
			if b.quit.Load() || b.lookup(h) != ep {
				break
			}
			if !ep.deliverable() {
				starved = true
				break
			}
			if err := ep.invoke(); err != nil {
				b.counters.panics.Add(1)
				b.metrics.panics.Add(ctx, 1, channelAttr(ep.Name()))
				b.log.Error("callback panic recovered", "channel", ep.Name(), "error", err)
			}
			used++
			b.counters.delivered.Add(1)
			b.metrics.delivered.Add(ctx, 1, channelAttr(ep.Name()))

			if ep.finished() {
				b.unmarkCredited(ep)
				b.retire(ep)
				return
			}
		}

		rest := total - used
		if rest == 0 {
			b.unmarkCredited(ep)
			return
		}
		if starved && rest > carried {
			// Only increments drained in this pass count as spurious.
			b.counters.spurious.Add(rest - carried)
			b.metrics.spurious.Add(ctx, int64(rest-carried), channelAttr(ep.Name()))
		}
		ep.addBacklog(rest)
		b.markCredited(ep)
		if !starved {
			return
		}
		// Push checks the credit after enqueueing; if it ran before the
		// credit was stored, its value is visible here.
		if !ep.deliverable() {
			return
		}
	}
}

// retire releases a channel whose close sentinel has been delivered.
func (b *Bus) retire(ep Endpoint) {
	if err := ep.closeNotifier(); err != nil {
		b.log.Error("releasing channel failed", "channel", ep.Name(), "error", err)
	}
	b.counters.retired.Add(1)
	b.metrics.retired.Add(context.Background(), 1, channelAttr(ep.Name()))
	b.log.Debug("channel retired", "channel", ep.Name())
}

// Stop asks Run to return at its next check and interrupts a blocked wait.
// Calling Stop before Run makes the bus terminal. Idempotent and non-blocking.
func (b *Bus) Stop() {
	if b.quit.Swap(true) {
		return
	}
	if b.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		b.doneOnce.Do(func() { close(b.done) })
		return
	}
	b.wakeup()
}

// Done is closed when Run has returned, or when Stop was called before Run.
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

// Close stops the bus, waits for Run to return, releases every registered
// channel and closes the reactor. It must not be called from a callback.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.Stop()
		<-b.done

		var errs []error
		for _, ep := range b.snapshot() {
			if err := ep.closeNotifier(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := b.wake.Close(); err != nil {
			errs = append(errs, fmt.Errorf("chanbus: closing wake notifier: %w", err))
		}
		if err := b.reactor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("chanbus: closing reactor: %w", err))
		}
		if err := b.metrics.unregister(); err != nil {
			errs = append(errs, err)
		}
		b.closeErr = errors.Join(errs...)
	})
	return b.closeErr
}

// Len returns the number of registered channels.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.registry)
}

// State returns the current lifecycle phase.
func (b *Bus) State() State {
	return State(b.state.Load())
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	return Stats{
		State:          b.State(),
		Registered:     b.Len(),
		Wakeups:        b.counters.wakeups.Load(),
		Delivered:      b.counters.delivered.Load(),
		Spurious:       b.counters.spurious.Load(),
		Panics:         b.counters.panics.Load(),
		NotifyFailures: b.counters.notifyFailures.Load(),
		Retired:        b.counters.retired.Load(),
	}
}

// DumpState runs every registered debug probe.
func (b *Bus) DumpState() map[string]any {
	return b.probes.DumpState()
}

// RegisterProbe adds or replaces a named debug probe.
func (b *Bus) RegisterProbe(name string, fn func() any) {
	b.probes.RegisterProbe(name, fn)
}

var _ api.Debug = (*Bus)(nil)

func (b *Bus) lookup(h uintptr) Endpoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.registry[h]
}

// markCredited records that ep holds carried increments, if it is registered.
func (b *Bus) markCredited(ep Endpoint) {
	h := ep.Handle()
	b.mu.Lock()
	if b.registry[h] == ep {
		b.credited[h] = ep
	}
	b.mu.Unlock()
}

func (b *Bus) unmarkCredited(ep Endpoint) {
	h := ep.Handle()
	b.mu.Lock()
	if b.credited[h] == ep {
		delete(b.credited, h)
	}
	b.mu.Unlock()
}

func (b *Bus) creditedSnapshot() []Endpoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.credited) == 0 {
		return nil
	}
	out := make([]Endpoint, 0, len(b.credited))
	for _, ep := range b.credited {
		out = append(out, ep)
	}
	return out
}

// kick schedules a dispatch pass for ep's carried increments and wakes the
// dispatcher.
func (b *Bus) kick(ep Endpoint) {
	b.markCredited(ep)
	b.wakeup()
}

func (b *Bus) snapshot() []Endpoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Endpoint, 0, len(b.registry))
	for _, ep := range b.registry {
		out = append(out, ep)
	}
	return out
}

// wakeup interrupts a blocked Wait. A full counter already guarantees a
// wakeup, so transient failures are ignored.
func (b *Bus) wakeup() {
	err := b.wake.Signal()
	if err != nil && !errors.Is(err, api.ErrNotifierClosed) && !errors.Is(err, iox.ErrWouldBlock) {
		b.log.Error("wake signal failed", "error", err)
	}
}

func (b *Bus) finish() {
	b.state.Store(int32(StateStopped))
	b.doneOnce.Do(func() { close(b.done) })
}

func (b *Bus) recordNotifyFailure(ep Endpoint, err *NotifierError) {
	b.counters.notifyFailures.Add(1)
	b.metrics.notifyFailures.Add(context.Background(), 1, channelAttr(ep.Name()))
	b.log.Debug("notify failed", "channel", ep.Name(), "temporary", err.Temporary(), "error", err.Err)
}
