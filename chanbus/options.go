// File: chanbus/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Functional options for the Bus and Channel constructors.

package chanbus

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/momentics/chanbus/api"
	"github.com/momentics/chanbus/control"
	"github.com/momentics/chanbus/reactor"
)

const (
	defaultMaxEvents   = 128
	defaultSendRetries = 64
)

// Option customizes bus initialization.
type Option func(*busConfig)

type busConfig struct {
	reactor       api.Reactor
	backend       reactor.Backend
	log           Logger
	maxEvents     int
	exitWhenEmpty bool
	dispatcherCPU int
	lockOSThread  bool
	sendRetries   int
	meterProvider metric.MeterProvider
	err           error
}

func defaultBusConfig() busConfig {
	return busConfig{
		backend:       reactor.BackendAuto,
		log:           discardLogger(),
		maxEvents:     defaultMaxEvents,
		exitWhenEmpty: true,
		dispatcherCPU: -1,
		sendRetries:   defaultSendRetries,
	}
}

// WithConfig applies a loaded control.Config.
func WithConfig(c control.Config) Option {
	return func(cfg *busConfig) {
		backend, err := reactor.ParseBackend(c.Reactor.Backend)
		if err != nil {
			cfg.err = err
			return
		}
		cfg.backend = backend
		if c.Reactor.MaxEvents > 0 {
			cfg.maxEvents = c.Reactor.MaxEvents
		}
		cfg.exitWhenEmpty = c.Bus.ExitWhenEmpty
		cfg.dispatcherCPU = c.Bus.DispatcherCPU
		cfg.lockOSThread = c.Bus.LockOSThread
		cfg.sendRetries = c.Channel.SendRetries
	}
}

// WithReactor hands an existing reactor to the bus. The bus takes ownership
// and closes it in Close.
func WithReactor(r api.Reactor) Option {
	return func(cfg *busConfig) {
		cfg.reactor = r
	}
}

// WithBackend selects the reactor backend when no reactor is supplied.
func WithBackend(b reactor.Backend) Option {
	return func(cfg *busConfig) {
		cfg.backend = b
	}
}

// WithLogger sets the bus logger. A nil logger keeps the discard logger.
func WithLogger(l Logger) Option {
	return func(cfg *busConfig) {
		if l != nil {
			cfg.log = l
		}
	}
}

// WithMaxEvents overrides the number of readiness events fetched per wait.
func WithMaxEvents(n int) Option {
	return func(cfg *busConfig) {
		if n > 0 {
			cfg.maxEvents = n
		}
	}
}

// WithExitWhenEmpty controls whether Run returns once no channel is registered.
func WithExitWhenEmpty(exit bool) Option {
	return func(cfg *busConfig) {
		cfg.exitWhenEmpty = exit
	}
}

// WithDispatcherCPU locks the dispatcher goroutine to its OS thread and pins
// that thread to cpu. A negative cpu disables pinning.
func WithDispatcherCPU(cpu int) Option {
	return func(cfg *busConfig) {
		cfg.dispatcherCPU = cpu
	}
}

// WithLockOSThread keeps the dispatcher on one OS thread for the lifetime of Run.
func WithLockOSThread(lock bool) Option {
	return func(cfg *busConfig) {
		cfg.lockOSThread = lock
	}
}

// WithSendRetries sets the default number of transient-failure retries used
// by Send and Close on channels of this bus.
func WithSendRetries(n int) Option {
	return func(cfg *busConfig) {
		if n >= 0 {
			cfg.sendRetries = n
		}
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider. The global provider
// is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *busConfig) {
		cfg.meterProvider = mp
	}
}

// ChannelOption customizes a Channel.
type ChannelOption func(*channelConfig)

type channelConfig struct {
	name        string
	sendRetries int
}

// WithName labels the channel in logs, metrics and debug dumps.
func WithName(name string) ChannelOption {
	return func(c *channelConfig) {
		c.name = name
	}
}

// WithChannelSendRetries overrides the bus-wide retry budget for this channel.
func WithChannelSendRetries(n int) ChannelOption {
	return func(c *channelConfig) {
		if n >= 0 {
			c.sendRetries = n
		}
	}
}
