// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral reactor factory and backend selection.

package reactor

import (
	"fmt"
	"strings"

	"github.com/momentics/chanbus/api"
)

// Event is the readiness report filled by Wait.
type Event = api.Event

// Backend names a reactor implementation.
type Backend string

const (
	// BackendAuto selects epoll on Linux and the portable backend elsewhere.
	BackendAuto Backend = "auto"
	// BackendEpoll uses eventfd notifiers multiplexed by epoll. Linux only.
	BackendEpoll Backend = "epoll"
	// BackendPortable uses in-memory counters and a condition variable.
	BackendPortable Backend = "portable"
)

// ParseBackend converts a configuration string into a Backend.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendEpoll, BackendPortable:
		return b, nil
	default:
		return "", fmt.Errorf("reactor: unknown backend %q: %w", s, api.ErrInvalidArgument)
	}
}

// NewReactor constructs the reactor for the requested backend.
func NewReactor(backend Backend) (api.Reactor, error) {
	switch backend {
	case "", BackendAuto:
		return newDefaultReactor()
	case BackendEpoll:
		return newEpollReactor()
	case BackendPortable:
		return NewPortable(), nil
	default:
		return nil, fmt.Errorf("reactor: unknown backend %q: %w", backend, api.ErrInvalidArgument)
	}
}
