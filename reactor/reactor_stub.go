//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Platforms without eventfd fall back to the portable backend.

package reactor

import (
	"fmt"

	"github.com/momentics/chanbus/api"
)

func newDefaultReactor() (api.Reactor, error) {
	return NewPortable(), nil
}

// newEpollReactor returns an error for unsupported platforms.
func newEpollReactor() (api.Reactor, error) {
	return nil, fmt.Errorf("reactor: epoll backend: %w", api.ErrNotSupported)
}
