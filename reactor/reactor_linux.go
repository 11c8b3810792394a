//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor over eventfd notifiers.

package reactor

import (
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/chanbus/api"
)

// linuxReactor is an epoll-based event reactor.
type linuxReactor struct {
	epfd   int
	raw    []unix.EpollEvent // reused by Wait; only the dispatcher calls Wait
	closed atomic.Bool
}

func newDefaultReactor() (api.Reactor, error) {
	return newEpollReactor()
}

func newEpollReactor() (api.Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &linuxReactor{epfd: epfd}, nil
}

// NewNotifier creates an eventfd notifier.
func (r *linuxReactor) NewNotifier() (api.Notifier, error) {
	if r.closed.Load() {
		return nil, api.ErrReactorClosed
	}
	return newEventfd()
}

// Register adds the descriptor to epoll, level-triggered on readability.
func (r *linuxReactor) Register(fd uintptr) error {
	if r.closed.Load() {
		return api.ErrReactorClosed
	}
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		if errors.Is(err, unix.EEXIST) {
			return fmt.Errorf("epoll ctl add fd %d: %w", fd, api.ErrAlreadyExists)
		}
		return fmt.Errorf("epoll ctl add fd %d: %w", fd, err)
	}
	return nil
}

// Unregister removes the descriptor from epoll.
func (r *linuxReactor) Unregister(fd uintptr) error {
	if r.closed.Load() {
		return api.ErrReactorClosed
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return fmt.Errorf("epoll ctl del fd %d: %w", fd, api.ErrNotFound)
		}
		return fmt.Errorf("epoll ctl del fd %d: %w", fd, err)
	}
	return nil
}

// Wait blocks until at least one descriptor is readable.
func (r *linuxReactor) Wait(events []Event) (int, error) {
	if len(events) == 0 {
		return 0, fmt.Errorf("epoll wait: empty event buffer: %w", api.ErrInvalidArgument)
	}
	if r.closed.Load() {
		return 0, api.ErrReactorClosed
	}
	if cap(r.raw) < len(events) {
		r.raw = make([]unix.EpollEvent, len(events))
	}
	raw := r.raw[:len(events)]
	n, err := unix.EpollWait(r.epfd, raw, -1)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil // interrupted by signal, normal
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		events[i] = Event{Fd: uintptr(raw[i].Fd)}
	}
	return n, nil
}

// Close closes the epoll instance.
func (r *linuxReactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(r.epfd)
}
