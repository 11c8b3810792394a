//go:build linux
// +build linux

// File: reactor/eventfd_linux.go
// Author: momentics <momentics@gmail.com>
//
// eventfd(2) counting notifier. Writes add to a 64-bit kernel counter, reads
// return it and reset it to zero, and the descriptor polls readable while the
// counter is non-zero.

package reactor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"

	"github.com/momentics/chanbus/api"
)

type eventfd struct {
	mu     sync.RWMutex // Close takes the write lock so no Signal races a recycled descriptor
	fd     int
	closed bool
}

func newEventfd() (*eventfd, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("eventfd create: %w", err)
	}
	return &eventfd{fd: fd}, nil
}

func (e *eventfd) Handle() uintptr {
	return uintptr(e.fd)
}

// Signal adds one to the counter. EAGAIN means the counter would overflow and
// is reported as iox.ErrWouldBlock.
func (e *eventfd) Signal() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return api.ErrNotifierClosed
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(e.fd, buf[:])
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return fmt.Errorf("eventfd %d write: %w", e.fd, iox.ErrWouldBlock)
		default:
			return fmt.Errorf("eventfd %d write: %w", e.fd, err)
		}
	}
}

// Drain reads and clears the counter. An empty counter yields 0.
func (e *eventfd) Drain() (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return 0, api.ErrNotifierClosed
	}
	var buf [8]byte
	for {
		_, err := unix.Read(e.fd, buf[:])
		switch {
		case err == nil:
			return binary.NativeEndian.Uint64(buf[:]), nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, nil
		default:
			return 0, fmt.Errorf("eventfd %d read: %w", e.fd, err)
		}
	}
}

func (e *eventfd) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return unix.Close(e.fd)
}
