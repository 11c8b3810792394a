package reactor_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/chanbus/api"
	"github.com/momentics/chanbus/reactor"
)

func backends(t *testing.T) []reactor.Backend {
	t.Helper()
	out := []reactor.Backend{reactor.BackendPortable}
	if runtime.GOOS == "linux" {
		out = append(out, reactor.BackendEpoll)
	}
	return out
}

func newReactor(t *testing.T, b reactor.Backend) api.Reactor {
	t.Helper()
	r, err := reactor.NewReactor(b)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in   string
		want reactor.Backend
		ok   bool
	}{
		{"", reactor.BackendAuto, true},
		{"auto", reactor.BackendAuto, true},
		{"EPOLL", reactor.BackendEpoll, true},
		{" portable ", reactor.BackendPortable, true},
		{"kqueue", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := reactor.ParseBackend(tt.in)
			if !tt.ok {
				assert.ErrorIs(t, err, api.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewReactor_UnknownBackend(t *testing.T) {
	_, err := reactor.NewReactor("bogus")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

// Several signals before a wait coalesce into one readiness report whose
// drain returns the full count.
func TestNotifier_CoalescedCount(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(string(b), func(t *testing.T) {
			r := newReactor(t, b)
			n, err := r.NewNotifier()
			require.NoError(t, err)
			defer n.Close()
			require.NoError(t, r.Register(n.Handle()))

			for i := 0; i < 5; i++ {
				require.NoError(t, n.Signal())
			}

			events := make([]api.Event, 8)
			got, err := r.Wait(events)
			require.NoError(t, err)
			require.Equal(t, 1, got)
			assert.Equal(t, n.Handle(), events[0].Fd)

			count, err := n.Drain()
			require.NoError(t, err)
			assert.Equal(t, uint64(5), count)

			count, err = n.Drain()
			require.NoError(t, err)
			assert.Zero(t, count, "second drain must see an empty counter")
		})
	}
}

func TestReactor_WaitBlocksUntilSignal(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(string(b), func(t *testing.T) {
			r := newReactor(t, b)
			n, err := r.NewNotifier()
			require.NoError(t, err)
			defer n.Close()
			require.NoError(t, r.Register(n.Handle()))

			result := make(chan int, 1)
			go func() {
				got, _ := r.Wait(make([]api.Event, 4))
				result <- got
			}()

			select {
			case <-result:
				t.Fatal("Wait returned before any signal")
			case <-time.After(50 * time.Millisecond):
			}

			require.NoError(t, n.Signal())
			select {
			case got := <-result:
				assert.Equal(t, 1, got)
			case <-time.After(2 * time.Second):
				t.Fatal("Wait did not wake after Signal")
			}
		})
	}
}

func TestReactor_MultipleNotifiers(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(string(b), func(t *testing.T) {
			r := newReactor(t, b)
			a, err := r.NewNotifier()
			require.NoError(t, err)
			defer a.Close()
			c, err := r.NewNotifier()
			require.NoError(t, err)
			defer c.Close()
			require.NotEqual(t, a.Handle(), c.Handle())
			require.NoError(t, r.Register(a.Handle()))
			require.NoError(t, r.Register(c.Handle()))

			require.NoError(t, a.Signal())
			require.NoError(t, c.Signal())

			seen := map[uintptr]bool{}
			deadline := time.Now().Add(2 * time.Second)
			for len(seen) < 2 && time.Now().Before(deadline) {
				events := make([]api.Event, 4)
				got, err := r.Wait(events)
				require.NoError(t, err)
				for i := 0; i < got; i++ {
					seen[events[i].Fd] = true
				}
				_, _ = a.Drain()
				_, _ = c.Drain()
			}
			assert.True(t, seen[a.Handle()])
			assert.True(t, seen[c.Handle()])
		})
	}
}

func TestReactor_DuplicateRegister(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(string(b), func(t *testing.T) {
			r := newReactor(t, b)
			n, err := r.NewNotifier()
			require.NoError(t, err)
			defer n.Close()
			require.NoError(t, r.Register(n.Handle()))
			assert.ErrorIs(t, r.Register(n.Handle()), api.ErrAlreadyExists)
		})
	}
}

func TestReactor_UnregisterUnknown(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(string(b), func(t *testing.T) {
			r := newReactor(t, b)
			n, err := r.NewNotifier()
			require.NoError(t, err)
			defer n.Close()
			assert.ErrorIs(t, r.Unregister(n.Handle()), api.ErrNotFound)
		})
	}
}

func TestNotifier_UseAfterClose(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(string(b), func(t *testing.T) {
			r := newReactor(t, b)
			n, err := r.NewNotifier()
			require.NoError(t, err)
			require.NoError(t, n.Close())
			require.NoError(t, n.Close(), "close is idempotent")

			err = n.Signal()
			assert.True(t, errors.Is(err, api.ErrNotifierClosed))
			_, err = n.Drain()
			assert.True(t, errors.Is(err, api.ErrNotifierClosed))
		})
	}
}

func TestPortable_CloseWakesWaiter(t *testing.T) {
	r := reactor.NewPortable()
	done := make(chan error, 1)
	go func() {
		_, err := r.Wait(make([]api.Event, 1))
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, api.ErrReactorClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not wake the waiter")
	}
}

// A counter signalled before registration is reported as soon as it is
// watched, matching epoll's level-triggered behaviour.
func TestPortable_RegisterPendingCounter(t *testing.T) {
	r := reactor.NewPortable()
	defer r.Close()
	n, err := r.NewNotifier()
	require.NoError(t, err)
	require.NoError(t, n.Signal())
	require.NoError(t, r.Register(n.Handle()))

	events := make([]api.Event, 1)
	got, err := r.Wait(events)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Equal(t, n.Handle(), events[0].Fd)
}

func TestPortable_UnregisterDropsReadiness(t *testing.T) {
	r := reactor.NewPortable()
	defer r.Close()
	a, err := r.NewNotifier()
	require.NoError(t, err)
	b, err := r.NewNotifier()
	require.NoError(t, err)
	require.NoError(t, r.Register(a.Handle()))
	require.NoError(t, r.Register(b.Handle()))

	require.NoError(t, a.Signal())
	require.NoError(t, r.Unregister(a.Handle()))
	require.NoError(t, b.Signal())

	events := make([]api.Event, 4)
	got, err := r.Wait(events)
	require.NoError(t, err)
	require.Equal(t, 1, got)
	assert.Equal(t, b.Handle(), events[0].Fd)
}

func TestWait_EmptyBuffer(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(string(b), func(t *testing.T) {
			r := newReactor(t, b)
			_, err := r.Wait(nil)
			assert.ErrorIs(t, err, api.ErrInvalidArgument)
		})
	}
}
