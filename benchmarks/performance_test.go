// Package benchmarks
// Author: momentics <momentics@gmail.com>
//
// Performance benchmarks for chanbus components.

package benchmarks

import (
	"runtime"
	"sync"
	"testing"

	"github.com/momentics/chanbus/chanbus"
	"github.com/momentics/chanbus/codec"
	"github.com/momentics/chanbus/reactor"
)

func backends() []reactor.Backend {
	if runtime.GOOS == "linux" {
		return []reactor.Backend{reactor.BackendEpoll, reactor.BackendPortable}
	}
	return []reactor.Backend{reactor.BackendPortable}
}

// BenchmarkSendDispatch measures end-to-end Send to callback delivery on one channel.
func BenchmarkSendDispatch(b *testing.B) {
	for _, backend := range backends() {
		b.Run(string(backend), func(b *testing.B) {
			bus, err := chanbus.NewBus(chanbus.WithBackend(backend))
			if err != nil {
				b.Fatal(err)
			}
			defer bus.Close()

			ch, err := chanbus.New(bus, func(c *chanbus.Channel[int]) {
				_, _ = c.Pop()
			})
			if err != nil {
				b.Fatal(err)
			}

			b.ResetTimer()
			go func() {
				for i := 0; i < b.N; i++ {
					if err := ch.Send(i); err != nil {
						b.Error(err)
						break
					}
				}
				_ = ch.Close()
			}()
			if err := bus.Run(); err != nil {
				b.Fatal(err)
			}
		})
	}
}

// BenchmarkFanIn measures parallel producers on a shared set of channels.
func BenchmarkFanIn(b *testing.B) {
	const channels = 4
	bus, err := chanbus.NewBus()
	if err != nil {
		b.Fatal(err)
	}
	defer bus.Close()

	chans := make([]*chanbus.Channel[int], channels)
	for i := range chans {
		ch, err := chanbus.New(bus, func(c *chanbus.Channel[int]) {
			_, _ = c.Pop()
		})
		if err != nil {
			b.Fatal(err)
		}
		chans[i] = ch
	}

	done := make(chan error, 1)
	go func() { done <- bus.Run() }()

	b.ResetTimer()
	var next sync.Mutex
	idx := 0
	b.RunParallel(func(pb *testing.PB) {
		next.Lock()
		ch := chans[idx%channels]
		idx++
		next.Unlock()
		for pb.Next() {
			if err := ch.Send(1); err != nil {
				b.Error(err)
				return
			}
		}
	})
	for _, ch := range chans {
		_ = ch.Close()
	}
	if err := <-done; err != nil {
		b.Fatal(err)
	}
}

// BenchmarkCodecRoundTrip measures encode plus decode of a 1 KiB payload.
func BenchmarkCodecRoundTrip(b *testing.B) {
	src := make([]byte, 1024)
	for i := range src {
		src[i] = byte(i)
	}
	enc := make([]byte, codec.EncodeBufferSize(len(src)))
	dec := make([]byte, len(src))

	b.SetBytes(int64(len(src)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n, err := codec.EncodeTo(enc, src)
		if err != nil {
			b.Fatal(err)
		}
		if codec.DecodeTo(dec, enc[:n]) != len(src) {
			b.Fatal("short decode")
		}
	}
}
