// File: chanbus/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package chanbus couples thread-safe mailboxes to a single readiness-driven
// dispatcher.
//
// A Channel is an unbounded FIFO paired with one counting notifier (an eventfd
// on Linux). Producers on any goroutine enqueue a value and raise the notifier,
// either as two steps (Push then Notify) or atomically with Send. A Bus owns
// the reactor that multiplexes every registered notifier; its Run loop drains
// each ready counter and invokes the channel's callback once per counted
// increment. Every invocation pops exactly one Message.
//
// Close raises the notifier one last time. The matching invocation pops the
// close sentinel (Message.Closed reports true), after which the bus retires the
// channel and releases its notifier. Run returns once Stop is called or, by
// default, when no channel remains registered.
//
// Payload ownership moves with the Message: Take hands the value to the
// callback exactly once, and the close sentinel never carries a payload.
//
//	bus, _ := chanbus.NewBus()
//	ch, _ := chanbus.New(bus, func(c *chanbus.Channel[int]) {
//		msg, err := c.Pop()
//		if err != nil || msg.Closed() {
//			return
//		}
//		v, _ := msg.Take()
//		fmt.Println("read:", v)
//	})
//	go func() {
//		for i := 0; i < 3; i++ {
//			_ = ch.Send(i)
//		}
//		_ = ch.Close()
//	}()
//	_ = bus.Run()
package chanbus
