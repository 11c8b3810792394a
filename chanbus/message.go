// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package chanbus

// Message is the ownership box handed out by Pop. The value inside belongs to
// whoever holds the box and leaves it exactly once through Take.
//
// A Message is not safe for concurrent use; after Pop it belongs to the
// callback invocation alone.
type Message[T any] struct {
	payload T
	closed  bool
	taken   bool
}

// Closed reports whether this is the close sentinel. The sentinel carries no
// payload and is delivered once, as the last message of its channel.
func (m *Message[T]) Closed() bool {
	return m != nil && m.closed
}

// Take moves the payload out of the box. It returns false for the close
// sentinel and on every call after the first.
func (m *Message[T]) Take() (T, bool) {
	var zero T
	if m == nil || m.closed || m.taken {
		return zero, false
	}
	v := m.payload
	m.payload = zero
	m.taken = true
	return v, true
}

// Taken reports whether the payload has already been moved out.
func (m *Message[T]) Taken() bool {
	return m != nil && m.taken
}
