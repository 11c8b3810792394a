package chanbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_TakeOnce(t *testing.T) {
	m := &Message[[]byte]{payload: []byte("hello")}
	assert.False(t, m.Closed())
	assert.False(t, m.Taken())

	v, ok := m.Take()
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), v)
	assert.True(t, m.Taken())

	v, ok = m.Take()
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestMessage_Sentinel(t *testing.T) {
	m := &Message[int]{closed: true}
	assert.True(t, m.Closed())
	v, ok := m.Take()
	assert.False(t, ok)
	assert.Zero(t, v)
}

func TestMessage_Nil(t *testing.T) {
	var m *Message[int]
	assert.False(t, m.Closed())
	assert.False(t, m.Taken())
	_, ok := m.Take()
	assert.False(t, ok)
}
