package api_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/chanbus/api"
	"github.com/momentics/chanbus/fake"
	"github.com/momentics/chanbus/reactor"
)

func TestErrorIsMatchesCodeAndMessage(t *testing.T) {
	sentinel := api.NewError(api.ErrCodeClosed, "channel is closed")
	enriched := sentinel.WithContext("channel", "orders")

	assert.True(t, errors.Is(enriched, sentinel))
	assert.True(t, errors.Is(fmt.Errorf("send: %w", enriched), sentinel))
	assert.False(t, errors.Is(enriched, api.NewError(api.ErrCodeClosed, "bus is stopped")))
	assert.False(t, errors.Is(enriched, api.NewError(api.ErrCodeNotFound, "channel is closed")))
	assert.Nil(t, sentinel.Context, "WithContext must not mutate the receiver")
}

func TestErrorMessage(t *testing.T) {
	e := api.NewError(api.ErrCodeAlreadyExists, "duplicate")
	assert.Equal(t, "duplicate", e.Error())
	assert.Contains(t, e.WithContext("handle", 7).Error(), "handle:7")
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, api.ErrCodeOK, api.CodeOf(nil))
	assert.Equal(t, api.ErrCodeInternal, api.CodeOf(errors.New("plain")))
	wrapped := fmt.Errorf("outer: %w", api.NewError(api.ErrCodeWouldBlock, "full"))
	assert.Equal(t, api.ErrCodeWouldBlock, api.CodeOf(wrapped))
}

func TestErrorCodeString(t *testing.T) {
	assert.Equal(t, "closed", api.ErrCodeClosed.String())
	assert.Equal(t, "already exists", api.ErrCodeAlreadyExists.String())
	assert.Equal(t, "internal", api.ErrorCode(99).String())
}

func TestReactorInterfaceCompliance(t *testing.T) {
	var _ api.Reactor = reactor.NewPortable()
	var _ api.Reactor = (*fake.Reactor)(nil)
	var _ api.Notifier = (*fake.Notifier)(nil)
}
