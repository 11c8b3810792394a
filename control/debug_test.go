package control

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/chanbus/api"
)

func TestDebugProbes(t *testing.T) {
	dp := NewDebugProbes()
	var _ api.Debug = dp

	dp.RegisterProbe("b", func() any { return 2 })
	dp.RegisterProbe("a", func() any { return 1 })
	dp.RegisterProbe("a", func() any { return "replaced" })

	assert.Equal(t, []string{"a", "b"}, dp.Names())
	assert.Equal(t, map[string]any{"a": "replaced", "b": 2}, dp.DumpState())
}

func TestDebugProbes_ProbeMayRegister(t *testing.T) {
	dp := NewDebugProbes()
	dp.RegisterProbe("self", func() any {
		dp.RegisterProbe("late", func() any { return true })
		return "ok"
	})
	assert.Equal(t, "ok", dp.DumpState()["self"])
	assert.Contains(t, dp.Names(), "late")
}

func TestPlatformProbes(t *testing.T) {
	dp := NewDebugProbes()
	RegisterPlatformProbes(dp)
	state := dp.DumpState()
	assert.NotEmpty(t, state["platform.os"])
	assert.Positive(t, state["platform.cpus"])
	assert.Positive(t, state["platform.goroutines"])
}
