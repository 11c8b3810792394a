// File: api/debug.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime introspection contract for the channel bus.

package api

// Debug exposes named state snapshots. chanbus.Bus implements it on top of
// control.DebugProbes and registers "bus.stats" and "bus.channels" (per-channel
// queue depth) at construction.
type Debug interface {
	// DumpState evaluates every registered snapshot function by name.
	DumpState() map[string]any
	// RegisterProbe adds or replaces the snapshot function for name.
	RegisterProbe(name string, fn func() any)
}
