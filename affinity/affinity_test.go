package affinity_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/chanbus/affinity"
)

func TestSetAffinity_OutOfRange(t *testing.T) {
	assert.Error(t, affinity.SetAffinity(-1))
	assert.Error(t, affinity.SetAffinity(runtime.NumCPU()))
}

// The pin runs on a dedicated goroutine that exits while still locked, so the
// runtime discards the pinned thread instead of reusing it.
func TestSetAffinity_CPU0(t *testing.T) {
	errc := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		errc <- affinity.SetAffinity(0)
	}()
	err := <-errc

	if runtime.GOOS != "linux" {
		assert.ErrorIs(t, err, affinity.ErrNotSupported)
		return
	}
	if err != nil {
		// Restricted cpusets (containers) may exclude CPU 0.
		t.Skipf("cpu 0 not available to this process: %v", err)
	}
}
