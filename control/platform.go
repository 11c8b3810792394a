// control/platform.go
// Author: momentics <momentics@gmail.com>
//
// Runtime probes shared by every platform.

package control

import (
	"runtime"
)

// RegisterPlatformProbes adds process-level runtime probes.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.os", func() any {
		return runtime.GOOS + "/" + runtime.GOARCH
	})
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.goroutines", func() any {
		return runtime.NumGoroutine()
	})
}
