// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files (affinity_linux.go, affinity_stub.go) guarded by build tags.

package affinity

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrNotSupported is returned on platforms without thread affinity control.
var ErrNotSupported = errors.New("affinity: not supported on this platform")

// SetAffinity pins the current OS thread to a given logical CPU.
// The caller must hold the thread with runtime.LockOSThread for the pin to be meaningful.
func SetAffinity(cpuID int) error {
	if cpuID < 0 || cpuID >= runtime.NumCPU() {
		return fmt.Errorf("affinity: cpu %d out of range [0,%d)", cpuID, runtime.NumCPU())
	}
	return setAffinityPlatform(cpuID)
}
