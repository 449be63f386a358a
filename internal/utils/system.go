package utils

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
)

// CPUCount returns the number of logical CPUs reported by the host.
// Falls back to the Go runtime's view when gopsutil cannot read it
// (restricted containers, unsupported platforms).
func CPUCount() int {
	count, err := cpu.Counts(true)
	if err != nil || count < 1 {
		return runtime.NumCPU()
	}
	return count
}
