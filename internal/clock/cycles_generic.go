//go:build !amd64 && !arm64

package clock

// Generic fallback: monotonic nanoseconds stand in for cycles.

// Cycles returns monotonic nanoseconds.
func Cycles() uint64 {
	return uint64(nanotime())
}

// CyclesSerialized returns monotonic nanoseconds.
func CyclesSerialized() uint64 {
	return uint64(nanotime())
}

// CounterName returns the name of the cycle counter in use.
func CounterName() string {
	return "nanotime"
}

// CurrentCPU is not available on this architecture.
func CurrentCPU() (int, bool) {
	return 0, false
}
