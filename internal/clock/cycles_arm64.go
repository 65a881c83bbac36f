//go:build arm64

package clock

// cntvct reads the virtual counter via CNTVCT_EL0.
// Implemented in cycles_arm64.s
//
//go:noescape
func cntvct() uint64

// cntvctSync issues an ISB before reading CNTVCT_EL0 so the read cannot
// be hoisted above earlier instructions.
// Implemented in cycles_arm64.s
//
//go:noescape
func cntvctSync() uint64

// Cycles reads the virtual counter without a barrier.
func Cycles() uint64 {
	return cntvct()
}

// CyclesSerialized reads the virtual counter behind an ISB.
func CyclesSerialized() uint64 {
	return cntvctSync()
}

// CounterName returns the name of the cycle counter in use.
func CounterName() string {
	return "cntvct_el0"
}

// CurrentCPU is not available without a syscall on arm64.
func CurrentCPU() (int, bool) {
	return 0, false
}
