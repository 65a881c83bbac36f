//go:build amd64

package clock

import "runtime"

// rdtsc reads the Time Stamp Counter.
// Implemented in cycles_amd64.s
//
//go:noescape
func rdtsc() uint64

// rdtscp reads the Time Stamp Counter after all earlier instructions have
// retired, together with IA32_TSC_AUX. The trailing LFENCE keeps later
// instructions from starting before the read.
// Implemented in cycles_amd64.s
//
//go:noescape
func rdtscp() (cycles uint64, aux uint32)

// Cycles reads the TSC without serialization.
func Cycles() uint64 {
	return rdtsc()
}

// CyclesSerialized reads the TSC with RDTSCP; LFENCE.
func CyclesSerialized() uint64 {
	c, _ := rdtscp()
	return c
}

// CounterName returns the name of the cycle counter in use.
func CounterName() string {
	return "rdtsc"
}

// CurrentCPU reports the core the calling thread is running on. Linux
// loads IA32_TSC_AUX with (node << 12) | cpu, so the low 12 bits of the
// RDTSCP auxiliary value are the CPU number.
func CurrentCPU() (int, bool) {
	if runtime.GOOS != "linux" {
		return 0, false
	}
	_, aux := rdtscp()
	return int(aux & 0xfff), true
}
