// Package sampler runs the jitter measurement loop: it samples a time
// source as fast as it can, classifies each inter-sample delta against a
// threshold and records spikes into a spike.Buffer.
//
// The loop is written once against the Method interface; the time method
// samples the wall clock in microseconds, the cycle method samples the CPU
// cycle counter and only reads the wall clock when a spike is recorded.
package sampler

import (
	"fmt"
	"math"
	"strings"

	"github.com/cbrunnkvist/jittertest/internal/clock"
)

// Method names.
const (
	MethodTime   = "time"
	MethodCycles = "cycles"
)

// Defaults per method.
const (
	DefaultTimeThreshold  = 10     // usec
	DefaultCycleThreshold = 10_000 // cycles
	DefaultLoopcount      = 5_000_000_000
	DefaultPrimeReads     = 1024
	noMinimum             = math.MaxUint64
	unitMicros            = "usec"
	unitCycles            = "cycle"
)

// Method is the time base the loop samples.
type Method interface {
	// Name is "time" or "cycles".
	Name() string
	// Unit names the magnitude unit in reports.
	Unit() string
	// Prime returns the initial minimum non-spike delta for a pass.
	Prime() uint64
	// Start returns the wall-clock stamp (usec) the first gap is measured
	// from and the baseline sample for the first delta.
	Start() (wall, base uint64, err error)
	// Sample is the tight-loop read.
	Sample() (uint64, error)
	// Settle is the read taken after a spike has been recorded. It closes
	// the overhead interval and becomes the next baseline.
	Settle() (uint64, error)
	// SpikeTime returns the wall-clock stamp (usec) of a spike detected at
	// sample.
	SpikeTime(sample uint64) (uint64, error)
	// Magnitude converts a delta into the reported magnitude.
	Magnitude(delta uint64) uint64
}

// ParseMethod resolves a method name. Any non-empty prefix of "time" or
// "cycles" is accepted.
func ParseMethod(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("value for method required; use %q or %q", MethodCycles, MethodTime)
	}
	var match string
	for _, name := range []string{MethodTime, MethodCycles} {
		if strings.HasPrefix(name, strings.ToLower(s)) {
			if match != "" {
				return "", fmt.Errorf("ambiguous value for method: %q", s)
			}
			match = name
		}
	}
	if match == "" {
		return "", fmt.Errorf("illegal value for method %q; use %q or %q", s, MethodCycles, MethodTime)
	}
	return match, nil
}

// DefaultThreshold returns the threshold used when none is configured.
func DefaultThreshold(method string) uint64 {
	if method == MethodCycles {
		return DefaultCycleThreshold
	}
	return DefaultTimeThreshold
}

// UnitOf returns the magnitude unit reported for method.
func UnitOf(method string) string {
	if method == MethodCycles {
		return unitCycles
	}
	return unitMicros
}

// NewMethod builds the named method. fast selects the non-serializing
// counter read for the cycle method's tight loop.
func NewMethod(name string, wall clock.Wall, fast bool) (Method, error) {
	switch name {
	case MethodTime:
		return &TimeMethod{Wall: wall}, nil
	case MethodCycles:
		return &CycleMethod{Wall: wall, Counter: clock.TSC{}, Fast: fast}, nil
	default:
		return nil, fmt.Errorf("unknown method %q", name)
	}
}

// TimeMethod samples the wall clock. Deltas, magnitudes and overhead are in
// microseconds; two reads within the same microsecond give a delta of 0.
type TimeMethod struct {
	Wall clock.Wall
}

func (m *TimeMethod) Name() string { return MethodTime }
func (m *TimeMethod) Unit() string { return unitMicros }

// Prime returns "no minimum observed".
func (m *TimeMethod) Prime() uint64 { return noMinimum }

func (m *TimeMethod) Start() (uint64, uint64, error) {
	t0, err := m.Wall.Now()
	return t0, t0, err
}

func (m *TimeMethod) Sample() (uint64, error) { return m.Wall.Now() }
func (m *TimeMethod) Settle() (uint64, error) { return m.Wall.Now() }

// SpikeTime is the sample itself; it already is a wall-clock stamp.
func (m *TimeMethod) SpikeTime(sample uint64) (uint64, error) { return sample, nil }

func (m *TimeMethod) Magnitude(delta uint64) uint64 { return delta }

// CycleMethod samples the cycle counter. Deltas, magnitudes and overhead
// are raw counts; gaps still come from the wall clock so they stay in
// microseconds.
type CycleMethod struct {
	Wall    clock.Wall
	Counter clock.Counter
	// Fast uses the non-serializing read inside the tight loop.
	Fast bool
	// PrimeReads is the number of back-to-back reads used to seed the
	// minimum. Zero means DefaultPrimeReads.
	PrimeReads int
}

func (m *CycleMethod) Name() string { return MethodCycles }
func (m *CycleMethod) Unit() string { return unitCycles }

// Prime seeds the minimum with the smallest back-to-back read cost, so a
// pass where every delta is a spike still reports a meaningful floor.
func (m *CycleMethod) Prime() uint64 {
	n := m.PrimeReads
	if n <= 0 {
		n = DefaultPrimeReads
	}
	return clock.MinReadDelta(m.Counter, n)
}

func (m *CycleMethod) Start() (uint64, uint64, error) {
	t0, err := m.Wall.Now()
	if err != nil {
		return 0, 0, err
	}
	return t0, m.Counter.ReadSerialized(), nil
}

func (m *CycleMethod) Sample() (uint64, error) {
	if m.Fast {
		return m.Counter.Read(), nil
	}
	return m.Counter.ReadSerialized(), nil
}

func (m *CycleMethod) Settle() (uint64, error) {
	return m.Counter.ReadSerialized(), nil
}

// SpikeTime reads the wall clock; cycle counts are not comparable to it.
func (m *CycleMethod) SpikeTime(uint64) (uint64, error) { return m.Wall.Now() }

func (m *CycleMethod) Magnitude(delta uint64) uint64 { return delta }
