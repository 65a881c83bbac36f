// Package clock provides the two time sources the jitter loop samples:
// a microsecond wall clock and a per-core cycle counter.
//
// Wall clocks:
//   - VDSO: the runtime's monotonic clock (no syscall, never fails)
//   - Syscall: clock_gettime(2) through golang.org/x/sys/unix
//
// Cycle counters:
//   - amd64: RDTSC (fast) and RDTSCP; LFENCE (serializing)
//   - arm64: CNTVCT_EL0, with an ISB barrier for the serializing read
//   - elsewhere: monotonic nanoseconds stand in for cycles
package clock

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Microseconds per second, used to split a reading into (sec, usec).
const usecPerSec = 1_000_000

// ErrNonMonotonic is returned by the sampling loop when a reading is
// smaller than the one before it.
var ErrNonMonotonic = errors.New("clock: reading went backwards")

// ErrUnsupported is returned when a time source is not available on this
// platform.
var ErrUnsupported = errors.New("clock: time source not supported on this platform")

// TimeSourceError wraps a failed time read. A run that sees one must stop:
// the reading it would have produced is undefined.
type TimeSourceError struct {
	Op  string
	Err error
}

func (e *TimeSourceError) Error() string {
	return fmt.Sprintf("clock: %s: %v", e.Op, e.Err)
}

func (e *TimeSourceError) Unwrap() error { return e.Err }

// Stamp is a wall-clock reading split into seconds and microseconds.
type Stamp struct {
	Sec  uint64
	Usec uint64
}

// StampOf splits a microsecond count.
func StampOf(usec uint64) Stamp {
	return Stamp{Sec: usec / usecPerSec, Usec: usec % usecPerSec}
}

// Micros returns the reading as a single microsecond count.
func (s Stamp) Micros() uint64 {
	return s.Sec*usecPerSec + s.Usec
}

// String formats the stamp as seconds.micros.
func (s Stamp) String() string {
	return fmt.Sprintf("%d.%06d", s.Sec, s.Usec)
}

// Wall reads a microsecond-resolution clock that is monotonic for the
// lifetime of a run.
type Wall interface {
	// Now returns the current reading in microseconds.
	Now() (uint64, error)
	// Name identifies the source in diagnostics.
	Name() string
}

// Counter reads the cycle counter.
type Counter interface {
	// Read is the cheap, non-serializing read for tight polling loops.
	Read() uint64
	// ReadSerialized waits for earlier instructions to retire before
	// reading, for the edges of a timed region.
	ReadSerialized() uint64
	// Name identifies the counter in diagnostics.
	Name() string
}

// Wall clock source names accepted by NewWall.
const (
	WallVDSO    = "vdso"
	WallSyscall = "syscall"
)

// WallSources lists the names accepted by NewWall.
var WallSources = []string{WallVDSO, WallSyscall}

// NewWall returns the wall clock registered under name.
func NewWall(name string) (Wall, error) {
	switch strings.ToLower(name) {
	case "", WallVDSO:
		return VDSO{}, nil
	case WallSyscall:
		return newSyscallWall()
	default:
		return nil, fmt.Errorf("unknown clock source %q (use %s)", name, strings.Join(WallSources, " or "))
	}
}

// VDSO reads the runtime's monotonic clock. It is the cheapest wall-clock
// read available to Go code and cannot fail.
type VDSO struct{}

// Now returns microseconds on the runtime's monotonic clock.
func (VDSO) Now() (uint64, error) {
	return uint64(nanotime()) / 1000, nil
}

// Name implements Wall.
func (VDSO) Name() string { return WallVDSO }

// TSC is the hardware cycle counter of the current core.
type TSC struct{}

// Read implements Counter.
func (TSC) Read() uint64 { return Cycles() }

// ReadSerialized implements Counter.
func (TSC) ReadSerialized() uint64 { return CyclesSerialized() }

// Name implements Counter.
func (TSC) Name() string { return CounterName() }

// MinReadDelta returns the smallest difference between n pairs of
// back-to-back serialized counter reads. It returns math.MaxUint64 when
// n is zero.
func MinReadDelta(c Counter, n int) uint64 {
	lowest := uint64(math.MaxUint64)
	prev := c.ReadSerialized()
	for i := 0; i < n; i++ {
		cur := c.ReadSerialized()
		if d := cur - prev; d < lowest {
			lowest = d
		}
		prev = cur
	}
	return lowest
}
