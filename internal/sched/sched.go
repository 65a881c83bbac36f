// Package sched prepares the measuring thread: page locking, scheduling
// policy and priority, nice value, CPU affinity and GC suppression.
//
// Every setting applies to the calling OS thread, so callers lock their
// goroutine with runtime.LockOSThread (Pin does this) before Prepare.
// Failures are not fatal to a measurement; Prepare logs them and moves on.
package sched

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/phuslu/log"
)

// ErrUnsupported is returned on platforms without the needed syscalls.
var ErrUnsupported = errors.New("sched: not supported on this platform")

// Policy is a scheduling policy.
type Policy int

const (
	PolicyOther Policy = iota
	PolicyFIFO
	PolicyRR
)

var policyNames = [...]string{
	PolicyOther: "OTHER",
	PolicyFIFO:  "FIFO",
	PolicyRR:    "RR",
}

func (p Policy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return "Policy(" + strconv.Itoa(int(p)) + ")"
	}
	return policyNames[p]
}

// PriorityRange returns the static priority bounds of p.
func PriorityRange(p Policy) (lo, hi int) {
	switch p {
	case PolicyFIFO, PolicyRR:
		return 1, 99
	default:
		return 0, 0
	}
}

// Nice bounds.
const (
	NiceMin = -20
	NiceMax = 19
)

// ParsePolicy accepts any case-insensitive prefix of FIFO, RR or OTHER.
func ParsePolicy(s string) (Policy, error) {
	if s == "" {
		return 0, errors.New("empty scheduling policy")
	}
	up := strings.ToUpper(s)
	found := -1
	for i, name := range policyNames {
		if strings.HasPrefix(name, up) {
			if found >= 0 {
				return 0, fmt.Errorf("ambiguous scheduling policy %q", s)
			}
			found = i
		}
	}
	if found < 0 {
		return 0, fmt.Errorf("unknown scheduling policy %q; use FIFO, RR or OTHER", s)
	}
	return Policy(found), nil
}

// Priority is the requested scheduling setup.
type Priority struct {
	Policy Policy
	// Level is the static priority. Ignored when Max is set.
	Level int
	// Max selects the highest priority Policy allows.
	Max  bool
	Nice int
}

// DefaultPriority is FIFO at its maximum priority with nice -20.
func DefaultPriority() Priority {
	return Priority{Policy: PolicyFIFO, Max: true, Nice: NiceMin}
}

// ParsePriority parses "[POLICY][,PRIO][,NICE]". Omitted fields keep their
// defaults; the priority is clamped to the policy's range and nice to
// [-20,19] when the setting is applied.
func ParsePriority(s string) (Priority, error) {
	p := DefaultPriority()
	if s == "" {
		return p, nil
	}
	fields := strings.Split(s, ",")
	if len(fields) > 3 {
		return p, fmt.Errorf("priority %q: too many fields", s)
	}
	if f := strings.TrimSpace(fields[0]); f != "" {
		pol, err := ParsePolicy(f)
		if err != nil {
			return p, err
		}
		p.Policy = pol
	}
	if len(fields) > 1 {
		if f := strings.TrimSpace(fields[1]); f != "" {
			n, err := strconv.Atoi(f)
			if err != nil {
				return p, fmt.Errorf("priority %q: bad level: %w", s, err)
			}
			p.Level, p.Max = n, false
		}
	}
	if len(fields) > 2 {
		if f := strings.TrimSpace(fields[2]); f != "" {
			n, err := strconv.Atoi(f)
			if err != nil {
				return p, fmt.Errorf("priority %q: bad nice: %w", s, err)
			}
			p.Nice = n
		}
	}
	return p, nil
}

// Effective resolves Max and clamps Level and Nice into range.
func (p Priority) Effective() Priority {
	lo, hi := PriorityRange(p.Policy)
	if p.Max {
		p.Level, p.Max = hi, false
	}
	p.Level = clamp(p.Level, lo, hi)
	p.Nice = clamp(p.Nice, NiceMin, NiceMax)
	return p
}

func (p Priority) String() string {
	if p.Max {
		return fmt.Sprintf("%s,max,%d", p.Policy, p.Nice)
	}
	return fmt.Sprintf("%s,%d,%d", p.Policy, p.Level, p.Nice)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Setup is what Prepare applies.
type Setup struct {
	LockMemory bool
	// Priority is applied when non-nil.
	Priority *Priority
	// CPU pins the thread when >= 0.
	CPU int
	// QuiesceGC disables the collector until the restore func runs.
	QuiesceGC bool
}

// Prepare applies s to the calling thread, logging each step, and returns a
// func that undoes the parts that can be undone in-process.
func Prepare(s Setup, logger *log.Logger) (restore func()) {
	if s.CPU >= 0 {
		if err := Pin(s.CPU); err != nil {
			logger.Warn().Err(err).Int("cpu", s.CPU).Msg("cpu pinning failed")
		} else {
			logger.Info().Int("cpu", s.CPU).Msg("pinned measuring thread")
		}
	}
	if s.LockMemory {
		if err := LockMemory(); err != nil {
			logger.Warn().Err(err).Msg("mlockall failed")
		} else {
			logger.Info().Msg("locked process memory")
		}
	}
	if s.Priority != nil {
		want := s.Priority.Effective()
		if s.Priority.Level != want.Level && !s.Priority.Max {
			logger.Info().Int("requested", s.Priority.Level).Int("using", want.Level).
				Str("policy", want.Policy.String()).Msg("priority out of range; clamped")
		}
		applyPriority(want, logger)
	}
	TouchStack()

	restore = func() {}
	if s.QuiesceGC {
		restore = QuiesceGC()
	}
	return restore
}

func applyPriority(want Priority, logger *log.Logger) {
	if cur, err := Current(); err == nil {
		logger.Debug().Str("policy", cur.Policy.String()).Int("priority", cur.Level).
			Int("nice", cur.Nice).Msg("scheduler before")
	}
	if err := SetScheduler(want.Policy, want.Level); err != nil {
		logger.Warn().Err(err).Str("policy", want.Policy.String()).Int("priority", want.Level).
			Msg("setting scheduler failed")
	}
	if err := SetNice(want.Nice); err != nil {
		logger.Warn().Err(err).Int("nice", want.Nice).Msg("setting nice failed")
	}
	if cur, err := Current(); err == nil {
		logger.Debug().Str("policy", cur.Policy.String()).Int("priority", cur.Level).
			Int("nice", cur.Nice).Msg("scheduler after")
	}
}

// QuiesceGC turns the garbage collector off and returns a func restoring
// the previous setting.
func QuiesceGC() (restore func()) {
	prev := debug.SetGCPercent(-1)
	return func() { debug.SetGCPercent(prev) }
}

const stackTouchBytes = 64 << 10

var stackSink byte

// TouchStack grows the goroutine stack once so the timed loop does not hit
// a stack copy or a first-touch page fault.
//
//go:noinline
func TouchStack() {
	var pad [stackTouchBytes]byte
	for i := range pad {
		pad[i] = byte(i)
	}
	stackSink = pad[len(pad)-1]
}
