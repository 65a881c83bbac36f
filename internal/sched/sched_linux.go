//go:build linux

package sched

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// LockMemory locks current and future pages into RAM.
func LockMemory() error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall: %w", err)
	}
	return nil
}

// Pin locks the calling goroutine to its OS thread and restricts that
// thread to cpu. The goroutine stays locked.
func Pin(cpu int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("sched_setaffinity cpu %d: %w", cpu, err)
	}
	return nil
}

func toKernel(p Policy) uint32 {
	switch p {
	case PolicyFIFO:
		return unix.SCHED_FIFO
	case PolicyRR:
		return unix.SCHED_RR
	default:
		return unix.SCHED_NORMAL
	}
}

func fromKernel(k uint32) Policy {
	switch k {
	case unix.SCHED_FIFO:
		return PolicyFIFO
	case unix.SCHED_RR:
		return PolicyRR
	default:
		return PolicyOther
	}
}

// SetScheduler sets the calling thread's policy and static priority.
func SetScheduler(p Policy, level int) error {
	attr := unix.SchedAttr{Policy: toKernel(p), Priority: uint32(level)}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		return fmt.Errorf("sched_setattr %s,%d: %w", p, level, err)
	}
	return nil
}

// SetNice sets the calling thread's nice value.
func SetNice(nice int) error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, nice); err != nil {
		return fmt.Errorf("setpriority %d: %w", nice, err)
	}
	return nil
}

// Current reports the calling thread's policy, priority and nice value.
func Current() (Priority, error) {
	attr, err := unix.SchedGetAttr(0, 0)
	if err != nil {
		return Priority{}, fmt.Errorf("sched_getattr: %w", err)
	}
	// The raw syscall returns 20-nice so that the result is never negative.
	raw, err := unix.Getpriority(unix.PRIO_PROCESS, 0)
	if err != nil {
		return Priority{}, fmt.Errorf("getpriority: %w", err)
	}
	return Priority{
		Policy: fromKernel(attr.Policy),
		Level:  int(attr.Priority),
		Nice:   20 - raw,
	}, nil
}
