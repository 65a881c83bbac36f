//go:build linux || darwin || freebsd

package clock

import "golang.org/x/sys/unix"

// Syscall reads CLOCK_MONOTONIC with a real clock_gettime(2) call.
// It is slower than VDSO but reports failures of the underlying call.
type Syscall struct{}

func newSyscallWall() (Wall, error) {
	return Syscall{}, nil
}

// Now returns microseconds on CLOCK_MONOTONIC.
func (Syscall) Now() (uint64, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0, &TimeSourceError{Op: "clock_gettime", Err: err}
	}
	return uint64(ts.Sec)*usecPerSec + uint64(ts.Nsec)/1000, nil
}

// Name implements Wall.
func (Syscall) Name() string { return WallSyscall }
