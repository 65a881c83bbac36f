//go:build !linux && !darwin && !freebsd

package clock

func newSyscallWall() (Wall, error) {
	return nil, ErrUnsupported
}
