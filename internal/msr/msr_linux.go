//go:build linux

package msr

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// Read returns the 64-bit value of register reg on cpu. A device that
// fails a read is closed and reopened on the next call.
func (r *Reader) Read(cpu int, reg int64) (uint64, error) {
	f, err := r.device(cpu)
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	n, err := unix.Pread(int(f.Fd()), buf[:], reg)
	if err == nil && n != len(buf) {
		err = fmt.Errorf("short read: %d bytes", n)
	}
	if err != nil {
		f.Close()
		delete(r.devs, cpu)
		return 0, fmt.Errorf("read msr %#x on cpu %d: %w", reg, cpu, err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
