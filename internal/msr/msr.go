// Package msr reads model-specific registers through the Linux msr driver.
// The only register the tool needs is MSR_SMI_COUNT, whose low 32 bits
// count System Management Interrupts since reset.
package msr

import (
	"errors"
	"fmt"
	"os"
)

// SMICount is the address of MSR_SMI_COUNT.
const SMICount = 0x34

// ErrUnsupported is returned where no msr device exists.
var ErrUnsupported = errors.New("msr: not supported on this platform")

// devicePath is the per-CPU msr device. The driver maps the file offset to
// the register address.
var devicePath = "/dev/cpu/%d/msr"

// Reader keeps one open device per CPU for the life of a run.
type Reader struct {
	devs map[int]*os.File
}

// NewReader returns a Reader with no devices opened yet.
func NewReader() *Reader {
	return &Reader{devs: make(map[int]*os.File)}
}

func (r *Reader) device(cpu int) (*os.File, error) {
	if f, ok := r.devs[cpu]; ok {
		return f, nil
	}
	path := fmt.Sprintf(devicePath, cpu)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s (is the msr module loaded?): %w", path, err)
	}
	r.devs[cpu] = f
	return f, nil
}

// SMICount returns the SMI count of cpu.
func (r *Reader) SMICount(cpu int) (uint64, error) {
	v, err := r.Read(cpu, SMICount)
	if err != nil {
		return 0, err
	}
	return v & 0xffffffff, nil
}

// Close closes every opened device.
func (r *Reader) Close() error {
	var errs []error
	for cpu, f := range r.devs {
		errs = append(errs, f.Close())
		delete(r.devs, cpu)
	}
	return errors.Join(errs...)
}
