//go:build !linux

package msr

// Read is not supported off Linux.
func (r *Reader) Read(int, int64) (uint64, error) {
	return 0, ErrUnsupported
}
