package clock

import _ "unsafe" // Required for go:linkname

// nanotime returns the runtime's monotonic time in nanoseconds.
// It avoids the time.Time construction done by time.Now().
//
// Note: This uses go:linkname to access an internal runtime function.
// It may break in future Go versions, though it has been stable.
//
//go:linkname nanotime runtime.nanotime
func nanotime() int64
