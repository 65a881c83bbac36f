package clock

import "time"

// CalibrateCycles measures counter ticks per microsecond by comparing the
// counter against the runtime clock across a sleep of d.
//
// The result is approximate and can vary with:
//   - CPU frequency scaling (Turbo Boost, SpeedStep)
//   - Power management states
//   - Thermal throttling
//
// It is only used to help convert cycle thresholds to time; the sampling
// loop never converts between the two.
func CalibrateCycles(c Counter, d time.Duration) float64 {
	// Warm up the read path
	c.ReadSerialized()
	c.ReadSerialized()

	start := c.ReadSerialized()
	t1 := nanotime()
	time.Sleep(d)
	end := c.ReadSerialized()
	t2 := nanotime()

	usec := float64(t2-t1) / 1000
	if usec <= 0 {
		return 0
	}
	return float64(end-start) / usec
}
