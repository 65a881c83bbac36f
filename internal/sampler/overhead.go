package sampler

import "github.com/cbrunnkvist/jittertest/internal/clock"

// Overhead accumulates the cost of the spike-handling path: everything
// between the sample that crossed the threshold and the settle read that
// becomes the next baseline. It is in the method's unit and is reported on
// its own; spike magnitudes are never adjusted by it.
type Overhead struct {
	total  uint64
	events uint64
}

// Add accounts for one spike handled between from and to.
func (o *Overhead) Add(from, to uint64) {
	if to > from {
		o.total += to - from
	}
	o.events++
}

// Total returns the accumulated cost.
func (o Overhead) Total() uint64 { return o.total }

// Events returns how many spikes contributed.
func (o Overhead) Events() uint64 { return o.events }

// Mean returns the average cost per spike, or 0 if none were handled.
func (o Overhead) Mean() uint64 {
	if o.events == 0 {
		return 0
	}
	return o.total / o.events
}

// Stamp renders a microsecond total as seconds and microseconds. Only
// meaningful for the time method.
func (o Overhead) Stamp() clock.Stamp {
	return clock.StampOf(o.total)
}

// Reset clears the accumulator.
func (o *Overhead) Reset() {
	*o = Overhead{}
}
