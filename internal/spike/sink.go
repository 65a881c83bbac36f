package spike

import "github.com/cbrunnkvist/jittertest/internal/clock"

// Event is one decoded spike, in the order it was recorded.
type Event struct {
	Elapsed   uint64 // usec on the cumulative clock
	Magnitude uint64 // spike size in the method's unit
	Gap       uint64 // usec since the previous recorded spike
}

// Stamp splits the elapsed time into seconds and microseconds.
func (e Event) Stamp() clock.Stamp {
	return clock.StampOf(e.Elapsed)
}

// HasPrevious reports whether an earlier spike contributed to the elapsed
// time, i.e. whether the gap is worth printing.
func (e Event) HasPrevious() bool {
	return e.Elapsed != e.Gap
}

// Sink consumes drained events.
type Sink interface {
	Spike(e Event)
	// Flush is called once at the end of every drain.
	Flush() error
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Spike(Event)  {}
func (discard) Flush() error { return nil }

// Tee fans events out to several sinks in order. The first Flush error is
// returned after every sink has been flushed.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

type tee []Sink

func (t tee) Spike(e Event) {
	for _, s := range t {
		s.Spike(e)
	}
}

func (t tee) Flush() error {
	var first error
	for _, s := range t {
		if err := s.Flush(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Collector keeps every event in memory. Useful for tests and tools.
type Collector struct {
	Events  []Event
	Flushes int
}

// Spike implements Sink.
func (c *Collector) Spike(e Event) { c.Events = append(c.Events, e) }

// Flush implements Sink.
func (c *Collector) Flush() error {
	c.Flushes++
	return nil
}
