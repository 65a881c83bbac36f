package spike

// Clock is the running total of every drained gap. It turns per-spike gaps
// back into elapsed time for the reporter and only ever moves forward; it
// is not reset between the warm-up and measurement passes.
type Clock struct {
	elapsed uint64
	records uint64
}

// Advance adds gap and returns the new elapsed total in microseconds.
// The first record initializes the clock from its own gap.
func (c *Clock) Advance(gap uint64) uint64 {
	c.elapsed += gap
	c.records++
	return c.elapsed
}

// Elapsed returns the total in microseconds.
func (c *Clock) Elapsed() uint64 { return c.elapsed }

// Records returns how many logical records have advanced the clock.
func (c *Clock) Records() uint64 { return c.records }
