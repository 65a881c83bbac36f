package spike

import (
	"errors"
	"fmt"
)

// DefaultCapacity is the default number of slots: room for 1021 ordinary
// records plus one escape sequence at the boundary.
const DefaultCapacity = 1024

// MinCapacity is the smallest usable buffer: one escape sequence plus the
// slot that triggers the flush.
const MinCapacity = EscapeSlots + 1

// ErrCapacityTooSmall is returned for buffers that cannot hold an escape
// sequence ahead of the flush point.
var ErrCapacityTooSmall = errors.New("spike: buffer capacity too small")

// prefaultValue is written to every slot by Touch.
const prefaultValue = 42

// Buffer is a fixed-capacity sequence of records. It is appended to by the
// sampling loop and drained into a Sink when it reaches capacity-3 slots, or
// explicitly at the end of a run. Storage is allocated once and reused.
//
// Not safe for concurrent use.
type Buffer struct {
	slots   []Record
	cursor  int
	flushAt int
	clock   *Clock
	sink    Sink
	drains  int
}

// NewBuffer allocates a buffer of capacity slots that advances clock and
// reports to sink when drained. A nil sink discards events.
func NewBuffer(capacity int, clock *Clock, sink Sink) (*Buffer, error) {
	if capacity < MinCapacity {
		return nil, fmt.Errorf("%w: %d slots (minimum %d)", ErrCapacityTooSmall, capacity, MinCapacity)
	}
	if clock == nil {
		clock = &Clock{}
	}
	if sink == nil {
		sink = Discard
	}
	return &Buffer{
		slots:   make([]Record, capacity),
		flushAt: capacity - EscapeSlots,
		clock:   clock,
		sink:    sink,
	}, nil
}

// Cap returns the capacity in slots.
func (b *Buffer) Cap() int { return len(b.slots) }

// Len returns the number of slots written since the last drain or reset.
func (b *Buffer) Len() int { return b.cursor }

// FlushAt returns the cursor position that triggers an automatic drain.
func (b *Buffer) FlushAt() int { return b.flushAt }

// Drains returns how many drains have run.
func (b *Buffer) Drains() int { return b.drains }

// Clock returns the cumulative clock the buffer advances.
func (b *Buffer) Clock() *Clock { return b.clock }

// Attach directs future drains to sink and returns the previous sink.
// A nil sink discards events.
func (b *Buffer) Attach(sink Sink) Sink {
	prev := b.sink
	if sink == nil {
		sink = Discard
	}
	b.sink = sink
	return prev
}

// Touch writes every slot once so the pages are resident before timing.
func (b *Buffer) Touch() {
	for i := range b.slots {
		b.slots[i] = Record{Gap: prefaultValue}
	}
}

// Raw returns the slots written since the last drain. The slice aliases
// the buffer and is only valid until the next Append.
func (b *Buffer) Raw() []Record {
	return b.slots[:b.cursor]
}

// Append records a spike of magnitude that happened gap microseconds after
// the previous one. When the cursor reaches capacity-3 the buffer drains
// synchronously, and the drain error (if any) is returned.
func (b *Buffer) Append(gap, magnitude uint64) error {
	b.cursor += Encode(b.slots[b.cursor:], gap, magnitude)
	if b.cursor >= b.flushAt {
		return b.Drain()
	}
	return nil
}

// Drain decodes every pending record in order, advances the cumulative
// clock, hands one Event per logical record to the sink and empties the
// buffer.
func (b *Buffer) Drain() error {
	pending := b.slots[:b.cursor]
	for i := 0; i < len(pending); {
		gap, magnitude, n, err := Decode(pending[i:])
		if err != nil {
			b.cursor = 0
			return fmt.Errorf("slot %d: %w", i, err)
		}
		b.sink.Spike(Event{
			Elapsed:   b.clock.Advance(gap),
			Magnitude: magnitude,
			Gap:       gap,
		})
		i += n
	}
	b.cursor = 0
	b.drains++
	return b.sink.Flush()
}

// Reset empties the buffer without draining it. Pending records are lost
// and the cumulative clock is left untouched.
func (b *Buffer) Reset() {
	b.cursor = 0
}
