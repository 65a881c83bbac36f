// Package spike stores detected latency spikes in a fixed-size buffer of
// 32-bit record pairs and decodes them into reportable events.
//
// Gaps that do not fit in 32 bits travel as a three-slot escape sequence:
//
//	slot 0: {Gap: 0, Magnitude: 0}              escape marker
//	slot 1: {Gap: low 32 bits, Magnitude: high 32 bits of the gap}
//	slot 2: {Gap: Sentinel, Magnitude: magnitude}
//
// so every record keeps its compact width and only the rare wide gap pays
// for two extra slots.
package spike

import (
	"errors"
	"math"
)

// Sentinel fills the unused gap field of the last escape slot. Decoders
// ignore it; it only makes raw buffer dumps easier to read.
const Sentinel uint32 = 0xDEADDEAD

// EscapeSlots is the number of slots a wide-gap record occupies.
const EscapeSlots = 3

// ErrTruncated is returned when an escape marker is not followed by its
// two continuation slots.
var ErrTruncated = errors.New("spike: truncated escape sequence")

// Record is one physical buffer slot.
type Record struct {
	Gap       uint32 // usec since the previous recorded spike
	Magnitude uint32 // spike size in the method's unit
}

// IsEscape reports whether r marks the start of a wide-gap sequence.
func (r Record) IsEscape() bool {
	return r.Gap == 0 && r.Magnitude == 0
}

// Ordinary is a spike whose gap fits in one slot.
type Ordinary struct {
	Gap       uint32
	Magnitude uint32
}

// Slots returns the number of physical slots the record occupies.
func (Ordinary) Slots() int { return 1 }

// Put writes the record into dst and returns the slots used.
func (o Ordinary) Put(dst []Record) int {
	dst[0] = Record{Gap: o.Gap, Magnitude: o.Magnitude}
	return 1
}

// WideGap is a spike whose gap needs the escape sequence.
type WideGap struct {
	Gap       uint64
	Magnitude uint32
}

// Slots returns the number of physical slots the record occupies.
func (WideGap) Slots() int { return EscapeSlots }

// Put writes the escape sequence into dst and returns the slots used.
func (w WideGap) Put(dst []Record) int {
	_ = dst[2]
	dst[0] = Record{}
	dst[1] = Record{Gap: uint32(w.Gap), Magnitude: uint32(w.Gap >> 32)}
	dst[2] = Record{Gap: Sentinel, Magnitude: w.Magnitude}
	return EscapeSlots
}

// clampMagnitude saturates a magnitude at the width of the record field.
func clampMagnitude(m uint64) uint32 {
	if m > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(m)
}

// SlotsFor returns how many slots Encode will use for the pair.
func SlotsFor(gap, magnitude uint64) int {
	if needsEscape(gap, magnitude) {
		return EscapeSlots
	}
	return 1
}

// needsEscape is true for gaps wider than 32 bits and for the pair (0, 0),
// which would otherwise be read back as an escape marker.
func needsEscape(gap, magnitude uint64) bool {
	return gap > math.MaxUint32 || (gap == 0 && magnitude == 0)
}

// Encode writes the pair into dst using the narrowest form and returns
// the number of slots used. Magnitudes above 32 bits saturate.
func Encode(dst []Record, gap, magnitude uint64) int {
	m := clampMagnitude(magnitude)
	if needsEscape(gap, magnitude) {
		return WideGap{Gap: gap, Magnitude: m}.Put(dst)
	}
	return Ordinary{Gap: uint32(gap), Magnitude: m}.Put(dst)
}

// Decode reads the logical record at the start of src and returns it along
// with the number of slots consumed.
func Decode(src []Record) (gap, magnitude uint64, n int, err error) {
	if len(src) == 0 {
		return 0, 0, 0, ErrTruncated
	}
	if !src[0].IsEscape() {
		return uint64(src[0].Gap), uint64(src[0].Magnitude), 1, nil
	}
	if len(src) < EscapeSlots {
		return 0, 0, 0, ErrTruncated
	}
	gap = uint64(src[1].Gap) | uint64(src[1].Magnitude)<<32
	return gap, uint64(src[2].Magnitude), EscapeSlots, nil
}
