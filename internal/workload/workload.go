// Package workload provides optional CPU-bound work that runs between
// counter reads to hold the core in a busy thermal and power state.
package workload

import "fmt"

// Workload is one unit of work executed per loop iteration.
type Workload interface {
	Step()
}

// Names accepted by New.
const (
	None     = "none"
	PowerHog = "power_hog"
)

// New returns the workload registered under name. "none" returns nil.
func New(name string) (Workload, error) {
	switch name {
	case "", None:
		return nil, nil
	case PowerHog:
		return NewHog(), nil
	default:
		return nil, fmt.Errorf("unknown workload %q", name)
	}
}

// Seed values keep the accumulators finite for billions of iterations:
// every product is 1.0.
const (
	hogSeed    = 2.2360679774997896
	hogInverse = 1.0 / hogSeed
)

// Hog keeps the floating-point units busy with a 4x4 multiply-accumulate
// per step. The loops have constant bounds so the compiler can unroll them.
type Hog struct {
	a   [4][4]float64
	b   [4]float64
	acc [4][4]float64
}

// NewHog returns a seeded power hog.
func NewHog() *Hog {
	h := &Hog{}
	for i := range h.a {
		for j := range h.a[i] {
			h.a[i][j] = hogSeed
			h.acc[i][j] = hogSeed
		}
		h.b[i] = hogInverse
	}
	return h
}

// Step runs one multiply-accumulate round.
func (h *Hog) Step() {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			h.acc[i][j] += h.a[i][j] * h.b[j]
		}
	}
}

// Sum returns the sum of the accumulators so callers can keep the work
// observable.
func (h *Hog) Sum() float64 {
	var s float64
	for i := range h.acc {
		for j := range h.acc[i] {
			s += h.acc[i][j]
		}
	}
	return s
}
