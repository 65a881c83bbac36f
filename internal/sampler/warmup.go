package sampler

import (
	"fmt"

	"github.com/cbrunnkvist/jittertest/internal/spike"
)

// Run performs the two-pass protocol and returns the result of the
// measurement pass.
//
// Pass 1 loops Buffer.Cap() times with a zero threshold so every delta is a
// spike: the buffer pages, the encoder and a full drain are all exercised
// before timing starts. Its events go nowhere and its tracing is off.
// Pass 2 starts from an empty buffer with fresh counters and runs p; the
// records left in the buffer at the end are drained to the attached sink.
func (s *Session) Run(p Params) (Result, error) {
	warm := Params{
		Loopcount: uint64(s.Buffer.Cap()),
		Threshold: 0,
		Workload:  p.Workload,
	}

	sink := s.Buffer.Attach(spike.Discard)
	tracing := s.tracing
	s.tracing = false
	res, err := s.Pass(warm)
	s.tracing = tracing
	s.Buffer.Attach(sink)
	if err != nil {
		return Result{}, fmt.Errorf("warm-up pass: %w", err)
	}
	s.warmup = res

	drains := s.Buffer.Drains()
	s.log.Debug().
		Uint64("iterations", res.Iterations).
		Uint64("spikes", res.Spikes).
		Int("drains", drains).
		Int("leftover_slots", s.Buffer.Len()).
		Msg("warm-up pass done")

	s.Buffer.Reset()

	s.log.Debug().
		Str("method", s.Method.Name()).
		Uint64("threshold", p.Threshold).
		Uint64("loopcount", p.Loopcount).
		Msg("measurement pass starting")

	res, err = s.Pass(p)
	if err != nil {
		// Records already in the buffer are complete; hand them over before
		// failing.
		if derr := s.flush(); derr != nil {
			s.log.Error().Err(derr).Msg("drain after failed pass")
		}
		return res, fmt.Errorf("measurement pass: %w", err)
	}
	if err := s.flush(); err != nil {
		return res, fmt.Errorf("final drain: %w", err)
	}

	s.log.Debug().
		Uint64("iterations", res.Iterations).
		Uint64("spikes", res.Spikes).
		Int("drains", s.Buffer.Drains()-drains).
		Msg("measurement pass done")
	return res, nil
}

// Warmup returns the result of the last warm-up pass.
func (s *Session) Warmup() Result { return s.warmup }

func (s *Session) flush() error {
	if s.Buffer.Len() == 0 {
		return nil
	}
	return s.Buffer.Drain()
}
