package sampler

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"github.com/cbrunnkvist/jittertest/internal/clock"
	"github.com/cbrunnkvist/jittertest/internal/spike"
	"github.com/cbrunnkvist/jittertest/internal/workload"
)

// Trace throttling for the spike path at the most verbose level.
const (
	traceBurst    = 16
	traceInterval = time.Second
)

// Params configures one pass of the loop.
type Params struct {
	Loopcount uint64
	Threshold uint64
	// Workload, if set, runs once per iteration before the sample.
	Workload workload.Workload
}

// Result summarizes one pass.
type Result struct {
	Method     string
	Unit       string
	Iterations uint64
	Spikes     uint64
	Overhead   Overhead
	minSpike   uint64
	haveMin    bool
}

// MinSpike returns the smallest non-spike delta, and false if no minimum
// was observed. The zero Result has none.
func (r Result) MinSpike() (uint64, bool) {
	return r.minSpike, r.haveMin
}

// Session owns everything a measurement run mutates: the method, the spike
// buffer (and through it the cumulative clock) and the logger. It is not
// safe for concurrent use.
type Session struct {
	Method Method
	Buffer *spike.Buffer

	log     *log.Logger
	tracing bool
	trace   rate.Sometimes
	warmup  Result
}

var quiet = &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}

// NewSession ties a method to a buffer. A nil logger discards diagnostics.
func NewSession(m Method, buf *spike.Buffer, logger *log.Logger) (*Session, error) {
	if m == nil {
		return nil, errors.New("sampler: nil method")
	}
	if buf == nil {
		return nil, errors.New("sampler: nil spike buffer")
	}
	if logger == nil {
		logger = quiet
	}
	return &Session{
		Method:  m,
		Buffer:  buf,
		log:     logger,
		tracing: logger.Level <= log.TraceLevel,
		trace:   rate.Sometimes{First: traceBurst, Interval: traceInterval},
	}, nil
}

// Pass runs the loop once with p. Spikes go to the session's buffer, which
// drains on its own when full; the caller drains what is left.
//
// A failed or non-monotonic time read stops the pass with an error: the
// sample it would have produced is undefined, and recording it would
// corrupt every later gap.
func (s *Session) Pass(p Params) (Result, error) {
	m := s.Method
	res := Result{Method: m.Name(), Unit: m.Unit(), minSpike: m.Prime()}
	res.haveMin = res.minSpike != noMinimum

	lastSpike, prev, err := m.Start()
	if err != nil {
		return res, fmt.Errorf("start: %w", err)
	}

	w := p.Workload
	for i := uint64(0); i < p.Loopcount; i++ {
		if w != nil {
			w.Step()
		}
		cur, err := m.Sample()
		if err != nil {
			return res, fmt.Errorf("iteration %d: %w", i, err)
		}
		if cur < prev {
			return res, fmt.Errorf("iteration %d: %w", i, clock.ErrNonMonotonic)
		}
		res.Iterations++

		delta := cur - prev
		if delta < p.Threshold {
			if delta < res.minSpike {
				res.minSpike = delta
				res.haveMin = true
			}
			prev = cur
			continue
		}

		// Spike path: everything from here to the settle read is overhead.
		now, err := m.SpikeTime(cur)
		if err != nil {
			return res, fmt.Errorf("iteration %d: %w", i, err)
		}
		if now < lastSpike {
			return res, fmt.Errorf("iteration %d: spike time: %w", i, clock.ErrNonMonotonic)
		}
		gap := now - lastSpike
		magnitude := m.Magnitude(delta)
		if err := s.Buffer.Append(gap, magnitude); err != nil {
			return res, fmt.Errorf("iteration %d: drain: %w", i, err)
		}
		lastSpike = now
		res.Spikes++
		if s.tracing {
			s.traceSpike(gap, magnitude)
		}

		post, err := m.Settle()
		if err != nil {
			return res, fmt.Errorf("iteration %d: settle: %w", i, err)
		}
		res.Overhead.Add(cur, post)
		prev = post
	}
	return res, nil
}

func (s *Session) traceSpike(gap, magnitude uint64) {
	s.trace.Do(func() {
		s.log.Trace().
			Uint64("gap", gap).
			Uint64("spike", magnitude).
			Int("slots", s.Buffer.Len()).
			Msg("spike recorded")
	})
}
