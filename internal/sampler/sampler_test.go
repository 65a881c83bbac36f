package sampler_test

import (
	"errors"
	"testing"

	"github.com/cbrunnkvist/jittertest/internal/clock"
	"github.com/cbrunnkvist/jittertest/internal/sampler"
	"github.com/cbrunnkvist/jittertest/internal/spike"
)

// scriptedWall replays readings in order and then keeps ticking by one.
type scriptedWall struct {
	readings []uint64
	calls    int
	failAt   int // 1-based call that fails; 0 never fails
}

func (w *scriptedWall) Now() (uint64, error) {
	w.calls++
	if w.failAt != 0 && w.calls == w.failAt {
		return 0, &clock.TimeSourceError{Op: "scripted", Err: errors.New("device gone")}
	}
	if w.calls <= len(w.readings) {
		return w.readings[w.calls-1], nil
	}
	last := uint64(0)
	if len(w.readings) > 0 {
		last = w.readings[len(w.readings)-1]
	}
	return last + uint64(w.calls-len(w.readings)), nil
}

func (w *scriptedWall) Name() string { return "scripted" }

// tickingWall advances by step on every read.
type tickingWall struct {
	now, step uint64
}

func (w *tickingWall) Now() (uint64, error) {
	w.now += w.step
	return w.now, nil
}

func (w *tickingWall) Name() string { return "ticking" }

type steppingCounter struct {
	now, step uint64
}

func (c *steppingCounter) Read() uint64 {
	c.now += c.step
	return c.now
}

func (c *steppingCounter) ReadSerialized() uint64 { return c.Read() }
func (c *steppingCounter) Name() string           { return "stepping" }

func newSession(t *testing.T, m sampler.Method, capacity int, sink spike.Sink) *sampler.Session {
	t.Helper()
	buf, err := spike.NewBuffer(capacity, nil, sink)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}
	s, err := sampler.NewSession(m, buf, nil)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return s
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"time", sampler.MethodTime, false},
		{"t", sampler.MethodTime, false},
		{"TI", sampler.MethodTime, false},
		{"c", sampler.MethodCycles, false},
		{"cycles", sampler.MethodCycles, false},
		{"", "", true},
		{"x", "", true},
		{"timex", "", true},
	}
	for _, tt := range tests {
		got, err := sampler.ParseMethod(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMethod(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMethod(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaults(t *testing.T) {
	if got := sampler.DefaultThreshold(sampler.MethodTime); got != 10 {
		t.Errorf("time threshold = %d, want 10", got)
	}
	if got := sampler.DefaultThreshold(sampler.MethodCycles); got != 10_000 {
		t.Errorf("cycle threshold = %d, want 10000", got)
	}
	if sampler.UnitOf(sampler.MethodTime) != "usec" || sampler.UnitOf(sampler.MethodCycles) != "cycle" {
		t.Error("unexpected units")
	}
}

func TestPassClassifiesDeltas(t *testing.T) {
	// Deltas 50, 30, 9, 40 against a threshold of 35: two spikes, and the
	// smallest non-spike delta is 9.
	wall := &scriptedWall{readings: []uint64{1000, 1050, 1050, 1080, 1089, 1129, 1129}}
	sink := &spike.Collector{}
	s := newSession(t, &sampler.TimeMethod{Wall: wall}, 64, sink)

	res, err := s.Pass(sampler.Params{Loopcount: 4, Threshold: 35})
	if err != nil {
		t.Fatalf("Pass failed: %v", err)
	}
	if res.Iterations != 4 {
		t.Errorf("Iterations = %d, want 4", res.Iterations)
	}
	if res.Spikes != 2 {
		t.Errorf("Spikes = %d, want 2", res.Spikes)
	}
	if lo, ok := res.MinSpike(); !ok || lo != 9 {
		t.Errorf("MinSpike() = %d, %v; want 9, true", lo, ok)
	}
	if res.Overhead.Total() != 0 {
		t.Errorf("Overhead = %d, want 0", res.Overhead.Total())
	}

	if err := s.Buffer.Drain(); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	want := []spike.Event{
		{Elapsed: 50, Magnitude: 50, Gap: 50},
		{Elapsed: 129, Magnitude: 40, Gap: 79},
	}
	if len(sink.Events) != len(want) {
		t.Fatalf("got %d events, want %d", len(sink.Events), len(want))
	}
	for i, e := range sink.Events {
		if e != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, e, want[i])
		}
	}
}

func TestPassAllSpikesHasNoMinimum(t *testing.T) {
	s := newSession(t, &sampler.TimeMethod{Wall: &tickingWall{step: 5}}, 64, nil)
	res, err := s.Pass(sampler.Params{Loopcount: 10, Threshold: 0})
	if err != nil {
		t.Fatalf("Pass failed: %v", err)
	}
	if res.Spikes != 10 {
		t.Errorf("Spikes = %d, want 10", res.Spikes)
	}
	if _, ok := res.MinSpike(); ok {
		t.Error("MinSpike() reported a minimum although every delta was a spike")
	}
}

func TestPassZeroDeltaIsNotASpike(t *testing.T) {
	// Two reads inside the same microsecond.
	wall := &scriptedWall{readings: []uint64{100, 100, 105}}
	s := newSession(t, &sampler.TimeMethod{Wall: wall}, 64, nil)
	res, err := s.Pass(sampler.Params{Loopcount: 2, Threshold: 10})
	if err != nil {
		t.Fatalf("Pass failed: %v", err)
	}
	if res.Spikes != 0 {
		t.Errorf("Spikes = %d, want 0", res.Spikes)
	}
	if lo, ok := res.MinSpike(); !ok || lo != 0 {
		t.Errorf("MinSpike() = %d, %v; want 0, true", lo, ok)
	}
	if s.Buffer.Len() != 0 {
		t.Errorf("buffer holds %d slots", s.Buffer.Len())
	}
}

func TestPassOverhead(t *testing.T) {
	// Spike at 100, settle at 130: 30 usec of handling cost.
	wall := &scriptedWall{readings: []uint64{0, 100, 130, 135}}
	s := newSession(t, &sampler.TimeMethod{Wall: wall}, 64, nil)
	res, err := s.Pass(sampler.Params{Loopcount: 2, Threshold: 50})
	if err != nil {
		t.Fatalf("Pass failed: %v", err)
	}
	if got := res.Overhead.Total(); got != 30 {
		t.Errorf("Overhead.Total() = %d, want 30", got)
	}
	if got := res.Overhead.Events(); got != 1 {
		t.Errorf("Overhead.Events() = %d, want 1", got)
	}
	if lo, _ := res.MinSpike(); lo != 5 {
		t.Errorf("MinSpike() = %d, want 5", lo)
	}
}

func TestPassTimeSourceErrorIsFatal(t *testing.T) {
	wall := &scriptedWall{readings: []uint64{0, 1, 2, 3}, failAt: 3}
	s := newSession(t, &sampler.TimeMethod{Wall: wall}, 64, nil)
	res, err := s.Pass(sampler.Params{Loopcount: 100, Threshold: 10})
	if err == nil {
		t.Fatal("expected error from failing time source")
	}
	var tse *clock.TimeSourceError
	if !errors.As(err, &tse) {
		t.Errorf("error %v does not wrap TimeSourceError", err)
	}
	if res.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", res.Iterations)
	}
}

func TestPassNonMonotonic(t *testing.T) {
	wall := &scriptedWall{readings: []uint64{100, 110, 90}}
	s := newSession(t, &sampler.TimeMethod{Wall: wall}, 64, nil)
	_, err := s.Pass(sampler.Params{Loopcount: 5, Threshold: 1000})
	if !errors.Is(err, clock.ErrNonMonotonic) {
		t.Fatalf("Pass error = %v, want ErrNonMonotonic", err)
	}
}

func TestCycleMethodPrime(t *testing.T) {
	m := &sampler.CycleMethod{
		Wall:       &tickingWall{step: 1},
		Counter:    &steppingCounter{step: 3},
		PrimeReads: 8,
	}
	if got := m.Prime(); got != 3 {
		t.Errorf("Prime() = %d, want 3", got)
	}
}

func TestCyclePassUsesWallForGaps(t *testing.T) {
	wall := &tickingWall{now: 1000, step: 7}
	m := &sampler.CycleMethod{
		Wall:       wall,
		Counter:    &steppingCounter{step: 20_000},
		PrimeReads: 4,
	}
	sink := &spike.Collector{}
	s := newSession(t, m, 64, sink)

	res, err := s.Pass(sampler.Params{Loopcount: 3, Threshold: 10_000})
	if err != nil {
		t.Fatalf("Pass failed: %v", err)
	}
	if res.Spikes != 3 {
		t.Fatalf("Spikes = %d, want 3", res.Spikes)
	}
	// Prime is the only reading the minimum sees when every delta spikes.
	if lo, ok := res.MinSpike(); !ok || lo != 20_000 {
		t.Errorf("MinSpike() = %d, %v; want 20000, true", lo, ok)
	}
	if err := s.Buffer.Drain(); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	for i, e := range sink.Events {
		if e.Gap != 7 {
			t.Errorf("event %d gap = %d, want 7", i, e.Gap)
		}
		if e.Magnitude != 20_000 {
			t.Errorf("event %d magnitude = %d, want 20000", i, e.Magnitude)
		}
	}
	if res.Unit != "cycle" {
		t.Errorf("Unit = %q, want cycle", res.Unit)
	}
}

func TestRunDiscardsWarmup(t *testing.T) {
	sink := &spike.Collector{}
	s := newSession(t, &sampler.TimeMethod{Wall: &tickingWall{step: 1}}, 8, sink)

	res, err := s.Run(sampler.Params{Loopcount: 20, Threshold: 1000})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(sink.Events) != 0 {
		t.Errorf("warm-up leaked %d events into the measurement sink", len(sink.Events))
	}
	if res.Spikes != 0 || res.Iterations != 20 {
		t.Errorf("measurement result = %+v", res)
	}
	warm := s.Warmup()
	if warm.Iterations != 8 || warm.Spikes != 8 {
		t.Errorf("warm-up result: %d iterations, %d spikes; want 8, 8", warm.Iterations, warm.Spikes)
	}
	if s.Buffer.Len() != 0 {
		t.Errorf("buffer holds %d slots after Run", s.Buffer.Len())
	}
	// One warm-up drain of 5 records (gaps 1, 2, 2, 2, 2) advanced the
	// clock; the 3 leftovers did not.
	if got := s.Buffer.Clock().Elapsed(); got != 9 {
		t.Errorf("cumulative clock = %d, want 9", got)
	}
}

func TestRunIsolatesWarmupCounters(t *testing.T) {
	s := newSession(t, &sampler.TimeMethod{Wall: &tickingWall{step: 3}}, 8, nil)

	res, err := s.Run(sampler.Params{Loopcount: 20, Threshold: 1000})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	warm := s.Warmup()
	// Every warm-up delta spikes and each settle read costs one step.
	if got := warm.Overhead.Total(); got != 24 {
		t.Errorf("warm-up overhead = %d, want 24", got)
	}
	if _, ok := warm.MinSpike(); ok {
		t.Error("warm-up reported a minimum although every delta spiked")
	}
	if got := res.Overhead.Total(); got != 0 {
		t.Errorf("measurement overhead = %d, want 0", got)
	}
	if got := res.Overhead.Events(); got != 0 {
		t.Errorf("measurement overhead events = %d, want 0", got)
	}
	if lo, ok := res.MinSpike(); !ok || lo != 3 {
		t.Errorf("measurement MinSpike() = %d, %v; want 3, true", lo, ok)
	}
}

func TestRunDrainsLeftovers(t *testing.T) {
	sink := &spike.Collector{}
	s := newSession(t, &sampler.TimeMethod{Wall: &tickingWall{step: 2}}, 64, sink)

	res, err := s.Run(sampler.Params{Loopcount: 5, Threshold: 0})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Spikes != 5 {
		t.Fatalf("Spikes = %d, want 5", res.Spikes)
	}
	if len(sink.Events) != 5 {
		t.Fatalf("sink got %d events, want 5", len(sink.Events))
	}
	if sink.Flushes != 1 {
		t.Errorf("Flushes = %d, want 1", sink.Flushes)
	}
	for i := 1; i < len(sink.Events); i++ {
		if sink.Events[i].Elapsed <= sink.Events[i-1].Elapsed {
			t.Errorf("elapsed not increasing at event %d", i)
		}
	}
}

func TestRunStartsFromEmptyBuffer(t *testing.T) {
	rec := &startRecorder{Method: &sampler.TimeMethod{Wall: &tickingWall{step: 1}}}
	s := newSession(t, rec, 16, nil)
	rec.buf = s.Buffer

	if _, err := s.Run(sampler.Params{Loopcount: 3, Threshold: 1000}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(rec.lens) != 2 {
		t.Fatalf("Start called %d times, want 2", len(rec.lens))
	}
	if rec.lens[1] != 0 {
		t.Errorf("measurement pass started with %d slots pending", rec.lens[1])
	}
}

func TestRunWrapsPassErrors(t *testing.T) {
	wall := &scriptedWall{failAt: 2}
	s := newSession(t, &sampler.TimeMethod{Wall: wall}, 8, nil)
	_, err := s.Run(sampler.Params{Loopcount: 3, Threshold: 10})
	if err == nil {
		t.Fatal("expected error")
	}
	var tse *clock.TimeSourceError
	if !errors.As(err, &tse) {
		t.Errorf("error %v does not wrap TimeSourceError", err)
	}
}

func TestFailedRunHasNoMinimum(t *testing.T) {
	wall := &scriptedWall{failAt: 2}
	s := newSession(t, &sampler.TimeMethod{Wall: wall}, 8, nil)
	res, err := s.Run(sampler.Params{Loopcount: 3, Threshold: 10})
	if err == nil {
		t.Fatal("expected error")
	}
	if lo, ok := res.MinSpike(); ok {
		t.Errorf("MinSpike() = %d, true after a failed warm-up", lo)
	}

	var zero sampler.Result
	if _, ok := zero.MinSpike(); ok {
		t.Error("zero Result reports a minimum")
	}
}

func TestNewSessionRejectsNil(t *testing.T) {
	buf, _ := spike.NewBuffer(8, nil, nil)
	if _, err := sampler.NewSession(nil, buf, nil); err == nil {
		t.Error("expected error for nil method")
	}
	if _, err := sampler.NewSession(&sampler.TimeMethod{}, nil, nil); err == nil {
		t.Error("expected error for nil buffer")
	}
}

// startRecorder records how many slots are pending each time a pass starts.
type startRecorder struct {
	sampler.Method
	buf  *spike.Buffer
	lens []int
}

func (p *startRecorder) Start() (uint64, uint64, error) {
	p.lens = append(p.lens, p.buf.Len())
	return p.Method.Start()
}

func TestOverheadMean(t *testing.T) {
	var o sampler.Overhead
	if o.Mean() != 0 {
		t.Error("Mean of empty accumulator should be 0")
	}
	o.Add(10, 20)
	o.Add(100, 130)
	o.Add(50, 40) // backwards interval counts as zero cost
	if o.Total() != 40 || o.Events() != 3 || o.Mean() != 13 {
		t.Errorf("Total=%d Events=%d Mean=%d", o.Total(), o.Events(), o.Mean())
	}
	if got := o.Stamp().String(); got != "0.000040" {
		t.Errorf("Stamp() = %q", got)
	}
	o.Reset()
	if o.Total() != 0 || o.Events() != 0 {
		t.Error("Reset did not clear")
	}
}

var sinkResult sampler.Result

func BenchmarkPassTime(b *testing.B) {
	wall, err := clock.NewWall(clock.WallVDSO)
	if err != nil {
		b.Fatal(err)
	}
	buf, _ := spike.NewBuffer(spike.DefaultCapacity, nil, nil)
	s, _ := sampler.NewSession(&sampler.TimeMethod{Wall: wall}, buf, nil)
	b.ReportAllocs()
	b.ResetTimer()
	res, err := s.Pass(sampler.Params{Loopcount: uint64(b.N), Threshold: sampler.DefaultTimeThreshold})
	if err != nil {
		b.Fatal(err)
	}
	sinkResult = res
}
