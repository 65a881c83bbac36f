package sched_test

import (
	"io"
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/phuslu/log"

	"github.com/cbrunnkvist/jittertest/internal/sched"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    sched.Policy
		wantErr bool
	}{
		{"FIFO", sched.PolicyFIFO, false},
		{"fi", sched.PolicyFIFO, false},
		{"rr", sched.PolicyRR, false},
		{"o", sched.PolicyOther, false},
		{"other", sched.PolicyOther, false},
		{"", 0, true},
		{"batch", 0, true},
	}
	for _, tt := range tests {
		got, err := sched.ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    sched.Priority
		wantErr bool
	}{
		{"", sched.DefaultPriority(), false},
		{"RR", sched.Priority{Policy: sched.PolicyRR, Max: true, Nice: -20}, false},
		{"FIFO,50", sched.Priority{Policy: sched.PolicyFIFO, Level: 50, Nice: -20}, false},
		{"OTHER,0,5", sched.Priority{Policy: sched.PolicyOther, Level: 0, Nice: 5}, false},
		{",,-5", sched.Priority{Policy: sched.PolicyFIFO, Max: true, Nice: -5}, false},
		{"FIFO,high", sched.Priority{}, true},
		{"FIFO,1,2,3", sched.Priority{}, true},
		{"FIFO,1,x", sched.Priority{}, true},
	}
	for _, tt := range tests {
		got, err := sched.ParsePriority(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePriority(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParsePriority(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestEffectiveClamps(t *testing.T) {
	tests := []struct {
		in   sched.Priority
		want sched.Priority
	}{
		{sched.DefaultPriority(), sched.Priority{Policy: sched.PolicyFIFO, Level: 99, Nice: -20}},
		{sched.Priority{Policy: sched.PolicyRR, Level: 150, Nice: -40}, sched.Priority{Policy: sched.PolicyRR, Level: 99, Nice: -20}},
		{sched.Priority{Policy: sched.PolicyFIFO, Level: 0, Nice: 25}, sched.Priority{Policy: sched.PolicyFIFO, Level: 1, Nice: 19}},
		{sched.Priority{Policy: sched.PolicyOther, Level: 10, Nice: 0}, sched.Priority{Policy: sched.PolicyOther, Level: 0, Nice: 0}},
	}
	for _, tt := range tests {
		if got := tt.in.Effective(); got != tt.want {
			t.Errorf("%+v.Effective() = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestPolicyString(t *testing.T) {
	if sched.PolicyRR.String() != "RR" {
		t.Errorf("PolicyRR.String() = %q", sched.PolicyRR.String())
	}
	if got := sched.Policy(7).String(); got != "Policy(7)" {
		t.Errorf("Policy(7).String() = %q", got)
	}
	if got := sched.DefaultPriority().String(); got != "FIFO,max,-20" {
		t.Errorf("DefaultPriority().String() = %q", got)
	}
}

func TestQuiesceGC(t *testing.T) {
	prev := debug.SetGCPercent(150)
	defer debug.SetGCPercent(prev)

	restore := sched.QuiesceGC()
	if got := debug.SetGCPercent(-1); got != -1 {
		t.Errorf("GC percent while quiesced = %d, want -1", got)
	}
	restore()
	if got := debug.SetGCPercent(150); got != 150 {
		t.Errorf("GC percent after restore = %d, want 150", got)
	}
}

func TestPrepareWithoutPrivileges(t *testing.T) {
	// Failures must only be logged; Prepare itself never fails.
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer runtime.UnlockOSThread()
		logger := &log.Logger{Level: log.TraceLevel, Writer: &log.IOWriter{Writer: io.Discard}}
		restore := sched.Prepare(sched.Setup{CPU: 0, QuiesceGC: true}, logger)
		restore()
	}()
	<-done
}

func TestCurrent(t *testing.T) {
	cur, err := sched.Current()
	if err == sched.ErrUnsupported {
		t.Skip("not supported on this platform")
	}
	if err != nil {
		t.Fatalf("Current() failed: %v", err)
	}
	if cur.Nice < sched.NiceMin || cur.Nice > sched.NiceMax {
		t.Errorf("nice %d out of range", cur.Nice)
	}
}
