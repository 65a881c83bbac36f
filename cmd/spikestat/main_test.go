package main

import (
	"bytes"
	"strings"
	"testing"
)

const csvReport = `Elapsed time (seconds),latency spike (usec),delta time (usec)
    0.000118,42
    1.000118,17,1000000
    3.000118,99,2000000
Overhead seconds,0.000010
`

func TestParseCSV(t *testing.T) {
	got, err := parseCSV([]byte(csvReport))
	if err != nil {
		t.Fatalf("parseCSV failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d samples, want 3", len(got))
	}
	if got[0].hasGap || got[0].spike != 42 {
		t.Errorf("first sample = %+v", got[0])
	}
	if !got[2].hasGap || got[2].gap != 2_000_000 || got[2].spike != 99 {
		t.Errorf("third sample = %+v", got[2])
	}
}

func TestParseJSON(t *testing.T) {
	in := `{"type":"header","program":"jittertest"}
{"type":"spike","elapsed":"0.000118","elapsed_usec":118,"spike":42,"unit":"usec"}
{"type":"spike","elapsed":"1.000118","elapsed_usec":1000118,"spike":17,"unit":"usec","delta":1000000}
`
	got, err := parseJSON([]byte(in))
	if err != nil {
		t.Fatalf("parseJSON failed: %v", err)
	}
	if len(got) != 2 || got[1].gap != 1_000_000 || !got[1].hasGap || got[0].hasGap {
		t.Errorf("parseJSON = %+v", got)
	}
}

func TestParseXML(t *testing.T) {
	in := `<?xml version="1.0" encoding="UTF-8"?>
<spike_data>
   <data>
      <datum>
         <elapsed>0.000118</elapsed><spike>42</spike>
      </datum>
      <datum>
         <elapsed>1.000118</elapsed><spike>17</spike><delta>1000000</delta>
      </datum>
   </data>
</spike_data>
`
	got, err := parseXML([]byte(in))
	if err != nil {
		t.Fatalf("parseXML failed: %v", err)
	}
	if len(got) != 2 || got[0].elapsed != "0.000118" || !got[1].hasGap {
		t.Errorf("parseXML = %+v", got)
	}
}

func TestPercentile(t *testing.T) {
	v := []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	for _, tt := range []struct {
		p    int
		want uint64
	}{{50, 5}, {99, 10}, {0, 1}, {100, 10}} {
		if got := percentile(v, tt.p); got != tt.want {
			t.Errorf("percentile(%d) = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestPrintAnalysis(t *testing.T) {
	samples, _ := parseCSV([]byte(csvReport))
	var out bytes.Buffer
	printAnalysis(&out, samples)
	for _, s := range []string{"Found 3 spikes", "Max spike: 99", "Gap Statistics", "Min gap: 1000000"} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("analysis missing %q:\n%s", s, out.String())
		}
	}

	out.Reset()
	printAnalysis(&out, nil)
	if !strings.Contains(out.String(), "No spikes found") {
		t.Errorf("empty analysis = %q", out.String())
	}
}
