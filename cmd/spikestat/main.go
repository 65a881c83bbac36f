package main

// spikestat - summarize a saved jittertest report
//
// Usage:
//   1. Save a report:
//      jittertest -f csv -l 1000000000 > run.csv
//
//   2. Summarize it:
//      go run ./cmd/spikestat run.csv
//      jittertest -f json | go run ./cmd/spikestat -
//
// CSV, JSON lines and XML reports are recognized.

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sugawarayuuta/sonnet"
)

// sample is one spike line of a report.
type sample struct {
	elapsed string
	spike   uint64
	gap     uint64
	hasGap  bool
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: spikestat <report-file|->")
		fmt.Println("")
		fmt.Println("Save a report first:")
		fmt.Println("  jittertest -f csv > run.csv")
		fmt.Println("")
		fmt.Println("Then summarize:")
		fmt.Println("  spikestat run.csv")
		os.Exit(1)
	}

	var (
		data []byte
		err  error
	)
	filename := os.Args[1]
	if filename == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(filename)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading report: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Analyzing: %s (%d bytes)\n\n", filename, len(data))

	var samples []sample
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.HasPrefix(trimmed, []byte("<?xml")):
		fmt.Println("Detected: XML report")
		samples, err = parseXML(data)
	case bytes.HasPrefix(trimmed, []byte("{")):
		fmt.Println("Detected: JSON lines report")
		samples, err = parseJSON(data)
	default:
		fmt.Println("Detected: CSV report")
		samples, err = parseCSV(data)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("")
	printAnalysis(os.Stdout, samples)
}

func parseCSV(data []byte) ([]sample, error) {
	var out []sample
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Split(strings.TrimSpace(scanner.Text()), ",")
		if len(fields) < 2 || len(fields) > 3 {
			continue
		}
		// Spike lines start with seconds.micros; headers and summaries
		// start with a word.
		elapsed := fields[0]
		if _, err := strconv.ParseFloat(elapsed, 64); err != nil {
			continue
		}
		s := sample{elapsed: elapsed}
		var err error
		if s.spike, err = strconv.ParseUint(fields[1], 10, 64); err != nil {
			return nil, fmt.Errorf("line %d: spike: %w", line, err)
		}
		if len(fields) == 3 {
			if s.gap, err = strconv.ParseUint(fields[2], 10, 64); err != nil {
				return nil, fmt.Errorf("line %d: delta: %w", line, err)
			}
			s.hasGap = true
		}
		out = append(out, s)
	}
	return out, scanner.Err()
}

func parseJSON(data []byte) ([]sample, error) {
	var out []sample
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		var rec struct {
			Type    string  `json:"type"`
			Elapsed string  `json:"elapsed"`
			Spike   uint64  `json:"spike"`
			Delta   *uint64 `json:"delta"`
		}
		if err := sonnet.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.Type != "spike" {
			continue
		}
		s := sample{elapsed: rec.Elapsed, spike: rec.Spike}
		if rec.Delta != nil {
			s.gap, s.hasGap = *rec.Delta, true
		}
		out = append(out, s)
	}
	return out, scanner.Err()
}

func parseXML(data []byte) ([]sample, error) {
	var doc struct {
		Data struct {
			Datum []struct {
				Elapsed string  `xml:"elapsed"`
				Spike   uint64  `xml:"spike"`
				Delta   *uint64 `xml:"delta"`
			} `xml:"datum"`
		} `xml:"data"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make([]sample, 0, len(doc.Data.Datum))
	for _, d := range doc.Data.Datum {
		s := sample{elapsed: d.Elapsed, spike: d.Spike}
		if d.Delta != nil {
			s.gap, s.hasGap = *d.Delta, true
		}
		out = append(out, s)
	}
	return out, nil
}

func printAnalysis(w io.Writer, samples []sample) {
	if len(samples) == 0 {
		fmt.Fprintln(w, "No spikes found")
		return
	}

	fmt.Fprintf(w, "Found %d spikes\n\n", len(samples))

	spikes := make([]uint64, len(samples))
	var gaps []uint64
	for i, s := range samples {
		spikes[i] = s.spike
		if s.hasGap {
			gaps = append(gaps, s.gap)
		}
	}

	// Largest spikes first
	fmt.Fprintln(w, "Largest spikes:")
	fmt.Fprintln(w, "===============")
	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return samples[order[a]].spike > samples[order[b]].spike })
	for _, i := range order[:min(10, len(order))] {
		fmt.Fprintf(w, "  %12s: %d\n", samples[i].elapsed, samples[i].spike)
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Spike Statistics:")
	fmt.Fprintln(w, "=================")
	printDist(w, "spike", spikes)

	if len(gaps) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Gap Statistics (usec):")
		fmt.Fprintln(w, "======================")
		printDist(w, "gap", gaps)
	}
}

func printDist(w io.Writer, label string, v []uint64) {
	sorted := append([]uint64(nil), v...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })
	var sum float64
	for _, x := range sorted {
		sum += float64(x)
	}
	fmt.Fprintf(w, "  Count: %d\n", len(sorted))
	fmt.Fprintf(w, "  Min %s: %d\n", label, sorted[0])
	fmt.Fprintf(w, "  Median %s: %d\n", label, percentile(sorted, 50))
	fmt.Fprintf(w, "  p99 %s: %d\n", label, percentile(sorted, 99))
	fmt.Fprintf(w, "  Max %s: %d\n", label, sorted[len(sorted)-1])
	fmt.Fprintf(w, "  Average %s: %.1f\n", label, sum/float64(len(sorted)))
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []uint64, p int) uint64 {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
