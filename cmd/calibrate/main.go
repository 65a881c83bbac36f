// calibrate measures how long one read of each time source takes on this
// machine and how many cycle-counter ticks make up a microsecond.
// Usage: go run ./cmd/calibrate [-d 500ms] [-n 1000000]
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/cbrunnkvist/jittertest/internal/clock"
)

type stats struct {
	count    int
	min, max uint64
	sum      uint64
}

func (s *stats) add(d uint64) {
	if s.count == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
	s.sum += d
	s.count++
}

func (s stats) avg() float64 {
	if s.count == 0 {
		return 0
	}
	return float64(s.sum) / float64(s.count)
}

func main() {
	dur := flag.DurationP("duration", "d", 500*time.Millisecond, "Calibration window for the cycle counter")
	n := flag.IntP("reads", "n", 1_000_000, "Back-to-back reads per source")
	flag.Parse()

	runtime.LockOSThread()

	for _, name := range clock.WallSources {
		w, err := clock.NewWall(name)
		if errors.Is(err, clock.ErrUnsupported) {
			fmt.Printf("%-8s not supported here\n", name)
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		s, elapsed, err := wallStats(w, *n)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%-8s %d reads in %v (%.1f ns/read) | usec deltas Min: %d | Max: %d | Avg: %.4f\n",
			name, s.count, elapsed, float64(elapsed.Nanoseconds())/float64(s.count), s.min, s.max, s.avg())
	}

	c := clock.TSC{}
	fast := counterStats(c.Read, *n)
	serial := counterStats(c.ReadSerialized, *n)
	fmt.Printf("%-8s plain      | tick deltas Min: %d | Max: %d | Avg: %.1f\n", c.Name(), fast.min, fast.max, fast.avg())
	fmt.Printf("%-8s serialized | tick deltas Min: %d | Max: %d | Avg: %.1f\n", c.Name(), serial.min, serial.max, serial.avg())
	fmt.Printf("%-8s prime floor (1024 serialized pairs): %d\n", c.Name(), clock.MinReadDelta(c, 1024))

	perUsec := clock.CalibrateCycles(c, *dur)
	fmt.Printf("\n%.1f ticks per usec over %v\n", perUsec, *dur)
	fmt.Printf("A 10 usec threshold is about -m cycles -t %d\n", uint64(perUsec*10+0.5))
}

func wallStats(w clock.Wall, n int) (stats, time.Duration, error) {
	var s stats
	start := time.Now()
	prev, err := w.Now()
	if err != nil {
		return s, 0, err
	}
	for i := 0; i < n; i++ {
		cur, err := w.Now()
		if err != nil {
			return s, 0, err
		}
		s.add(cur - prev)
		prev = cur
	}
	return s, time.Since(start), nil
}

func counterStats(read func() uint64, n int) stats {
	var s stats
	prev := read()
	for i := 0; i < n; i++ {
		cur := read()
		s.add(cur - prev)
		prev = cur
	}
	return s
}
