package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/cbrunnkvist/jittertest/internal/report"
	"github.com/cbrunnkvist/jittertest/internal/sampler"
)

// profiles defines preset measurements. Explicit flags override them; -o
// options add to them.
var profiles = map[string]Config{
	// Short sanity run: about two seconds on current hardware.
	"quick": {
		Method:    sampler.MethodTime,
		Loopcount: 100_000_000,
	},

	// The defaults, spelled out.
	"default": {
		Method:    sampler.MethodTime,
		Threshold: sampler.DefaultTimeThreshold,
		Loopcount: sampler.DefaultLoopcount,
	},

	// Long soak on the wall clock, dated, CSV for later analysis.
	"soak": {
		Method:    sampler.MethodTime,
		Loopcount: 200_000_000_000,
		Format:    report.CSV,
		Date:      true,
		Overhead:  true,
	},

	// Cycle counter with SMI counts before and after.
	"smi": {
		Method:   sampler.MethodCycles,
		SMICount: true,
		Date:     true,
		Overhead: true,
	},

	// Cycle counter with the floating-point workload between reads.
	"hog": {
		Method:   sampler.MethodCycles,
		PowerHog: true,
		Overhead: true,
	},
}

var profileDescriptions = map[string]string{
	"quick":   "time method, 1e8 iterations",
	"default": "time method, 10 usec threshold, 5e9 iterations",
	"soak":    "time method, 2e11 iterations, csv with date and overhead",
	"smi":     "cycles method with SMI count, date and overhead",
	"hog":     "cycles method with power_hog workload and overhead",
}

func (c *Config) applyProfile(p Config) {
	if p.Method != "" {
		c.Method = p.Method
	}
	c.Threshold = p.Threshold
	c.Loopcount = p.Loopcount
	c.Format = p.Format
	c.Date = c.Date || p.Date
	c.SMICount = c.SMICount || p.SMICount
	c.PowerHog = c.PowerHog || p.PowerHog
	c.Overhead = c.Overhead || p.Overhead
}

func profileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func printProfiles(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range profileNames() {
		fmt.Fprintf(tw, "%s\t%s\n", name, profileDescriptions[name])
	}
	tw.Flush()
}
