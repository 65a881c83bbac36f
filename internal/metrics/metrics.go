// Package metrics exposes a run's spikes as Prometheus metrics, written
// once at exit in the node-exporter textfile format.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cbrunnkvist/jittertest/internal/spike"
)

const namespace = "jittertest"

// GapBuckets covers one microsecond to one hour between spikes.
var GapBuckets = prometheus.ExponentialBucketsRange(1, 3600e6, 16)

// MagnitudeBuckets starts at the threshold and doubles.
func MagnitudeBuckets(threshold uint64) []float64 {
	start := float64(threshold)
	if start < 1 {
		start = 1
	}
	return prometheus.ExponentialBuckets(start, 2, 16)
}

// Collector is a spike.Sink and a prometheus.Collector. Drains feed it,
// the registry reads it. Spike distributions live in ordinary histograms;
// the run summary is exported as const metrics.
type Collector struct {
	mu sync.Mutex

	magnitude prometheus.Histogram
	gap       prometheus.Histogram
	spikes    uint64
	drains    uint64

	iterations uint64
	minSpike   uint64
	haveMin    bool
	overhead   uint64
	smi        map[string]uint64

	spikesDesc     *prometheus.Desc
	drainsDesc     *prometheus.Desc
	iterationsDesc *prometheus.Desc
	minSpikeDesc   *prometheus.Desc
	overheadDesc   *prometheus.Desc
	smiDesc        *prometheus.Desc
}

// NewCollector returns a Collector for one measurement method.
func NewCollector(method, unit string, threshold uint64) *Collector {
	labels := prometheus.Labels{"method": method, "unit": unit}
	return &Collector{
		magnitude: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "spike",
			Name:        "magnitude",
			Help:        "Spike magnitude in the method's unit.",
			ConstLabels: labels,
			Buckets:     MagnitudeBuckets(threshold),
		}),
		gap: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "spike",
			Name:        "gap_microseconds",
			Help:        "Wall-clock time between consecutive spikes.",
			ConstLabels: labels,
			Buckets:     GapBuckets,
		}),
		smi: make(map[string]uint64),

		spikesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "spikes_total"),
			"Latency spikes recorded in the measurement pass.",
			nil, labels),
		drainsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "buffer", "drains_total"),
			"Spike buffer drains delivered to this collector.",
			nil, labels),
		iterationsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "iterations_total"),
			"Samples taken in the measurement pass.",
			nil, labels),
		minSpikeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "min_delta"),
			"Smallest delta below the threshold.",
			nil, labels),
		overheadDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "overhead"),
			"Total cost of the spike-handling path in the method's unit.",
			nil, labels),
		smiDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "smi_count"),
			"MSR_SMI_COUNT read around the run.",
			[]string{"phase"}, labels),
	}
}

// Spike implements spike.Sink.
func (c *Collector) Spike(e spike.Event) {
	c.mu.Lock()
	c.spikes++
	c.mu.Unlock()
	c.magnitude.Observe(float64(e.Magnitude))
	if e.HasPrevious() {
		c.gap.Observe(float64(e.Gap))
	}
}

// Flush implements spike.Sink.
func (c *Collector) Flush() error {
	c.mu.Lock()
	c.drains++
	c.mu.Unlock()
	return nil
}

// SetResult records the pass summary.
func (c *Collector) SetResult(iterations, minSpike uint64, haveMin bool, overhead uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iterations = iterations
	c.minSpike, c.haveMin = minSpike, haveMin
	c.overhead = overhead
}

// SetSMICount records an SMI count for phase ("before" or "after").
func (c *Collector) SetSMICount(phase string, n uint64) {
	c.mu.Lock()
	c.smi[phase] = n
	c.mu.Unlock()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.spikesDesc
	c.magnitude.Describe(ch)
	c.gap.Describe(ch)
	ch <- c.drainsDesc
	ch <- c.iterationsDesc
	ch <- c.minSpikeDesc
	ch <- c.overheadDesc
	ch <- c.smiDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(c.spikesDesc, prometheus.CounterValue, float64(c.spikes))
	c.magnitude.Collect(ch)
	c.gap.Collect(ch)
	ch <- prometheus.MustNewConstMetric(c.drainsDesc, prometheus.CounterValue, float64(c.drains))
	ch <- prometheus.MustNewConstMetric(c.iterationsDesc, prometheus.CounterValue, float64(c.iterations))
	if c.haveMin {
		ch <- prometheus.MustNewConstMetric(c.minSpikeDesc, prometheus.GaugeValue, float64(c.minSpike))
	}
	ch <- prometheus.MustNewConstMetric(c.overheadDesc, prometheus.GaugeValue, float64(c.overhead))
	for phase, n := range c.smi {
		ch <- prometheus.MustNewConstMetric(c.smiDesc, prometheus.GaugeValue, float64(n), phase)
	}
}

// Registry returns a fresh registry holding c.
func (c *Collector) Registry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, fmt.Errorf("register collector: %w", err)
	}
	return reg, nil
}

// WriteTextfile writes every metric of c to path. The file is written to a
// temporary name and renamed, so a concurrent scrape never sees half of it.
func (c *Collector) WriteTextfile(path string) error {
	reg, err := c.Registry()
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
