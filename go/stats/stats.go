/*
Copyright 2026 The Lattice Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package stats publishes engine metrics through prometheus. Metric
// variables are declared once at package level by their owning component;
// constructors register with the default registerer and panic on duplicate
// names, which turns metric name collisions into startup failures.
package stats

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lattice"

// Counter tracks a monotonically increasing value.
type Counter struct {
	c prometheus.Counter
}

// NewCounter registers and returns a new Counter.
func NewCounter(name, help string) *Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
	prometheus.MustRegister(c)
	return &Counter{c: c}
}

// Add adds to the counter. Negative values are ignored.
func (c *Counter) Add(n int64) {
	if n < 0 {
		return
	}
	c.c.Add(float64(n))
}

// Counters tracks one counter per label value. Values are mirrored in a
// map so callers can read them back without scraping prometheus.
type Counters struct {
	vec *prometheus.CounterVec

	mu     sync.Mutex
	counts map[string]int64
}

// NewCountersWithSingleLabel registers and returns a new Counters keyed by
// one label.
func NewCountersWithSingleLabel(name, help, label string) *Counters {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, []string{label})
	prometheus.MustRegister(vec)
	return &Counters{vec: vec, counts: make(map[string]int64)}
}

// Add adds to the counter for the given label value.
func (c *Counters) Add(label string, n int64) {
	if n < 0 {
		return
	}
	c.mu.Lock()
	c.counts[label] += n
	c.mu.Unlock()
	c.vec.WithLabelValues(label).Add(float64(n))
}

// Counts returns a copy of the current per-label values.
func (c *Counters) Counts() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// ResetAll zeroes every label, including in the exported metric.
func (c *Counters) ResetAll() {
	c.mu.Lock()
	c.counts = make(map[string]int64)
	c.mu.Unlock()
	c.vec.Reset()
}

// Gauge tracks a value that can go up and down.
type Gauge struct {
	g prometheus.Gauge
}

// NewGauge registers and returns a new Gauge.
func NewGauge(name, help string) *Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
	prometheus.MustRegister(g)
	return &Gauge{g: g}
}

// Set sets the gauge.
func (g *Gauge) Set(n int64) {
	g.g.Set(float64(n))
}

// Add adds to the gauge.
func (g *Gauge) Add(n int64) {
	g.g.Add(float64(n))
}

// Timings tracks latency distributions per label value.
type Timings struct {
	vec *prometheus.HistogramVec
}

// NewTimings registers and returns a new Timings keyed by one label.
func NewTimings(name, help, label string) *Timings {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
	}, []string{label})
	prometheus.MustRegister(vec)
	return &Timings{vec: vec}
}

// Record observes the elapsed time since start under the given label value.
func (t *Timings) Record(label string, start time.Time) {
	t.vec.WithLabelValues(label).Observe(time.Since(start).Seconds())
}
