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

package stats

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounterIgnoresNegative(t *testing.T) {
	c := NewCounter("TestCounterA", "test counter")
	c.Add(3)
	c.Add(-1)
	c.Add(2)
	assert.Equal(t, 5.0, testutil.ToFloat64(c.c))
}

func TestCountersPerLabel(t *testing.T) {
	c := NewCountersWithSingleLabel("TestCountersA", "test counters", "Kind")
	c.Add("hit", 2)
	c.Add("miss", 1)
	c.Add("hit", -5)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.vec.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.vec.WithLabelValues("miss")))
}

func TestCountersCountsAndReset(t *testing.T) {
	c := NewCountersWithSingleLabel("TestCountersB", "test counters", "Kind")
	c.Add("hit", 2)
	c.Add("miss", 1)
	c.Add("hit", 1)

	counts := c.Counts()
	assert.Equal(t, int64(3), counts["hit"])
	assert.Equal(t, int64(1), counts["miss"])

	counts["hit"] = 99
	assert.Equal(t, int64(3), c.Counts()["hit"], "Counts returns a copy")

	c.ResetAll()
	assert.Empty(t, c.Counts())
	c.Add("hit", 1)
	assert.Equal(t, int64(1), c.Counts()["hit"])
	assert.Equal(t, 1.0, testutil.ToFloat64(c.vec.WithLabelValues("hit")), "reset also zeroes the exported metric")
}

func TestGauge(t *testing.T) {
	g := NewGauge("TestGaugeA", "test gauge")
	g.Set(7)
	g.Add(-2)
	assert.Equal(t, 5.0, testutil.ToFloat64(g.g))
}

func TestTimingsRecords(t *testing.T) {
	tm := NewTimings("TestTimingsA", "test timings", "Op")
	tm.Record("plan", time.Now().Add(-time.Millisecond))
	tm.Record("plan", time.Now())
	assert.Equal(t, 1, testutil.CollectAndCount(tm.vec))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	NewCounter("TestCounterDup", "first")
	assert.Panics(t, func() { NewCounter("TestCounterDup", "second") })
}
