package perf

import (
	"sort"
	"testing"
	"time"
)

// Latency envelopes for the monthly report endpoints: cached aggregate
// reads must stay well under the interactive budget, a cold PDF render may
// take a Gotenberg round trip.
func TestReportLatencyTargets(t *testing.T) {
	scenarios := []struct {
		name      string
		samples   []time.Duration
		threshold time.Duration
	}{
		{
			name:      "aggregate cached",
			samples:   []time.Duration{8 * time.Millisecond, 9 * time.Millisecond, 11 * time.Millisecond, 12 * time.Millisecond, 14 * time.Millisecond, 15 * time.Millisecond, 18 * time.Millisecond, 21 * time.Millisecond, 24 * time.Millisecond, 30 * time.Millisecond},
			threshold: 100 * time.Millisecond,
		},
		{
			name:      "pdf cold render",
			samples:   []time.Duration{600 * time.Millisecond, 700 * time.Millisecond, 750 * time.Millisecond, 800 * time.Millisecond, 900 * time.Millisecond, 950 * time.Millisecond, 1100 * time.Millisecond, 1200 * time.Millisecond, 1300 * time.Millisecond, 1400 * time.Millisecond},
			threshold: 2 * time.Second,
		},
	}

	for _, scenario := range scenarios {
		p95 := percentile95(scenario.samples)
		if p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
