// Package stats keeps a rolling window of conversion timings.
package stats

import (
	"sort"
	"sync"
	"time"
)

// Sample is one finished conversion.
type Sample struct {
	Duration time.Duration
	// Units is the length of the produced text in UTF-16 code units.
	Units  int
	Failed bool
}

type sample struct {
	at time.Time
	Sample
}

// Snapshot aggregates the samples still inside the window. Failed samples
// count toward Failures only.
type Snapshot struct {
	Count    int     `json:"count"`
	Failures int     `json:"failures"`
	Units    int64   `json:"units"`
	MinMs    int64   `json:"min_ms"`
	MaxMs    int64   `json:"max_ms"`
	AvgMs    float64 `json:"avg_ms"`
	P50Ms    float64 `json:"p50_ms"`
	P95Ms    float64 `json:"p95_ms"`
	P99Ms    float64 `json:"p99_ms"`
}

// Window tracks recent conversions within a rolling age limit.
type Window struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
	now     func() time.Time
}

func New(maxAge time.Duration) *Window {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Window{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
		now:     time.Now,
	}
}

func (w *Window) Record(s Sample) {
	if s.Duration < 0 {
		s.Duration = 0
	}
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	w.samples = append(w.samples, sample{at: now, Sample: s})
}

func (w *Window) Snapshot() Snapshot {
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)

	var snap Snapshot
	values := make([]int64, 0, len(w.samples))
	var sum int64
	for _, sm := range w.samples {
		if sm.Failed {
			snap.Failures++
			continue
		}
		ms := sm.Duration.Milliseconds()
		values = append(values, ms)
		sum += ms
		snap.Units += int64(sm.Units)
	}
	if len(values) == 0 {
		return snap
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	snap.Count = len(values)
	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = float64(sum) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	snap.P99Ms = percentile(values, 99)
	return snap
}

func (w *Window) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.maxAge)
	keep := 0
	for _, sm := range w.samples {
		if !sm.at.Before(cutoff) {
			w.samples[keep] = sm
			keep++
		}
	}
	w.samples = w.samples[:keep]
}

// percentile interpolates linearly between the closest ranks.
func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sorted[0])
	}
	if pct >= 100 {
		return float64(sorted[len(sorted)-1])
	}

	index := (float64(len(sorted)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return float64(sorted[lower])
	}
	weight := index - float64(lower)
	lo := float64(sorted[lower])
	hi := float64(sorted[upper])
	return lo + (hi-lo)*weight
}
