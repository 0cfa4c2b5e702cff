package router

import (
	"sync"
	"time"
)

// Stats accumulates per-provider dispatch outcomes (spec §4.7:
// ProviderStats{total, success, fail, total_latency_ms}).
type Stats struct {
	mu             sync.Mutex
	total          int64
	success        int64
	fail           int64
	totalLatencyMs int64
}

// StatsSnapshot is a point-in-time copy of Stats safe to read without a lock.
type StatsSnapshot struct {
	Total          int64
	Success        int64
	Fail           int64
	TotalLatencyMs int64
}

// AverageLatencyMs returns the mean dispatch latency, or 0 if nothing has
// been recorded yet.
func (s StatsSnapshot) AverageLatencyMs() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.TotalLatencyMs) / float64(s.Total)
}

// RecordSuccess records a successful dispatch and its latency.
func (s *Stats) RecordSuccess(latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.success++
	s.totalLatencyMs += latency.Milliseconds()
}

// RecordFailure records a failed dispatch and its latency.
func (s *Stats) RecordFailure(latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.fail++
	s.totalLatencyMs += latency.Milliseconds()
}

// Snapshot returns a consistent copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Total:          s.total,
		Success:        s.success,
		Fail:           s.fail,
		TotalLatencyMs: s.totalLatencyMs,
	}
}
