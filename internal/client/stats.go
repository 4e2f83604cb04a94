package client

import (
	"fmt"
	"sync"
)

// LatencyStats accumulates server-reported processing times so a run can be
// summarised at shutdown. Safe for concurrent use.
type LatencyStats struct {
	mu    sync.Mutex
	count int
	sum   float64
	min   float64
	max   float64
}

// Record adds one processing time observation in milliseconds.
func (s *LatencyStats) Record(ms float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
	s.count++
	s.sum += ms
}

// Count returns the number of recorded observations.
func (s *LatencyStats) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Summary renders a one-line aggregate of all observations.
func (s *LatencyStats) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return "no replies"
	}
	return fmt.Sprintf("n=%d avg=%.1fms min=%.1fms max=%.1fms",
		s.count, s.sum/float64(s.count), s.min, s.max)
}
