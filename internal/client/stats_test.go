package client_test

import (
	"strings"
	"testing"

	"github.com/voxlink-ai/voxlink/internal/client"
)

func TestLatencyStats_Summary(t *testing.T) {
	var s client.LatencyStats
	s.Record(100)
	s.Record(300)
	s.Record(200)

	if s.Count() != 3 {
		t.Errorf("Count = %d, want 3", s.Count())
	}
	got := s.Summary()
	want := "n=3 avg=200.0ms min=100.0ms max=300.0ms"
	if got != want {
		t.Errorf("Summary = %q, want %q", got, want)
	}
}

func TestLatencyStats_Empty(t *testing.T) {
	var s client.LatencyStats
	if got := s.Summary(); !strings.Contains(got, "no replies") {
		t.Errorf("empty Summary = %q", got)
	}
}
