package client

import (
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
)

// EchoSuppressor discards transcripts that are near-duplicates of the last
// reply spoken through the TTS sink, so the microphone picking up the
// speaker's own output does not loop back into the agent.
type EchoSuppressor struct {
	threshold float64

	mu         sync.Mutex
	lastSpoken string
}

// NewEchoSuppressor creates a suppressor. Transcripts whose Jaro-Winkler
// similarity with the last spoken reply reaches threshold are treated as
// echoes. A threshold of 0 disables suppression.
func NewEchoSuppressor(threshold float64) *EchoSuppressor {
	return &EchoSuppressor{threshold: threshold}
}

// NoteSpoken records the reply that is about to be played back.
func (e *EchoSuppressor) NoteSpoken(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSpoken = normalizeEcho(text)
}

// IsEcho reports whether text is close enough to the last spoken reply to be
// its acoustic echo.
func (e *EchoSuppressor) IsEcho(text string) bool {
	if e.threshold <= 0 {
		return false
	}
	e.mu.Lock()
	last := e.lastSpoken
	e.mu.Unlock()
	if last == "" {
		return false
	}
	return matchr.JaroWinkler(normalizeEcho(text), last, false) >= e.threshold
}

func normalizeEcho(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
