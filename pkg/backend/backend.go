// Package backend defines the Recognizer interface implemented by speech
// recognition backends.
//
// A recognizer performs batch transcription: it receives a complete utterance
// as mono float32 samples and returns text with timestamped segments.
// Recognizers are not required to be safe for concurrent Transcribe calls;
// the server serializes access through its worker.
package backend

import (
	"context"
	"errors"
)

// ErrNotLoaded is returned by Transcribe before a model has been loaded.
var ErrNotLoaded = errors.New("backend: model not loaded")

// Segment is one timestamped span of recognized text. Start and End are
// seconds relative to the beginning of the submitted audio.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Result is the outcome of one transcription.
type Result struct {
	// Text is the full transcript, segments joined in order.
	Text string

	// Segments carry per-span timestamps. May be empty when the backend does
	// not provide them.
	Segments []Segment

	// Language is the BCP-47 code of the recognized language.
	Language string

	// ProcessingMs is the wall time of the transcription in milliseconds,
	// including adapter-internal work such as resampling.
	ProcessingMs float64
}

// Request is one batch transcription request.
type Request struct {
	// Samples is the complete utterance as mono float32 PCM in [-1, 1].
	Samples []float32

	// SampleRate is the rate of Samples in Hz. Backends resample internally
	// when their model requires a different rate.
	SampleRate int

	// Prompt is optional conditioning text from earlier utterances. Backends
	// that cannot condition on a prompt ignore it.
	Prompt string
}

// Recognizer is a batch speech recognition backend.
type Recognizer interface {
	// Transcribe runs one batch recognition. It honors ctx cancellation where
	// the underlying engine allows it.
	Transcribe(ctx context.Context, req Request) (Result, error)

	// Close releases model resources. Safe to call more than once.
	Close() error
}
