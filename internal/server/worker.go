package server

import (
	"context"
	"fmt"

	"github.com/voxlink-ai/voxlink/pkg/backend"
)

// Worker serializes access to a recognizer. Most backends hold a single model
// instance that must not run concurrent inferences, so the worker admits a
// fixed number of calls (usually one) and makes the rest either wait or bail.
//
// Finals use [Worker.Transcribe] and wait their turn; partials use
// [Worker.TryTranscribe] and are dropped when the recognizer is busy, since a
// stale partial is worth less than a timely final.
type Worker struct {
	rec backend.Recognizer
	sem chan struct{}
}

// NewWorker wraps rec with a semaphore of the given width. Widths below 1 are
// clamped to 1.
func NewWorker(rec backend.Recognizer, slots int) *Worker {
	if slots < 1 {
		slots = 1
	}
	return &Worker{rec: rec, sem: make(chan struct{}, slots)}
}

// Transcribe runs one recognition, waiting for a free slot. It returns
// ctx.Err() if the context is cancelled while waiting.
func (w *Worker) Transcribe(ctx context.Context, req backend.Request) (backend.Result, error) {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return backend.Result{}, ctx.Err()
	}
	defer func() { <-w.sem }()
	return w.rec.Transcribe(ctx, req)
}

// TryTranscribe runs one recognition only if a slot is immediately free.
// The second return value reports whether the call ran at all.
func (w *Worker) TryTranscribe(ctx context.Context, req backend.Request) (backend.Result, bool, error) {
	select {
	case w.sem <- struct{}{}:
	default:
		return backend.Result{}, false, nil
	}
	defer func() { <-w.sem }()
	res, err := w.rec.Transcribe(ctx, req)
	return res, true, err
}

// Warmup runs one throwaway recognition over a second of silence so that the
// first real utterance does not pay model initialization cost. A warmup
// failure means the recognizer cannot serve and is treated as fatal by the
// caller.
func (w *Worker) Warmup(ctx context.Context, sampleRate int) error {
	silence := make([]float32, sampleRate)
	if _, err := w.Transcribe(ctx, backend.Request{Samples: silence, SampleRate: sampleRate}); err != nil {
		return fmt.Errorf("server: recognizer warmup: %w", err)
	}
	return nil
}

// Close releases the underlying recognizer.
func (w *Worker) Close() error { return w.rec.Close() }
