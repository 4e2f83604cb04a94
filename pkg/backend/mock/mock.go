// Package mock provides a test double for the backend.Recognizer interface.
//
// Script results per call with Results, or set a single Result for every
// call. Submitted requests are recorded for inspection.
package mock

import (
	"context"
	"sync"

	"github.com/voxlink-ai/voxlink/pkg/backend"
)

// TranscribeCall records a single invocation of Recognizer.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the submitted audio.
	Samples []float32

	// SampleRate is the submitted rate.
	SampleRate int

	// Prompt is the conditioning text passed with the request.
	Prompt string
}

// Recognizer is a mock implementation of backend.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// Results is consumed one element per Transcribe call. When exhausted,
	// Result is returned.
	Results []backend.Result

	// Result is returned once Results is exhausted.
	Result backend.Result

	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error

	// TranscribeFunc, if non-nil, replaces the scripted behaviour entirely.
	TranscribeFunc func(ctx context.Context, req backend.Request) (backend.Result, error)

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Transcribe records the call and returns the next scripted result.
func (r *Recognizer) Transcribe(ctx context.Context, req backend.Request) (backend.Result, error) {
	r.mu.Lock()
	cp := make([]float32, len(req.Samples))
	copy(cp, req.Samples)
	r.TranscribeCalls = append(r.TranscribeCalls, TranscribeCall{
		Samples:    cp,
		SampleRate: req.SampleRate,
		Prompt:     req.Prompt,
	})
	fn := r.TranscribeFunc
	var res backend.Result
	if len(r.Results) > 0 {
		res = r.Results[0]
		r.Results = r.Results[1:]
	} else {
		res = r.Result
	}
	err := r.TranscribeErr
	r.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return backend.Result{}, err
	}
	return res, nil
}

// Close records the call and returns CloseErr.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CloseCallCount++
	return r.CloseErr
}

// Calls returns a snapshot of recorded Transcribe calls.
func (r *Recognizer) Calls() []TranscribeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TranscribeCall, len(r.TranscribeCalls))
	copy(out, r.TranscribeCalls)
	return out
}

var _ backend.Recognizer = (*Recognizer)(nil)
