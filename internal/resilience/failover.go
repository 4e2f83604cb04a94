package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voxlink-ai/voxlink/pkg/backend"
)

// ErrAllBackendsFailed is returned when every recognizer in a failover group
// fails or sits behind an open breaker.
var ErrAllBackendsFailed = errors.New("resilience: all recognition backends failed")

// FailoverConfig configures the per-backend circuit breaker of a
// [RecognizerFailover]. The Name field is overwritten per entry.
type FailoverConfig struct {
	Breaker CircuitBreakerConfig
}

type failoverEntry struct {
	name    string
	rec     backend.Recognizer
	breaker *CircuitBreaker
}

// RecognizerFailover implements [backend.Recognizer] across an ordered group
// of backends, each behind its own circuit breaker. A request goes to the
// first entry whose breaker admits it; on failure the next entry is tried.
//
// All Add calls must complete before the first Transcribe.
type RecognizerFailover struct {
	entries []failoverEntry
	cfg     FailoverConfig
	log     *slog.Logger
}

// NewRecognizerFailover creates a failover group with primary as the
// preferred backend.
func NewRecognizerFailover(name string, primary backend.Recognizer, cfg FailoverConfig) *RecognizerFailover {
	f := &RecognizerFailover{cfg: cfg, log: slog.Default()}
	f.Add(name, primary)
	return f
}

// Add appends a fallback backend. Fallbacks are tried in registration order.
func (f *RecognizerFailover) Add(name string, rec backend.Recognizer) {
	bCfg := f.cfg.Breaker
	bCfg.Name = name
	f.entries = append(f.entries, failoverEntry{
		name:    name,
		rec:     rec,
		breaker: NewCircuitBreaker(bCfg),
	})
}

// Transcribe implements [backend.Recognizer].
func (f *RecognizerFailover) Transcribe(ctx context.Context, req backend.Request) (backend.Result, error) {
	var lastErr error
	for i := range f.entries {
		entry := &f.entries[i]
		var res backend.Result
		err := entry.breaker.Execute(func() error {
			var inner error
			res, inner = entry.rec.Transcribe(ctx, req)
			return inner
		})
		if err == nil {
			return res, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			f.log.Debug("skipping backend, circuit open", "backend", entry.name)
		} else {
			f.log.Warn("backend failed, trying next", "backend", entry.name, "err", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return backend.Result{}, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}

// Close implements [backend.Recognizer], closing every backend in the group.
func (f *RecognizerFailover) Close() error {
	var errs []error
	for i := range f.entries {
		if err := f.entries[i].rec.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", f.entries[i].name, err))
		}
	}
	return errors.Join(errs...)
}

var _ backend.Recognizer = (*RecognizerFailover)(nil)
