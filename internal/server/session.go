package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxlink-ai/voxlink/internal/config"
	"github.com/voxlink-ai/voxlink/internal/observe"
	"github.com/voxlink-ai/voxlink/internal/textfilter"
	"github.com/voxlink-ai/voxlink/pkg/audio"
	"github.com/voxlink-ai/voxlink/pkg/backend"
)

// Session accumulates one client's audio and turns it into transcripts. It
// carries the cross-utterance conditioning state (previous transcript, context
// audio tail) that the strategies feed back to the recognizer.
//
// A session belongs to exactly one websocket connection and is driven by a
// single goroutine, so it needs no locking. Recognizer access is serialized
// through the shared [Worker].
type Session struct {
	cfg     config.ServerConfig
	strat   Strategy
	worker  *Worker
	metrics *observe.Metrics
	log     *slog.Logger

	buf        []float32
	sampleRate int

	lastPartial    time.Time
	prevTranscript string
	contextAudio   []float32
}

// PartialOutcome is one emitted partial transcript.
type PartialOutcome struct {
	Text         string
	ProcessingMs float64
}

// FinalOutcome is the result of finalizing an utterance. Rejected marks a
// hallucination; Sample then carries the rejected text for batch noise
// replies. An empty-buffer finalization yields a zero outcome.
type FinalOutcome struct {
	Text         string
	Segments     []backend.Segment
	Language     string
	ProcessingMs float64
	DurationMs   float64
	Rejected     bool
	Sample       string
}

// NewSession creates a session for one connection.
func NewSession(cfg config.ServerConfig, strat Strategy, worker *Worker, m *observe.Metrics, log *slog.Logger) *Session {
	return &Session{
		cfg:         cfg,
		strat:       strat,
		worker:      worker,
		metrics:     m,
		log:         log,
		lastPartial: time.Now(),
	}
}

// AddFrame appends one chunk of samples to the utterance buffer. The rate of
// the first frame sticks for the whole utterance.
func (s *Session) AddFrame(ctx context.Context, samples []float32, rate int) {
	s.buf = append(s.buf, samples...)
	s.sampleRate = rate
	s.metrics.FramesReceived.Add(ctx, 1)
}

// partialDue reports whether enough time has passed since the last partial
// and there is buffered audio to transcribe.
func (s *Session) partialDue() bool {
	if len(s.buf) == 0 {
		return false
	}
	return time.Since(s.lastPartial) >= time.Duration(s.cfg.PartialIntervalMs)*time.Millisecond
}

// MaybePartial emits a partial transcript if one is due and the recognizer is
// free. Partials see only the trailing window of the buffer, carry no
// conditioning, and mutate no session state beyond the pacing timer; a busy
// recognizer drops the attempt so the next frame retries.
func (s *Session) MaybePartial(ctx context.Context) (PartialOutcome, bool, error) {
	if !s.partialDue() {
		return PartialOutcome{}, false, nil
	}

	window := s.buf
	if max := s.cfg.PartialMaxMs * s.sampleRate / 1000; max > 0 && len(window) > max {
		window = window[len(window)-max:]
	}

	start := time.Now()
	res, ran, err := s.worker.TryTranscribe(ctx, backend.Request{
		Samples:    window,
		SampleRate: s.sampleRate,
	})
	if !ran {
		s.metrics.PartialsSkipped.Add(ctx, 1)
		return PartialOutcome{}, false, nil
	}
	if err != nil {
		return PartialOutcome{}, false, err
	}
	s.metrics.RecordTranscription(ctx, "partial", s.strat.Name, time.Since(start).Seconds())

	s.lastPartial = time.Now()
	return PartialOutcome{
		Text:         textfilter.DedupRepeatedPhrases(res.Text, textfilter.DefaultMaxRepeats),
		ProcessingMs: res.ProcessingMs,
	}, true, nil
}

// Final closes the current utterance: it runs the recognizer over the full
// buffer with the session's conditioning, post-processes the result, updates
// the cross-utterance state, and clears the buffer. An empty buffer yields a
// zero outcome without touching the recognizer.
func (s *Session) Final(ctx context.Context) (FinalOutcome, error) {
	s.lastPartial = time.Now()
	if len(s.buf) == 0 {
		return FinalOutcome{}, nil
	}

	samples := s.buf
	var contextSec float64
	if s.strat.UsesContext && len(s.contextAudio) > 0 {
		contextSec = float64(len(s.contextAudio)) / float64(s.sampleRate)
		samples = make([]float32, 0, len(s.contextAudio)+len(s.buf))
		samples = append(samples, s.contextAudio...)
		samples = append(samples, s.buf...)
	}

	req := backend.Request{Samples: samples, SampleRate: s.sampleRate}
	if s.strat.UsesPrompt {
		req.Prompt = s.prevTranscript
	}

	start := time.Now()
	res, err := s.worker.Transcribe(ctx, req)
	if err != nil {
		return FinalOutcome{}, err
	}
	s.metrics.RecordTranscription(ctx, "final", s.strat.Name, time.Since(start).Seconds())

	out := s.finish(ctx, res, contextSec)
	out.DurationMs = audio.SamplesToMs(len(s.buf), s.sampleRate)

	// The context tail comes from the raw buffer, never from the prepended
	// audio of the previous utterance.
	if s.strat.UsesContext {
		if n := s.cfg.ContextOverlapMs * s.sampleRate / 1000; len(s.buf) > n {
			s.contextAudio = append([]float32(nil), s.buf[len(s.buf)-n:]...)
		} else {
			s.contextAudio = append([]float32(nil), s.buf...)
		}
	}
	s.buf = nil
	return out, nil
}

// Batch transcribes one complete utterance delivered in a single message.
// Prompt conditioning and the accepted-transcript state work as in streaming;
// there is no buffer or context audio to maintain.
func (s *Session) Batch(ctx context.Context, samples []float32, rate int) (FinalOutcome, error) {
	s.sampleRate = rate
	req := backend.Request{Samples: samples, SampleRate: rate}
	if s.strat.UsesPrompt {
		req.Prompt = s.prevTranscript
	}

	start := time.Now()
	res, err := s.worker.Transcribe(ctx, req)
	if err != nil {
		return FinalOutcome{}, err
	}
	s.metrics.RecordTranscription(ctx, "batch", s.strat.Name, time.Since(start).Seconds())

	out := s.finish(ctx, res, 0)
	out.DurationMs = audio.SamplesToMs(len(samples), rate)
	return out, nil
}

// finish applies the shared post-processing to a recognizer result: context
// overlap trimming, hallucination cleaning, and the previous-transcript
// update rule.
func (s *Session) finish(ctx context.Context, res backend.Result, contextSec float64) FinalOutcome {
	text := res.Text
	segments := res.Segments
	if contextSec > 0 {
		segments = trimContext(segments, contextSec)
		text = joinSegments(segments)
	}

	cleaned, ok := textfilter.CleanHallucination(text)
	if !ok {
		s.metrics.NoiseRejected.Add(ctx, 1)
		s.log.Debug("rejected hallucinated transcript", slog.String("sample", text))
		return FinalOutcome{Rejected: true, Sample: text}
	}

	if cleaned != "" {
		s.prevTranscript = cleaned
	}
	return FinalOutcome{
		Text:         cleaned,
		Segments:     segments,
		Language:     res.Language,
		ProcessingMs: res.ProcessingMs,
	}
}

// trimContext drops segments that lie entirely inside the prepended context
// audio and rebases the rest onto the current utterance's timeline.
func trimContext(segments []backend.Segment, contextSec float64) []backend.Segment {
	out := make([]backend.Segment, 0, len(segments))
	for _, seg := range segments {
		if seg.End <= contextSec {
			continue
		}
		seg.Start -= contextSec
		if seg.Start < 0 {
			seg.Start = 0
		}
		seg.End -= contextSec
		out = append(out, seg)
	}
	return out
}

// joinSegments rebuilds the transcript text from the surviving segments.
func joinSegments(segments []backend.Segment) string {
	var b []byte
	for i, seg := range segments {
		if i > 0 {
			b = append(b, ' ')
		}
		b = append(b, seg.Text...)
	}
	return string(b)
}
