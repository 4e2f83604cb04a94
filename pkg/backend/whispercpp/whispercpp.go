// Package whispercpp provides a Recognizer backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.
//
// The model is loaded once and shared; each Transcribe call creates a fresh
// whisper context because contexts are not reusable across inferences.
package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voxlink-ai/voxlink/pkg/audio"
	"github.com/voxlink-ai/voxlink/pkg/backend"
)

// modelSampleRate is the only rate whisper.cpp accepts; other input rates are
// resampled before inference.
const modelSampleRate = 16000

const defaultLanguage = "en"

// Compile-time assertion that Recognizer satisfies backend.Recognizer.
var _ backend.Recognizer = (*Recognizer)(nil)

// Recognizer implements backend.Recognizer using whisper.cpp Go bindings.
type Recognizer struct {
	model    whisperlib.Model
	language string
	log      *slog.Logger
}

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithLanguage sets the BCP-47 language code for transcription (e.g. "en",
// "de") or "auto" for detection. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(r *Recognizer) { r.language = lang }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(r *Recognizer) { r.log = log }
}

// New loads the whisper.cpp model from the given file path. The caller must
// call Close when the recognizer is no longer needed.
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whispercpp: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model %q: %w", modelPath, err)
	}
	r := &Recognizer{
		model:    model,
		language: defaultLanguage,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Transcribe implements backend.Recognizer. The bindings do not support
// cancellation mid-inference, so ctx is only checked on entry.
func (r *Recognizer) Transcribe(ctx context.Context, req backend.Request) (backend.Result, error) {
	if r.model == nil {
		return backend.Result{}, backend.ErrNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return backend.Result{}, err
	}
	start := time.Now()

	samples := req.Samples
	if req.SampleRate != modelSampleRate {
		samples = audio.Resample(samples, req.SampleRate, modelSampleRate)
	}

	// Contexts are single-use; the model itself is shareable.
	wctx, err := r.model.NewContext()
	if err != nil {
		return backend.Result{}, fmt.Errorf("whispercpp: create context: %w", err)
	}
	if err := wctx.SetLanguage(r.language); err != nil {
		r.log.Warn("failed to set language, using default",
			slog.String("language", r.language), slog.Any("error", err))
	}
	if req.Prompt != "" {
		wctx.SetInitialPrompt(req.Prompt)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return backend.Result{}, fmt.Errorf("whispercpp: process audio: %w", err)
	}

	var (
		segments []backend.Segment
		parts    []string
	)
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return backend.Result{}, fmt.Errorf("whispercpp: read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, backend.Segment{
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
			Text:  text,
		})
		parts = append(parts, text)
	}

	lang := r.language
	if lang == "auto" {
		lang = wctx.DetectedLanguage()
	}
	return backend.Result{
		Text:         strings.Join(parts, " "),
		Segments:     segments,
		Language:     lang,
		ProcessingMs: float64(time.Since(start)) / float64(time.Millisecond),
	}, nil
}

// Close releases the whisper model.
func (r *Recognizer) Close() error {
	if r.model != nil {
		err := r.model.Close()
		r.model = nil
		return err
	}
	return nil
}
