// Package openai provides a Recognizer backed by the OpenAI transcription
// API. Audio is wrapped in a WAV container and submitted as one batch
// request per utterance.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voxlink-ai/voxlink/pkg/audio"
	"github.com/voxlink-ai/voxlink/pkg/backend"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = oai.AudioModelWhisper1

// Ensure Recognizer implements the backend.Recognizer interface.
var _ backend.Recognizer = (*Recognizer)(nil)

// Recognizer implements backend.Recognizer using the OpenAI API.
type Recognizer struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the recognizer.
type config struct {
	baseURL  string
	language string
	timeout  time.Duration
}

// Option is a functional option for Recognizer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Use this to point at
// an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithLanguage sets the ISO-639-1 language hint sent with each request.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI-backed Recognizer. If model is empty, DefaultModel
// (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai backend: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Recognizer{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// Transcribe implements backend.Recognizer. The hosted API does not return
// word timestamps in the default response format, so the result carries a
// single segment spanning the whole utterance.
func (r *Recognizer) Transcribe(ctx context.Context, req backend.Request) (backend.Result, error) {
	start := time.Now()
	wav := audio.EncodeWAV(req.Samples, req.SampleRate)

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(r.model),
	}
	if r.language != "" {
		params.Language = oai.String(r.language)
	}
	if req.Prompt != "" {
		params.Prompt = oai.String(req.Prompt)
	}

	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return backend.Result{}, fmt.Errorf("openai backend: transcription request: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	res := backend.Result{
		Text:         text,
		Language:     r.language,
		ProcessingMs: float64(time.Since(start)) / float64(time.Millisecond),
	}
	if text != "" {
		duration := audio.SamplesToMs(len(req.Samples), req.SampleRate) / 1000
		res.Segments = []backend.Segment{{Start: 0, End: duration, Text: text}}
	}
	return res, nil
}

// Close implements backend.Recognizer. The HTTP client holds no resources
// that outlive requests.
func (r *Recognizer) Close() error { return nil }
