package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxlink-ai/voxlink/internal/config"
	"github.com/voxlink-ai/voxlink/internal/health"
	"github.com/voxlink-ai/voxlink/internal/server"
	"github.com/voxlink-ai/voxlink/internal/wire"
	"github.com/voxlink-ai/voxlink/pkg/backend"
	backendmock "github.com/voxlink-ai/voxlink/pkg/backend/mock"
)

// fakeStore records Append calls for inspection.
type fakeStore struct {
	mu      sync.Mutex
	entries []fakeEntry
}

type fakeEntry struct {
	sessionID, text, language string
	durationMs                float64
}

func (s *fakeStore) Append(_ context.Context, sessionID, text, language string, durationMs float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, fakeEntry{sessionID, text, language, durationMs})
	return nil
}

func (s *fakeStore) all() []fakeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fakeEntry(nil), s.entries...)
}

func newTestHost(t *testing.T, rec backend.Recognizer, opts ...server.Option) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	// Keep paced partials out of tests that only exercise finals.
	cfg.Server.PartialIntervalMs = 60000
	return newTestHostWithConfig(t, rec, cfg, opts...)
}

func newTestHostWithConfig(t *testing.T, rec backend.Recognizer, cfg *config.Config, opts ...server.Option) *httptest.Server {
	t.Helper()
	opts = append([]server.Option{
		server.WithLogger(discardLogger()),
		server.WithMetrics(newTestMetrics(t)),
	}, opts...)
	host := server.New(cfg, rec, opts...)
	ts := httptest.NewServer(host.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

func send(t *testing.T, ctx context.Context, c *websocket.Conn, msg wire.ClientMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := c.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recv(t *testing.T, ctx context.Context, c *websocket.Conn) wire.ServerMessage {
	t.Helper()
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := wire.ParseServerMessage(data)
	if err != nil {
		t.Fatalf("parse reply: %v", err)
	}
	return msg
}

func TestHost_StreamingFinalRoundTrip(t *testing.T) {
	rec := &backendmock.Recognizer{Result: backend.Result{
		Text:         "hello world",
		Segments:     []backend.Segment{{Start: 0, End: 1, Text: "hello world"}},
		Language:     "en",
		ProcessingMs: 42,
	}}
	ts := newTestHost(t, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dial(t, ctx, ts.URL+"/ws/transcribe/hybrid")

	send(t, ctx, c, wire.AudioFrame(rampAudio(1600, 0), 16000))
	send(t, ctx, c, wire.VADEnd())

	msg := recv(t, ctx, c)
	if msg.Type != wire.TypeFinal {
		t.Fatalf("type = %q, want final", msg.Type)
	}
	if msg.Text != "hello world" {
		t.Errorf("text = %q", msg.Text)
	}
	if msg.Language != "en" {
		t.Errorf("language = %q", msg.Language)
	}
	if msg.ProcessingTimeMs != 42 {
		t.Errorf("processing_time_ms = %v, want 42", msg.ProcessingTimeMs)
	}
	if len(msg.Segments) != 1 || msg.Segments[0].Text != "hello world" {
		t.Errorf("segments = %+v", msg.Segments)
	}
}

func TestHost_StreamingPartial(t *testing.T) {
	rec := &backendmock.Recognizer{Result: backend.Result{Text: "partial text", ProcessingMs: 5}}
	// A zero interval makes the first frame immediately due for a partial.
	cfg := config.Default()
	cfg.Server.PartialIntervalMs = 0
	ts := newTestHostWithConfig(t, rec, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dial(t, ctx, ts.URL+"/ws/transcribe/prompt")

	send(t, ctx, c, wire.AudioFrame(rampAudio(1600, 0), 16000))

	msg := recv(t, ctx, c)
	if msg.Type != wire.TypePartial {
		t.Fatalf("type = %q, want partial", msg.Type)
	}
	if msg.Text != "partial text" {
		t.Errorf("text = %q", msg.Text)
	}
}

func TestHost_StreamingNoiseYieldsEmptyFinal(t *testing.T) {
	rec := &backendmock.Recognizer{Result: backend.Result{
		Text: "okay okay okay okay okay okay",
	}}
	ts := newTestHost(t, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dial(t, ctx, ts.URL+"/ws/transcribe/prompt")

	send(t, ctx, c, wire.AudioFrame(rampAudio(1600, 0), 16000))
	send(t, ctx, c, wire.VADEnd())

	msg := recv(t, ctx, c)
	if msg.Type != wire.TypeFinal {
		t.Fatalf("type = %q, want final", msg.Type)
	}
	if msg.Text != "" {
		t.Errorf("text = %q, want empty", msg.Text)
	}
}

func TestHost_DoubleVADEnd(t *testing.T) {
	rec := &backendmock.Recognizer{Result: backend.Result{Text: "hello world"}}
	ts := newTestHost(t, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dial(t, ctx, ts.URL+"/ws/transcribe/prompt")

	send(t, ctx, c, wire.AudioFrame(rampAudio(1600, 0), 16000))
	send(t, ctx, c, wire.VADEnd())
	send(t, ctx, c, wire.VADEnd())

	first := recv(t, ctx, c)
	if first.Text != "hello world" {
		t.Errorf("first final text = %q", first.Text)
	}
	second := recv(t, ctx, c)
	if second.Type != wire.TypeFinal || second.Text != "" {
		t.Errorf("second final = %+v, want empty final", second)
	}
	// Only the first vad_end reached the recognizer.
	if n := len(rec.Calls()); n != 1 {
		t.Errorf("recognizer calls = %d, want 1", n)
	}
}

func TestHost_BatchResult(t *testing.T) {
	rec := &backendmock.Recognizer{Result: backend.Result{
		Text:         "batch transcript",
		Language:     "en",
		ProcessingMs: 12,
	}}
	store := &fakeStore{}
	ts := newTestHost(t, rec, server.WithTranscriptStore(store))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dial(t, ctx, ts.URL+"/ws/transcribe")

	tp := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	send(t, ctx, c, wire.Transcribe(rampAudio(8000, 0), 16000, "sess-42", tp))

	msg := recv(t, ctx, c)
	if msg.Type != wire.TypeResult {
		t.Fatalf("type = %q, want result", msg.Type)
	}
	if msg.Text != "batch transcript" {
		t.Errorf("text = %q", msg.Text)
	}
	if msg.Traceparent != tp {
		t.Errorf("traceparent = %q, want echoed %q", msg.Traceparent, tp)
	}

	waitFor(t, func() bool { return len(store.all()) == 1 })
	e := store.all()[0]
	if e.sessionID != "sess-42" || e.text != "batch transcript" || e.durationMs != 500 {
		t.Errorf("stored entry = %+v", e)
	}
}

func TestHost_BatchNoise(t *testing.T) {
	rec := &backendmock.Recognizer{Result: backend.Result{
		Text: "okay okay okay okay okay okay",
	}}
	store := &fakeStore{}
	ts := newTestHost(t, rec, server.WithTranscriptStore(store))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dial(t, ctx, ts.URL+"/ws/transcribe")

	send(t, ctx, c, wire.Transcribe(rampAudio(8000, 0), 16000, "", ""))

	msg := recv(t, ctx, c)
	if msg.Type != wire.TypeNoise {
		t.Fatalf("type = %q, want noise", msg.Type)
	}
	if msg.Sample != "okay okay okay okay okay okay" {
		t.Errorf("sample = %q", msg.Sample)
	}
	if n := len(store.all()); n != 0 {
		t.Errorf("noise was persisted: %d entries", n)
	}
}

func TestHost_UnknownStrategyCloses(t *testing.T) {
	rec := &backendmock.Recognizer{}
	ts := newTestHost(t, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dial(t, ctx, ts.URL+"/ws/transcribe/bogus")

	_, _, err := c.Read(ctx)
	if err == nil {
		t.Fatal("read succeeded, want close")
	}
	if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
		t.Errorf("close status = %v, want %v", got, websocket.StatusPolicyViolation)
	}
}

func TestHost_MalformedMessageSkipped(t *testing.T) {
	rec := &backendmock.Recognizer{Result: backend.Result{Text: "survived"}}
	ts := newTestHost(t, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dial(t, ctx, ts.URL+"/ws/transcribe/prompt")

	// Garbage, an unknown type, and a frame with broken base64: all skipped.
	if err := c.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	send(t, ctx, c, wire.ClientMessage{Type: "mystery"})
	send(t, ctx, c, wire.ClientMessage{Type: wire.TypeAudioFrame, Audio: "!!!", SampleRate: 16000})

	send(t, ctx, c, wire.AudioFrame(rampAudio(1600, 0), 16000))
	send(t, ctx, c, wire.VADEnd())

	msg := recv(t, ctx, c)
	if msg.Type != wire.TypeFinal || msg.Text != "survived" {
		t.Fatalf("reply = %+v, connection did not survive malformed input", msg)
	}
}

func TestHost_BackendErrorKeepsConnection(t *testing.T) {
	var calls int
	var mu sync.Mutex
	rec := &backendmock.Recognizer{
		TranscribeFunc: func(ctx context.Context, req backend.Request) (backend.Result, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 1 {
				return backend.Result{}, errors.New("inference exploded")
			}
			return backend.Result{Text: "recovered"}, nil
		},
	}
	ts := newTestHost(t, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dial(t, ctx, ts.URL+"/ws/transcribe/prompt")

	// First utterance fails inside the recognizer: no reply, no close.
	send(t, ctx, c, wire.AudioFrame(rampAudio(1600, 0), 16000))
	send(t, ctx, c, wire.VADEnd())

	// Second utterance goes through on the same connection.
	send(t, ctx, c, wire.AudioFrame(rampAudio(1600, 0), 16000))
	send(t, ctx, c, wire.VADEnd())

	msg := recv(t, ctx, c)
	if msg.Type != wire.TypeFinal || msg.Text != "recovered" {
		t.Fatalf("reply = %+v, want recovered final", msg)
	}
}

func TestHost_HealthEndpoints(t *testing.T) {
	rec := &backendmock.Recognizer{}
	ts := newTestHost(t, rec, server.WithReadinessProbe(health.Probe{
		Name:  "database",
		Check: func(ctx context.Context) error { return nil },
	}))

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("healthz status = %d, want 204", resp.StatusCode)
	}

	// Run never warmed the recognizer here, so readiness holds traffic off
	// even though the dependency probe would pass.
	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	var body struct {
		Ready      bool   `json:"ready"`
		Recognizer string `json:"recognizer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode readyz body: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503 before warmup", resp.StatusCode)
	}
	if body.Ready || body.Recognizer != "warming" {
		t.Errorf("readyz body = %+v, want warming and not ready", body)
	}
}

func TestHost_MetricsEndpoint(t *testing.T) {
	rec := &backendmock.Recognizer{}
	ts := newTestHost(t, rec)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", resp.StatusCode)
	}
}
