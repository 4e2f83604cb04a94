// Package server implements the voxlink transcription server: a websocket
// endpoint that accepts audio from clients and streams transcripts back.
//
// Two session shapes are served. Batch sessions receive complete utterances
// in transcribe messages and answer each with a result. Streaming sessions
// receive audio_frame messages as audio is captured, emit paced partial
// transcripts, and commit a final when the client sends vad_end. Streaming
// paths select a conditioning strategy that carries recognizer state across
// utterances.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxlink-ai/voxlink/internal/config"
	"github.com/voxlink-ai/voxlink/internal/health"
	"github.com/voxlink-ai/voxlink/internal/observe"
	"github.com/voxlink-ai/voxlink/internal/wire"
	"github.com/voxlink-ai/voxlink/pkg/backend"
)

// writeTimeout bounds a single websocket reply write.
const writeTimeout = 10 * time.Second

// shutdownTimeout bounds the HTTP graceful shutdown.
const shutdownTimeout = 10 * time.Second

// TranscriptStore persists accepted final transcripts. Implementations must
// be safe for concurrent use; a nil store disables persistence.
type TranscriptStore interface {
	Append(ctx context.Context, sessionID, text, language string, durationMs float64) error
}

// Host owns the HTTP listener and shared recognizer worker, and spawns one
// session per websocket connection.
type Host struct {
	cfg     *config.Config
	worker  *Worker
	metrics *observe.Metrics
	log     *slog.Logger
	store   TranscriptStore
	probes  []health.Probe
	health  *health.Handler
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(h *Host) { h.log = log }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

// WithTranscriptStore enables persistence of accepted finals.
func WithTranscriptStore(s TranscriptStore) Option {
	return func(h *Host) { h.store = s }
}

// WithReadinessProbe adds a named dependency probe to /readyz.
func WithReadinessProbe(p health.Probe) Option {
	return func(h *Host) { h.probes = append(h.probes, p) }
}

// New creates a Host serving the given recognizer.
func New(cfg *config.Config, rec backend.Recognizer, opts ...Option) *Host {
	h := &Host{
		cfg:    cfg,
		worker: NewWorker(rec, 1),
	}
	for _, o := range opts {
		o(h)
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	h.health = health.New(h.probes...)
	return h
}

// Handler returns the full HTTP surface: the websocket endpoints, health
// probes, and the Prometheus scrape endpoint.
func (h *Host) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/transcribe", h.handleBatch)
	mux.HandleFunc("GET /ws/transcribe/{strategy}", h.handleStreaming)

	// Only the plain HTTP routes are instrumented; the websocket upgrade
	// needs the raw ResponseWriter for hijacking.
	mux.Handle("GET /healthz", observe.Instrument(h.metrics, "/healthz", http.HandlerFunc(h.health.Healthz)))
	mux.Handle("GET /readyz", observe.Instrument(h.metrics, "/readyz", http.HandlerFunc(h.health.Readyz)))
	mux.Handle("GET /metrics", observe.Instrument(h.metrics, "/metrics", promhttp.Handler()))
	return mux
}

// Run warms up the recognizer and serves until ctx is cancelled. A warmup
// failure is fatal: a recognizer that cannot transcribe silence cannot serve.
func (h *Host) Run(ctx context.Context) error {
	if err := h.worker.Warmup(ctx, h.cfg.Gate.SampleRate); err != nil {
		return err
	}
	h.log.Info("recognizer warmed up", slog.String("backend", h.cfg.Recognizer.Backend))
	h.health.MarkWarm()

	addr := net.JoinHostPort(h.cfg.Server.Host, strconv.Itoa(h.cfg.Server.Port))
	srv := &http.Server{
		Addr:    addr,
		Handler: h.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.log.Info("listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shCtx)
	})
	return g.Wait()
}

// Close releases the recognizer.
func (h *Host) Close() error { return h.worker.Close() }

func (h *Host) handleBatch(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("websocket accept failed", slog.Any("error", err))
		return
	}
	c.SetReadLimit(wire.MaxMessageSize)
	h.serve(r.Context(), c, batchStrategy, true)
}

func (h *Host) handleStreaming(w http.ResponseWriter, r *http.Request) {
	name := config.Strategy(r.PathValue("strategy"))
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("websocket accept failed", slog.Any("error", err))
		return
	}
	c.SetReadLimit(wire.MaxMessageSize)

	strat, err := StrategyFor(name)
	if err != nil {
		c.Close(websocket.StatusPolicyViolation, "unknown strategy: "+string(name))
		return
	}
	h.serve(r.Context(), c, strat, false)
}

// serve runs one session's read loop until the connection drops. Malformed
// messages are skipped with a log line; recognizer failures are logged and
// counted but never reported in-band. The session is the fault isolation
// boundary: nothing that happens here affects other connections.
func (h *Host) serve(ctx context.Context, c *websocket.Conn, strat Strategy, batch bool) {
	defer c.CloseNow()

	sessionID := newSessionID()
	log := h.log.With(
		slog.String("session_id", sessionID),
		slog.String("strategy", strat.Name),
	)
	h.metrics.ActiveSessions.Add(ctx, 1)
	defer h.metrics.ActiveSessions.Add(ctx, -1)
	log.Info("session opened")
	defer log.Info("session closed")

	sess := NewSession(h.cfg.Server, strat, h.worker, h.metrics, log)

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		msg, err := wire.ParseClientMessage(data)
		if err != nil {
			log.Warn("skipping malformed message", slog.Any("error", err))
			continue
		}

		msgCtx := ctx
		if msg.Traceparent != "" {
			if tc, err := observe.ContextWithTraceparent(ctx, msg.Traceparent); err == nil {
				msgCtx = tc
			}
		}

		switch {
		case !batch && msg.Type == wire.TypeAudioFrame:
			samples, err := wire.DecodeAudio(msg.Audio)
			if err != nil || msg.SampleRate <= 0 {
				log.Warn("skipping bad audio frame", slog.Any("error", err))
				continue
			}
			sess.AddFrame(msgCtx, samples, msg.SampleRate)

			out, ok, err := sess.MaybePartial(msgCtx)
			if err != nil {
				log.Error("partial transcription failed", slog.Any("error", err))
				h.metrics.RecordBackendError(msgCtx, h.cfg.Recognizer.Backend)
				continue
			}
			if ok {
				payload, _ := wire.Partial(out.Text, out.ProcessingMs, msg.Traceparent)
				if err := h.write(msgCtx, c, payload); err != nil {
					return
				}
				h.metrics.PartialsEmitted.Add(msgCtx, 1)
			}

		case !batch && msg.Type == wire.TypeVADEnd:
			out, err := sess.Final(msgCtx)
			if err != nil {
				log.Error("final transcription failed", slog.Any("error", err))
				h.metrics.RecordBackendError(msgCtx, h.cfg.Recognizer.Backend)
				continue
			}
			if err := h.reply(msgCtx, c, sessionID, out, msg.Traceparent, false, log); err != nil {
				return
			}

		case batch && msg.Type == wire.TypeTranscribe:
			samples, err := wire.DecodeAudio(msg.Audio)
			if err != nil || msg.SampleRate <= 0 {
				log.Warn("skipping bad transcribe request", slog.Any("error", err))
				continue
			}
			id := sessionID
			if msg.SessionID != "" {
				id = msg.SessionID
			}
			out, err := sess.Batch(msgCtx, samples, msg.SampleRate)
			if err != nil {
				log.Error("batch transcription failed", slog.Any("error", err))
				h.metrics.RecordBackendError(msgCtx, h.cfg.Recognizer.Backend)
				continue
			}
			if err := h.reply(msgCtx, c, id, out, msg.Traceparent, true, log); err != nil {
				return
			}

		default:
			log.Warn("skipping unsupported message type", slog.String("type", msg.Type))
		}
	}
}

// reply sends the outcome of a finalization. Streaming sessions answer a
// rejection with an empty final so the client's flow is uniform; batch
// sessions get an explicit noise message carrying the rejected text.
func (h *Host) reply(ctx context.Context, c *websocket.Conn, sessionID string, out FinalOutcome, traceparent string, batch bool, log *slog.Logger) error {
	var (
		payload []byte
		err     error
	)
	switch {
	case out.Rejected && batch:
		payload, err = wire.Noise(out.Sample, traceparent)
	case out.Rejected:
		payload, err = wire.Final("", nil, "", out.ProcessingMs, traceparent, false)
	default:
		payload, err = wire.Final(out.Text, toWireSegments(out.Segments), out.Language, out.ProcessingMs, traceparent, batch)
	}
	if err != nil {
		return err
	}
	if err := h.write(ctx, c, payload); err != nil {
		return err
	}

	if !out.Rejected {
		mode := "streaming"
		if batch {
			mode = "batch"
		}
		h.metrics.RecordFinal(ctx, mode)
		h.persist(ctx, sessionID, out, log)
	}
	return nil
}

// persist appends an accepted, non-empty final to the transcript store.
// Store failures are logged and otherwise ignored; persistence is best
// effort and never blocks the transcript flow.
func (h *Host) persist(ctx context.Context, sessionID string, out FinalOutcome, log *slog.Logger) {
	if h.store == nil || out.Text == "" {
		return
	}
	if err := h.store.Append(ctx, sessionID, out.Text, out.Language, out.DurationMs); err != nil {
		log.Warn("transcript persistence failed", slog.Any("error", err))
	}
}

func (h *Host) write(ctx context.Context, c *websocket.Conn, payload []byte) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(wctx, websocket.MessageText, payload)
}

func toWireSegments(segments []backend.Segment) []wire.Segment {
	out := make([]wire.Segment, len(segments))
	for i, s := range segments {
		out[i] = wire.Segment{Start: s.Start, End: s.End, Text: s.Text}
	}
	return out
}

// newSessionID returns a short random hex identifier for log correlation.
func newSessionID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}
