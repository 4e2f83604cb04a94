// Package client implements the voxlink capture client: a speech gate over a
// VAD detector, delivery of gated utterances to the transcription server in
// batch or streaming mode, and the optional downstream sinks (conversation
// agent, TTS playback, echo suppression).
package client

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/voxlink-ai/voxlink/internal/config"
	"github.com/voxlink-ai/voxlink/internal/observe"
	"github.com/voxlink-ai/voxlink/internal/wire"
	"github.com/voxlink-ai/voxlink/pkg/vad"
)

const (
	// agentTimeout bounds one agent round trip.
	agentTimeout = 60 * time.Second

	// batchReplyTimeout bounds the wait for a batch transcription result.
	batchReplyTimeout = 60 * time.Second

	// writeTimeout bounds a single websocket send.
	writeTimeout = 10 * time.Second
)

// errCaptureDone signals that the audio source drained cleanly.
var errCaptureDone = errors.New("client: capture source closed")

// Source produces fixed-duration mono float32 PCM frames at the configured
// sample rate. ReadFrame blocks until a frame is available and returns
// io.EOF when the source is exhausted.
type Source interface {
	ReadFrame(ctx context.Context) ([]float32, error)
	Close() error
}

// Client runs the capture loop: frames from the source pass through the
// speech gate, gated utterances go to the server, and accepted transcripts
// feed the configured sinks.
type Client struct {
	cfg       *config.Config
	src       Source
	gate      *Gate
	log       *slog.Logger
	metrics   *observe.Metrics
	agent     Agent
	tts       *TTSSink
	echo      *EchoSuppressor
	stats     *LatencyStats
	display   func(text string)
	sessionID string

	conn *connManager

	mu            sync.Mutex
	cooldownUntil time.Time
	resetGate     bool
	pendingGate   *config.GateConfig

	// streaming per-utterance reply state
	texts           []string
	pendingFinals   int
	utteranceClosed bool
}

// Option customises a Client.
type Option func(*Client)

// WithAgent routes accepted transcripts to agent.
func WithAgent(agent Agent) Option {
	return func(c *Client) { c.agent = agent }
}

// WithTTS speaks agent replies through sink. The sink inherits the client's
// session id for correlation.
func WithTTS(sink *TTSSink) Option {
	return func(c *Client) {
		sink.sessionID = c.sessionID
		c.tts = sink
	}
}

// WithLogger sets the client logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDisplay sets the transcript display callback. Defaults to logging.
func WithDisplay(fn func(text string)) Option {
	return func(c *Client) { c.display = fn }
}

// New creates a client over the given source and detector. The client takes
// ownership of the detector.
func New(cfg *config.Config, src Source, det vad.Detector, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg,
		src:       src,
		gate:      NewGate(cfg.Gate, det),
		echo:      NewEchoSuppressor(cfg.Sinks.EchoThreshold),
		stats:     &LatencyStats{},
		sessionID: newSessionID(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.display == nil {
		c.display = func(text string) { c.log.Info("transcript", "text", text) }
	}

	c.conn = newConnManager(c.endpointURL(), time.Duration(cfg.Client.ReconnectIntervalMs)*time.Millisecond, c.log)
	if cfg.Client.Mode == config.ModeStreaming {
		c.conn.onOpen = c.onConnect
	}
	return c
}

// Stats exposes the latency aggregate, e.g. for a shutdown summary.
func (c *Client) Stats() *LatencyStats { return c.stats }

// Connected reports whether the server connection is currently up.
func (c *Client) Connected() bool { return c.conn.get() != nil }

// ApplyGateConfig schedules new gate parameters. They take effect on the
// next captured frame; any in-progress utterance is discarded.
func (c *Client) ApplyGateConfig(g config.GateConfig) {
	c.mu.Lock()
	c.pendingGate = &g
	c.mu.Unlock()
}

// Run captures, gates, and delivers until ctx is cancelled or the source is
// exhausted. It owns the reconnect loop for the server connection.
func (c *Client) Run(ctx context.Context) error {
	defer c.gate.Close()

	frames := make(chan []float32, 32)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.capture(ctx, frames) })
	g.Go(func() error { return c.conn.run(ctx) })
	g.Go(func() error { return c.process(ctx, frames) })

	err := g.Wait()
	c.log.Info("session summary", "latency", c.stats.Summary())
	if errors.Is(err, context.Canceled) || errors.Is(err, errCaptureDone) {
		return nil
	}
	return err
}

// capture reads frames from the source in its own goroutine so a blocking
// device read cannot stall delivery.
func (c *Client) capture(ctx context.Context, frames chan<- []float32) error {
	for {
		frame, err := c.src.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errCaptureDone
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("client: read frame: %w", err)
		}
		if len(frame) == 0 {
			continue
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) process(ctx context.Context, frames <-chan []float32) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-frames:
			c.handleFrame(ctx, frame)
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, frame []float32) {
	c.mu.Lock()
	if g := c.pendingGate; g != nil {
		c.gate.SetConfig(*g)
		c.pendingGate = nil
	}
	reset := c.resetGate
	c.resetGate = false
	cooling := time.Now().Before(c.cooldownUntil)
	c.mu.Unlock()

	if reset {
		c.gate.Reset()
		c.resetReplies()
	}
	if cooling {
		// The microphone hears the TTS output; swallow it.
		c.gate.Reset()
		return
	}

	ev, err := c.gate.Feed(frame)
	if err != nil {
		c.log.Warn("vad error", "err", err)
		return
	}

	if c.cfg.Client.Mode == config.ModeStreaming {
		c.handleStreamingEvent(ctx, ev)
	} else {
		c.handleBatchEvent(ctx, ev)
	}
}

// handleStreamingEvent forwards gated audio live and marks utterance
// boundaries with vad_end.
func (c *Client) handleStreamingEvent(ctx context.Context, ev Event) {
	conn := c.conn.get()
	if len(ev.Send) > 0 {
		if conn == nil {
			c.log.Debug("dropping audio while disconnected")
		} else if err := c.write(ctx, conn, wire.AudioFrame(ev.Send, c.cfg.Gate.SampleRate)); err != nil {
			c.log.Warn("send frame failed", "err", err)
			c.conn.drop(conn)
			conn = nil
		}
	}
	if !ev.Cut && !ev.Final {
		return
	}

	if ev.Final {
		// The audio already went out frame by frame; Take just resets the
		// gate for the next utterance.
		c.gate.Take()
	}
	if conn == nil {
		if ev.Final {
			c.log.Warn("utterance dropped while disconnected")
			c.resetReplies()
		}
		return
	}
	// Account for the reply before the marker goes out, so a fast final
	// cannot race the bookkeeping.
	c.mu.Lock()
	c.pendingFinals++
	if ev.Final {
		c.utteranceClosed = true
	}
	c.mu.Unlock()

	if err := c.write(ctx, conn, wire.VADEnd()); err != nil {
		c.log.Warn("send vad_end failed", "err", err)
		c.conn.drop(conn)
		if ev.Final {
			c.resetReplies()
		} else {
			c.mu.Lock()
			c.pendingFinals--
			c.mu.Unlock()
		}
	}
}

// handleBatchEvent ships one complete utterance and waits for its result.
func (c *Client) handleBatchEvent(ctx context.Context, ev Event) {
	if !ev.Final {
		return
	}
	utt := c.gate.Take()
	if !utt.Sendable {
		c.log.Debug("utterance discarded",
			"duration_ms", utt.DurationMs,
			"avg_energy", utt.AvgEnergy,
		)
		return
	}

	conn := c.conn.get()
	if conn == nil {
		c.log.Warn("utterance dropped while disconnected")
		return
	}
	msg := wire.Transcribe(utt.Samples, c.cfg.Gate.SampleRate, c.sessionID, observe.Traceparent(ctx))
	if err := c.write(ctx, conn, msg); err != nil {
		c.log.Warn("send utterance failed", "err", err)
		c.conn.drop(conn)
		return
	}

	rctx, cancel := context.WithTimeout(ctx, batchReplyTimeout)
	defer cancel()
	_, data, err := conn.Read(rctx)
	if err != nil {
		c.log.Warn("no transcription reply", "err", err)
		c.conn.drop(conn)
		return
	}
	reply, err := wire.ParseServerMessage(data)
	if err != nil {
		c.log.Warn("bad server message", "err", err)
		return
	}
	switch reply.Type {
	case wire.TypeResult, wire.TypeFinal:
		c.stats.Record(reply.ProcessingTimeMs)
		if reply.Text != "" {
			c.completeUtterance(ctx, reply.Text)
		}
	case wire.TypeNoise:
		c.log.Debug("noise rejected", "sample", reply.Sample)
	default:
		c.log.Debug("unhandled server message", "type", reply.Type)
	}
}

// onConnect runs for every opened streaming connection. Session state on the
// server is fresh, so local reply accounting starts over too.
func (c *Client) onConnect(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.resetGate = true
	c.mu.Unlock()
	c.readLoop(ctx, conn)
}

// readLoop consumes server replies for one streaming connection.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.conn.drop(conn)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("connection lost", "err", err)
			}
			return
		}
		msg, err := wire.ParseServerMessage(data)
		if err != nil {
			c.log.Warn("bad server message", "err", err)
			continue
		}
		c.handleServerMessage(ctx, msg)
	}
}

func (c *Client) handleServerMessage(ctx context.Context, msg wire.ServerMessage) {
	switch msg.Type {
	case wire.TypePartial:
		c.stats.Record(msg.ProcessingTimeMs)
		if msg.Text != "" {
			c.log.Debug("partial", "text", msg.Text)
		}
	case wire.TypeFinal:
		c.stats.Record(msg.ProcessingTimeMs)

		// One final arrives per vad_end. The utterance completes when the
		// last outstanding final lands after the gate closed; its text is
		// the pause-cut pieces joined in order.
		c.mu.Lock()
		if msg.Text != "" {
			c.texts = append(c.texts, msg.Text)
		}
		if c.pendingFinals > 0 {
			c.pendingFinals--
		}
		done := c.utteranceClosed && c.pendingFinals == 0
		var joined string
		if done {
			joined = strings.Join(c.texts, " ")
			c.texts = nil
			c.utteranceClosed = false
		}
		c.mu.Unlock()

		if done && joined != "" {
			c.completeUtterance(ctx, joined)
		}
	default:
		c.log.Debug("unhandled server message", "type", msg.Type)
	}
}

// completeUtterance displays a committed transcript and drives the sinks.
func (c *Client) completeUtterance(ctx context.Context, text string) {
	c.display(text)

	if c.echo.IsEcho(text) {
		c.log.Debug("suppressed echo", "text", text)
		return
	}
	if c.agent == nil {
		return
	}

	reply, err := c.dispatchAgent(ctx, text)
	if err != nil {
		c.log.Warn("agent error", "err", err)
		return
	}
	if reply == "" {
		return
	}
	c.log.Info("agent reply", "text", reply)
	c.echo.NoteSpoken(reply)
	c.startCooldown()

	if c.tts != nil {
		start := time.Now()
		err := c.tts.Speak(ctx, reply)
		c.metrics.SinkDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("sink", "tts")))
		if err != nil {
			c.log.Warn("tts error", "err", err)
		}
		// Playback just finished; restart the cooldown so its echo tail is
		// covered as well.
		c.startCooldown()
	}
}

func (c *Client) dispatchAgent(ctx context.Context, text string) (string, error) {
	actx, cancel := context.WithTimeout(ctx, agentTimeout)
	defer cancel()
	start := time.Now()
	reply, err := c.agent.Reply(actx, text)
	c.metrics.SinkDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("sink", "agent")))
	return reply, err
}

func (c *Client) startCooldown() {
	d := time.Duration(c.cfg.Sinks.AgentCooldownMs) * time.Millisecond
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.cooldownUntil = time.Now().Add(d)
	c.mu.Unlock()
}

func (c *Client) resetReplies() {
	c.mu.Lock()
	c.texts = nil
	c.pendingFinals = 0
	c.utteranceClosed = false
	c.mu.Unlock()
}

func (c *Client) write(ctx context.Context, conn *websocket.Conn, msg wire.ClientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("client: encode message: %w", err)
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}

func (c *Client) endpointURL() string {
	base := strings.TrimRight(c.cfg.Client.ServerURL, "/")
	if c.cfg.Client.Mode == config.ModeStreaming {
		return base + "/ws/transcribe/" + string(c.cfg.Client.Strategy)
	}
	return base + "/ws/transcribe"
}

func newSessionID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}
