// Command voxlink-client is the voxlink capture client. It reads raw mono
// little-endian float32 PCM frames from stdin, gates them through the
// configured VAD, ships utterances to the transcription server, and prints
// committed transcripts to stdout. Synthesized agent replies, when a TTS sink
// is configured, are written as raw audio to stdout as well.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxlink-ai/voxlink/internal/client"
	"github.com/voxlink-ai/voxlink/internal/config"
	"github.com/voxlink-ai/voxlink/internal/observe"
	"github.com/voxlink-ai/voxlink/pkg/audio"
	"github.com/voxlink-ai/voxlink/pkg/vad"
	"github.com/voxlink-ai/voxlink/pkg/vad/silero"
	"github.com/voxlink-ai/voxlink/pkg/vad/webrtc"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	fileLoaded := true
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		fileLoaded = false
		err = nil
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxlink-client: %v\n", err)
		return 1
	}
	if err := config.ApplyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "voxlink-client: %v\n", err)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("voxlink-client starting",
		"server", cfg.Client.ServerURL,
		"mode", cfg.Client.Mode,
		"vad", cfg.Gate.VADBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, shutdownObs, err := observe.Setup(ctx, observe.ProviderConfig{
		ServiceName: "voxlink-client",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObs(shCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerVADs(reg)

	engine, err := reg.CreateVAD(cfg.Gate)
	if err != nil {
		slog.Error("failed to create VAD engine", "backend", cfg.Gate.VADBackend, "err", err)
		return 1
	}
	det, err := engine.NewDetector(vad.Config{
		SampleRate:   cfg.Gate.SampleRate,
		FrameSamples: audio.MsToSamples(float64(cfg.Gate.FrameMs), cfg.Gate.SampleRate),
	})
	if err != nil {
		slog.Error("failed to create VAD detector", "err", err)
		return 1
	}

	opts := []client.Option{
		client.WithLogger(logger),
		client.WithMetrics(metrics),
		client.WithDisplay(func(text string) { fmt.Println(text) }),
	}

	switch {
	case cfg.Sinks.AgentURL != "":
		opts = append(opts, client.WithAgent(client.NewHTTPAgent(cfg.Sinks.AgentURL)))
		slog.Info("agent sink enabled", "url", cfg.Sinks.AgentURL)
	case cfg.Sinks.LLM.Provider != "":
		agent, err := client.NewLLMAgent(
			cfg.Sinks.LLM.Provider,
			cfg.Sinks.LLM.Model,
			cfg.Sinks.LLM.APIKey,
			cfg.Sinks.LLM.SystemPrompt,
		)
		if err != nil {
			slog.Error("failed to create LLM agent", "err", err)
			return 1
		}
		opts = append(opts, client.WithAgent(agent))
		slog.Info("llm sink enabled", "provider", cfg.Sinks.LLM.Provider, "model", cfg.Sinks.LLM.Model)
	}
	if cfg.Sinks.TTSURL != "" {
		sink := client.NewTTSSink(cfg.Sinks.TTSURL, cfg.Sinks.TTSVoice, &stdoutPlayer{})
		opts = append(opts, client.WithTTS(sink))
		slog.Info("tts sink enabled", "url", cfg.Sinks.TTSURL)
	}

	src := newStdinSource(os.Stdin, audio.MsToSamples(float64(cfg.Gate.FrameMs), cfg.Gate.SampleRate))
	defer src.Close()

	cl := client.New(cfg, src, det, opts...)

	// Hot reload: gate thresholds apply on the next frame; the rest needs a
	// restart.
	if fileLoaded {
		watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			changes := config.Diff(old, new)
			if changes.LogLevelChanged {
				logLevel.Set(slogLevel(changes.NewLogLevel))
				slog.Info("log level changed", "level", changes.NewLogLevel)
			}
			if changes.GateChanged {
				cl.ApplyGateConfig(new.Gate)
				slog.Info("gate settings reloaded")
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	slog.Info("client ready, press Ctrl+C to stop")
	if err := cl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerVADs wires the built-in VAD engine factories into reg.
func registerVADs(reg *config.Registry) {
	reg.RegisterVAD("webrtc", func(config.GateConfig) (vad.Engine, error) {
		return webrtc.NewEngine(), nil
	})
	reg.RegisterVAD("silero", func(config.GateConfig) (vad.Engine, error) {
		// Model path comes from SILERO_MODEL_PATH.
		return silero.NewEngine("")
	})
}

// stdinSource frames a raw little-endian float32 PCM stream.
type stdinSource struct {
	r            io.ReadCloser
	frameSamples int
	buf          []byte
}

func newStdinSource(r io.ReadCloser, frameSamples int) *stdinSource {
	if frameSamples <= 0 {
		frameSamples = 480
	}
	return &stdinSource{r: r, frameSamples: frameSamples, buf: make([]byte, frameSamples*4)}
}

func (s *stdinSource) ReadFrame(ctx context.Context) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(s.r, s.buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	frame := make([]float32, s.frameSamples)
	for i := range frame {
		frame[i] = math.Float32frombits(binary.LittleEndian.Uint32(s.buf[i*4:]))
	}
	return frame, nil
}

func (s *stdinSource) Close() error { return s.r.Close() }

// stdoutPlayer forwards synthesized audio to stdout for piping into an
// external playback tool.
type stdoutPlayer struct{}

func (stdoutPlayer) Play(_ context.Context, data []byte) error {
	_, err := os.Stdout.Write(data)
	return err
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
