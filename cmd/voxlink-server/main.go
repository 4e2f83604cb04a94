// Command voxlink-server is the voxlink transcription server. It exposes the
// websocket transcription endpoints together with health probes and a
// Prometheus metrics endpoint on a single listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxlink-ai/voxlink/internal/config"
	"github.com/voxlink-ai/voxlink/internal/health"
	"github.com/voxlink-ai/voxlink/internal/observe"
	"github.com/voxlink-ai/voxlink/internal/resilience"
	"github.com/voxlink-ai/voxlink/internal/server"
	"github.com/voxlink-ai/voxlink/internal/transcriptlog"
	"github.com/voxlink-ai/voxlink/pkg/backend"
	"github.com/voxlink-ai/voxlink/pkg/backend/openai"
	"github.com/voxlink-ai/voxlink/pkg/backend/whispercpp"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// A missing config file is not an error: containerized deployments run on
	// defaults plus environment overrides.
	cfg, err := config.Load(*configPath)
	fileLoaded := true
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		fileLoaded = false
		err = nil
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxlink-server: %v\n", err)
		return 1
	}
	if err := config.ApplyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "voxlink-server: %v\n", err)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("voxlink-server starting",
		"config", *configPath,
		"backend", cfg.Recognizer.Backend,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, shutdownObs, err := observe.Setup(ctx, observe.ProviderConfig{
		ServiceName: "voxlink-server",
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
	registerRecognizers(reg)

	rec, err := reg.CreateRecognizer(cfg.Recognizer)
	if err != nil {
		slog.Error("failed to create recognizer", "backend", cfg.Recognizer.Backend, "err", err)
		return 1
	}
	if len(cfg.Recognizer.Fallbacks) > 0 {
		failover := resilience.NewRecognizerFailover(cfg.Recognizer.Backend, rec, resilience.FailoverConfig{})
		for _, fb := range cfg.Recognizer.Fallbacks {
			fbRec, err := reg.CreateRecognizer(fb)
			if err != nil {
				slog.Error("failed to create fallback recognizer", "backend", fb.Backend, "err", err)
				return 1
			}
			failover.Add(fb.Backend, fbRec)
		}
		rec = failover
		slog.Info("recognizer failover enabled", "fallbacks", len(cfg.Recognizer.Fallbacks))
	}

	opts := []server.Option{server.WithLogger(logger), server.WithMetrics(metrics)}

	if dsn := cfg.Transcript.PostgresDSN; dsn != "" {
		store, err := transcriptlog.Open(ctx, dsn)
		if err != nil {
			slog.Error("failed to open transcript log", "err", err)
			return 1
		}
		defer store.Close()
		opts = append(opts,
			server.WithTranscriptStore(store),
			server.WithReadinessProbe(health.Probe{Name: "database", Check: store.Ping}),
		)
		slog.Info("transcript log enabled")
	}

	// Hot reload: only the log level can change without a restart on the
	// server side; everything else is bound at construction time.
	if fileLoaded {
		watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			changes := config.Diff(old, new)
			if changes.LogLevelChanged {
				logLevel.Set(slogLevel(changes.NewLogLevel))
				slog.Info("log level changed", "level", changes.NewLogLevel)
			}
			if changes.GateChanged || changes.PartialPacingChanged {
				slog.Warn("changed settings require a restart to take effect")
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	host := server.New(cfg, rec, opts...)
	defer host.Close()

	slog.Info("server ready, press Ctrl+C to shut down")
	if err := host.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerRecognizers wires the built-in recognizer factories into reg.
func registerRecognizers(reg *config.Registry) {
	reg.RegisterRecognizer("whispercpp", func(cfg config.RecognizerConfig) (backend.Recognizer, error) {
		var opts []whispercpp.Option
		if cfg.Language != "" {
			opts = append(opts, whispercpp.WithLanguage(cfg.Language))
		}
		return whispercpp.New(cfg.Model, opts...)
	})

	reg.RegisterRecognizer("openai", func(cfg config.RecognizerConfig) (backend.Recognizer, error) {
		var opts []openai.Option
		if cfg.Language != "" && cfg.Language != "auto" {
			opts = append(opts, openai.WithLanguage(cfg.Language))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(cfg.APIKey, cfg.Model, opts...)
	})
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
