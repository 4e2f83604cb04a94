package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

// validRecognizerBackends lists known recognizer backend names.
var validRecognizerBackends = []string{"whispercpp", "openai"}

// validVADBackends lists known VAD backend names.
var validVADBackends = []string{"webrtc", "silero"}

// Load reads the YAML configuration file at path on top of the built-in
// defaults and returns a validated [Config]. Environment overrides are not
// applied here; call [ApplyEnv] afterwards.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays recognized environment variables onto cfg and
// re-validates. Unset variables leave the corresponding field untouched.
func ApplyEnv(cfg *Config) error {
	var errs []error

	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		v, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s=%q is not an integer", key, v))
			return
		}
		*dst = n
	}
	setFloat := func(key string, dst *float64) {
		v, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s=%q is not a number", key, v))
			return
		}
		*dst = f
	}

	setString("HOST", &cfg.Server.Host)
	setInt("PORT", &cfg.Server.Port)
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.Server.LogLevel = LogLevel(v)
	}
	setInt("PARTIAL_INTERVAL_MS", &cfg.Server.PartialIntervalMs)

	setString("WHISPER_BACKEND", &cfg.Recognizer.Backend)
	setString("WHISPER_MODEL", &cfg.Recognizer.Model)
	setString("OPENAI_API_KEY", &cfg.Recognizer.APIKey)

	setString("VAD_BACKEND", &cfg.Gate.VADBackend)
	setFloat("MIN_ENERGY", &cfg.Gate.MinEnergy)
	setInt("SILENCE_MS", &cfg.Gate.SilenceMs)
	setInt("PAUSE_MS", &cfg.Gate.PauseMs)
	setInt("MAX_SPEECH_MS", &cfg.Gate.MaxSpeechMs)

	setString("SERVER_URL", &cfg.Client.ServerURL)
	if v, ok := os.LookupEnv("CLIENT_MODE"); ok {
		cfg.Client.Mode = ClientMode(v)
	}
	if v, ok := os.LookupEnv("STRATEGY"); ok {
		cfg.Client.Strategy = Strategy(v)
	}

	setString("AGENT_URL", &cfg.Sinks.AgentURL)
	setInt("AGENT_COOLDOWN_MS", &cfg.Sinks.AgentCooldownMs)
	setString("AGENT_PROVIDER", &cfg.Sinks.LLM.Provider)
	setString("AGENT_MODEL", &cfg.Sinks.LLM.Model)
	setString("AGENT_API_KEY", &cfg.Sinks.LLM.APIKey)
	setString("TTS_URL", &cfg.Sinks.TTSURL)
	setString("TTS_VOICE", &cfg.Sinks.TTSVoice)

	setString("TRANSCRIPT_DB_DSN", &cfg.Transcript.PostgresDSN)

	if err := errors.Join(errs...); err != nil {
		return err
	}
	return Validate(cfg)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port))
	}
	if cfg.Server.PartialIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("server.partial_interval_ms must be positive"))
	}
	if cfg.Server.PartialMaxMs <= 0 {
		errs = append(errs, fmt.Errorf("server.partial_max_ms must be positive"))
	}
	if cfg.Server.ContextOverlapMs < 0 {
		errs = append(errs, fmt.Errorf("server.context_overlap_ms must not be negative"))
	}

	if !slices.Contains(validRecognizerBackends, cfg.Recognizer.Backend) {
		errs = append(errs, fmt.Errorf("recognizer.backend %q is invalid; valid values: whispercpp, openai", cfg.Recognizer.Backend))
	}
	if cfg.Recognizer.Backend == "openai" && cfg.Recognizer.APIKey == "" {
		errs = append(errs, fmt.Errorf("recognizer.backend openai requires an API key (OPENAI_API_KEY)"))
	}

	if !slices.Contains(validVADBackends, cfg.Gate.VADBackend) {
		errs = append(errs, fmt.Errorf("gate.vad_backend %q is invalid; valid values: webrtc, silero", cfg.Gate.VADBackend))
	}
	if cfg.Gate.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("gate.sample_rate must be positive"))
	}
	if cfg.Gate.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("gate.frame_ms must be positive"))
	}
	if cfg.Gate.MinEnergy < 0 {
		errs = append(errs, fmt.Errorf("gate.min_energy must not be negative"))
	}
	if cfg.Gate.OnsetThreshold < 1 {
		errs = append(errs, fmt.Errorf("gate.onset_threshold must be at least 1"))
	}
	if cfg.Gate.SilenceMs <= 0 || cfg.Gate.PauseMs <= 0 {
		errs = append(errs, fmt.Errorf("gate.silence_ms and gate.pause_ms must be positive"))
	}
	if cfg.Gate.PauseMs > cfg.Gate.SilenceMs {
		errs = append(errs, fmt.Errorf("gate.pause_ms %d must not exceed gate.silence_ms %d", cfg.Gate.PauseMs, cfg.Gate.SilenceMs))
	}
	if cfg.Gate.MinSpeechMs < 0 {
		errs = append(errs, fmt.Errorf("gate.min_speech_ms must not be negative"))
	}
	if cfg.Gate.MaxSpeechMs <= cfg.Gate.MinSpeechMs {
		errs = append(errs, fmt.Errorf("gate.max_speech_ms %d must exceed gate.min_speech_ms %d", cfg.Gate.MaxSpeechMs, cfg.Gate.MinSpeechMs))
	}

	if cfg.Client.Mode != "" && !cfg.Client.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("client.mode %q is invalid; valid values: batch, streaming", cfg.Client.Mode))
	}
	if cfg.Client.Mode == ModeStreaming && !cfg.Client.Strategy.IsValid() {
		errs = append(errs, fmt.Errorf("client.strategy %q is invalid; valid values: prompt, context, hybrid", cfg.Client.Strategy))
	}
	if cfg.Client.ReconnectIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("client.reconnect_interval_ms must be positive"))
	}

	if cfg.Sinks.EchoThreshold < 0 || cfg.Sinks.EchoThreshold > 1 {
		errs = append(errs, fmt.Errorf("sinks.echo_threshold %.2f is out of range [0, 1]", cfg.Sinks.EchoThreshold))
	}
	if cfg.Sinks.AgentCooldownMs < 0 {
		errs = append(errs, fmt.Errorf("sinks.agent_cooldown_ms must not be negative"))
	}
	if cfg.Sinks.LLM.Provider != "" && cfg.Sinks.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("sinks.llm.model is required when sinks.llm.provider is set"))
	}

	return errors.Join(errs...)
}
