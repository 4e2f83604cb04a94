// Package config provides the configuration schema, loader, and file watcher
// for the voxlink server and client.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variable overrides. The environment layer exists so the
// server and client can run without any file in containerized deployments.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// ClientMode selects how the client ships finalized utterances.
type ClientMode string

const (
	// ModeBatch sends each complete utterance as one transcribe message.
	ModeBatch ClientMode = "batch"

	// ModeStreaming sends audio_frame messages as they are captured and a
	// vad_end marker when the utterance closes.
	ModeStreaming ClientMode = "streaming"
)

// IsValid reports whether m is a recognised client mode.
func (m ClientMode) IsValid() bool {
	return m == ModeBatch || m == ModeStreaming
}

// Strategy names a server-side conditioning strategy for streaming sessions.
type Strategy string

const (
	// StrategyPrompt conditions the recognizer on the previous transcript.
	StrategyPrompt Strategy = "prompt"

	// StrategyContext prepends trailing audio from the previous utterance.
	StrategyContext Strategy = "context"

	// StrategyHybrid applies both prompt and context conditioning.
	StrategyHybrid Strategy = "hybrid"
)

// IsValid reports whether s is a recognised strategy.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyPrompt, StrategyContext, StrategyHybrid:
		return true
	}
	return false
}

// Config is the root configuration structure shared by the voxlink server and
// client binaries. It is typically built with [Default] and refined via
// [Load] and [ApplyEnv].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Gate       GateConfig       `yaml:"gate"`
	Client     ClientConfig     `yaml:"client"`
	Sinks      SinksConfig      `yaml:"sinks"`
	Transcript TranscriptConfig `yaml:"transcript"`
}

// ServerConfig holds network, logging, and per-session settings for the
// voxlink server.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`

	// Port is the TCP port for the websocket and metrics endpoints.
	Port int `yaml:"port"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// PartialIntervalMs is the minimum spacing between partial emissions for
	// one streaming session.
	PartialIntervalMs int `yaml:"partial_interval_ms"`

	// PartialMaxMs bounds the trailing audio window submitted for a partial.
	PartialMaxMs int `yaml:"partial_max_ms"`

	// ContextOverlapMs is the duration of previous-utterance audio prepended
	// by context-using strategies.
	ContextOverlapMs int `yaml:"context_overlap_ms"`
}

// RecognizerConfig selects and configures the speech recognition backend.
type RecognizerConfig struct {
	// Backend selects the implementation: "whispercpp" or "openai".
	Backend string `yaml:"backend"`

	// Model is the model file path (whispercpp) or hosted model name (openai).
	Model string `yaml:"model"`

	// Language is the BCP-47 code passed to the backend, or "auto".
	Language string `yaml:"language"`

	// APIKey authenticates hosted backends. Usually supplied via
	// OPENAI_API_KEY rather than the file.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the hosted backend's endpoint, for
	// OpenAI-compatible servers.
	BaseURL string `yaml:"base_url"`

	// Fallbacks, when set, lists additional backends tried in order when the
	// primary fails. Fallback entries must not themselves carry fallbacks.
	Fallbacks []RecognizerConfig `yaml:"fallbacks,omitempty"`
}

// GateConfig holds the speech gate parameters used by the client capture
// loop. All thresholds are inclusive.
type GateConfig struct {
	// SampleRate is the capture rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// FrameMs is the capture frame duration in milliseconds.
	FrameMs int `yaml:"frame_ms"`

	// VADBackend selects the detector: "webrtc" or "silero".
	VADBackend string `yaml:"vad_backend"`

	// MinEnergy is the RMS level a frame must reach, in addition to a
	// positive VAD verdict, to count as speech.
	MinEnergy float64 `yaml:"min_energy"`

	// OnsetThreshold is the number of consecutive speech frames required to
	// open the gate.
	OnsetThreshold int `yaml:"onset_threshold"`

	// SilenceMs is the trailing silence that finalizes an utterance.
	SilenceMs int `yaml:"silence_ms"`

	// PauseMs is the shorter pause that cuts a streaming utterance without
	// closing the gate.
	PauseMs int `yaml:"pause_ms"`

	// MinSpeechMs is the shortest utterance worth sending.
	MinSpeechMs int `yaml:"min_speech_ms"`

	// MaxSpeechMs force-finalizes an utterance regardless of ongoing speech.
	MaxSpeechMs int `yaml:"max_speech_ms"`
}

// ClientConfig holds client targeting settings.
type ClientConfig struct {
	// ServerURL is the websocket base URL (e.g. "ws://localhost:8765").
	ServerURL string `yaml:"server_url"`

	// Mode selects batch or streaming delivery.
	Mode ClientMode `yaml:"mode"`

	// Strategy selects the streaming conditioning strategy. Ignored in batch
	// mode.
	Strategy Strategy `yaml:"strategy"`

	// ReconnectIntervalMs is the poll interval of the reconnect loop.
	ReconnectIntervalMs int `yaml:"reconnect_interval_ms"`
}

// SinksConfig configures the optional downstream consumers of accepted
// transcripts.
type SinksConfig struct {
	// AgentURL, when set, receives each accepted transcript via HTTP POST.
	AgentURL string `yaml:"agent_url"`

	// AgentCooldownMs suppresses agent dispatch for this long after each
	// reply, so the agent is not flooded while it is still responding.
	AgentCooldownMs int `yaml:"agent_cooldown_ms"`

	// LLM, when configured, routes transcripts to a chat model instead of a
	// plain HTTP agent. Mutually exclusive with AgentURL; AgentURL wins.
	LLM LLMSinkConfig `yaml:"llm"`

	// TTSURL, when set, is the websocket endpoint that speaks agent replies.
	TTSURL string `yaml:"tts_url"`

	// TTSVoice is the provider-specific voice identifier.
	TTSVoice string `yaml:"tts_voice"`

	// EchoThreshold is the Jaro-Winkler similarity above which a transcript
	// is discarded as an echo of the last spoken reply. Range (0, 1].
	EchoThreshold float64 `yaml:"echo_threshold"`
}

// LLMSinkConfig selects a chat model for the LLM agent sink.
type LLMSinkConfig struct {
	// Provider is the any-llm provider id (e.g. "openai", "anthropic",
	// "ollama").
	Provider string `yaml:"provider"`

	// Model is the provider-specific model name.
	Model string `yaml:"model"`

	// APIKey authenticates the provider if required.
	APIKey string `yaml:"api_key"`

	// SystemPrompt is prepended to every conversation.
	SystemPrompt string `yaml:"system_prompt"`
}

// TranscriptConfig configures the optional persistent transcript log.
type TranscriptConfig struct {
	// PostgresDSN is the connection string for the transcript database.
	// Empty disables persistence.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8765,
			LogLevel:          LogInfo,
			PartialIntervalMs: 500,
			PartialMaxMs:      3000,
			ContextOverlapMs:  1000,
		},
		Recognizer: RecognizerConfig{
			Backend:  "whispercpp",
			Language: "en",
		},
		Gate: GateConfig{
			SampleRate:     16000,
			FrameMs:        30,
			VADBackend:     "webrtc",
			MinEnergy:      0.005,
			OnsetThreshold: 3,
			SilenceMs:      1000,
			PauseMs:        400,
			MinSpeechMs:    200,
			MaxSpeechMs:    60000,
		},
		Client: ClientConfig{
			ServerURL:           "ws://localhost:8765",
			Mode:                ModeStreaming,
			Strategy:            StrategyHybrid,
			ReconnectIntervalMs: 5000,
		},
		Sinks: SinksConfig{
			AgentCooldownMs: 2000,
			EchoThreshold:   0.88,
		},
	}
}
