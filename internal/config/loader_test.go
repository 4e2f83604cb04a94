package config_test

import (
	"testing"

	"github.com/voxlink-ai/voxlink/internal/config"
)

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("WHISPER_BACKEND", "openai")
	t.Setenv("WHISPER_MODEL", "whisper-1")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VAD_BACKEND", "silero")
	t.Setenv("MIN_ENERGY", "0.02")
	t.Setenv("CLIENT_MODE", "batch")
	t.Setenv("LOG_LEVEL", "warn")

	cfg := config.Default()
	if err := config.ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("PORT: got %d", cfg.Server.Port)
	}
	if cfg.Recognizer.Backend != "openai" || cfg.Recognizer.Model != "whisper-1" {
		t.Errorf("recognizer: got %+v", cfg.Recognizer)
	}
	if cfg.Gate.VADBackend != "silero" || cfg.Gate.MinEnergy != 0.02 {
		t.Errorf("gate: got %+v", cfg.Gate)
	}
	if cfg.Client.Mode != config.ModeBatch {
		t.Errorf("CLIENT_MODE: got %q", cfg.Client.Mode)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("LOG_LEVEL: got %q", cfg.Server.LogLevel)
	}
}

func TestApplyEnv_UnsetLeavesDefaults(t *testing.T) {
	cfg := config.Default()
	want := *cfg
	if err := config.ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Server != want.Server || cfg.Gate != want.Gate {
		t.Error("ApplyEnv without variables must not change the config")
	}
}

func TestApplyEnv_BadInteger(t *testing.T) {
	t.Setenv("PORT", "eighty")
	cfg := config.Default()
	if err := config.ApplyEnv(cfg); err == nil {
		t.Error("non-integer PORT should fail")
	}
}

func TestApplyEnv_InvalidResultFailsValidation(t *testing.T) {
	t.Setenv("VAD_BACKEND", "made-up")
	cfg := config.Default()
	if err := config.ApplyEnv(cfg); err == nil {
		t.Error("invalid override should fail validation")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load("/nonexistent/voxlink.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
