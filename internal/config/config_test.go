package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mirrorbooth/mirrorbooth/pkg/normalize"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
	if cfg.Predict.PollInterval() != 1500*time.Millisecond {
		t.Errorf("poll interval %v", cfg.Predict.PollInterval())
	}
	if cfg.Predict.MaxAttempts != 120 {
		t.Errorf("max attempts %d", cfg.Predict.MaxAttempts)
	}
	if cfg.Normalizer.PolicyValue() != normalize.PolicyCorrect {
		t.Error("default policy must be correct")
	}
}

func TestPolicyValue(t *testing.T) {
	if (NormalizerConfig{Policy: "strip"}).PolicyValue() != normalize.PolicyStrip {
		t.Error("strip must map to PolicyStrip")
	}
	if (NormalizerConfig{Policy: "correct"}).PolicyValue() != normalize.PolicyCorrect {
		t.Error("correct must map to PolicyCorrect")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad policy", func(c *Config) { c.Normalizer.Policy = "maybe" }},
		{"quality too high", func(c *Config) { c.Normalizer.Quality = 101 }},
		{"quality zero", func(c *Config) { c.Normalizer.Quality = 0 }},
		{"empty base url", func(c *Config) { c.Predict.BaseURL = "" }},
		{"zero interval", func(c *Config) { c.Predict.PollIntervalMS = 0 }},
		{"zero attempts", func(c *Config) { c.Predict.MaxAttempts = 0 }},
		{"empty storage root", func(c *Config) { c.Storage.Root = "" }},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
	}

	for _, tt := range tests {
		cfg := Default()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Predict.ModelVersion = "abc123"
	cfg.Normalizer.Policy = "strip"
	cfg.Predict.Token = "secret"
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if loaded.Predict.ModelVersion != "abc123" {
		t.Errorf("model version %q", loaded.Predict.ModelVersion)
	}
	if loaded.Normalizer.Policy != "strip" {
		t.Errorf("policy %q", loaded.Normalizer.Policy)
	}
	if loaded.Predict.Token != "" {
		t.Error("the API token must never round-trip through the file")
	}
	// Fields absent from the file keep their defaults.
	if loaded.Predict.MaxAttempts != 120 {
		t.Errorf("max attempts %d", loaded.Predict.MaxAttempts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BOOTH_API_TOKEN", "tok-a")
	t.Setenv("REPLICATE_API_TOKEN", "tok-b")
	t.Setenv("DATABASE_URL", "postgres://localhost/booth")
	t.Setenv("BOOTH_MODEL_VERSION", "v9")

	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Predict.Token != "tok-a" {
		t.Errorf("BOOTH_API_TOKEN must win, got %q", cfg.Predict.Token)
	}
	if cfg.Database.DSN != "postgres://localhost/booth" {
		t.Errorf("dsn %q", cfg.Database.DSN)
	}
	if cfg.Predict.ModelVersion != "v9" {
		t.Errorf("model version %q", cfg.Predict.ModelVersion)
	}

	os.Unsetenv("BOOTH_API_TOKEN")
	cfg = Default()
	cfg.ApplyEnv()
	if cfg.Predict.Token != "tok-b" {
		t.Errorf("REPLICATE_API_TOKEN fallback, got %q", cfg.Predict.Token)
	}
}
