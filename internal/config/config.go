// Package config holds the application configuration for the booth binaries.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mirrorbooth/mirrorbooth/pkg/normalize"
)

// Config holds the application configuration.
type Config struct {
	Normalizer NormalizerConfig `json:"normalizer"`
	Predict    PredictConfig    `json:"predict"`
	Storage    StorageConfig    `json:"storage"`
	Ollama     OllamaConfig     `json:"ollama"`
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
}

// NormalizerConfig holds configuration for photo normalization.
type NormalizerConfig struct {
	Policy  string `json:"policy"` // "correct" or "strip"
	Quality int    `json:"quality"`
}

// PolicyValue maps the configured policy name onto the normalizer policy.
func (c NormalizerConfig) PolicyValue() normalize.Policy {
	if c.Policy == "strip" {
		return normalize.PolicyStrip
	}
	return normalize.PolicyCorrect
}

// PredictConfig holds configuration for the prediction API client. The API
// token is environment-only and never written to the config file.
type PredictConfig struct {
	BaseURL        string `json:"base_url"`
	ModelVersion   string `json:"model_version"`
	PollIntervalMS int    `json:"poll_interval_ms"`
	MaxAttempts    int    `json:"max_attempts"`
	Token          string `json:"-"`
}

// PollInterval returns the poll cadence as a duration.
func (c PredictConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// StorageConfig holds configuration for the blob store.
type StorageConfig struct {
	Root    string `json:"root"`
	BaseURL string `json:"base_url"`
}

// OllamaConfig holds configuration for the prompt suggester.
type OllamaConfig struct {
	URL   string `json:"url"`
	Model string `json:"model"`
}

// DatabaseConfig holds the record-store connection. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN string `json:"-"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Normalizer: NormalizerConfig{
			Policy:  "correct",
			Quality: 85,
		},
		Predict: PredictConfig{
			BaseURL:        "https://api.replicate.com/v1",
			PollIntervalMS: 1500,
			MaxAttempts:    120,
		},
		Storage: StorageConfig{
			Root:    "./data",
			BaseURL: "http://localhost:8080/files",
		},
		Ollama: OllamaConfig{
			URL:   "http://localhost:11434",
			Model: "llava",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// LoadFromFile loads configuration from a JSON file, on top of defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file.
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overlays environment variables on top of the file values. The
// binaries load .env files before calling this.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("BOOTH_API_TOKEN"); v != "" {
		c.Predict.Token = v
	} else if v := os.Getenv("REPLICATE_API_TOKEN"); v != "" {
		c.Predict.Token = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("BOOTH_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("BOOTH_MODEL_VERSION"); v != "" {
		c.Predict.ModelVersion = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Normalizer.Policy != "correct" && c.Normalizer.Policy != "strip" {
		return fmt.Errorf("normalizer.policy must be \"correct\" or \"strip\"")
	}

	if c.Normalizer.Quality < 1 || c.Normalizer.Quality > 100 {
		return fmt.Errorf("normalizer.quality must be between 1 and 100")
	}

	if c.Predict.BaseURL == "" {
		return fmt.Errorf("predict.base_url cannot be empty")
	}

	if c.Predict.PollIntervalMS < 1 {
		return fmt.Errorf("predict.poll_interval_ms must be positive")
	}

	if c.Predict.MaxAttempts < 1 {
		return fmt.Errorf("predict.max_attempts must be positive")
	}

	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root cannot be empty")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	return nil
}

// GetConfigPath returns the default configuration file path.
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "mirrorbooth", "config.json")
}
