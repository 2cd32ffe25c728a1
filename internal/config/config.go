package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig
	Model     ModelConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Ingest    IngestConfig
	Log       LogConfig
	API       APIConfig
}

type ServerConfig struct {
	Port int
}

type ModelConfig struct {
	BaseURL       string
	GenerateModel string
	ClassifyModel string
	EmbedModel    string
	CallTimeout   string
	MaxConcurrent int
	MaxRetries    int
}

type StorageConfig struct {
	// Backend selects the similarity index implementation: "memory" or
	// "sqlite".
	Backend string
	DSN     string
}

type RetrievalConfig struct {
	TopK     int
	MinScore float64
}

type IngestConfig struct {
	QueueSize int
}

type LogConfig struct {
	Level string
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Model: ModelConfig{
			BaseURL:       "http://localhost:11434",
			GenerateModel: "mistral-nemo",
			ClassifyModel: "phi3.5",
			EmbedModel:    "nomic-embed-text",
			CallTimeout:   "30s",
			MaxConcurrent: 4,
			MaxRetries:    3,
		},
		Storage: StorageConfig{
			Backend: "memory",
			DSN:     ":memory:",
		},
		Retrieval: RetrievalConfig{
			TopK:     5,
			MinScore: 0.0,
		},
		Ingest: IngestConfig{
			QueueSize: 64,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/mcpd/config.json with environment variable (MCPD_*)
// overrides. Secrets (the API token) come from the environment only.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Storage.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown storage backend %q (expected memory or sqlite)", c.Storage.Backend)
	}
	if _, err := time.ParseDuration(c.Model.CallTimeout); err != nil {
		return fmt.Errorf("invalid model call timeout %q: %w", c.Model.CallTimeout, err)
	}
	return nil
}

// ModelCallTimeout returns the parsed call timeout. validate guarantees
// the string parses.
func (c Config) ModelCallTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Model.CallTimeout)
	return d
}
