package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "MCPD_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "model.base_url", typ: kString, env: "MCPD_MODEL_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Model.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.BaseURL },
	},
	{
		key: "model.generate_model", typ: kString, env: "MCPD_MODEL_GENERATE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Model.GenerateModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.GenerateModel },
	},
	{
		key: "model.classify_model", typ: kString, env: "MCPD_MODEL_CLASSIFY_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Model.ClassifyModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.ClassifyModel },
	},
	{
		key: "model.embed_model", typ: kString, env: "MCPD_MODEL_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Model.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.EmbedModel },
	},
	{
		key: "model.call_timeout", typ: kString, env: "MCPD_MODEL_CALL_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Model.CallTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.CallTimeout },
	},
	{
		key: "model.max_concurrent", typ: kInt, env: "MCPD_MODEL_MAX_CONCURRENT",
		apply:   func(cfg *Config, v any) { cfg.Model.MaxConcurrent = v.(int) },
		extract: func(cfg Config) any { return cfg.Model.MaxConcurrent },
	},
	{
		key: "model.max_retries", typ: kInt, env: "MCPD_MODEL_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Model.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Model.MaxRetries },
	},
	{
		key: "storage.backend", typ: kString, env: "MCPD_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.dsn", typ: kString, env: "MCPD_STORAGE_DSN",
		apply:   func(cfg *Config, v any) { cfg.Storage.DSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DSN },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "MCPD_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.min_score", typ: kFloat, env: "MCPD_RETRIEVAL_MIN_SCORE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MinScore = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.MinScore },
	},
	{
		key: "ingest.queue_size", typ: kInt, env: "MCPD_INGEST_QUEUE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Ingest.QueueSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingest.QueueSize },
	},
	{
		key: "log.level", typ: kString, env: "MCPD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "api.token", typ: kString, env: "MCPD_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
