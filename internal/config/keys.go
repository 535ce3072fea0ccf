package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

const envPrefix = "LICITARADAR_"

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: envPrefix + "SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.sync_secret", typ: kString, env: envPrefix + "SERVER_SYNC_SECRET",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.SyncSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.SyncSecret },
	},
	{
		key: "ai.provider", typ: kString, env: envPrefix + "AI_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.AI.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.Provider },
	},
	{
		key: "gemini.api_key", typ: kString, env: envPrefix + "GEMINI_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "gemini.model", typ: kString, env: envPrefix + "GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "gemini.embed_model", typ: kString, env: envPrefix + "GEMINI_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.EmbedModel },
	},
	{
		key: "gemini.temperature", typ: kFloat, env: envPrefix + "GEMINI_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Gemini.Temperature },
	},
	{
		key: "gemini.max_output_tokens", typ: kInt, env: envPrefix + "GEMINI_MAX_OUTPUT_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Gemini.MaxOutputTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Gemini.MaxOutputTokens },
	},
	{
		key: "ollama.base_url", typ: kString, env: envPrefix + "OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: envPrefix + "OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "ollama.embed_model", typ: kString, env: envPrefix + "OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "pncp.base_url", typ: kString, env: envPrefix + "PNCP_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.PNCP.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.PNCP.BaseURL },
	},
	{
		key: "pncp.files_base_url", typ: kString, env: envPrefix + "PNCP_FILES_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.PNCP.FilesBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.PNCP.FilesBaseURL },
	},
	{
		key: "pncp.page_size", typ: kInt, env: envPrefix + "PNCP_PAGE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.PNCP.PageSize = v.(int) },
		extract: func(cfg Config) any { return cfg.PNCP.PageSize },
	},
	{
		key: "pncp.modalities", typ: kString, env: envPrefix + "PNCP_MODALITIES",
		apply:   func(cfg *Config, v any) { cfg.PNCP.Modalities = v.(string) },
		extract: func(cfg Config) any { return cfg.PNCP.Modalities },
	},
	{
		key: "pncp.requests_per_second", typ: kFloat, env: envPrefix + "PNCP_REQUESTS_PER_SECOND",
		apply:   func(cfg *Config, v any) { cfg.PNCP.RequestsPerSecond = v.(float64) },
		extract: func(cfg Config) any { return cfg.PNCP.RequestsPerSecond },
	},
	{
		key: "pncp.retry_attempts", typ: kInt, env: envPrefix + "PNCP_RETRY_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.PNCP.RetryAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.PNCP.RetryAttempts },
	},
	{
		key: "pncp.retry_delay", typ: kDuration, env: envPrefix + "PNCP_RETRY_DELAY",
		apply:   func(cfg *Config, v any) { cfg.PNCP.RetryDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.PNCP.RetryDelay },
	},
	{
		key: "storage.data_dir", typ: kString, env: envPrefix + "STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "sync.batch_size", typ: kInt, env: envPrefix + "SYNC_BATCH_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Sync.BatchSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Sync.BatchSize },
	},
	{
		key: "sync.batch_delay", typ: kDuration, env: envPrefix + "SYNC_BATCH_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Sync.BatchDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Sync.BatchDelay },
	},
	{
		key: "cache.viability_ttl", typ: kDuration, env: envPrefix + "CACHE_VIABILITY_TTL",
		apply:   func(cfg *Config, v any) { cfg.Cache.ViabilityTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.ViabilityTTL },
	},
	{
		key: "cache.results_ttl", typ: kDuration, env: envPrefix + "CACHE_RESULTS_TTL",
		apply:   func(cfg *Config, v any) { cfg.Cache.ResultsTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.ResultsTTL },
	},
	{
		key: "documents.chunk_size", typ: kInt, env: envPrefix + "DOCUMENTS_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Documents.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Documents.ChunkSize },
	},
	{
		key: "documents.chunk_overlap", typ: kInt, env: envPrefix + "DOCUMENTS_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Documents.ChunkOverlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Documents.ChunkOverlap },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: envPrefix + "RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.embed_dimension", typ: kInt, env: envPrefix + "RETRIEVAL_EMBED_DIMENSION",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.EmbedDimension = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.EmbedDimension },
	},
	{
		key: "log.level", typ: kString, env: envPrefix + "LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
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
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
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
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
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
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
