package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Gemini    GeminiConfig
	Ollama    OllamaConfig
	PNCP      PNCPConfig
	Storage   StorageConfig
	Sync      SyncConfig
	Cache     CacheConfig
	Documents DocumentsConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
	// SyncSecret authenticates the scheduler calling POST /api/sync.
	SyncSecret string
}

type AIConfig struct {
	Provider string // "gemini" or "ollama"
}

type GeminiConfig struct {
	APIKey          string
	Model           string
	EmbedModel      string
	Temperature     float64
	MaxOutputTokens int
}

type OllamaConfig struct {
	BaseURL    string
	Model      string
	EmbedModel string
}

type PNCPConfig struct {
	BaseURL           string
	FilesBaseURL      string
	PageSize          int
	Modalities        string // comma-separated modality codes
	RequestsPerSecond float64
	RetryAttempts     int
	RetryDelay        time.Duration
}

// ModalityCodes parses Modalities. Invalid entries are skipped.
func (c PNCPConfig) ModalityCodes() []int {
	var codes []int
	for _, part := range strings.Split(c.Modalities, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && n > 0 {
			codes = append(codes, n)
		}
	}
	return codes
}

type StorageConfig struct {
	DataDir string
}

type SyncConfig struct {
	BatchSize  int
	BatchDelay time.Duration
}

type CacheConfig struct {
	ViabilityTTL time.Duration
	ResultsTTL   time.Duration
}

type DocumentsConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type RetrievalConfig struct {
	TopK           int
	EmbedDimension int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		AI: AIConfig{
			Provider: "gemini",
		},
		Gemini: GeminiConfig{
			Model:           "gemini-2.0-flash",
			EmbedModel:      "text-embedding-004",
			Temperature:     0.1,
			MaxOutputTokens: 8192,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			Model:      "qwen2.5:7b",
			EmbedModel: "nomic-embed-text",
		},
		PNCP: PNCPConfig{
			BaseURL:           "https://pncp.gov.br/api/consulta",
			FilesBaseURL:      "https://pncp.gov.br/pncp-api",
			PageSize:          50,
			Modalities:        "4,5,6,7,8,9,12",
			RequestsPerSecond: 2,
			RetryAttempts:     3,
			RetryDelay:        2 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Sync: SyncConfig{
			BatchSize:  150,
			BatchDelay: 2 * time.Second,
		},
		Cache: CacheConfig{
			ViabilityTTL: 24 * time.Hour,
			ResultsTTL:   time.Hour,
		},
		Documents: DocumentsConfig{
			ChunkSize:    1000,
			ChunkOverlap: 100,
		},
		Retrieval: RetrievalConfig{
			TopK: 6,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the TOML file at
// $XDG_CONFIG_HOME/licitaradar/config.toml and applies LICITARADAR_*
// environment overrides. Secrets are only read from the environment.
func Load() (Config, error) {
	return loadFromPath(configFilePath())
}

func loadFromPath(path string) (Config, error) {
	return loadWith(newFileBackend(path))
}

func loadWith(b ConfigBackend) (Config, error) {
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
	var errs []error
	switch c.AI.Provider {
	case "gemini", "ollama":
	default:
		errs = append(errs, fmt.Errorf("ai.provider must be gemini or ollama, got %q", c.AI.Provider))
	}
	if c.Sync.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("sync.batch_size must be positive"))
	}
	if c.Documents.ChunkSize <= 0 || c.Documents.ChunkOverlap < 0 || c.Documents.ChunkOverlap >= c.Documents.ChunkSize {
		errs = append(errs, fmt.Errorf("documents.chunk_overlap must be in [0, chunk_size)"))
	}
	if c.PNCP.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("pncp.page_size must be positive"))
	}
	if len(c.PNCP.ModalityCodes()) == 0 {
		errs = append(errs, fmt.Errorf("pncp.modalities has no valid modality code"))
	}
	return errors.Join(errs...)
}

// RequireAI reports a missing credential for the configured AI provider.
// Commands that never call a model (config, runs) skip this check.
func (c Config) RequireAI() error {
	if c.AI.Provider == "gemini" && c.Gemini.APIKey == "" {
		return fmt.Errorf("missing required config: Gemini API key. Set it via environment variable %s", envPrefix+"GEMINI_API_KEY")
	}
	return nil
}
