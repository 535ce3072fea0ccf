package engine

import (
	"context"
	"fmt"

	"github.com/licitaradar/licitaradar/internal/config"
)

// New returns the Engine selected by cfg.AI.Provider.
func New(ctx context.Context, cfg config.Config) (Engine, error) {
	switch cfg.AI.Provider {
	case "gemini", "":
		return NewGeminiEngine(ctx, GeminiConfig{
			APIKey:          cfg.Gemini.APIKey,
			Model:           cfg.Gemini.Model,
			EmbedModel:      cfg.Gemini.EmbedModel,
			Temperature:     cfg.Gemini.Temperature,
			MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
		})
	case "ollama":
		return NewOllamaEngine(cfg.Ollama.BaseURL, cfg.Ollama.Model, cfg.Ollama.EmbedModel, cfg.Gemini.Temperature), nil
	}
	return nil, fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
}
