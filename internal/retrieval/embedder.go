package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/licitaradar/licitaradar/internal/engine"
)

// embedConcurrency bounds parallel embedding calls so the provider quota is
// not exhausted by a single document.
const embedConcurrency = 4

// Embedder wraps an Engine to generate text embeddings of a fixed
// dimension.
type Embedder struct {
	engine    engine.Engine
	dimension int
}

// NewEmbedder creates an Embedder. A dimension of 0 accepts any vector length.
func NewEmbedder(e engine.Engine, dimension int) *Embedder {
	return &Embedder{engine: e, dimension: dimension}
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string, intent engine.Intent) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, text, intent)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if e.dimension > 0 && len(vec) != e.dimension {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(vec), e.dimension)
	}
	return vec, nil
}

// EmbedBatch returns embedding vectors for multiple texts concurrently,
// in input order. Returns nil (not error) for empty/nil input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string, intent engine.Intent) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text, intent)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
