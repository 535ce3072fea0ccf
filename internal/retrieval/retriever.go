package retrieval

import (
	"context"
	"fmt"

	"github.com/licitaradar/licitaradar/internal/engine"
)

// Retriever combines query embedding and chunk search.
type Retriever struct {
	embedder *Embedder
	store    ChunkStore
}

// NewRetriever creates a Retriever backed by the given Embedder and ChunkStore.
func NewRetriever(embedder *Embedder, store ChunkStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve returns the topK chunks of controlNumber most relevant to
// question. A notice without indexed chunks yields nil without calling the
// embedding provider.
func (r *Retriever) Retrieve(ctx context.Context, controlNumber, question string, topK int) ([]ScoredChunk, error) {
	n, err := r.store.Count(ctx, controlNumber)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	vec, err := r.embedder.Embed(ctx, question, engine.IntentQuery)
	if err != nil {
		return nil, err
	}
	return r.store.Search(ctx, controlNumber, vec, topK)
}
