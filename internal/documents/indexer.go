package documents

import (
	"context"
	"fmt"

	"github.com/licitaradar/licitaradar/internal/engine"
	"github.com/licitaradar/licitaradar/internal/model"
)

// ChunkSource produces the chunks of a notice. Implemented by Extractor.
type ChunkSource interface {
	ExtractAndChunk(ctx context.Context, p model.Procurement) ([]model.DocumentChunk, error)
}

// BatchEmbedder embeds many texts at once. Implemented by retrieval.Embedder.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string, intent engine.Intent) ([][]float32, error)
}

// ChunkWriter replaces the stored chunks of a notice.
// Implemented by retrieval.ChunkStore.
type ChunkWriter interface {
	ReplaceChunks(ctx context.Context, controlNumber string, chunks []model.DocumentChunk) error
}

// Indexer extracts, embeds and stores a notice's document chunks.
type Indexer struct {
	source   ChunkSource
	embedder BatchEmbedder
	store    ChunkWriter
}

func NewIndexer(source ChunkSource, embedder BatchEmbedder, store ChunkWriter) *Indexer {
	return &Indexer{source: source, embedder: embedder, store: store}
}

// Index replaces the stored chunks of p and returns how many were written.
// A notice without readable PDFs ends with zero stored chunks.
func (ix *Indexer) Index(ctx context.Context, p model.Procurement) (int, error) {
	chunks, err := ix.source.ExtractAndChunk(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("extracting documents for %s: %w", p.ControlNumber, err)
	}

	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vecs, err := ix.embedder.EmbedBatch(ctx, texts, engine.IntentDocument)
		if err != nil {
			return 0, fmt.Errorf("embedding chunks for %s: %w", p.ControlNumber, err)
		}
		for i := range chunks {
			chunks[i].Embedding = vecs[i]
		}
	}

	if err := ix.store.ReplaceChunks(ctx, p.ControlNumber, chunks); err != nil {
		return 0, fmt.Errorf("storing chunks for %s: %w", p.ControlNumber, err)
	}
	return len(chunks), nil
}
