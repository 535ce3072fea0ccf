package retrieval

import (
	"context"

	"github.com/licitaradar/licitaradar/internal/model"
)

// ChunkStore is the storage and similarity search backend for document
// chunks. The current implementation uses SQLite with brute-force cosine
// similarity scoped to one notice.
type ChunkStore interface {
	// ReplaceChunks deletes every stored chunk of controlNumber and inserts
	// chunks, atomically.
	ReplaceChunks(ctx context.Context, controlNumber string, chunks []model.DocumentChunk) error

	// Search returns the topK chunks of controlNumber most similar to vector,
	// best first.
	Search(ctx context.Context, controlNumber string, vector []float32, topK int) ([]ScoredChunk, error)

	// Count returns how many chunks are stored for controlNumber.
	Count(ctx context.Context, controlNumber string) (int, error)
}

// ScoredChunk is a DocumentChunk with a similarity score attached.
type ScoredChunk struct {
	model.DocumentChunk
	Score float32
}
