// Package engine abstracts the generative model and embedding provider.
// Consumers (classifier, analysis, filter extraction, document indexing,
// chat) depend on Engine instead of a concrete client.
package engine

import "context"

// Engine is a generative AI provider that can also produce embeddings.
type Engine interface {
	// Generate runs a single-turn content generation call and returns the
	// model's text.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// Embed returns the embedding vector for text. intent selects the
	// indexing or retrieval task mode. Embed does not retry and does not
	// cache; errors propagate to the caller.
	Embed(ctx context.Context, text string, intent Intent) ([]float32, error)
}

// ModelManager is implemented by engines that serve locally hosted models
// which may need to be downloaded before use.
type ModelManager interface {
	IsRunning(ctx context.Context) bool
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
	Models() (generate, embed string)
}
