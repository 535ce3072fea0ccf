package engine

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that a locally hosted engine is reachable and that its
// models are available, pulling missing ones with progress written to w.
// Hosted engines need no preparation and return nil.
func EnsureReady(ctx context.Context, e Engine, w io.Writer) error {
	m, ok := e.(ModelManager)
	if !ok {
		return nil
	}
	if !m.IsRunning(ctx) {
		return fmt.Errorf("local inference engine is not running; start it with: ollama serve")
	}

	generate, embed := m.Models()
	models := make([]string, 0, 2)
	if generate != "" {
		models = append(models, generate)
	}
	if embed != "" && embed != generate {
		models = append(models, embed)
	}

	for _, model := range models {
		if m.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: ready\n", model)
			continue
		}

		fmt.Fprintf(w, "model %s: pulling...\n", model)
		err := m.PullModel(ctx, model, func(p PullProgress) {
			if p.Total > 0 {
				pct := float64(p.Completed) / float64(p.Total) * 100
				fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
			} else {
				fmt.Fprintf(w, "  %s\n", p.Status)
			}
		})
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}

	return nil
}
