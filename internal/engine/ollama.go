package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/licitaradar/licitaradar/internal/ollama"
)

// Nomic-style embedding models take the task as a text prefix.
const (
	documentPrefix = "search_document: "
	queryPrefix    = "search_query: "
)

// OllamaEngine adapts the internal/ollama.Client to the Engine interface.
type OllamaEngine struct {
	client      *ollama.Client
	model       string
	embedModel  string
	temperature float64
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL, model, embedModel string, temperature float64) *OllamaEngine {
	return &OllamaEngine{
		client:      ollama.New(baseURL),
		model:       model,
		embedModel:  embedModel,
		temperature: temperature,
	}
}

func (e *OllamaEngine) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var msgs []ollama.Message
	if req.System != "" {
		msgs = append(msgs, ollama.Message{Role: "system", Content: req.System})
	}
	skipped := 0
	for _, p := range req.Parts {
		if len(p.Data) > 0 {
			skipped++
		}
	}
	if skipped > 0 {
		slog.Debug("ollama: inline attachments not supported, sending text only", "skipped", skipped)
	}
	msgs = append(msgs, ollama.Message{Role: "user", Content: req.Prompt()})

	temp := e.temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	cr := ollama.ChatRequest{
		Model:    e.model,
		Messages: msgs,
		Options:  &ollama.Options{Temperature: &temp, NumPredict: req.MaxOutputTokens},
	}
	if req.JSON {
		cr.Format = "json"
	}

	out, err := e.client.Chat(ctx, cr)
	if err != nil {
		return "", classifyStatusError(err)
	}
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

func (e *OllamaEngine) Embed(ctx context.Context, text string, intent Intent) ([]float32, error) {
	prefix := documentPrefix
	if intent == IntentQuery {
		prefix = queryPrefix
	}
	vec, err := e.client.Embed(ctx, e.embedModel, prefix+text)
	if err != nil {
		return nil, classifyStatusError(err)
	}
	return vec, nil
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) Models() (string, string) {
	return e.model, e.embedModel
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{
				Status:    p.Status,
				Total:     p.Total,
				Completed: p.Completed,
			})
		}
	}
	return e.client.PullModel(ctx, name, cb)
}

func classifyStatusError(err error) error {
	var se *ollama.StatusError
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case http.StatusServiceUnavailable, http.StatusInternalServerError:
		return fmt.Errorf("%w: %w", ErrOverloaded, err)
	}
	return err
}
