// Package chat answers questions about a single procurement notice using
// the notice's indexed attachment chunks as grounding.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/licitaradar/licitaradar/internal/engine"
	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/retrieval"
	"github.com/licitaradar/licitaradar/internal/retry"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 6

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one prior message of the conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Source identifies a chunk the answer was grounded on.
type Source struct {
	File     string  `json:"file"`
	Position int     `json:"position"`
	Score    float32 `json:"score"`
}

// Answer is the model reply. Grounded is false when no attachment text was
// available and the answer relies on the notice metadata alone.
type Answer struct {
	Text     string   `json:"text"`
	Grounded bool     `json:"grounded"`
	Sources  []Source `json:"sources,omitempty"`
}

// RecordSource loads a stored notice.
type RecordSource interface {
	GetProcurement(ctx context.Context, controlNumber string) (model.Procurement, error)
}

// ChunkRetriever returns the chunks of a notice most relevant to a question.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, controlNumber, question string, topK int) ([]retrieval.ScoredChunk, error)
}

// Assistant runs retrieval-augmented question answering.
type Assistant struct {
	engine           engine.Engine
	records          RecordSource
	retriever        ChunkRetriever
	policy           retry.Policy
	MaxContextTokens int
	TopK             int
}

// New creates an Assistant. If maxContextTokens <= 0, the default (4000)
// is used.
func New(e engine.Engine, records RecordSource, retriever ChunkRetriever, maxContextTokens int) *Assistant {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Assistant{
		engine:           e,
		records:          records,
		retriever:        retriever,
		policy:           engine.RetryPolicy(),
		MaxContextTokens: maxContextTokens,
		TopK:             DefaultTopK,
	}
}

// Ask answers question about the notice controlNumber.
func (a *Assistant) Ask(ctx context.Context, controlNumber, question string, history []Turn) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	p, err := a.records.GetProcurement(ctx, controlNumber)
	if err != nil {
		return Answer{}, fmt.Errorf("loading %s: %w", controlNumber, err)
	}

	chunks, err := a.retriever.Retrieve(ctx, controlNumber, question, a.TopK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieving chunks: %w", err)
	}

	budget := a.MaxContextTokens - EstimateTokens(systemPrompt) - EstimateTokens(renderRecord(p))
	selected := selectChunks(chunks, budget)

	req := engine.GenerateRequest{
		System: systemPrompt,
		Parts:  []engine.Part{engine.TextPart(buildPrompt(p, selected, history, question))},
	}
	text, err := retry.Value(ctx, a.policy, func(ctx context.Context) (string, error) {
		return a.engine.Generate(ctx, req)
	})
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}

	ans := Answer{Text: strings.TrimSpace(text), Grounded: len(selected) > 0}
	for _, ch := range selected {
		ans.Sources = append(ans.Sources, Source{File: ch.SourceFile, Position: ch.Position, Score: ch.Score})
	}
	return ans, nil
}
