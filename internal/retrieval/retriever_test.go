package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/licitaradar/licitaradar/internal/engine"
	"github.com/licitaradar/licitaradar/internal/model"
)

type intentEngine struct {
	calls  int
	intent engine.Intent
	err    error
}

func (e *intentEngine) Generate(context.Context, engine.GenerateRequest) (string, error) {
	return "", nil
}

func (e *intentEngine) Embed(_ context.Context, _ string, intent engine.Intent) ([]float32, error) {
	e.calls++
	e.intent = intent
	if e.err != nil {
		return nil, e.err
	}
	return makeTestVector(8, 1), nil
}

func TestRetrieve(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	store.ReplaceChunks(ctx, "A", makeChunks("A", 4))

	eng := &intentEngine{}
	r := NewRetriever(NewEmbedder(eng, 8), store)
	got, err := r.Retrieve(ctx, "A", "qual o prazo de vigência?", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	if got[0].ID != "A-1" {
		t.Errorf("top chunk = %s, want A-1", got[0].ID)
	}
	if eng.intent != engine.IntentQuery {
		t.Errorf("embedded with intent %v, want query", eng.intent)
	}
}

func TestRetrieve_NoChunksSkipsEmbedding(t *testing.T) {
	eng := &intentEngine{}
	r := NewRetriever(NewEmbedder(eng, 8), openTestStore(t))
	got, err := r.Retrieve(context.Background(), "A", "pergunta", 6)
	if err != nil || got != nil {
		t.Fatalf("Retrieve = %v, %v", got, err)
	}
	if eng.calls != 0 {
		t.Errorf("embedding called %d times for an unindexed record", eng.calls)
	}
}

func TestRetrieve_EmbedFails(t *testing.T) {
	store := openTestStore(t)
	store.ReplaceChunks(context.Background(), "A", []model.DocumentChunk{{ID: "x", Text: "t", Embedding: []float32{1}}})

	eng := &intentEngine{err: engine.ErrOverloaded}
	r := NewRetriever(NewEmbedder(eng, 0), store)
	_, err := r.Retrieve(context.Background(), "A", "pergunta", 6)
	if !errors.Is(err, engine.ErrOverloaded) {
		t.Errorf("err = %v, want ErrOverloaded", err)
	}
}
