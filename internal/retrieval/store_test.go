package retrieval

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/storage"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db.DB())
}

func makeTestVector(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func makeChunks(cn string, n int) []model.DocumentChunk {
	out := make([]model.DocumentChunk, n)
	for i := range out {
		out[i] = model.DocumentChunk{
			ID:            fmt.Sprintf("%s-%d", cn, i),
			ControlNumber: cn,
			SourceFile:    "edital.pdf",
			Position:      i,
			Text:          fmt.Sprintf("trecho %d", i),
			Embedding:     makeTestVector(8, float32(i)),
			CreatedAt:     time.Now().UTC(),
		}
	}
	return out
}

func TestReplaceAndSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceChunks(ctx, "A", makeChunks("A", 3)); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}

	results, err := s.Search(ctx, "A", makeTestVector(8, 2), 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].ID != "A-2" || results[0].Text != "trecho 2" || results[0].SourceFile != "edital.pdf" {
		t.Errorf("top result = %+v", results[0])
	}
	if results[0].Score < 0.99 {
		t.Errorf("score = %f, want ~1.0", results[0].Score)
	}
}

func TestSearch_ScopedToRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.ReplaceChunks(ctx, "A", makeChunks("A", 2))
	s.ReplaceChunks(ctx, "B", makeChunks("B", 4))

	results, err := s.Search(ctx, "A", makeTestVector(8, 1), 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.ControlNumber != "A" {
			t.Errorf("result from other record: %+v", r)
		}
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by score")
	}
}

func TestReplaceChunks_Replaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.ReplaceChunks(ctx, "A", makeChunks("A", 5))
	if err := s.ReplaceChunks(ctx, "A", makeChunks("A", 2)); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}
	n, err := s.Count(ctx, "A")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}

	if err := s.ReplaceChunks(ctx, "A", nil); err != nil {
		t.Fatalf("ReplaceChunks(nil): %v", err)
	}
	if n, _ := s.Count(ctx, "A"); n != 0 {
		t.Errorf("Count after clear = %d, want 0", n)
	}
}

func TestReplaceChunks_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.ReplaceChunks(ctx, "A", makeChunks("A", 2))

	dup := makeChunks("A", 2)
	dup[1].ID = dup[0].ID
	if err := s.ReplaceChunks(ctx, "A", dup); err == nil {
		t.Fatal("expected duplicate id error")
	}
	if n, _ := s.Count(ctx, "A"); n != 2 {
		t.Errorf("Count = %d after failed replace, want original 2", n)
	}
}

func TestSearch_EmptyAndDegenerate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	results, err := s.Search(ctx, "none", makeTestVector(8, 1), 5)
	if err != nil || len(results) != 0 {
		t.Errorf("empty store: %v, %v", results, err)
	}

	s.ReplaceChunks(ctx, "A", makeChunks("A", 2))
	if results, _ := s.Search(ctx, "A", make([]float32, 8), 5); len(results) != 0 {
		t.Errorf("zero query vector returned %d results", len(results))
	}
	if results, _ := s.Search(ctx, "A", makeTestVector(8, 1), 0); len(results) != 0 {
		t.Errorf("topK=0 returned %d results", len(results))
	}
}

func TestFloat32RoundTrip(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := decodeFloat32sInto(nil, encodeFloat32s(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %d: %v != %v", i, in[i], out[i])
		}
	}
	if _, err := decodeFloat32sInto(nil, []byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
