package chat

import (
	"strings"
	"testing"

	"github.com/licitaradar/licitaradar/internal/retrieval"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestSelectChunks_DropsLowestScoreFirst(t *testing.T) {
	text := strings.Repeat("x", 200)
	chunks := []retrieval.ScoredChunk{
		chunk("a.pdf", 0, 0.2, text),
		chunk("b.pdf", 1, 0.9, text),
		chunk("c.pdf", 2, 0.5, text),
	}
	per := EstimateTokens(formatChunk(chunks[0]))

	got := selectChunks(chunks, 2*per)
	if len(got) != 2 {
		t.Fatalf("selected %d chunks, want 2", len(got))
	}
	if got[0].SourceFile != "b.pdf" || got[1].SourceFile != "c.pdf" {
		t.Errorf("selected %s, %s; want b.pdf, c.pdf", got[0].SourceFile, got[1].SourceFile)
	}
}

func TestSelectChunks_SkipsOversized(t *testing.T) {
	chunks := []retrieval.ScoredChunk{
		chunk("big.pdf", 0, 0.9, strings.Repeat("x", 4000)),
		chunk("small.pdf", 1, 0.1, "curto"),
	}
	got := selectChunks(chunks, 100)
	if len(got) != 1 || got[0].SourceFile != "small.pdf" {
		t.Errorf("selected %+v, want only small.pdf", got)
	}
}

func TestSelectChunks_ZeroBudget(t *testing.T) {
	if got := selectChunks([]retrieval.ScoredChunk{chunk("a.pdf", 0, 1, "t")}, 0); len(got) != 0 {
		t.Errorf("selected %d chunks with no budget", len(got))
	}
}

func TestAsk_BudgetLimitsChunks(t *testing.T) {
	eng := &recordingEngine{reply: "ok"}
	long := strings.Repeat("palavra ", 500)
	ret := &fakeRetriever{chunks: []retrieval.ScoredChunk{
		chunk("a.pdf", 0, 0.9, long),
		chunk("b.pdf", 1, 0.8, long),
		chunk("c.pdf", 2, 0.7, long),
	}}
	a := newTestAssistant(eng, ret, 2500)

	ans, err := a.Ask(t.Context(), "A", "q", nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(ans.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(ans.Sources))
	}
	if ans.Sources[0].File != "a.pdf" || ans.Sources[1].File != "b.pdf" {
		t.Errorf("sources = %+v", ans.Sources)
	}
}
