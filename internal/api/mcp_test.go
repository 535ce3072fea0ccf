package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/profile"
	"github.com/licitaradar/licitaradar/internal/search"
	"github.com/licitaradar/licitaradar/internal/storage"
)

// --- mocks ---

type mockSearcher struct {
	result  search.Result
	err     error
	events  []search.Event
	lastReq search.Request
	calls   int
}

func (m *mockSearcher) Search(_ context.Context, req search.Request, progress func(search.Event)) (search.Result, error) {
	m.calls++
	m.lastReq = req
	if progress != nil {
		for _, e := range m.events {
			progress(e)
		}
	}
	return m.result, m.err
}

type mockFilters struct {
	filter model.Filter
	err    error
}

func (m *mockFilters) Extract(_ context.Context, _ string, exclusions []string) (model.Filter, error) {
	f := m.filter
	f.Blacklist = append(f.Blacklist, exclusions...)
	return f, m.err
}

// --- helpers ---

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store := newTestStore(t)
	return MCPDeps{
		Runs:    store,
		Profile: profile.NewManager(store),
		Search:  &mockSearcher{},
		Filters: &mockFilters{filter: model.Filter{Keywords: []string{"limpeza"}}},
		Version: "test",
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func seedRun(t *testing.T, store *storage.Store, date string, status model.RunStatus, fetched int, errMsg string) {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 5, 0, 0, 0, time.UTC)
	if _, err := store.CreateSyncRun(ctx, date, start); err != nil {
		t.Fatalf("CreateSyncRun(%s): %v", date, err)
	}
	if status.Terminal() {
		if err := store.FinishSyncRun(ctx, date, status, fetched, errMsg, start.Add(time.Minute)); err != nil {
			t.Fatalf("FinishSyncRun(%s): %v", date, err)
		}
	}
}

// --- search_procurements ---

func TestMCPSearch_ReturnsRecords(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	summary := "Limpeza de unidades de saúde"
	tier := model.TierHigh
	searcher := &mockSearcher{result: search.Result{Records: []model.Procurement{{
		ControlNumber:  "00394460000141-1-000001/2025",
		Description:    "Contratação de serviços de limpeza hospitalar",
		State:          "SP",
		EstimatedValue: 1_250_000,
		PublishedAt:    time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Summary:        &summary,
		Relevance:      &tier,
	}}}}
	deps.Search = searcher

	result, err := mcpSearch(deps)(context.Background(), makeCallToolRequest("search_procurements", map[string]any{
		"question":   "limpeza hospitalar em SP",
		"exclusions": []any{"obras"},
		"limit":      float64(5),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var hits []searchHit
	if err := json.Unmarshal([]byte(toolText(t, result)), &hits); err != nil {
		t.Fatalf("decoding hits: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].Relevance != "Alto" || hits[0].Summary != summary || hits[0].PublishedAt != "2025-03-10" {
		t.Errorf("unexpected hit: %+v", hits[0])
	}
	if searcher.lastReq.Limit != 5 {
		t.Errorf("limit = %d, want 5", searcher.lastReq.Limit)
	}
	if len(searcher.lastReq.Exclusions) != 1 || searcher.lastReq.Exclusions[0] != "obras" {
		t.Errorf("exclusions = %v, want [obras]", searcher.lastReq.Exclusions)
	}
}

func TestMCPSearch_ClampsLimit(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	searcher := &mockSearcher{}
	deps.Search = searcher

	_, err := mcpSearch(deps)(context.Background(), makeCallToolRequest("search_procurements", map[string]any{
		"question": "limpeza",
		"limit":    float64(10_000),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searcher.lastReq.Limit != maxSearchLimit {
		t.Errorf("limit = %d, want %d", searcher.lastReq.Limit, maxSearchLimit)
	}
}

func TestMCPSearch_MissingQuestion(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	searcher := &mockSearcher{}
	deps.Search = searcher

	result, err := mcpSearch(deps)(context.Background(), makeCallToolRequest("search_procurements", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing question")
	}
	if searcher.calls != 0 {
		t.Errorf("searcher called %d times, want 0", searcher.calls)
	}
}

func TestMCPSearch_Failure(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Search = &mockSearcher{err: errors.New("quota")}

	result, err := mcpSearch(deps)(context.Background(), makeCallToolRequest("search_procurements", map[string]any{
		"question": "limpeza",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error")
	}
	if !strings.Contains(toolText(t, result), "quota") {
		t.Errorf("error text %q should carry the cause", toolText(t, result))
	}
}

func TestMCPSearch_NotConfigured(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Search = nil

	result, err := mcpSearch(deps)(context.Background(), makeCallToolRequest("search_procurements", map[string]any{
		"question": "limpeza",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error when search is not configured")
	}
}

// --- extract_filters ---

func TestMCPExtractFilters(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpExtractFilters(deps)(context.Background(), makeCallToolRequest("extract_filters", map[string]any{
		"question":   "limpeza sem obras",
		"exclusions": []any{"obras"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var f model.Filter
	if err := json.Unmarshal([]byte(toolText(t, result)), &f); err != nil {
		t.Fatalf("decoding filter: %v", err)
	}
	if len(f.Keywords) != 1 || f.Keywords[0] != "limpeza" {
		t.Errorf("keywords = %v", f.Keywords)
	}
	if len(f.Blacklist) != 1 || f.Blacklist[0] != "obras" {
		t.Errorf("blacklist = %v", f.Blacklist)
	}
}

func TestMCPExtractFilters_Error(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Filters = &mockFilters{err: errors.New("boom")}

	result, err := mcpExtractFilters(deps)(context.Background(), makeCallToolRequest("extract_filters", map[string]any{
		"question": "limpeza",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error")
	}
}

// --- sync_status ---

func TestMCPSyncStatus_Empty(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpSyncStatus(deps)(context.Background(), makeCallToolRequest("sync_status", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(toolText(t, result), "No sync runs") {
		t.Errorf("unexpected text: %q", toolText(t, result))
	}
}

func TestMCPSyncStatus_ListsRuns(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedRun(t, store, "2025-03-01", model.RunSuccess, 42, "")
	seedRun(t, store, "2025-03-02", model.RunFailed, 0, "portal unavailable")

	result, err := mcpSyncStatus(deps)(context.Background(), makeCallToolRequest("sync_status", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := toolText(t, result)
	for _, want := range []string{"2025-03-01", "42 records", "2025-03-02", "portal unavailable"} {
		if !strings.Contains(text, want) {
			t.Errorf("status text missing %q:\n%s", want, text)
		}
	}
}

// --- resources ---

func TestMCPResourceSyncRuns(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedRun(t, store, "2025-03-01", model.RunSuccess, 7, "")

	contents, err := mcpResourceSyncRuns(deps)(context.Background(), makeReadResourceRequest("licitaradar://sync-runs"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var runs []model.SyncRun
	if err := json.Unmarshal([]byte(tc.Text), &runs); err != nil {
		t.Fatalf("decoding runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Date != "2025-03-01" || runs[0].RecordsFetched != 7 {
		t.Errorf("unexpected runs: %+v", runs)
	}
}

func TestMCPResourceProfile_Default(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	contents, err := mcpResourceProfile(deps)(context.Background(), makeReadResourceRequest("licitaradar://profile"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var p profile.Profile
	if err := json.Unmarshal([]byte(tc.Text), &p); err != nil {
		t.Fatalf("decoding profile: %v", err)
	}
	if p.Name != profile.Default().Name {
		t.Errorf("profile name = %q, want default %q", p.Name, profile.Default().Name)
	}
	if tc.MIMEType != "application/json" {
		t.Errorf("MIME type = %q", tc.MIMEType)
	}
}

func TestNewMCPServer_Builds(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
