package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/profile"
	"github.com/licitaradar/licitaradar/internal/search"
)

// RunLister lists recorded sync runs.
type RunLister interface {
	ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Runs    RunLister
	Profile *profile.Manager
	Search  Searcher        // optional; if nil, search_procurements returns an error
	Filters FilterExtractor // optional; if nil, extract_filters returns an error
	Version string
}

// NewMCPServer creates an MCP server with the licitaradar tools and
// resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"licitaradar",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("licitaradar: Brazilian public procurement notices (PNCP) classified for a business profile."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("search_procurements",
			mcp.WithDescription("Search stored procurement notices with a free-text question in Portuguese."),
			mcp.WithString("question", mcp.Description("What to look for, e.g. 'limpeza hospitalar em SP acima de 1 milhão'"), mcp.Required()),
			mcp.WithArray("exclusions", mcp.Description("Terms the results must not mention")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("extract_filters",
			mcp.WithDescription("Convert a free-text question into the structured search filter without running the search."),
			mcp.WithString("question", mcp.Description("Question to convert"), mcp.Required()),
			mcp.WithArray("exclusions", mcp.Description("Terms to exclude")),
		),
		mcpExtractFilters(deps),
	)

	s.AddTool(
		mcp.NewTool("sync_status",
			mcp.WithDescription("Show the most recent daily sync runs and their outcome."),
			mcp.WithNumber("limit", mcp.Description("Number of runs (default 7)")),
		),
		mcpSyncStatus(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"licitaradar://sync-runs",
			"Sync Runs",
			mcp.WithResourceDescription("Last 30 sync runs as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSyncRuns(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"licitaradar://profile",
			"Business Profile",
			mcp.WithResourceDescription("Domain profile used to classify notices"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	return s
}

type searchHit struct {
	ControlNumber  string   `json:"controlNumber"`
	Description    string   `json:"description"`
	EntityName     string   `json:"entityName,omitempty"`
	State          string   `json:"state,omitempty"`
	EstimatedValue float64  `json:"estimatedValue"`
	PublishedAt    string   `json:"publishedAt"`
	Summary        string   `json:"summary,omitempty"`
	Relevance      string   `json:"relevance,omitempty"`
	Link           string   `json:"link,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
}

func mcpSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Search == nil {
			return mcpError("search not available: no AI provider configured"), nil
		}
		question, err := req.RequireString("question")
		if err != nil || question == "" {
			return mcpError("question is required"), nil
		}

		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}

		res, err := deps.Search.Search(ctx, search.Request{
			Question:   question,
			Exclusions: req.GetStringSlice("exclusions", nil),
			Limit:      limit,
		}, nil)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		hits := make([]searchHit, len(res.Records))
		for i, p := range res.Records {
			h := searchHit{
				ControlNumber:  p.ControlNumber,
				Description:    p.Description,
				EntityName:     p.EntityName,
				State:          p.State,
				EstimatedValue: p.EstimatedValue,
				PublishedAt:    p.PublishedAt.Format(model.DateLayout),
				Link:           p.SourceLink,
				Keywords:       p.Keywords,
			}
			if p.Summary != nil {
				h.Summary = *p.Summary
			}
			if p.Relevance != nil {
				h.Relevance = string(*p.Relevance)
			}
			hits[i] = h
		}

		b, err := json.Marshal(hits)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpExtractFilters(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Filters == nil {
			return mcpError("filter extraction not available: no AI provider configured"), nil
		}
		question, err := req.RequireString("question")
		if err != nil || question == "" {
			return mcpError("question is required"), nil
		}

		f, err := deps.Filters.Extract(ctx, question, req.GetStringSlice("exclusions", nil))
		if err != nil {
			return mcpError(fmt.Sprintf("filter extraction failed: %v", err)), nil
		}
		b, err := json.Marshal(f)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal filter: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSyncStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 7)
		if limit <= 0 {
			limit = 7
		}
		runs, err := deps.Runs.ListSyncRuns(ctx, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list sync runs: %v", err)), nil
		}
		if len(runs) == 0 {
			return mcpText("No sync runs recorded yet."), nil
		}

		var text string
		for _, r := range runs {
			line := fmt.Sprintf("%s  %-7s  %d records", r.Date, r.Status, r.RecordsFetched)
			if r.Error != "" {
				line += "  error: " + r.Error
			}
			text += line + "\n"
		}
		return mcpText(text), nil
	}
}

func mcpResourceSyncRuns(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		runs, err := deps.Runs.ListSyncRuns(ctx, 30)
		if err != nil {
			return nil, fmt.Errorf("failed to list sync runs: %w", err)
		}
		if runs == nil {
			runs = []model.SyncRun{}
		}

		b, err := json.Marshal(runs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sync runs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p, err := deps.Profile.GetProfile()
		if err != nil {
			return nil, fmt.Errorf("failed to get profile: %w", err)
		}

		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
