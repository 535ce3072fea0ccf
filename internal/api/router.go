// Package api exposes the scheduler trigger, the interactive HTTP surface
// and the MCP tool server.
package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/licitaradar/licitaradar/internal/chat"
	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/pipeline"
	"github.com/licitaradar/licitaradar/internal/profile"
	"github.com/licitaradar/licitaradar/internal/search"
	"github.com/licitaradar/licitaradar/internal/storage"
)

// SyncRunner runs scheduled syncs.
type SyncRunner interface {
	RunMode(ctx context.Context, mode pipeline.Mode, my pipeline.MonthYear) (pipeline.Summary, error)
}

// Searcher runs interactive searches.
type Searcher interface {
	Search(ctx context.Context, req search.Request, progress func(search.Event)) (search.Result, error)
}

// FilterExtractor converts a question into a structured filter.
type FilterExtractor interface {
	Extract(ctx context.Context, question string, exclusions []string) (model.Filter, error)
}

// Asker answers questions about one notice.
type Asker interface {
	Ask(ctx context.Context, controlNumber, question string, history []chat.Turn) (chat.Answer, error)
}

// Deps holds the HTTP handlers' dependencies. AI-backed components may be
// nil; their routes then answer 503.
type Deps struct {
	Store      *storage.Store
	Profile    *profile.Manager
	Sync       SyncRunner
	Search     Searcher
	Filters    FilterExtractor
	Chat       Asker
	SyncSecret string
	// Lifetime bounds work that must outlive the triggering request, such
	// as a scheduled sync. A nil Lifetime never cancels.
	Lifetime context.Context
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(deps.SyncSecret))
			r.Post("/sync", handleSync(deps, &sync.Mutex{}))
			r.Get("/sync-runs", handleListRuns(deps))
		})

		r.Post("/search", handleSearch(deps))
		r.Post("/filters", handleExtractFilters(deps))

		r.Get("/profile", handleGetProfile(deps))
		r.Patch("/profile", handlePatchProfile(deps))

		r.Route("/procurements/{id}", func(r chi.Router) {
			r.Get("/", handleGetProcurement(deps))
			r.Post("/votes", handleVote(deps))
			r.Post("/documents", handleIndexDocuments(deps))
			r.Post("/chat", handleChat(deps))
		})
		r.Get("/jobs/{id}", handleGetJob(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
