package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/licitaradar/licitaradar/internal/filters"
	"github.com/licitaradar/licitaradar/internal/search"
)

const maxSearchLimit = 200

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req search.Request
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}
		if req.Limit < 0 || req.Limit > maxSearchLimit {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be between 0 and %d", maxSearchLimit)
			return
		}
		if deps.Search == nil {
			httpError(w, http.StatusServiceUnavailable, "unavailable", "search is not configured")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		send := func(event string, v any) {
			b, err := json.Marshal(v)
			if err != nil {
				slog.Error("encoding search event", "event", event, "error", err)
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
			flusher.Flush()
		}

		// A client disconnect cancels r.Context(), which stops pending AI calls.
		res, err := deps.Search.Search(r.Context(), req, func(e search.Event) {
			send("progress", e)
		})
		if err != nil {
			if r.Context().Err() != nil {
				slog.Debug("search cancelled by client")
				return
			}
			slog.Warn("search failed", "error", err)
			send("error", map[string]string{"message": searchErrorMessage(err)})
			return
		}
		send("result", res)
	}
}

func searchErrorMessage(err error) string {
	if errors.Is(err, filters.ErrEmptyQuestion) {
		return "A pergunta não pode estar vazia."
	}
	return "Não foi possível concluir a busca. Tente novamente em instantes."
}

func handleExtractFilters(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question   string   `json:"question"`
			Exclusions []string `json:"exclusions"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}
		if deps.Filters == nil {
			httpError(w, http.StatusServiceUnavailable, "unavailable", "filter extraction is not configured")
			return
		}
		f, err := deps.Filters.Extract(r.Context(), req.Question, req.Exclusions)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "filter extraction failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}
