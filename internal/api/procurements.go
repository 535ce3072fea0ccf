package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/licitaradar/licitaradar/internal/chat"
	"github.com/licitaradar/licitaradar/internal/engine"
	"github.com/licitaradar/licitaradar/internal/ingest"
	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/storage"
)

type procurementResponse struct {
	model.Procurement
	VotesUp   int `json:"votesUp"`
	VotesDown int `json:"votesDown"`
}

// loadProcurement answers 404 and returns false when the notice is unknown.
func loadProcurement(w http.ResponseWriter, r *http.Request, deps Deps) (model.Procurement, bool) {
	id := chi.URLParam(r, "id")
	p, err := deps.Store.GetProcurement(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "procurement %s not found", id)
		return p, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get procurement: %v", err)
		return p, false
	}
	return p, true
}

func handleGetProcurement(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadProcurement(w, r, deps)
		if !ok {
			return
		}
		up, down, err := deps.Store.VoteTally(r.Context(), p.ControlNumber)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count votes: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, procurementResponse{Procurement: p, VotesUp: up, VotesDown: down})
	}
}

// VoteRequest records a user's relevance feedback.
type VoteRequest struct {
	UserID string `json:"userId"`
	Value  int    `json:"value"`
}

func handleVote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VoteRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.UserID) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "userId is required")
			return
		}
		if req.Value != 1 && req.Value != -1 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "value must be 1 or -1")
			return
		}
		p, ok := loadProcurement(w, r, deps)
		if !ok {
			return
		}

		if err := deps.Store.UpsertVote(r.Context(), req.UserID, p.ControlNumber, req.Value); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save vote: %v", err)
			return
		}
		up, down, err := deps.Store.VoteTally(r.Context(), p.ControlNumber)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count votes: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"up": up, "down": down})
	}
}

func handleIndexDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadProcurement(w, r, deps)
		if !ok {
			return
		}
		jobID, err := ingest.EnqueueIndex(r.Context(), deps.Store, p.ControlNumber)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID, "status": "queued"})
	}
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := deps.Store.GetJob(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":        job.ID,
			"type":      job.Type,
			"status":    job.Status,
			"attempts":  job.Attempts,
			"lastError": job.LastError,
		})
	}
}

// ChatRequest is one question about a notice.
type ChatRequest struct {
	Question string      `json:"question"`
	History  []chat.Turn `json:"history,omitempty"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}
		if deps.Chat == nil {
			httpError(w, http.StatusServiceUnavailable, "unavailable", "chat is not configured")
			return
		}

		id := chi.URLParam(r, "id")
		ans, err := deps.Chat.Ask(r.Context(), id, req.Question, req.History)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "procurement %s not found", id)
		case errors.Is(err, engine.ErrRateLimited):
			httpError(w, http.StatusTooManyRequests, "rate_limited", "AI provider quota exhausted, try again later")
		case err != nil:
			httpError(w, http.StatusBadGateway, "api_error", "chat failed: %v", err)
		default:
			writeJSON(w, http.StatusOK, ans)
		}
	}
}
