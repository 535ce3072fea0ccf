package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/pipeline"
)

// SyncRequest is the scheduler trigger body. Month and year are required
// for the initial mode only.
type SyncRequest struct {
	Mode  string `json:"mode"`
	Month int    `json:"month"`
	Year  int    `json:"year"`
}

// SyncResponse is returned to the scheduler.
type SyncResponse struct {
	Success        bool   `json:"success"`
	Runs           int    `json:"runs"`
	RecordsFetched int    `json:"recordsFetched"`
	Failed         int    `json:"failed"`
	Skipped        int    `json:"skipped"`
	Error          string `json:"error,omitempty"`
}

func handleSync(deps Deps, running *sync.Mutex) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SyncRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Mode == "" {
			req.Mode = string(pipeline.ModeIncremental)
		}
		mode := pipeline.Mode(req.Mode)
		my := pipeline.MonthYear{Month: req.Month, Year: req.Year}
		if err := pipeline.Validate(mode, my, time.Now()); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if deps.Sync == nil {
			httpError(w, http.StatusServiceUnavailable, "unavailable", "sync is not configured")
			return
		}

		if !running.TryLock() {
			httpError(w, http.StatusConflict, "conflict", "a sync is already in progress")
			return
		}
		defer running.Unlock()

		// The scheduler may drop the connection before a long backfill
		// finishes; the run continues until the server shuts down.
		ctx, cancel := detach(r.Context(), deps.Lifetime)
		defer cancel()
		sum, err := deps.Sync.RunMode(ctx, mode, my)
		resp := SyncResponse{
			Success:        err == nil && sum.Success(),
			Runs:           sum.Runs,
			RecordsFetched: sum.RecordsFetched,
			Failed:         sum.Failed,
			Skipped:        sum.Skipped,
		}
		if err != nil {
			slog.Error("sync trigger failed", "mode", mode, "error", err)
			resp.Error = err.Error()
			var ve *pipeline.ValidationError
			if errors.As(err, &ve) {
				writeJSON(w, http.StatusBadRequest, resp)
				return
			}
			writeJSON(w, http.StatusInternalServerError, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 30, 366)
		runs, err := deps.Store.ListSyncRuns(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sync runs: %v", err)
			return
		}
		if runs == nil {
			runs = []model.SyncRun{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

// detach returns a context carrying parent's values that is cancelled only
// when lifetime is done.
func detach(parent, lifetime context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	if lifetime == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(lifetime, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
