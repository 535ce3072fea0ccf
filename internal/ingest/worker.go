// Package ingest runs queued document indexing jobs in the background.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/storage"
)

// JobIndexDocuments is the job type that (re)indexes a notice's attachments.
const JobIndexDocuments = "index_documents"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
	GetProcurement(ctx context.Context, controlNumber string) (model.Procurement, error)
}

// Enqueuer adds jobs to the queue.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, job storage.Job) (string, error)
}

// DocumentIndexer extracts, embeds and stores a notice's chunks.
type DocumentIndexer interface {
	Index(ctx context.Context, p model.Procurement) (int, error)
}

type indexPayload struct {
	ControlNumber string `json:"controlNumber"`
}

// EnqueueIndex queues an indexing job for controlNumber and returns the
// job ID.
func EnqueueIndex(ctx context.Context, q Enqueuer, controlNumber string) (string, error) {
	controlNumber = strings.TrimSpace(controlNumber)
	if controlNumber == "" {
		return "", errors.New("control number is empty")
	}
	payload, err := json.Marshal(indexPayload{ControlNumber: controlNumber})
	if err != nil {
		return "", err
	}
	return q.EnqueueJob(ctx, storage.Job{Type: JobIndexDocuments, PayloadJSON: string(payload)})
}

// Worker processes index_documents jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	indexer DocumentIndexer
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, indexer DocumentIndexer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		indexer: indexer,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single index_documents job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{JobIndexDocuments})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	n, err := w.processJob(ctx, job)
	if err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		// Record the attempt even when ctx was cancelled mid-job.
		if failErr := w.store.FailJob(context.WithoutCancel(ctx), job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.logger.Info("documents indexed", "job_id", job.ID, "chunks", n)
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) (int, error) {
	var payload indexPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return 0, fmt.Errorf("parsing payload: %w", err)
	}
	if payload.ControlNumber == "" {
		return 0, errors.New("payload has no control number")
	}

	p, err := w.store.GetProcurement(ctx, payload.ControlNumber)
	if err != nil {
		return 0, fmt.Errorf("loading procurement %s: %w", payload.ControlNumber, err)
	}
	return w.indexer.Index(ctx, p)
}
