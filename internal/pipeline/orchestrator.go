// Package pipeline drives the daily sync: fetch a date's notices from the
// portal, classify them, summarize the viable ones and upsert everything,
// recording each run in the sync_runs audit table.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/licitaradar/licitaradar/internal/analysis"
	"github.com/licitaradar/licitaradar/internal/classifier"
	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/storage"
)

// Fetcher retrieves every notice published on a date.
type Fetcher interface {
	FetchAll(ctx context.Context, date time.Time) ([]model.Procurement, error)
}

// Classifier returns the viable subset of records.
type Classifier interface {
	Classify(ctx context.Context, records []model.Procurement, progress func(classifier.Event)) ([]model.Procurement, error)
}

// Analyzer summarizes one record.
type Analyzer interface {
	Analyze(ctx context.Context, p model.Procurement) (analysis.Analysis, error)
}

// Store is the persistence the orchestrator needs.
type Store interface {
	CreateSyncRun(ctx context.Context, date string, startedAt time.Time) (model.SyncRun, error)
	FinishSyncRun(ctx context.Context, date string, status model.RunStatus, fetched int, errMsg string, finishedAt time.Time) error
	HasSyncRun(ctx context.Context, date string) (bool, error)
	UpsertProcurements(ctx context.Context, records []model.Procurement) (int, []storage.UpsertError)
}

// Report summarizes one run.
type Report struct {
	Date     string          `json:"date"`
	Status   model.RunStatus `json:"status"`
	Fetched  int             `json:"recordsFetched"`
	Viable   int             `json:"viable"`
	Analyzed int             `json:"analyzed"`
	Written  int             `json:"written"`
	Skipped  int             `json:"skipped"`
	Error    string          `json:"error,omitempty"`
}

// Orchestrator runs one sync per calendar date. A run is sequential end to
// end.
type Orchestrator struct {
	fetcher    Fetcher
	classifier Classifier
	analyzer   Analyzer
	store      Store
	now        func() time.Time
	logger     *slog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock used for run timestamps and for
// resolving "yesterday".
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator. analyzer may be nil to skip summarization.
func New(f Fetcher, c Classifier, a Analyzer, s Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:    f,
		classifier: c,
		analyzer:   a,
		store:      s,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run syncs the notices published on date. A date that already has a run
// returns storage.ErrRunExists without fetching anything. Fetch and
// classification failures, and panics in any stage, finish the run as
// failed and are returned; per-record analysis and upsert failures are
// logged and skipped.
func (o *Orchestrator) Run(ctx context.Context, date time.Time) (rep Report, err error) {
	day := date.Format(model.DateLayout)
	rep = Report{Date: day, Status: model.RunRunning}

	if _, err := o.store.CreateSyncRun(ctx, day, o.now()); err != nil {
		return rep, fmt.Errorf("starting run %s: %w", day, err)
	}
	log := o.logger.With("date", day)
	log.Info("sync run started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in sync run: %v", r)
		}
		if err != nil {
			rep.Status = model.RunFailed
			rep.Error = err.Error()
			log.Error("sync run failed", "error", err)
		} else {
			rep.Status = model.RunSuccess
			log.Info("sync run finished", "fetched", rep.Fetched, "viable", rep.Viable, "written", rep.Written, "skipped", rep.Skipped)
		}
		// The run record must reach a terminal state even when ctx was cancelled.
		finishCtx := context.WithoutCancel(ctx)
		if ferr := o.store.FinishSyncRun(finishCtx, day, rep.Status, rep.Fetched, rep.Error, o.now()); ferr != nil {
			log.Error("recording run status", "error", ferr)
			if err == nil {
				err = fmt.Errorf("finishing run %s: %w", day, ferr)
			}
		}
	}()

	records, err := o.fetcher.FetchAll(ctx, date)
	if err != nil {
		return rep, fmt.Errorf("fetching %s: %w", day, err)
	}
	rep.Fetched = len(records)
	if len(records) == 0 {
		return rep, nil
	}

	viable, err := o.classifier.Classify(ctx, records, func(e classifier.Event) {
		log.Debug("classification progress", "event", e.Kind, "index", e.Index, "batches", e.Batches, "viable", e.Viable)
	})
	if err != nil {
		return rep, fmt.Errorf("classifying %s: %w", day, err)
	}
	rep.Viable = len(viable)
	markViable(records, viable)

	if o.analyzer != nil {
		if rep.Analyzed, err = o.analyze(ctx, log, records); err != nil {
			return rep, err
		}
	}

	written, failed := o.store.UpsertProcurements(ctx, records)
	rep.Written = written
	rep.Skipped = len(failed)
	for _, f := range failed {
		log.Warn("upsert failed, record skipped", "control_number", f.ControlNumber, "error", f.Err)
	}
	return rep, nil
}

// analyze summarizes the viable records in place. Only cancellation is
// fatal.
func (o *Orchestrator) analyze(ctx context.Context, log *slog.Logger, records []model.Procurement) (int, error) {
	n := 0
	for i := range records {
		if records[i].Viable == nil || !*records[i].Viable {
			continue
		}
		a, err := o.analyzer.Analyze(ctx, records[i])
		if err != nil {
			if ctx.Err() != nil {
				return n, ctx.Err()
			}
			log.Warn("analysis failed, record stored without summary", "control_number", records[i].ControlNumber, "error", err)
			continue
		}
		a.Apply(&records[i])
		n++
	}
	return n, nil
}

// markViable sets the Viable flag on every record.
func markViable(records, viable []model.Procurement) {
	ok := make(map[string]bool, len(viable))
	for _, v := range viable {
		ok[v.ControlNumber] = true
	}
	for i := range records {
		v := ok[records[i].ControlNumber]
		records[i].Viable = &v
	}
}

// IsConflict reports whether err means the date already had a run.
func IsConflict(err error) bool { return errors.Is(err, storage.ErrRunExists) }
