package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/licitaradar/licitaradar/internal/model"
)

// CreateSyncRun records the start of a run for date (YYYY-MM-DD). It returns
// ErrRunExists when the date already has a run in any status.
func (s *Store) CreateSyncRun(ctx context.Context, date string, startedAt time.Time) (model.SyncRun, error) {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return model.SyncRun{}, fmt.Errorf("invalid run date %q: %w", date, err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (date, status, started_at, records_fetched, error)
		VALUES (?, ?, ?, 0, '')
		ON CONFLICT(date) DO NOTHING`,
		date, string(model.RunRunning), formatTime(startedAt),
	)
	if err != nil {
		return model.SyncRun{}, fmt.Errorf("creating sync run %s: %w", date, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.SyncRun{}, err
	}
	if n == 0 {
		return model.SyncRun{}, fmt.Errorf("%s: %w", date, ErrRunExists)
	}
	return model.SyncRun{
		Date:      date,
		Status:    model.RunRunning,
		StartedAt: startedAt.UTC().Truncate(time.Second),
	}, nil
}

// FinishSyncRun moves a running run into a terminal status. Runs are
// mutated exactly once.
func (s *Store) FinishSyncRun(ctx context.Context, date string, status model.RunStatus, fetched int, errMsg string, finishedAt time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("finishing run %s with non-terminal status %q", date, status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs SET status = ?, finished_at = ?, records_fetched = ?, error = ?
		WHERE date = ? AND status = ?`,
		string(status), formatTime(finishedAt), fetched, errMsg, date, string(model.RunRunning),
	)
	if err != nil {
		return fmt.Errorf("finishing sync run %s: %w", date, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetSyncRun(ctx, date); err != nil {
		return err
	}
	return fmt.Errorf("%s: %w", date, ErrRunFinished)
}

// GetSyncRun returns the run for date.
func (s *Store) GetSyncRun(ctx context.Context, date string) (model.SyncRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT date, status, started_at, finished_at, records_fetched, error
		FROM sync_runs WHERE date = ?`, date)
	r, err := scanSyncRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SyncRun{}, ErrNotFound
	}
	return r, err
}

// HasSyncRun reports whether any run exists for date.
func (s *Store) HasSyncRun(ctx context.Context, date string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_runs WHERE date = ?`, date).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListSyncRuns returns the most recent runs by date, newest first.
func (s *Store) ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, status, started_at, finished_at, records_fetched, error
		FROM sync_runs ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.SyncRun
	for rows.Next() {
		r, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanSyncRun(r rowScanner) (model.SyncRun, error) {
	var run model.SyncRun
	var status, startedAt string
	var finishedAt sql.NullString
	if err := r.Scan(&run.Date, &status, &startedAt, &finishedAt, &run.RecordsFetched, &run.Error); err != nil {
		return model.SyncRun{}, err
	}
	run.Status = model.RunStatus(status)

	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return model.SyncRun{}, fmt.Errorf("parsing started_at for %s: %w", run.Date, err)
	}
	if finishedAt.Valid && finishedAt.String != "" {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return model.SyncRun{}, fmt.Errorf("parsing finished_at for %s: %w", run.Date, err)
		}
		run.FinishedAt = &t
	}
	return run, nil
}
