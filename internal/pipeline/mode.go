package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/pncp"
)

// Mode selects which dates a scheduled invocation covers.
type Mode string

const (
	// ModeIncremental syncs yesterday only.
	ModeIncremental Mode = "incremental"
	// ModeInitial syncs every past day of one month.
	ModeInitial Mode = "initial"
)

// FirstYear is the earliest year accepted for an initial load.
const FirstYear = 2020

// ValidationError describes a malformed sync request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

// MonthYear selects the month of an initial load.
type MonthYear struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// Summary aggregates the runs of one invocation.
type Summary struct {
	Runs           int      `json:"runs"`
	RecordsFetched int      `json:"recordsFetched"`
	Failed         int      `json:"failed"`
	Skipped        int      `json:"skipped"`
	Reports        []Report `json:"reports,omitempty"`
}

// Success reports whether every attempted run succeeded.
func (s Summary) Success() bool { return s.Failed == 0 }

// Validate checks a request before any external call. now bounds the
// accepted year.
func Validate(mode Mode, my MonthYear, now time.Time) error {
	switch mode {
	case ModeIncremental:
		return nil
	case ModeInitial:
	default:
		return &ValidationError{Field: "mode", Message: fmt.Sprintf("must be %q or %q", ModeIncremental, ModeInitial)}
	}
	if my.Month < 1 || my.Month > 12 {
		return &ValidationError{Field: "month", Message: "must be between 1 and 12"}
	}
	if current := now.In(pncp.PortalZone).Year(); my.Year < FirstYear || my.Year > current {
		return &ValidationError{Field: "year", Message: fmt.Sprintf("must be between %d and %d", FirstYear, current)}
	}
	return nil
}

// Dates returns the calendar dates mode covers, in order. Dates are
// midnight UTC values carrying the portal's calendar day.
func Dates(mode Mode, my MonthYear, now time.Time) []time.Time {
	local := now.In(pncp.PortalZone)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	if mode == ModeIncremental {
		return []time.Time{today.AddDate(0, 0, -1)}
	}
	var out []time.Time
	for d := time.Date(my.Year, time.Month(my.Month), 1, 0, 0, 0, 0, time.UTC); d.Month() == time.Month(my.Month) && d.Before(today); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// RunMode validates the request and runs every covered date that has no
// run yet. A failed date does not stop the following ones; cancellation
// does.
func (o *Orchestrator) RunMode(ctx context.Context, mode Mode, my MonthYear) (Summary, error) {
	now := o.now()
	if err := Validate(mode, my, now); err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, date := range Dates(mode, my, now) {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		day := date.Format(model.DateLayout)
		exists, err := o.store.HasSyncRun(ctx, day)
		if err != nil {
			return sum, fmt.Errorf("checking run %s: %w", day, err)
		}
		if exists {
			sum.Skipped++
			continue
		}

		rep, err := o.Run(ctx, date)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			sum.Runs++
			sum.Failed++
			sum.Reports = append(sum.Reports, rep)
			return sum, err
		}
		if IsConflict(err) {
			sum.Skipped++
			continue
		}
		sum.Runs++
		sum.RecordsFetched += rep.Fetched
		sum.Reports = append(sum.Reports, rep)
		if err != nil {
			sum.Failed++
		}
	}
	return sum, nil
}
