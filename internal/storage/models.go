package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRunExists is returned when a sync run for the date was already created.
	ErrRunExists = errors.New("sync run already exists for date")
	// ErrRunFinished is returned when finishing a run that is no longer running.
	ErrRunFinished = errors.New("sync run already finished")
	// ErrInvalidVote is returned for vote values other than +1 and -1.
	ErrInvalidVote = errors.New("vote value must be +1 or -1")
)

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Query selects stored procurements. Zero-valued fields do not constrain.
type Query struct {
	// Terms are OR-matched against the description, case-insensitively.
	Terms    []string
	Exclude  []string
	ValueMin *float64
	ValueMax *float64
	State    string
	DateFrom string // YYYY-MM-DD in portal time, inclusive
	DateTo   string // YYYY-MM-DD in portal time, inclusive
	Modality string
	// ViableOnly drops records the classifier rejected. Unclassified
	// records are kept.
	ViableOnly bool
	Limit      int
}

// UpsertError reports one record that could not be written.
type UpsertError struct {
	ControlNumber string
	Err           error
}

func (e UpsertError) Error() string {
	return "upserting " + e.ControlNumber + ": " + e.Err.Error()
}

func (e UpsertError) Unwrap() error { return e.Err }
