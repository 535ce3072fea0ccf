// Package model holds the domain types shared by the ingestion pipeline,
// storage and the interactive search surface.
package model

import (
	"strings"
	"time"
)

// Tier is the AI-assessed relevance level of a procurement notice.
type Tier string

const (
	TierHigh   Tier = "Alto"
	TierMedium Tier = "Médio"
	TierLow    Tier = "Baixo"
)

// ParseTier normalizes a model-produced tier label. Unknown labels map to
// TierLow and ok=false.
func ParseTier(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "alto", "alta", "high":
		return TierHigh, true
	case "médio", "medio", "média", "media", "medium":
		return TierMedium, true
	case "baixo", "baixa", "low":
		return TierLow, true
	}
	return TierLow, false
}

// Procurement is one public procurement notice. ControlNumber is the
// portal-issued natural key and never changes once created. The AI fields
// stay nil until analysis runs.
type Procurement struct {
	ControlNumber  string    `json:"controlNumber"`
	EntityCNPJ     string    `json:"entityCnpj"`
	EntityName     string    `json:"entityName,omitempty"`
	Year           int       `json:"year"`
	Sequence       int       `json:"sequence"`
	EstimatedValue float64   `json:"estimatedValue"`
	State          string    `json:"state,omitempty"`
	City           string    `json:"city,omitempty"`
	PublishedAt    time.Time `json:"publishedAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Description    string    `json:"description"`
	Modality       string    `json:"modality,omitempty"`
	Status         string    `json:"status,omitempty"`
	SourceLink     string    `json:"sourceLink,omitempty"`

	Summary       *string  `json:"summary,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	Relevance     *Tier    `json:"relevance,omitempty"`
	Justification *string  `json:"justification,omitempty"`
	DocumentLinks []string `json:"documentLinks,omitempty"`
	Viable        *bool    `json:"viable,omitempty"`
}

// HasAnalysis reports whether the AI summary fields have been populated.
func (p Procurement) HasAnalysis() bool {
	return p.Summary != nil || p.Relevance != nil
}

// RunStatus is the lifecycle state of a SyncRun.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == RunSuccess || s == RunFailed
}

// SyncRun records one orchestrator execution for a calendar date.
type SyncRun struct {
	Date           string     `json:"date"` // YYYY-MM-DD, unique
	Status         RunStatus  `json:"status"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
	RecordsFetched int        `json:"recordsFetched"`
	Error          string     `json:"error,omitempty"`
}

// DocumentChunk is an overlapping window of text extracted from one of a
// notice's PDF attachments.
type DocumentChunk struct {
	ID            string    `json:"id"`
	ControlNumber string    `json:"controlNumber"`
	SourceFile    string    `json:"sourceFile"`
	Position      int       `json:"position"`
	Text          string    `json:"text"`
	Embedding     []float32 `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RelevanceVote is a user's feedback on the AI relevance call for a notice.
type RelevanceVote struct {
	UserID        string    `json:"userId"`
	ControlNumber string    `json:"controlNumber"`
	Value         int       `json:"value"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// DateLayout is the calendar-date format used for sync run keys and filters.
const DateLayout = "2006-01-02"
