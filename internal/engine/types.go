package engine

import (
	"errors"
	"strings"
)

var (
	// ErrRateLimited signals provider quota or rate-limit exhaustion (HTTP 429).
	ErrRateLimited = errors.New("ai provider rate limited")
	// ErrOverloaded signals a transient provider overload (HTTP 500/503).
	ErrOverloaded = errors.New("ai provider overloaded")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("ai provider returned no content")
)

// Intent selects the embedding task mode.
type Intent int

const (
	// IntentDocument embeds text that will be stored and searched.
	IntentDocument Intent = iota
	// IntentQuery embeds a question used to search stored documents.
	IntentQuery
)

func (i Intent) String() string {
	if i == IntentQuery {
		return "query"
	}
	return "document"
}

// Part is one element of a prompt: either text or inline binary data
// such as a PDF attachment.
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

// TextPart returns a text-only Part.
func TextPart(s string) Part { return Part{Text: s} }

// GenerateRequest is a single-turn generation call.
type GenerateRequest struct {
	System string
	Parts  []Part
	// Temperature overrides the configured default when non-nil.
	Temperature     *float64
	MaxOutputTokens int
	// JSON asks the provider to constrain the reply to a JSON document.
	JSON bool
}

// Prompt renders the text parts of the request, separated by blank lines.
func (r GenerateRequest) Prompt() string {
	var texts []string
	for _, p := range r.Parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
