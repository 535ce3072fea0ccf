// Package filters turns a free-text procurement question into a structured
// search filter.
package filters

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/licitaradar/licitaradar/internal/engine"
	"github.com/licitaradar/licitaradar/internal/llmjson"
	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/profile"
	"github.com/licitaradar/licitaradar/internal/retry"
)

// ErrEmptyQuestion is returned for a blank question, before any model call.
var ErrEmptyQuestion = errors.New("question must not be empty")

// ProfileSource supplies the domain vocabulary.
type ProfileSource interface {
	GetProfile() (profile.Profile, error)
}

// Extractor asks the generative model for a structured filter.
type Extractor struct {
	engine  engine.Engine
	profile ProfileSource
	policy  retry.Policy
	now     func() time.Time
}

// NewExtractor creates an Extractor using the default model retry policy.
func NewExtractor(e engine.Engine, p ProfileSource) *Extractor {
	return &Extractor{engine: e, profile: p, policy: engine.RetryPolicy(), now: time.Now}
}

// Extract converts question into a Filter. Exclusions come from the
// caller, from negative phrases in the question and from the model, and are
// merged into Blacklist. When the model call fails or its output cannot be
// parsed, a weak filter built from the question alone is returned with a
// nil error.
func (x *Extractor) Extract(ctx context.Context, question string, exclusions []string) (model.Filter, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return model.Filter{}, ErrEmptyQuestion
	}

	negatives := NegativeTerms(question)
	prof, err := x.profile.GetProfile()
	if err != nil {
		slog.Warn("domain profile unavailable, using default", "error", err)
		prof = profile.Default()
	}

	req := engine.GenerateRequest{
		System: BuildSystemPrompt(prof, x.now()),
		Parts:  []engine.Part{engine.TextPart(question)},
		JSON:   true,
	}
	raw, err := retry.Value(ctx, x.policy, func(ctx context.Context) (string, error) {
		return x.engine.Generate(ctx, req)
	})
	if err != nil {
		if ctx.Err() != nil {
			return model.Filter{}, ctx.Err()
		}
		slog.Warn("filter extraction call failed, using weak filter", "error", err)
		return weak(question, exclusions, negatives, prof), nil
	}

	obj, err := llmjson.ExtractObject(raw)
	if err != nil {
		slog.Warn("unparseable filter response, using weak filter", "error", err, "response", raw)
		return weak(question, exclusions, negatives, prof), nil
	}
	f, err := Decode(obj)
	if err != nil {
		slog.Warn("undecodable filter response, using weak filter", "error", err, "response", raw)
		return weak(question, exclusions, negatives, prof), nil
	}

	f.Blacklist = normalizeTerms(exclusions, negatives, f.Blacklist)
	if len(f.Keywords) == 0 {
		f.Keywords = QuestionWords(question, f.Blacklist)
	}
	f.SmartBlacklist = withoutTerms(f.SmartBlacklist, f.Keywords)
	return f, nil
}

// weak builds a filter without the model: question words as keywords,
// value bounds from explicit phrases, the profile's exclusion vocabulary as
// the soft blacklist.
func weak(question string, exclusions, negatives []string, p profile.Profile) model.Filter {
	f := model.Filter{Blacklist: normalizeTerms(exclusions, negatives)}
	f.Keywords = QuestionWords(question, f.Blacklist)
	f.ValueMin, f.ValueMax = ValueBounds(question)
	f.SmartBlacklist = withoutTerms(normalizeTerms(p.Exclude), f.Keywords)
	return f
}

func withoutTerms(list, drop []string) []string {
	if len(list) == 0 {
		return list
	}
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	out := list[:0:0]
	for _, t := range list {
		if !skip[t] {
			out = append(out, t)
		}
	}
	return out
}
