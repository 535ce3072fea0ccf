// Package classifier decides which procurement notices are business
// opportunities for the domain profile, batching model calls and caching
// verdicts.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/licitaradar/licitaradar/internal/cache"
	"github.com/licitaradar/licitaradar/internal/config"
	"github.com/licitaradar/licitaradar/internal/engine"
	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/retry"
)

// EventKind identifies a progress event.
type EventKind string

const (
	EventStart EventKind = "start"
	EventBatch EventKind = "batch"
	EventDone  EventKind = "done"
)

// Event reports classification progress. Index is 1-based.
type Event struct {
	Kind    EventKind `json:"type"`
	Total   int       `json:"total,omitempty"`
	Batches int       `json:"batches,omitempty"`
	Cached  int       `json:"cached,omitempty"`
	Index   int       `json:"index,omitempty"`
	Viable  int       `json:"viable"`
}

// ProfileSource supplies the domain profile block for the prompt.
type ProfileSource interface {
	GetSummary() (string, error)
}

// Classifier filters procurement notices through a generative model.
type Classifier struct {
	engine    engine.Engine
	verdicts  cache.Cache[bool]
	profile   ProfileSource
	batchSize int
	delay     time.Duration
	policy    retry.Policy
	sleep     retry.SleepFunc
}

// Option customizes a Classifier.
type Option func(*Classifier)

// WithSleep replaces the sleep used between batches and retry attempts.
func WithSleep(fn retry.SleepFunc) Option {
	return func(c *Classifier) {
		c.sleep = fn
		c.policy.Sleep = fn
	}
}

// WithPolicy replaces the model call retry policy.
func WithPolicy(p retry.Policy) Option {
	return func(c *Classifier) { c.policy = p }
}

// New creates a Classifier. verdicts is the viability cache shared with
// the interactive search path.
func New(e engine.Engine, verdicts cache.Cache[bool], profile ProfileSource, cfg config.SyncConfig, opts ...Option) *Classifier {
	c := &Classifier{
		engine:    e,
		verdicts:  verdicts,
		profile:   profile,
		batchSize: cfg.BatchSize,
		delay:     cfg.BatchDelay,
		policy:    engine.RetryPolicy(),
		sleep:     retry.Sleep,
	}
	if c.batchSize <= 0 {
		c.batchSize = 150
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify returns the viable subset of records in input order, each with
// Viable set. Cached verdicts are reused. Every evaluated record gets a
// cached verdict; a batch whose call or parse fails is cached as not viable.
// On cancellation the viable records resolved so far are returned with
// ctx.Err().
func (c *Classifier) Classify(ctx context.Context, records []model.Procurement, progress func(Event)) ([]model.Procurement, error) {
	if progress == nil {
		progress = func(Event) {}
	}

	verdict := make(map[string]bool, len(records))
	var queue []model.Procurement
	queued := make(map[string]bool)
	cached := 0
	for _, r := range records {
		if v, ok := c.verdicts.Get(r.ControlNumber); ok {
			verdict[r.ControlNumber] = v
			cached++
			continue
		}
		if queued[r.ControlNumber] {
			continue
		}
		queued[r.ControlNumber] = true
		queue = append(queue, r)
	}

	batches := (len(queue) + c.batchSize - 1) / c.batchSize
	progress(Event{Kind: EventStart, Total: len(records), Batches: batches, Cached: cached})

	if batches > 0 {
		summary, err := c.profile.GetSummary()
		if err != nil {
			return nil, fmt.Errorf("loading domain profile: %w", err)
		}
		system := BuildSystemPrompt(summary)

		for i := 0; i < batches; i++ {
			start := i * c.batchSize
			end := min(start+c.batchSize, len(queue))
			batch := queue[start:end]

			approved, err := c.classifyBatch(ctx, system, batch)
			if err != nil && ctx.Err() != nil {
				return collect(records, verdict), ctx.Err()
			}
			n := 0
			for _, r := range batch {
				ok := approved[r.ControlNumber]
				verdict[r.ControlNumber] = ok
				c.verdicts.Set(r.ControlNumber, ok)
				if ok {
					n++
				}
			}
			progress(Event{Kind: EventBatch, Index: i + 1, Batches: batches, Viable: n})

			if i < batches-1 && c.delay > 0 {
				if err := c.sleep(ctx, c.delay); err != nil {
					return collect(records, verdict), err
				}
			}
		}
	}

	out := collect(records, verdict)
	progress(Event{Kind: EventDone, Viable: len(out)})
	return out, nil
}

// classifyBatch returns the approved ids of one batch. Any failure yields
// an empty set and is logged; the caller caches the batch as not viable.
func (c *Classifier) classifyBatch(ctx context.Context, system string, batch []model.Procurement) (map[string]bool, error) {
	req := engine.GenerateRequest{
		System: system,
		Parts:  []engine.Part{engine.TextPart(BuildBatch(batch))},
		JSON:   true,
	}
	raw, err := retry.Value(ctx, c.policy, func(ctx context.Context) (string, error) {
		return c.engine.Generate(ctx, req)
	})
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("classification call failed, batch rejected", "size", len(batch), "error", err)
		}
		return nil, err
	}

	approved, err := ParseApproved(raw)
	if err != nil {
		slog.Warn("unparseable classification response, batch rejected", "size", len(batch), "error", err, "response", raw)
		return nil, err
	}
	return approved, nil
}

func collect(records []model.Procurement, verdict map[string]bool) []model.Procurement {
	var out []model.Procurement
	for _, r := range records {
		if verdict[r.ControlNumber] {
			v := true
			r.Viable = &v
			out = append(out, r)
		}
	}
	return out
}
