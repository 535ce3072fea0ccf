// Package search answers free-text questions against stored procurement
// notices: the question becomes a structured filter, the filter becomes a
// storage query, and the matches are optionally re-classified.
package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/licitaradar/licitaradar/internal/cache"
	"github.com/licitaradar/licitaradar/internal/classifier"
	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/storage"
)

// DefaultLimit caps the number of returned records when Request.Limit is 0.
const DefaultLimit = 50

// Request is one interactive search.
type Request struct {
	Question   string   `json:"question"`
	Exclusions []string `json:"exclusions,omitempty"`
	// Reclassify runs the matches through the relevance classifier instead
	// of trusting stored verdicts.
	Reclassify bool `json:"reclassify,omitempty"`
	Limit      int  `json:"limit,omitempty"`
}

// Result is the outcome of a search.
type Result struct {
	Filter  model.Filter        `json:"filter"`
	Records []model.Procurement `json:"records"`
	Cached  bool                `json:"cached"`
}

// EventKind identifies a progress event.
type EventKind string

const (
	EventFilter         EventKind = "filter"
	EventMatches        EventKind = "matches"
	EventClassification EventKind = "classification"
)

// Event reports search progress.
type Event struct {
	Kind           EventKind         `json:"type"`
	Filter         *model.Filter     `json:"filter,omitempty"`
	Matches        int               `json:"matches,omitempty"`
	Classification *classifier.Event `json:"classification,omitempty"`
}

// FilterExtractor converts a question into a Filter.
type FilterExtractor interface {
	Extract(ctx context.Context, question string, exclusions []string) (model.Filter, error)
}

// Querier runs structured queries against stored notices.
type Querier interface {
	QueryProcurements(ctx context.Context, q storage.Query) ([]model.Procurement, error)
}

// Classifier re-evaluates the viability of records.
type Classifier interface {
	Classify(ctx context.Context, records []model.Procurement, progress func(classifier.Event)) ([]model.Procurement, error)
}

// Searcher runs interactive searches. Identical filters share one
// computation and its cached result.
type Searcher struct {
	filters    FilterExtractor
	store      Querier
	classifier Classifier
	results    cache.Cache[[]model.Procurement]

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is a computation shared by every caller waiting on the same key.
// It runs on a context detached from the callers and is cancelled when the
// last waiter leaves.
type flight struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	recs   []model.Procurement
	err    error

	mu      sync.Mutex
	waiters map[int]func(Event)
	nextID  int
}

// emit delivers e to every current waiter. A waiter that has left is never
// called again.
func (fl *flight) emit(e Event) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	for _, progress := range fl.waiters {
		progress(e)
	}
}

// New creates a Searcher. classifier may be nil, in which case
// Request.Reclassify is ignored.
func New(filters FilterExtractor, store Querier, c Classifier, results cache.Cache[[]model.Procurement]) *Searcher {
	return &Searcher{
		filters:    filters,
		store:      store,
		classifier: c,
		results:    results,
		flights:    make(map[string]*flight),
	}
}

// Search runs req. progress may be nil. Cancelling ctx returns ctx.Err()
// and stops pending AI calls once no other caller waits on the same result.
func (s *Searcher) Search(ctx context.Context, req Request, progress func(Event)) (Result, error) {
	if progress == nil {
		progress = func(Event) {}
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	reclassify := req.Reclassify && s.classifier != nil

	f, err := s.filters.Extract(ctx, req.Question, req.Exclusions)
	if err != nil {
		return Result{}, fmt.Errorf("extracting filter: %w", err)
	}
	progress(Event{Kind: EventFilter, Filter: &f})

	key := f.Signature() + "|" + strconv.Itoa(limit) + "|" + strconv.FormatBool(reclassify)
	if recs, ok := s.results.Get(key); ok {
		progress(Event{Kind: EventMatches, Matches: len(recs)})
		return Result{Filter: f, Records: recs, Cached: true}, nil
	}

	fl, id := s.join(ctx, key, progress, func(ctx context.Context, emit func(Event)) ([]model.Procurement, error) {
		return s.run(ctx, f, limit, reclassify, emit)
	})
	defer s.leave(key, fl, id)

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-fl.done:
		if fl.err != nil {
			return Result{}, fl.err
		}
		return Result{Filter: f, Records: fl.recs}, nil
	}
}

// join registers progress as a waiter on the flight for key, starting the
// flight with compute when none is running.
func (s *Searcher) join(ctx context.Context, key string, progress func(Event), compute func(context.Context, func(Event)) ([]model.Procurement, error)) (*flight, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fl, running := s.flights[key]
	if !running {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{ctx: fctx, cancel: cancel, done: make(chan struct{}), waiters: make(map[int]func(Event))}
		s.flights[key] = fl
	}

	fl.mu.Lock()
	id := fl.nextID
	fl.nextID++
	fl.waiters[id] = progress
	fl.mu.Unlock()

	if !running {
		go s.fly(key, fl, compute)
	}
	return fl, id
}

func (s *Searcher) fly(key string, fl *flight, compute func(context.Context, func(Event)) ([]model.Procurement, error)) {
	defer fl.cancel()
	fl.recs, fl.err = compute(fl.ctx, fl.emit)
	if fl.err == nil {
		s.results.Set(key, fl.recs)
	}
	s.mu.Lock()
	if s.flights[key] == fl {
		delete(s.flights, key)
	}
	s.mu.Unlock()
	close(fl.done)
}

// leave removes a waiter. The last one out cancels the flight.
func (s *Searcher) leave(key string, fl *flight, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fl.mu.Lock()
	delete(fl.waiters, id)
	empty := len(fl.waiters) == 0
	fl.mu.Unlock()

	if empty {
		fl.cancel()
		if s.flights[key] == fl {
			delete(s.flights, key)
		}
	}
}

func (s *Searcher) run(ctx context.Context, f model.Filter, limit int, reclassify bool, progress func(Event)) ([]model.Procurement, error) {
	q := storage.Query{
		Terms:      append(append([]string(nil), f.Keywords...), f.Synonyms...),
		Exclude:    f.Blacklist,
		ValueMin:   f.ValueMin,
		ValueMax:   f.ValueMax,
		State:      deref(f.State),
		DateFrom:   deref(f.DateFrom),
		DateTo:     deref(f.DateTo),
		Modality:   deref(f.Modality),
		ViableOnly: !reclassify,
	}
	// Post-filters may drop rows, so the limit is applied afterwards.
	if len(f.SmartBlacklist) == 0 && !reclassify {
		q.Limit = limit
	}

	recs, err := s.store.QueryProcurements(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying procurements: %w", err)
	}
	recs = SoftExclude(recs, f.Keywords, f.SmartBlacklist)
	progress(Event{Kind: EventMatches, Matches: len(recs)})

	if reclassify && len(recs) > 0 {
		recs, err = s.classifier.Classify(ctx, recs, func(e classifier.Event) {
			progress(Event{Kind: EventClassification, Classification: &e})
		})
		if err != nil {
			return nil, fmt.Errorf("classifying matches: %w", err)
		}
	}

	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// SoftExclude drops records whose description mentions a smart blacklist
// term, unless the description also mentions one of the keywords.
func SoftExclude(recs []model.Procurement, keywords, smart []string) []model.Procurement {
	if len(smart) == 0 {
		return recs
	}
	out := recs[:0:0]
	for _, r := range recs {
		desc := strings.ToLower(r.Description)
		if containsAny(desc, smart) && !containsAny(desc, keywords) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" && strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
