package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitaradar/licitaradar/internal/cache"
	"github.com/licitaradar/licitaradar/internal/config"
	"github.com/licitaradar/licitaradar/internal/engine"
	"github.com/licitaradar/licitaradar/internal/model"
)

type staticProfile string

func (s staticProfile) GetSummary() (string, error) { return string(s), nil }

// fakeEngine answers Generate with respond(batchPayload).
type fakeEngine struct {
	mu      sync.Mutex
	calls   []engine.GenerateRequest
	respond func(payload string) (string, error)
}

func (f *fakeEngine) Generate(_ context.Context, req engine.GenerateRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.respond(req.Prompt())
}

func (f *fakeEngine) Embed(context.Context, string, engine.Intent) ([]float32, error) {
	return nil, errors.New("not used")
}

// approveContaining approves every id whose description contains word.
func approveContaining(word string) func(string) (string, error) {
	return func(payload string) (string, error) {
		var ids []string
		for _, item := range strings.Split(payload, "},{") {
			if strings.Contains(item, word) {
				start := strings.Index(item, `"id":"`) + len(`"id":"`)
				end := strings.Index(item[start:], `"`)
				ids = append(ids, fmt.Sprintf("%q", item[start:start+end]))
			}
		}
		return "```json\n[" + strings.Join(ids, ",") + "]\n```", nil
	}
}

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

func rec(id, desc string) model.Procurement {
	return model.Procurement{ControlNumber: id, Description: desc}
}

func newTestClassifier(e engine.Engine, verdicts cache.Cache[bool], batch int, s *sleepRecorder) *Classifier {
	return New(e, verdicts, staticProfile("Perfil: Facilities."),
		config.SyncConfig{BatchSize: batch, BatchDelay: 2 * time.Second},
		WithSleep(s.sleep))
}

func ids(recs []model.Procurement) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ControlNumber)
	}
	return out
}

func TestClassify_CleaningApprovedConcertRejected(t *testing.T) {
	eng := &fakeEngine{respond: approveContaining("limpeza")}
	verdicts := cache.NewTTL[bool](24 * time.Hour)
	c := newTestClassifier(eng, verdicts, 150, &sleepRecorder{})

	got, err := c.Classify(context.Background(), []model.Procurement{
		rec("A", "limpeza hospitalar"),
		rec("B", "show de rock"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(got))
	require.NotNil(t, got[0].Viable)
	assert.True(t, *got[0].Viable)

	a, ok := verdicts.Get("A")
	assert.True(t, ok)
	assert.True(t, a)
	b, ok := verdicts.Get("B")
	assert.True(t, ok, "rejected record must be cached")
	assert.False(t, b)
}

func TestClassify_PromptCarriesOnlyIDAndDescription(t *testing.T) {
	eng := &fakeEngine{respond: approveContaining("x")}
	c := newTestClassifier(eng, cache.NewTTL[bool](time.Hour), 150, &sleepRecorder{})

	r := rec("A", "limpeza")
	r.EntityName = "Prefeitura Secreta"
	_, err := c.Classify(context.Background(), []model.Procurement{r}, nil)
	require.NoError(t, err)
	require.Len(t, eng.calls, 1)
	assert.Contains(t, eng.calls[0].System, "Perfil: Facilities.")
	assert.True(t, eng.calls[0].JSON)
	assert.NotContains(t, eng.calls[0].Prompt(), "Prefeitura Secreta")
}

func TestClassify_UsesCacheAndSkipsModel(t *testing.T) {
	eng := &fakeEngine{respond: func(string) (string, error) {
		t.Fatal("model must not be called when every verdict is cached")
		return "", nil
	}}
	verdicts := cache.NewTTL[bool](time.Hour)
	verdicts.Set("A", true)
	verdicts.Set("B", false)

	var events []Event
	c := newTestClassifier(eng, verdicts, 150, &sleepRecorder{})
	got, err := c.Classify(context.Background(), []model.Procurement{rec("A", ""), rec("B", "")}, func(e Event) {
		events = append(events, e)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(got))
	require.Len(t, events, 2)
	assert.Equal(t, Event{Kind: EventStart, Total: 2, Batches: 0, Cached: 2}, events[0])
	assert.Equal(t, Event{Kind: EventDone, Viable: 1}, events[1])
}

func TestClassify_FailClosedOnGarbage(t *testing.T) {
	eng := &fakeEngine{respond: func(string) (string, error) {
		return "Desculpe, não consigo ajudar com isso.", nil
	}}
	verdicts := cache.NewTTL[bool](time.Hour)
	c := newTestClassifier(eng, verdicts, 150, &sleepRecorder{})

	got, err := c.Classify(context.Background(), []model.Procurement{rec("A", "limpeza"), rec("B", "limpeza")}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	for _, id := range []string{"A", "B"} {
		v, ok := verdicts.Get(id)
		assert.True(t, ok)
		assert.False(t, v)
	}
}

func TestClassify_FailClosedOnCallError(t *testing.T) {
	eng := &fakeEngine{respond: func(string) (string, error) {
		return "", errors.New("invalid argument")
	}}
	verdicts := cache.NewTTL[bool](time.Hour)
	c := newTestClassifier(eng, verdicts, 150, &sleepRecorder{})

	got, err := c.Classify(context.Background(), []model.Procurement{rec("A", "limpeza")}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Len(t, eng.calls, 1, "non-retryable errors are not retried")
	v, ok := verdicts.Get("A")
	assert.True(t, ok)
	assert.False(t, v)
}

func TestClassify_RetriesRateLimit(t *testing.T) {
	attempts := 0
	eng := &fakeEngine{respond: func(payload string) (string, error) {
		attempts++
		if attempts == 1 {
			return "", fmt.Errorf("quota: %w", engine.ErrRateLimited)
		}
		return approveContaining("limpeza")(payload)
	}}
	s := &sleepRecorder{}
	c := newTestClassifier(eng, cache.NewTTL[bool](time.Hour), 150, s)

	got, err := c.Classify(context.Background(), []model.Procurement{rec("A", "limpeza")}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(got))
	assert.Equal(t, []time.Duration{61 * time.Second}, s.slept)
}

func TestClassify_BatchesAndDelays(t *testing.T) {
	eng := &fakeEngine{respond: approveContaining("limpeza")}
	s := &sleepRecorder{}
	c := newTestClassifier(eng, cache.NewTTL[bool](time.Hour), 2, s)

	var recs []model.Procurement
	for i := 0; i < 5; i++ {
		desc := "show"
		if i%2 == 0 {
			desc = "limpeza"
		}
		recs = append(recs, rec(fmt.Sprintf("R%d", i), desc))
	}

	var events []Event
	got, err := c.Classify(context.Background(), recs, func(e Event) { events = append(events, e) })
	require.NoError(t, err)
	assert.Equal(t, []string{"R0", "R2", "R4"}, ids(got))
	assert.Len(t, eng.calls, 3)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, s.slept, "no delay after the final batch")

	require.Len(t, events, 5)
	assert.Equal(t, EventStart, events[0].Kind)
	assert.Equal(t, 3, events[0].Batches)
	assert.Equal(t, Event{Kind: EventBatch, Index: 3, Batches: 3, Viable: 1}, events[3])
	assert.Equal(t, Event{Kind: EventDone, Viable: 3}, events[4])
}

func TestClassify_CancelStopsFurtherBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eng := &fakeEngine{respond: func(payload string) (string, error) {
		cancel()
		return approveContaining("limpeza")(payload)
	}}
	c := newTestClassifier(eng, cache.NewTTL[bool](time.Hour), 1, &sleepRecorder{})

	got, err := c.Classify(ctx, []model.Procurement{rec("A", "limpeza"), rec("B", "limpeza")}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, eng.calls, 1)
	assert.Equal(t, []string{"A"}, ids(got))
}

func TestParseApproved(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"bare array", `["A","B"]`, []string{"A", "B"}},
		{"fenced", "```json\n[\"A\"]\n```", []string{"A"}},
		{"prose around", "Aqui está: [\"A\"] espero ter ajudado", []string{"A"}},
		{"object wrapper", `{"aprovados": ["A"]}`, []string{"A"}},
		{"objects with id", `[{"id":"A","motivo":"ok"},{"numeroControlePNCP":"B"}]`, []string{"A", "B"}},
		{"numbers", `[1, 2]`, []string{"1", "2"}},
		{"empty", `[]`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseApproved(tt.raw)
			require.NoError(t, err)
			assert.Len(t, got, len(tt.want))
			for _, id := range tt.want {
				assert.True(t, got[id], "missing %s", id)
			}
		})
	}
}

func TestParseApproved_Errors(t *testing.T) {
	for _, raw := range []string{"", "nenhum", `{"resultado": "ok"}`, `[1, 2`} {
		_, err := ParseApproved(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}
