package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitaradar/licitaradar/internal/analysis"
	"github.com/licitaradar/licitaradar/internal/classifier"
	"github.com/licitaradar/licitaradar/internal/config"
	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/pncp"
	"github.com/licitaradar/licitaradar/internal/storage"
)

// keywordClassifier approves records whose description contains "limpeza".
type keywordClassifier struct {
	calls int
	err   error
	panic bool
}

func (k *keywordClassifier) Classify(_ context.Context, recs []model.Procurement, _ func(classifier.Event)) ([]model.Procurement, error) {
	k.calls++
	if k.panic {
		panic("boom")
	}
	if k.err != nil {
		return nil, k.err
	}
	var out []model.Procurement
	for _, r := range recs {
		if strings.Contains(strings.ToLower(r.Description), "limpeza") {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubAnalyzer struct {
	seen []string
	fail map[string]bool
}

func (s *stubAnalyzer) Analyze(_ context.Context, p model.Procurement) (analysis.Analysis, error) {
	s.seen = append(s.seen, p.ControlNumber)
	if s.fail[p.ControlNumber] {
		return analysis.Analysis{}, errors.New("unparseable")
	}
	return analysis.Analysis{Summary: "resumo " + p.ControlNumber, Relevance: model.TierHigh}, nil
}

type staticFetcher struct {
	records []model.Procurement
	err     error
	dates   []string
}

func (f *staticFetcher) FetchAll(_ context.Context, date time.Time) ([]model.Procurement, error) {
	f.dates = append(f.dates, date.Format(model.DateLayout))
	return f.records, f.err
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var (
	runDay = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	// 2025-03-20 10:00 in Brasília.
	fixedNow = time.Date(2025, 3, 20, 13, 0, 0, 0, time.UTC)
)

func clock() time.Time { return fixedNow }

func pageJSON(ids ...string) []byte {
	var data []map[string]any
	for _, id := range ids {
		desc := "Aquisição de material de escritório " + id
		if id[0] == 'L' {
			desc = "Serviços de limpeza " + id
		}
		data = append(data, map[string]any{
			"numeroControlePNCP": id,
			"anoCompra":          2025,
			"sequencialCompra":   1,
			"valorTotalEstimado": 1000,
			"dataPublicacaoPncp": "2025-03-10T10:00:00",
			"objetoCompra":       desc,
			"orgaoEntidade":      map[string]string{"cnpj": "00394460000141"},
			"unidadeOrgao":       map[string]string{"ufSigla": "SP"},
		})
	}
	b, _ := json.Marshal(map[string]any{"data": data})
	return b
}

func TestRun_ThreeFullPagesThenEmpty(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		p, _ := strconv.Atoi(r.URL.Query().Get("pagina"))
		if p > 3 {
			w.Write(pageJSON())
			return
		}
		w.Write(pageJSON(fmt.Sprintf("L%d-a", p), fmt.Sprintf("X%d-b", p)))
	}))
	defer srv.Close()

	client := pncp.New(config.PNCPConfig{BaseURL: srv.URL, PageSize: 2, Modalities: "6", RetryAttempts: 3})
	store := openStore(t)
	an := &stubAnalyzer{}
	o := New(client, &keywordClassifier{}, an, store, WithClock(clock))

	rep, err := o.Run(context.Background(), runDay)
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, 6, rep.Fetched)
	assert.Equal(t, 3, rep.Viable)
	assert.Equal(t, 6, rep.Written)
	assert.Equal(t, model.RunSuccess, rep.Status)
	assert.ElementsMatch(t, []string{"L1-a", "L2-a", "L3-a"}, an.seen)

	run, err := store.GetSyncRun(context.Background(), "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, run.Status)
	assert.Equal(t, 6, run.RecordsFetched)
	require.NotNil(t, run.FinishedAt)

	n, err := store.CountProcurements(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	viable, err := store.GetProcurement(context.Background(), "L2-a")
	require.NoError(t, err)
	require.NotNil(t, viable.Viable)
	assert.True(t, *viable.Viable)
	require.NotNil(t, viable.Summary)
	assert.Equal(t, "resumo L2-a", *viable.Summary)

	rejected, err := store.GetProcurement(context.Background(), "X2-b")
	require.NoError(t, err)
	require.NotNil(t, rejected.Viable)
	assert.False(t, *rejected.Viable)
	assert.Nil(t, rejected.Summary)
}

func TestRun_ZeroRecords(t *testing.T) {
	store := openStore(t)
	cls := &keywordClassifier{}
	o := New(&staticFetcher{}, cls, nil, store, WithClock(clock))

	rep, err := o.Run(context.Background(), runDay)
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, rep.Status)
	assert.Zero(t, rep.Fetched)
	assert.Zero(t, cls.calls)

	run, err := store.GetSyncRun(context.Background(), "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, run.Status)
}

func TestRun_FetchFailureFailsRun(t *testing.T) {
	store := openStore(t)
	f := &staticFetcher{err: fmt.Errorf("%w: page 2: boom", pncp.ErrFetch)}
	o := New(f, &keywordClassifier{}, nil, store, WithClock(clock))

	rep, err := o.Run(context.Background(), runDay)
	require.ErrorIs(t, err, pncp.ErrFetch)
	assert.Equal(t, model.RunFailed, rep.Status)

	run, err := store.GetSyncRun(context.Background(), "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, run.Status)
	assert.Contains(t, run.Error, "boom")
	n, _ := store.CountProcurements(context.Background())
	assert.Zero(t, n)
}

func TestRun_ClassificationFailureFailsRun(t *testing.T) {
	store := openStore(t)
	f := &staticFetcher{records: []model.Procurement{{ControlNumber: "A", Description: "limpeza"}}}
	o := New(f, &keywordClassifier{err: errors.New("profile unavailable")}, nil, store, WithClock(clock))

	_, err := o.Run(context.Background(), runDay)
	require.Error(t, err)
	run, err := store.GetSyncRun(context.Background(), "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, run.Status)
	assert.Contains(t, run.Error, "profile unavailable")
}

func TestRun_PanicRecorded(t *testing.T) {
	store := openStore(t)
	f := &staticFetcher{records: []model.Procurement{{ControlNumber: "A", Description: "limpeza"}}}
	o := New(f, &keywordClassifier{panic: true}, nil, store, WithClock(clock))

	rep, err := o.Run(context.Background(), runDay)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.Equal(t, model.RunFailed, rep.Status)

	run, err := store.GetSyncRun(context.Background(), "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, run.Status)
}

func TestRun_ExistingRunIsConflict(t *testing.T) {
	store := openStore(t)
	f := &staticFetcher{}
	o := New(f, &keywordClassifier{}, nil, store, WithClock(clock))

	_, err := o.Run(context.Background(), runDay)
	require.NoError(t, err)
	_, err = o.Run(context.Background(), runDay)
	assert.True(t, IsConflict(err))
	assert.Len(t, f.dates, 1, "second run must not fetch")
}

func TestRun_AnalysisFailureIsItemLocal(t *testing.T) {
	store := openStore(t)
	f := &staticFetcher{records: []model.Procurement{
		{ControlNumber: "A", Description: "limpeza predial"},
		{ControlNumber: "B", Description: "limpeza hospitalar"},
	}}
	an := &stubAnalyzer{fail: map[string]bool{"A": true}}
	o := New(f, &keywordClassifier{}, an, store, WithClock(clock))

	rep, err := o.Run(context.Background(), runDay)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Analyzed)
	assert.Equal(t, 2, rep.Written)

	a, err := store.GetProcurement(context.Background(), "A")
	require.NoError(t, err)
	assert.Nil(t, a.Summary)
}

func TestRun_CancelledStillFinishesRun(t *testing.T) {
	store := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	o := New(cancellingFetcher(cancel), &keywordClassifier{}, nil, store, WithClock(clock))

	_, err := o.Run(ctx, runDay)
	require.ErrorIs(t, err, context.Canceled)
	run, err := store.GetSyncRun(context.Background(), "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, run.Status)
}

// cancellingFetcher cancels the run's context mid-fetch.
type cancellingFetcher context.CancelFunc

func (c cancellingFetcher) FetchAll(ctx context.Context, _ time.Time) ([]model.Procurement, error) {
	c()
	<-ctx.Done()
	return nil, ctx.Err()
}
