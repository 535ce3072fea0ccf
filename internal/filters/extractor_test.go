package filters

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/licitaradar/licitaradar/internal/engine"
	"github.com/licitaradar/licitaradar/internal/profile"
)

// mockEngine implements engine.Engine for testing.
type mockEngine struct {
	response string
	err      error
	calls    int
	last     engine.GenerateRequest
}

func (m *mockEngine) Generate(_ context.Context, req engine.GenerateRequest) (string, error) {
	m.calls++
	m.last = req
	return m.response, m.err
}

func (m *mockEngine) Embed(context.Context, string, engine.Intent) ([]float32, error) {
	return nil, nil
}

type defaultProfile struct{}

func (defaultProfile) GetProfile() (profile.Profile, error) { return profile.Default(), nil }

func newTestExtractor(m *mockEngine) *Extractor {
	x := NewExtractor(m, defaultProfile{})
	x.policy.Sleep = func(context.Context, time.Duration) error { return nil }
	x.now = func() time.Time { return time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC) }
	return x
}

func TestExtract_FacilitiesQuestion(t *testing.T) {
	m := &mockEngine{response: `{"keywords":["facilities","limpeza","portaria"],"synonyms":["conservação"],"valorMin":"500 mil","valorMax":null,"uf":null,"dataInicio":null,"dataFim":null,"modalidade":null,"blacklist":[],"smartBlacklist":["medicamentos","obras de engenharia"]}`}
	x := newTestExtractor(m)

	f, err := x.Extract(context.Background(), "licitações de facilities acima de 500 mil, sem copeiragem", nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if f.ValueMin == nil || *f.ValueMin != 500000 {
		t.Errorf("ValueMin = %v, want 500000", f.ValueMin)
	}
	if !containsTerm(f.Blacklist, "copeiragem") {
		t.Errorf("Blacklist = %v, want copeiragem", f.Blacklist)
	}
	if len(f.SmartBlacklist) == 0 {
		t.Error("SmartBlacklist is empty")
	}
	if !strings.Contains(m.last.System, "2024-05-20") {
		t.Error("system prompt lacks today's date")
	}
	if !m.last.JSON {
		t.Error("request is not JSON-constrained")
	}
}

func TestExtract_FacilitiesQuestionWeakFallback(t *testing.T) {
	m := &mockEngine{err: errors.New("bad request")}
	x := newTestExtractor(m)

	f, err := x.Extract(context.Background(), "licitações de facilities acima de 500 mil, sem copeiragem", nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if f.ValueMin == nil || *f.ValueMin != 500000 {
		t.Errorf("ValueMin = %v, want 500000", f.ValueMin)
	}
	if !reflect.DeepEqual(f.Blacklist, []string{"copeiragem"}) {
		t.Errorf("Blacklist = %v", f.Blacklist)
	}
	if !reflect.DeepEqual(f.Keywords, []string{"facilities"}) {
		t.Errorf("Keywords = %v, want [facilities]", f.Keywords)
	}
	if len(f.SmartBlacklist) == 0 {
		t.Error("SmartBlacklist is empty")
	}
}

func TestExtract_MissingValorMinIsNil(t *testing.T) {
	m := &mockEngine{response: `{"keywords":["limpeza"]}`}
	f, err := newTestExtractor(m).Extract(context.Background(), "limpeza em escolas", nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if f.ValueMin != nil || f.ValueMax != nil || f.State != nil || f.DateFrom != nil {
		t.Errorf("expected nil optional fields, got %+v", f)
	}
}

func TestExtract_InvalidFieldsDefault(t *testing.T) {
	m := &mockEngine{response: "Claro! ```json\n" + `{"keywords":["limpeza",7,null,"Limpeza "],"valorMin":"muito","valorMax":-3,"uf":"São Paulo","dataInicio":"20/05/2024","dataFim":"2024-05-31","modalidade":"","blacklist":"vigilância"}` + "\n```"}
	f, err := newTestExtractor(m).Extract(context.Background(), "limpeza", []string{"  Vigilância "})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !reflect.DeepEqual(f.Keywords, []string{"limpeza"}) {
		t.Errorf("Keywords = %v", f.Keywords)
	}
	if f.ValueMin != nil || f.ValueMax != nil {
		t.Errorf("values = %v / %v, want nil", f.ValueMin, f.ValueMax)
	}
	if f.State != nil {
		t.Errorf("State = %q, want nil", *f.State)
	}
	if f.DateFrom != nil {
		t.Errorf("DateFrom = %q, want nil", *f.DateFrom)
	}
	if f.DateTo == nil || *f.DateTo != "2024-05-31" {
		t.Errorf("DateTo = %v", f.DateTo)
	}
	if f.Modality != nil {
		t.Errorf("Modality = %q, want nil", *f.Modality)
	}
	if !reflect.DeepEqual(f.Blacklist, []string{"vigilância"}) {
		t.Errorf("Blacklist = %v", f.Blacklist)
	}
}

func TestExtract_StateUpperCased(t *testing.T) {
	m := &mockEngine{response: `{"keywords":["portaria"],"uf":"rj","smartBlacklist":["portaria","medicamentos"]}`}
	f, err := newTestExtractor(m).Extract(context.Background(), "portaria no rj", nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if f.State == nil || *f.State != "RJ" {
		t.Errorf("State = %v, want RJ", f.State)
	}
	if containsTerm(f.SmartBlacklist, "portaria") {
		t.Errorf("SmartBlacklist %v contains a keyword", f.SmartBlacklist)
	}
}

func TestExtract_EmptyQuestion(t *testing.T) {
	m := &mockEngine{}
	_, err := newTestExtractor(m).Extract(context.Background(), "   ", nil)
	if !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("err = %v, want ErrEmptyQuestion", err)
	}
	if m.calls != 0 {
		t.Errorf("model called %d times for an empty question", m.calls)
	}
}

func TestExtract_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestExtractor(&mockEngine{response: "{}"}).Extract(ctx, "limpeza", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNegativeTerms(t *testing.T) {
	tests := []struct {
		q    string
		want []string
	}{
		{"facilities sem copeiragem", []string{"copeiragem"}},
		{"limpeza, exceto vigilância e jardinagem", []string{"vigilância", "jardinagem"}},
		{"não quero a dedetização", []string{"dedetização"}},
		{"serviços sem copeiragem acima de 500 mil", []string{"copeiragem"}},
		{"limpeza predial", nil},
	}
	for _, tt := range tests {
		if got := NegativeTerms(tt.q); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("NegativeTerms(%q) = %v, want %v", tt.q, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"500 mil", 500000, true},
		{"1,5 milhão", 1500000, true},
		{"2 milhões", 2000000, true},
		{"R$ 1.200.000,00", 1200000, true},
		{"250000", 250000, true},
		{"1.500", 1500, true},
		{"1.5", 1.5, true},
		{"muito", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseAmount(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestValueBounds(t *testing.T) {
	lo, hi := ValueBounds("limpeza acima de 1,5 milhão e até 3 milhões")
	if lo == nil || *lo != 1500000 {
		t.Errorf("lo = %v", lo)
	}
	if hi == nil || *hi != 3000000 {
		t.Errorf("hi = %v", hi)
	}
}

func TestPromptCarriesVocabulary(t *testing.T) {
	system := BuildSystemPrompt(profile.Default(), time.Now())
	for _, want := range []string{"smartBlacklist", "500000", "limpeza", "medicamentos"} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func containsTerm(list []string, term string) bool {
	for _, t := range list {
		if t == term {
			return true
		}
	}
	return false
}
