// Package analysis produces the AI summary of a single procurement notice.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/licitaradar/licitaradar/internal/engine"
	"github.com/licitaradar/licitaradar/internal/llmjson"
	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/retry"
)

const systemPrompt = `Você é um analista de licitações públicas. Resuma o aviso de contratação para um gestor comercial.

Responda SOMENTE com um objeto JSON com os campos:
- "resumo": string, até 3 frases objetivas sobre o objeto, prazo e local.
- "palavrasChave": array de até 8 strings.
- "relevancia": "Alto", "Médio" ou "Baixo", considerando o perfil de negócio.
- "justificativa": string, uma frase explicando a relevância.
Não inclua texto fora do JSON.`

const maxKeywords = 8

// Analysis is the validated model output for one notice.
type Analysis struct {
	Summary       string
	Keywords      []string
	Relevance     model.Tier
	Justification string
}

// Apply copies the analysis into the record's AI fields.
func (a Analysis) Apply(p *model.Procurement) {
	summary, just, tier := a.Summary, a.Justification, a.Relevance
	p.Summary = &summary
	p.Justification = &just
	p.Relevance = &tier
	p.Keywords = append([]string(nil), a.Keywords...)
}

// ProfileSource supplies the domain profile block for the prompt.
type ProfileSource interface {
	GetSummary() (string, error)
}

// Analyzer runs one model call per notice.
type Analyzer struct {
	engine  engine.Engine
	profile ProfileSource
	policy  retry.Policy
}

// New creates an Analyzer using the default model retry policy.
func New(e engine.Engine, profile ProfileSource) *Analyzer {
	return &Analyzer{engine: e, profile: profile, policy: engine.RetryPolicy()}
}

// NewWithPolicy creates an Analyzer with a custom retry policy (for testing).
func NewWithPolicy(e engine.Engine, profile ProfileSource, p retry.Policy) *Analyzer {
	return &Analyzer{engine: e, profile: profile, policy: p}
}

// Analyze summarizes p. A response without a usable summary is an error;
// other malformed fields fall back to defaults.
func (a *Analyzer) Analyze(ctx context.Context, p model.Procurement) (Analysis, error) {
	summary, err := a.profile.GetSummary()
	if err != nil {
		return Analysis{}, fmt.Errorf("loading domain profile: %w", err)
	}

	req := engine.GenerateRequest{
		System: systemPrompt + "\n\n[Perfil]\n" + summary,
		Parts:  []engine.Part{engine.TextPart(renderRecord(p))},
		JSON:   true,
	}
	raw, err := retry.Value(ctx, a.policy, func(ctx context.Context) (string, error) {
		return a.engine.Generate(ctx, req)
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("analyzing %s: %w", p.ControlNumber, err)
	}

	out, err := Parse(raw)
	if err != nil {
		slog.Warn("unparseable analysis response", "control_number", p.ControlNumber, "error", err, "response", raw)
		return Analysis{}, fmt.Errorf("analyzing %s: %w", p.ControlNumber, err)
	}
	return out, nil
}

func renderRecord(p model.Procurement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objeto: %s\n", p.Description)
	if p.EntityName != "" {
		fmt.Fprintf(&b, "Órgão: %s\n", p.EntityName)
	}
	if p.City != "" || p.State != "" {
		fmt.Fprintf(&b, "Local: %s/%s\n", p.City, p.State)
	}
	if p.Modality != "" {
		fmt.Fprintf(&b, "Modalidade: %s\n", p.Modality)
	}
	if p.EstimatedValue > 0 {
		fmt.Fprintf(&b, "Valor estimado: R$ %.2f\n", p.EstimatedValue)
	}
	if !p.PublishedAt.IsZero() {
		fmt.Fprintf(&b, "Publicação: %s\n", p.PublishedAt.Format(model.DateLayout))
	}
	return b.String()
}

// Parse validates a model response field by field.
func Parse(raw string) (Analysis, error) {
	obj, err := llmjson.ExtractObject(raw)
	if err != nil {
		return Analysis{}, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj, &fields); err != nil {
		return Analysis{}, err
	}

	var out Analysis
	out.Summary = stringField(fields, "resumo", "summary")
	if out.Summary == "" {
		return Analysis{}, fmt.Errorf("response has no summary")
	}
	out.Justification = stringField(fields, "justificativa", "justification")

	tier, ok := model.ParseTier(stringField(fields, "relevancia", "relevância", "relevance"))
	if !ok {
		tier = model.TierLow
	}
	out.Relevance = tier

	for _, k := range []string{"palavrasChave", "palavras_chave", "keywords"} {
		if v, ok := fields[k]; ok {
			out.Keywords = stringList(v, maxKeywords)
			break
		}
	}
	return out, nil
}

func stringField(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(v, &s) == nil {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// stringList keeps the string elements of a JSON array, dropping others.
func stringList(v json.RawMessage, limit int) []string {
	var elems []json.RawMessage
	if json.Unmarshal(v, &elems) != nil {
		return nil
	}
	var out []string
	for _, e := range elems {
		var s string
		if json.Unmarshal(e, &s) != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == limit {
			break
		}
	}
	return out
}
