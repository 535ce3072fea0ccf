package chat

import (
	"fmt"
	"sort"
	"strings"

	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/retrieval"
)

const defaultMaxContextTokens = 4000

// maxHistoryTurns bounds how much of the conversation is replayed.
const maxHistoryTurns = 10

const systemPrompt = `Você é um assistente que responde perguntas sobre um aviso de licitação pública.
Use apenas as informações do aviso e dos trechos do edital fornecidos abaixo.
Se a resposta não estiver no material, diga claramente que não encontrou a informação.
Responda em português, de forma objetiva, citando o arquivo de origem quando usar um trecho.`

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func renderRecord(p model.Procurement) string {
	var b strings.Builder
	b.WriteString("[Aviso]\n")
	fmt.Fprintf(&b, "Número de controle: %s\n", p.ControlNumber)
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
	if p.Summary != nil {
		fmt.Fprintf(&b, "Resumo: %s\n", *p.Summary)
	}
	return b.String()
}

// selectChunks keeps the best-scoring chunks that fit in budget tokens.
// Chunks that do not fit are skipped, so a long low-score chunk never
// displaces a shorter better one.
func selectChunks(chunks []retrieval.ScoredChunk, budget int) []retrieval.ScoredChunk {
	sorted := make([]retrieval.ScoredChunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	var out []retrieval.ScoredChunk
	remaining := budget
	for _, ch := range sorted {
		tokens := EstimateTokens(formatChunk(ch))
		if tokens > remaining {
			continue
		}
		out = append(out, ch)
		remaining -= tokens
	}
	return out
}

func formatChunk(ch retrieval.ScoredChunk) string {
	return fmt.Sprintf("(Fonte: %s #%d, score %.2f)\n%s\n\n", ch.SourceFile, ch.Position, ch.Score, ch.Text)
}

// buildPrompt renders the record, the selected chunks and the recent
// conversation, followed by the question.
func buildPrompt(p model.Procurement, chunks []retrieval.ScoredChunk, history []Turn, question string) string {
	var b strings.Builder
	b.WriteString(renderRecord(p))

	if len(chunks) > 0 {
		b.WriteString("\n[Trechos do edital]\n")
		for _, ch := range chunks {
			b.WriteString(formatChunk(ch))
		}
	} else {
		b.WriteString("\nNenhum documento do edital foi indexado; responda apenas com os dados do aviso.\n")
	}

	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	if len(history) > 0 {
		b.WriteString("\n[Conversa anterior]\n")
		for _, t := range history {
			role := "Usuário"
			if t.Role == RoleAssistant {
				role = "Assistente"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, strings.TrimSpace(t.Content))
		}
	}

	fmt.Fprintf(&b, "\n[Pergunta]\n%s\n", question)
	return b.String()
}
