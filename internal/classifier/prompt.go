package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/licitaradar/licitaradar/internal/model"
)

const systemPromptTemplate = `Você é um analista de licitações públicas. Avalie cada aviso de contratação e decida se ele é uma oportunidade de negócio para a empresa descrita no perfil abaixo.

Regras:
- Aprove apenas avisos cujo objeto corresponda aos serviços do perfil.
- Reprove avisos de compra de bens, obras ou serviços fora do escopo, mesmo que mencionem um termo de interesse de passagem.
- Na dúvida, reprove.
- Responda SOMENTE com um array JSON contendo os "id" aprovados, por exemplo ["id1","id2"]. Array vazio se nenhum for aprovado. Não inclua texto, explicações ou markdown.

[Perfil]
%s`

// maxDescRunes caps each description so a full batch fits the model context.
const maxDescRunes = 600

type promptItem struct {
	ID   string `json:"id"`
	Desc string `json:"desc"`
}

// BuildSystemPrompt renders the classification instruction for a profile summary.
func BuildSystemPrompt(profileSummary string) string {
	return fmt.Sprintf(systemPromptTemplate, profileSummary)
}

// BuildBatch renders the batch payload. Only the id and a truncated
// description are sent.
func BuildBatch(records []model.Procurement) string {
	items := make([]promptItem, len(records))
	for i, r := range records {
		items[i] = promptItem{ID: r.ControlNumber, Desc: truncate(strings.TrimSpace(r.Description), maxDescRunes)}
	}
	b, _ := json.Marshal(items)
	return "Avisos:\n" + string(b)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
