package filters

import (
	"fmt"
	"strings"
	"time"

	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/profile"
)

const systemPromptTemplate = `Você converte perguntas sobre licitações públicas em filtros de busca. Sua saída deve ser SOMENTE um objeto JSON válido, sem texto, explicações ou markdown.

Campos:
- "keywords": array de strings com os termos centrais do objeto procurado.
- "synonyms": array de strings com sinônimos e variações desses termos.
- "valorMin": número em reais ou null.
- "valorMax": número em reais ou null.
- "uf": sigla de 2 letras do estado ou null.
- "dataInicio": data "AAAA-MM-DD" ou null.
- "dataFim": data "AAAA-MM-DD" ou null.
- "modalidade": nome da modalidade (ex.: "Pregão - Eletrônico") ou null.
- "blacklist": array de termos que o usuário pediu explicitamente para excluir.
- "smartBlacklist": array de termos de domínios conflitantes que devem ser evitados.

Regras:
- Use null quando a pergunta não mencionar o campo. Não invente valores.
- Converta valores por extenso: "500 mil" = 500000, "1,5 milhão" = 1500000.
- Datas relativas ("últimos 30 dias", "este mês") são calculadas a partir da data de hoje.
- smartBlacklist: se a pergunta for específica (um serviço ou objeto), liste poucos termos, apenas de domínios que conflitam com ela. Se a pergunta for ampla (o perfil inteiro, "facilities", "oportunidades"), use todo o vocabulário de exclusão do perfil.
- Nunca coloque em smartBlacklist um termo que esteja em keywords.

Data de hoje: %s

[Perfil]
%s

[Vocabulário de interesse]
%s

[Vocabulário de exclusão]
%s`

// BuildSystemPrompt renders the extraction instruction for a profile.
func BuildSystemPrompt(p profile.Profile, today time.Time) string {
	return fmt.Sprintf(systemPromptTemplate,
		today.Format(model.DateLayout),
		p.Summary(),
		strings.Join(p.Include, ", "),
		strings.Join(p.Exclude, ", "),
	)
}
