package filters

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	negativeRe  = regexp.MustCompile(`(?i)(?:^|[\s,;(])(sem|exceto|excluindo|não quero|nao quero)\s+([^,.;!?)]+)`)
	conjunction = regexp.MustCompile(`(?i)\s+(?:e|ou)\s+(?:sem\s+|exceto\s+)?`)
	leadingStop = regexp.MustCompile(`(?i)^(?:o|a|os|as|de|do|da|dos|das|nenhum|nenhuma)\s+`)
	trailingCut = regexp.MustCompile(`(?i)\s+(?:acima|abaixo|até|ate|a partir|em|no|na|nos|nas|entre|maior|menor|mais de|com valor|publicad[oa]s?)\s.*$`)

	minValueRe = regexp.MustCompile(`(?i)(?:acima de|a partir de|maior(?:es)? que|mais de|mínimo de|minimo de)\s+(?:r\$\s*)?([0-9][0-9.,]*\s*(?:milhões|milhoes|milhão|milhao|mil|bilhões|bilhoes|bilhão|bilhao|bi|mi|k)?)`)
	maxValueRe = regexp.MustCompile(`(?i)(?:abaixo de|até|menor(?:es)? que|menos de|máximo de|maximo de)\s+(?:r\$\s*)?([0-9][0-9.,]*\s*(?:milhões|milhoes|milhão|milhao|mil|bilhões|bilhoes|bilhão|bilhao|bi|mi|k)?)`)
	amountRe   = regexp.MustCompile(`^([0-9][0-9.,]*)\s*(milhões|milhoes|milhão|milhao|mil|bilhões|bilhoes|bilhão|bilhao|bi|mi|k)?$`)
)

// NegativeTerms extracts the objects of negative phrases such as
// "sem copeiragem" or "exceto vigilância e jardinagem".
func NegativeTerms(question string) []string {
	var out []string
	for _, m := range negativeRe.FindAllStringSubmatch(question, -1) {
		phrase := trailingCut.ReplaceAllString(m[2], "")
		for _, part := range conjunction.Split(phrase, -1) {
			part = leadingStop.ReplaceAllString(strings.TrimSpace(part), "")
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

var stopwords = map[string]bool{
	"a": true, "o": true, "as": true, "os": true, "um": true, "uma": true,
	"de": true, "da": true, "do": true, "das": true, "dos": true,
	"em": true, "no": true, "na": true, "nos": true, "nas": true,
	"para": true, "por": true, "com": true, "sem": true, "e": true, "ou": true,
	"que": true, "quero": true, "não": true, "nao": true, "exceto": true, "excluindo": true, "menos": true,
	"acima": true, "abaixo": true, "até": true, "ate": true, "entre": true, "partir": true,
	"mais": true, "maior": true, "menor": true, "valor": true, "reais": true,
	"mil": true, "milhão": true, "milhões": true, "milhao": true, "milhoes": true,
	"licitação": true, "licitações": true, "licitacao": true, "licitacoes": true,
	"edital": true, "editais": true, "contratação": true, "contratações": true,
	"quais": true, "qual": true, "tem": true, "há": true, "existem": true, "busque": true, "encontre": true,
}

// QuestionWords returns the content words of the question that are not
// part of a negative phrase, lower-cased and de-duplicated.
func QuestionWords(question string, excluded []string) []string {
	skip := make(map[string]bool)
	for _, e := range excluded {
		for _, w := range strings.Fields(strings.ToLower(e)) {
			skip[w] = true
		}
	}
	words := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	var out []string
	seen := make(map[string]bool)
	for _, w := range words {
		w = strings.Trim(w, "-")
		if len([]rune(w)) < 3 || stopwords[w] || skip[w] || seen[w] {
			continue
		}
		if _, err := strconv.ParseFloat(w, 64); err == nil {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// ValueBounds reads "acima de 500 mil" / "até 2 milhões" phrases.
func ValueBounds(question string) (lo, hi *float64) {
	if m := minValueRe.FindStringSubmatch(question); m != nil {
		if v, ok := ParseAmount(m[1]); ok {
			lo = &v
		}
	}
	if m := maxValueRe.FindStringSubmatch(question); m != nil {
		if v, ok := ParseAmount(m[1]); ok {
			hi = &v
		}
	}
	return lo, hi
}

var multipliers = map[string]float64{
	"k": 1e3, "mil": 1e3,
	"mi": 1e6, "milhão": 1e6, "milhões": 1e6, "milhao": 1e6, "milhoes": 1e6,
	"bi": 1e9, "bilhão": 1e9, "bilhões": 1e9, "bilhao": 1e9, "bilhoes": 1e9,
}

// ParseAmount converts Brazilian-formatted money text to a number:
// "500 mil", "1,5 milhão", "R$ 1.200.000,00", "250000".
func ParseAmount(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSpace(strings.TrimPrefix(s, "r$"))
	m := amountRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	num := strings.TrimRight(m[1], ".,")
	switch {
	case strings.Contains(num, ","):
		num = strings.ReplaceAll(num, ".", "")
		num = strings.Replace(num, ",", ".", 1)
	case strings.Count(num, ".") > 1:
		num = strings.ReplaceAll(num, ".", "")
	case strings.Count(num, ".") == 1 && len(num)-strings.Index(num, ".")-1 == 3:
		num = strings.ReplaceAll(num, ".", "")
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	if m[2] != "" {
		v *= multipliers[m[2]]
	}
	return v, true
}

// normalizeTerms lower-cases, trims and de-duplicates, keeping first-seen order.
func normalizeTerms(lists ...[]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, l := range lists {
		for _, t := range l {
			t = strings.Join(strings.Fields(strings.ToLower(t)), " ")
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
