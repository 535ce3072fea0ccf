package filters

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/licitaradar/licitaradar/internal/model"
)

var validUFs = map[string]bool{
	"AC": true, "AL": true, "AP": true, "AM": true, "BA": true, "CE": true, "DF": true,
	"ES": true, "GO": true, "MA": true, "MT": true, "MS": true, "MG": true, "PA": true,
	"PB": true, "PR": true, "PE": true, "PI": true, "RJ": true, "RN": true, "RS": true,
	"RO": true, "RR": true, "SC": true, "SP": true, "SE": true, "TO": true,
}

// Decode validates a model response object field by field. Every field that
// is missing or has the wrong shape becomes its zero value.
func Decode(obj json.RawMessage) (model.Filter, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj, &fields); err != nil {
		return model.Filter{}, err
	}
	return model.Filter{
		Keywords:       stringList(fields["keywords"]),
		Synonyms:       stringList(fields["synonyms"]),
		ValueMin:       amount(fields["valorMin"]),
		ValueMax:       amount(fields["valorMax"]),
		State:          state(fields["uf"]),
		DateFrom:       date(fields["dataInicio"]),
		DateTo:         date(fields["dataFim"]),
		Modality:       nonEmpty(fields["modalidade"]),
		Blacklist:      stringList(fields["blacklist"]),
		SmartBlacklist: stringList(fields["smartBlacklist"]),
	}, nil
}

func stringList(v json.RawMessage) []string {
	if v == nil {
		return nil
	}
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
	}
	return normalizeTerms(out)
}

func amount(v json.RawMessage) *float64 {
	if v == nil || string(v) == "null" {
		return nil
	}
	var f float64
	if json.Unmarshal(v, &f) == nil {
		if f < 0 {
			return nil
		}
		return &f
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		if f, ok := ParseAmount(s); ok {
			return &f
		}
	}
	return nil
}

func state(v json.RawMessage) *string {
	s := nonEmpty(v)
	if s == nil {
		return nil
	}
	uf := strings.ToUpper(*s)
	if !validUFs[uf] {
		return nil
	}
	return &uf
}

func date(v json.RawMessage) *string {
	s := nonEmpty(v)
	if s == nil {
		return nil
	}
	if _, err := time.Parse(model.DateLayout, *s); err != nil {
		return nil
	}
	return s
}

func nonEmpty(v json.RawMessage) *string {
	if v == nil {
		return nil
	}
	var s string
	if json.Unmarshal(v, &s) != nil {
		return nil
	}
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}
