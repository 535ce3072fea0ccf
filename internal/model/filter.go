package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Filter is the structured form of a free-text search question.
//
// Blacklist holds hard exclusions the user asked for explicitly.
// SmartBlacklist holds AI-synthesized terms from domains unrelated to the
// business profile; it is applied softly by the search path.
type Filter struct {
	Keywords       []string `json:"keywords"`
	Synonyms       []string `json:"synonyms"`
	ValueMin       *float64 `json:"valorMin"`
	ValueMax       *float64 `json:"valorMax"`
	State          *string  `json:"uf"`
	DateFrom       *string  `json:"dataInicio"`
	DateTo         *string  `json:"dataFim"`
	Modality       *string  `json:"modalidade"`
	Blacklist      []string `json:"blacklist"`
	SmartBlacklist []string `json:"smartBlacklist"`
}

// Signature returns a stable key for the filter. List order and letter case
// do not affect the result.
func (f Filter) Signature() string {
	norm := f
	norm.Keywords = sortedLower(f.Keywords)
	norm.Synonyms = sortedLower(f.Synonyms)
	norm.Blacklist = sortedLower(f.Blacklist)
	norm.SmartBlacklist = sortedLower(f.SmartBlacklist)
	b, _ := json.Marshal(norm)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func sortedLower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	sort.Strings(out)
	return out
}
