package model

import "testing"

func TestFilterSignature_OrderAndCaseInsensitive(t *testing.T) {
	min := 500000.0
	a := Filter{Keywords: []string{"Limpeza", "portaria"}, ValueMin: &min}
	b := Filter{Keywords: []string{"PORTARIA", "limpeza"}, ValueMin: &min}

	if a.Signature() != b.Signature() {
		t.Error("signatures differ for filters that only differ in order and case")
	}
}

func TestFilterSignature_ValueChangesKey(t *testing.T) {
	lo, hi := 1000.0, 2000.0
	a := Filter{ValueMin: &lo}
	b := Filter{ValueMin: &hi}

	if a.Signature() == b.Signature() {
		t.Error("signatures equal for different value ranges")
	}
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
		ok   bool
	}{
		{"Alto", TierHigh, true},
		{"medio", TierMedium, true},
		{" Médio ", TierMedium, true},
		{"baixa", TierLow, true},
		{"urgente", TierLow, false},
	}
	for _, tt := range tests {
		got, ok := ParseTier(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseTier(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
