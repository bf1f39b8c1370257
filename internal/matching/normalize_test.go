package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercase", in: "Botox", want: "botox"},
		{name: "diacritics", in: "Vocês", want: "voces"},
		{name: "cedilla and tilde", in: "Depilação à laser", want: "depilacao a laser"},
		{name: "punctuation dropped", in: "Hello, world!!", want: "hello world"},
		{name: "hyphen joins", in: "e-mail", want: "email"},
		{name: "whitespace collapsed", in: "  many \t\n spaces  ", want: "many spaces"},
		{name: "digits kept", in: "10:30 AM", want: "1030 am"},
		{name: "emoji dropped", in: "yes 👍", want: "yes"},
		{name: "empty", in: "", want: ""},
		{name: "only punctuation", in: "?!...", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeEquivalentInputs(t *testing.T) {
	groups := [][]string{
		{"Vocês", "voces", "VOCES!", "vocês?"},
		{"Limpeza de pele", "limpeza  de   pele.", "LIMPEZA DE PELE"},
		{"Crème brûlée", "creme brulee", "CRÈME BRÛLÉE!"},
	}
	for _, group := range groups {
		want := Normalize(group[0])
		for _, in := range group[1:] {
			assert.Equal(t, want, Normalize(in), "input %q", in)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Vocês", "Ärger über Öl", "İstanbul", "São  Paulo, SP", "straße", "ﬁne", "1st – 2nd"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}
