package payee

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty text",
			text: "",
			want: "",
		},
		{
			name: "missing narrative keyword",
			text: "some booking info without the field list",
			want: "",
		},
		{
			name: "keyword without bracket",
			text: "prefix narrative: no list follows",
			want: "",
		},
		{
			name: "direct debit strips trailing ref",
			text: `2024-03-01 statementReference:9 narrative:[EUROPESE DOMICILIERING VAN, TELENET BV, ACCOUNT: 123 REF : 456]`,
			want: "TELENET BV",
		},
		{
			name: "direct debit json encoded",
			text: `statementReference:9 narrative:["EUROPESE DOMICILIERING VAN","TELENET BV REF : 9876","ACCOUNT: 1"]`,
			want: "TELENET BV",
		},
		{
			name: "fixed label ignores field count",
			text: `narrative:[MOBIELE BETALING]`,
			want: "MOBIELE BETALING (P2P)",
		},
		{
			name: "fixed label mortgage",
			text: `narrative:[TERUGBETALING WOONKREDIET, 2024, X]`,
			want: "TERUGBETALING WOONKREDIET",
		},
		{
			name: "monthly fee takes second field",
			text: `narrative:[MAANDELIJKSE BIJDRAGE, SOME CLUB VZW, details]`,
			want: "SOME CLUB VZW",
		},
		{
			name: "incoming transfer takes third field",
			text: `narrative:[OVERSCHRIJVING IN EURO VAN REKENING, BE12 3456, JANSSENS J]`,
			want: "JANSSENS J",
		},
		{
			name: "deposit trims trailing punctuation",
			text: `narrative:[STORTING VAN, ACME BVBA., detail]`,
			want: "ACME BVBA",
		},
		{
			name: "card company strips digits",
			text: `narrative:[BETALING AAN BANK CARD COMPANY, BCC 12345678, detail]`,
			want: "BCC",
		},
		{
			name: "unknown pattern falls back to third field",
			text: `narrative:[SOMETHING NEW, first, COUNTERPARTY NV]`,
			want: "COUNTERPARTY NV",
		},
		{
			name: "too few fields without fixed label",
			text: `narrative:[MAANDELIJKSE BIJDRAGE, SOME CLUB VZW]`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text))
		})
	}
}

func TestExtractDeterministic(t *testing.T) {
	text := `narrative:[EUROPESE DOMICILIERING VAN, TELENET BV, ACCOUNT: 123 REF : 456]`
	first := Extract(text)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Extract(text))
	}
}

func TestFixedLabelRulesReturnFallbackVerbatim(t *testing.T) {
	for _, r := range rules {
		if len(r.indices) > 0 || r.fallback == "" {
			continue
		}
		text := `narrative:[` + r.pattern + `, anything, at all, here]`
		assert.Equal(t, r.fallback, Extract(text), "pattern %s", r.pattern)
	}
}
