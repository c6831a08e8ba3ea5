package payee

import (
	"regexp"
	"strings"
)

// A rule maps a narrative pattern (the first bracketed sub-field) to the
// sub-fields that carry the counterparty name. Rules with no indices and a
// fallback return the fallback as a fixed label. The optional override
// post-processes each extracted part and is dispatched by name so the
// table stays plain data.
type rule struct {
	pattern  string
	indices  []int
	fallback string
	override string
}

func (r rule) apply(fields []string) string {
	parts := make([]string, 0, len(r.indices))
	for _, i := range r.indices {
		part := ""
		if i >= 0 && i < len(fields) {
			part = fields[i]
		}
		parts = append(parts, part)
	}
	if fn, ok := overrides[r.override]; ok {
		parts = fn(parts)
	}

	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " - ")
}

func matchRule(pattern string) *rule {
	for i := range rules {
		if strings.EqualFold(rules[i].pattern, pattern) {
			return &rules[i]
		}
	}
	return nil
}

// Adding support for a new bank narrative means adding a row here, not a
// new code path.
var rules = []rule{
	{pattern: "EUROPESE DOMICILIERING VAN", indices: []int{1, 7}, override: "stripTrailingRef"},
	{pattern: "MAANDELIJKSE BIJDRAGE", indices: []int{1}},
	{pattern: "OVERSCHRIJVING IN EURO VAN REKENING", indices: []int{2}},
	{pattern: "OVERSCHRIJVING IN EURO OP REKENING", indices: []int{3}},
	{pattern: "MOBIELE BETALING", fallback: "MOBIELE BETALING (P2P)"},
	{pattern: "STORTING VAN", indices: []int{1}, override: "trimTrailingPunct"},
	{pattern: "BETALING AAN BANK CARD COMPANY", indices: []int{1}, override: "stripDigits"},
	{pattern: "TERUGBETALING WOONKREDIET", fallback: "TERUGBETALING WOONKREDIET"},
}

type overrideFunc func(parts []string) []string

var overrides = map[string]overrideFunc{
	"stripTrailingRef":  eachPart(stripTrailingRef),
	"stripDigits":       eachPart(stripDigits),
	"trimTrailingPunct": eachPart(trimTrailingPunct),
}

func eachPart(fn func(string) string) overrideFunc {
	return func(parts []string) []string {
		out := make([]string, len(parts))
		for i, p := range parts {
			out[i] = fn(p)
		}
		return out
	}
}

var trailingRef = regexp.MustCompile(`(?i)\s+REF\s*:\s*\S*\s*$`)

// stripTrailingRef removes a trailing "REF : nnn" reference the bank
// appends to direct-debit counterparty fields.
func stripTrailingRef(s string) string {
	return trailingRef.ReplaceAllString(s, "")
}

var digitRun = regexp.MustCompile(`\s*\d+`)

func stripDigits(s string) string {
	return digitRun.ReplaceAllString(s, "")
}

func trimTrailingPunct(s string) string {
	return strings.TrimRight(s, " .,;:-")
}
