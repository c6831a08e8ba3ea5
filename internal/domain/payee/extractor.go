// Package payee derives a human-readable counterparty name from the
// free-form narrative text the bank attaches to a transaction. The
// narrative embeds a "narrative:" keyword followed by a bracketed list of
// sub-fields written by the bank's back office; the first sub-field names
// the transaction pattern and selects an extraction rule.
package payee

import (
	"encoding/json"
	"strings"
)

const narrativeKeyword = "narrative:"

// Extract returns the payee name for the given narrative text, or an
// empty string when no name can be derived. It is deterministic and has
// no side effects.
func Extract(text string) string {
	fields := parseFields(text)
	if len(fields) == 0 {
		return ""
	}

	pattern := strings.TrimSpace(fields[0])
	r := matchRule(pattern)

	// Fixed-label rules apply regardless of how many sub-fields the bank
	// wrote, so they are checked before the minimum-field-count guard.
	if r != nil && len(r.indices) == 0 && r.fallback != "" {
		return r.fallback
	}

	if len(fields) < 3 {
		return ""
	}

	if r != nil {
		if result := r.apply(fields); result != "" {
			return result
		}
	}

	// Generic default: the third sub-field usually carries the
	// counterparty for patterns the table does not know about.
	return strings.TrimSpace(fields[2])
}

// parseFields locates the bracketed list after the narrative keyword and
// returns its elements. The bank encodes the list as a JSON string array;
// a plain comma-separated list is accepted as a tolerant fallback.
func parseFields(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	idx := strings.Index(text, narrativeKeyword)
	if idx == -1 {
		return nil
	}

	narrative := text[idx:]
	open := strings.Index(narrative, "[")
	if open == -1 {
		return nil
	}
	segment := narrative[open:]

	var fields []string
	dec := json.NewDecoder(strings.NewReader(segment))
	if err := dec.Decode(&fields); err == nil {
		return fields
	}

	end := strings.Index(segment, "]")
	if end == -1 {
		return nil
	}
	for _, f := range strings.Split(segment[1:end], ",") {
		fields = append(fields, strings.TrimSpace(f))
	}
	return fields
}
