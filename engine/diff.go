/*
diff.go - Audit diff engine

PURPOSE:
  Computes a field-level before/after diff between two session snapshots
  for human-readable history review. Pure and deterministic: the same two
  snapshots always yield the same diff list, which is what makes audit
  review reproducible.

ALGORITHM:
  1. Walk a fixed canonical field order first (status, date, times,
     identifiers, amounts, free text), then any remaining keys
     alphabetically
  2. Normalize both values to a comparable form via an explicit table
     keyed by field name (dates to YYYY-MM-DD, times to HH:MM, numbers to
     decimal, objects to stable-sorted JSON, strings trimmed)
  3. Skip fields whose normalized values are equal
  4. Emit human-readable before/after strings (arrays over 3 items
     summarized as a count, objects summarized by key list) and an
     Important flag for the fixed status/identity field set

SEE ALSO:
  - snapshot.go: Builds the snapshots this engine compares
*/
package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// FieldDiff is one changed field in a before/after comparison.
type FieldDiff struct {
	Field     string `json:"field"`
	Label     string `json:"label"`
	Before    string `json:"before"`
	After     string `json:"after"`
	Important bool   `json:"important"`
}

// canonicalOrder fixes the position of well-known fields in diff output.
// Anything not listed sorts alphabetically after these.
var canonicalOrder = []string{
	"status",
	"date",
	"start_time",
	"end_time",
	"tutor_id",
	"student_id",
	"assignment_id",
	"amount",
	"rate",
	"duration_minutes",
	"reject_reason",
	"mode",
	"location",
	"notes",
}

// normalization kinds, keyed by field name. Normalization is an explicit
// table, not inferred from value shape, so it stays in sync with the real
// session snapshot schema.
type normKind int

const (
	normText normKind = iota
	normDate
	normClock
	normNumber
)

var normTable = map[string]normKind{
	"date":             normDate,
	"start_time":       normClock,
	"end_time":         normClock,
	"approved_at":      normDate,
	"amount":           normNumber,
	"rate":             normNumber,
	"duration_minutes": normNumber,
}

// importantFields flags status and identity changes for review emphasis.
var importantFields = map[string]bool{
	"status":        true,
	"date":          true,
	"start_time":    true,
	"end_time":      true,
	"tutor_id":      true,
	"student_id":    true,
	"assignment_id": true,
}

// ComputeDiffs compares two snapshots and returns the ordered list of
// changed fields.
func ComputeDiffs(before, after map[string]any) []FieldDiff {
	fields := orderedFields(before, after)

	var diffs []FieldDiff
	for _, f := range fields {
		b := normalize(f, before[f])
		a := normalize(f, after[f])
		if b == a {
			continue
		}
		diffs = append(diffs, FieldDiff{
			Field:     f,
			Label:     labelFor(f),
			Before:    display(before[f], b),
			After:     display(after[f], a),
			Important: importantFields[f],
		})
	}
	return diffs
}

// orderedFields returns the union of keys: canonical order first, the rest
// alphabetically.
func orderedFields(before, after map[string]any) []string {
	seen := make(map[string]bool)
	var fields []string

	union := make(map[string]bool, len(before)+len(after))
	for k := range before {
		union[k] = true
	}
	for k := range after {
		union[k] = true
	}

	for _, f := range canonicalOrder {
		if union[f] {
			fields = append(fields, f)
			seen[f] = true
		}
	}

	var rest []string
	for k := range union {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(fields, rest...)
}

// normalize converts a value to its comparable string form.
func normalize(field string, v any) string {
	if v == nil {
		return ""
	}

	// Embedded JSON text is compared structurally, not as a string.
	if s, ok := v.(string); ok {
		trimmed := strings.TrimSpace(s)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var parsed any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				v = parsed
			}
		}
	}

	switch normTable[field] {
	case normDate:
		if s, ok := v.(string); ok && len(s) >= 10 {
			return s[:10]
		}
	case normClock:
		if s, ok := v.(string); ok && len(s) >= 5 {
			return s[:5]
		}
	case normNumber:
		if d, ok := toDecimal(v); ok {
			return d.String()
		}
	}

	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case map[string]any:
		return stableJSON(val)
	case []any:
		b, _ := json.Marshal(val)
		return string(b)
	default:
		if d, ok := toDecimal(v); ok {
			return d.String()
		}
		return fmt.Sprintf("%v", v)
	}
}

// display renders the human-readable form: arrays and objects are
// summarized, everything else uses the normalized string.
func display(raw any, normalized string) string {
	switch val := raw.(type) {
	case []any:
		if len(val) > 3 {
			return fmt.Sprintf("%d items", len(val))
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "{" + strings.Join(keys, ", ") + "}"
	case nil:
		return "(none)"
	}
	if normalized == "" {
		return "(none)"
	}
	return normalized
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	}
	return decimal.Zero, false
}

// stableJSON marshals a map with sorted keys so object comparison is
// order-independent.
func stableJSON(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		sb.Write(kb)
		sb.WriteByte(':')
		switch val := m[k].(type) {
		case map[string]any:
			sb.WriteString(stableJSON(val))
		default:
			vb, _ := json.Marshal(val)
			sb.Write(vb)
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

func labelFor(field string) string {
	parts := strings.Split(field, "_")
	for i, p := range parts {
		if p == "id" {
			parts[i] = "ID"
			continue
		}
		if len(p) > 0 {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
