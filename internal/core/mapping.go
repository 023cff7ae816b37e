package core

// mapping.go suggests and applies the source header → target field mapping.
//
// Suggestions run in passes over the whole schema so that a strong match
// for one field claims its header before a weaker match for another:
//
//  1. exact: normalized header equals the field name or label
//  2. synonym: normalized header is a known alias ("Carrier" → insurer_name)
//  3. substring: header contains the field name, or the field name contains
//     the header and no other field does
//  4. fuzzy: Levenshtein similarity ≥ SimilarityThreshold
//
// Each header is suggested for at most one field. Suggestions are a default;
// the operator replaces the whole mapping on confirm.

import (
	"slices"
	"strings"
)

// ColumnMapping maps each target field to a source header. An empty header
// means the field is unmapped.
type ColumnMapping map[TargetField]string

var synonyms = map[TargetField][]string{
	FieldPolicyNumber:         {"policy", "policy no", "policy num", "policy id", "policy ref", "contract number", "contract no"},
	FieldPolicyType:           {"type", "policy kind", "line of business", "lob", "coverage type", "class of business"},
	FieldInsurerName:          {"insurer", "carrier", "insurance company", "insurance carrier", "company", "underwriter"},
	FieldProductName:          {"product", "plan", "plan name"},
	FieldProductCode:          {"product id", "plan code", "product ref"},
	FieldPolicyholderName:     {"policyholder", "policy holder", "holder", "client", "client name", "customer", "customer name", "insured party"},
	FieldInsuredName:          {"insured", "insured person", "life assured"},
	FieldStartDate:            {"start", "inception", "inception date", "effective", "effective date", "valid from", "from", "commencement date", "begin date"},
	FieldExpiryDate:           {"expiry", "expires", "end", "end date", "expiration", "expiration date", "valid to", "valid until", "to", "maturity date"},
	FieldPremium:              {"gross premium", "annual premium", "total premium", "premium amount", "amount"},
	FieldCurrency:             {"ccy", "cur", "currency code"},
	FieldPaymentFrequency:     {"frequency", "pay frequency", "billing frequency", "payment terms", "installments"},
	FieldCommissionPercentage: {"commission", "commission %", "commission rate", "comm %", "comm rate", "brokerage"},
	FieldNotes:                {"note", "comment", "comments", "remarks", "description", "memo"},
}

// fieldKeys holds the normalized names a field is compared against.
type fieldKeys struct {
	field    TargetField
	names    []string // field name and label
	synonyms []string
}

var suggestKeys = func() []fieldKeys {
	keys := make([]fieldKeys, 0, len(fieldSpecs))
	for _, s := range fieldSpecs {
		k := fieldKeys{field: s.Field}
		for _, n := range []string{string(s.Field), s.Label} {
			if n = normalizeHeader(n); !slices.Contains(k.names, n) {
				k.names = append(k.names, n)
			}
		}
		for _, syn := range synonyms[s.Field] {
			k.synonyms = append(k.synonyms, normalizeHeader(syn))
		}
		keys = append(keys, k)
	}
	return keys
}()

// SuggestMapping proposes a mapping for the given headers. Every target
// field has an entry; fields without a match are unmapped.
func SuggestMapping(headers []string) ColumnMapping {
	norm := make([]string, len(headers))
	for i, h := range headers {
		norm[i] = normalizeHeader(h)
	}

	m := make(ColumnMapping, len(fieldSpecs))
	for _, f := range AllFields() {
		m[f] = ""
	}
	used := make(map[int]bool, len(headers))

	claim := func(f TargetField, i int) {
		m[f] = headers[i]
		used[i] = true
	}

	passes := []func(k fieldKeys) int{
		func(k fieldKeys) int {
			return firstHeader(norm, used, func(h string) bool { return slices.Contains(k.names, h) })
		},
		func(k fieldKeys) int {
			return firstHeader(norm, used, func(h string) bool { return slices.Contains(k.synonyms, h) })
		},
		func(k fieldKeys) int {
			return firstHeader(norm, used, func(h string) bool { return substringMatch(k, h) })
		},
		func(k fieldKeys) int {
			return bestFuzzy(norm, used, k)
		},
	}

	for _, pass := range passes {
		for _, k := range suggestKeys {
			if m[k.field] != "" {
				continue
			}
			if i := pass(k); i >= 0 {
				claim(k.field, i)
			}
		}
	}

	return m
}

func firstHeader(norm []string, used map[int]bool, match func(string) bool) int {
	for i, h := range norm {
		if h == "" || used[i] {
			continue
		}
		if match(h) {
			return i
		}
	}
	return -1
}

// substringMatch accepts a header that contains the field name, or one that
// the field name contains when no other field name contains it too.
func substringMatch(k fieldKeys, h string) bool {
	for _, n := range k.names {
		if containsString(h, n) {
			return true
		}
	}

	if len(h) < 4 {
		return false
	}
	matches := 0
	self := false
	for _, other := range suggestKeys {
		for _, n := range other.names {
			if containsString(n, h) {
				matches++
				if other.field == k.field {
					self = true
				}
				break
			}
		}
	}
	return self && matches == 1
}

func bestFuzzy(norm []string, used map[int]bool, k fieldKeys) int {
	best, bestScore := -1, 0.0
	for i, h := range norm {
		if h == "" || used[i] {
			continue
		}
		for _, cand := range append(slices.Clone(k.names), k.synonyms...) {
			if s := similarity(h, cand); s >= SimilarityThreshold && s > bestScore {
				best, bestScore = i, s
			}
		}
	}
	return best
}

func containsString(s, sub string) bool {
	return sub != "" && strings.Contains(s, sub)
}

// ApplyMapping projects every row of t through m. Unmapped fields and cells
// missing from short rows become "". Values are copied unchanged.
func ApplyMapping(t *RawTable, m ColumnMapping) []CandidateRecord {
	if t == nil {
		return nil
	}

	records := make([]CandidateRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		values := make(map[TargetField]string, len(fieldSpecs))
		for _, f := range AllFields() {
			header := m[f]
			if header == "" {
				values[f] = ""
				continue
			}
			v, _ := t.Value(row, header)
			values[f] = v
		}
		records = append(records, CandidateRecord{Values: values, SourceRow: row.Line})
	}
	return records
}

// IdentityMapping maps every field whose name appears verbatim among
// headers to that header.
func IdentityMapping(headers []string) ColumnMapping {
	m := make(ColumnMapping, len(fieldSpecs))
	for _, f := range AllFields() {
		m[f] = ""
		if slices.Contains(headers, string(f)) {
			m[f] = string(f)
		}
	}
	return m
}

// Normalize returns a copy with an entry for every target field and no
// entries for unknown fields.
func (m ColumnMapping) Normalize() ColumnMapping {
	out := make(ColumnMapping, len(fieldSpecs))
	for _, f := range AllFields() {
		out[f] = m[f]
	}
	return out
}

// Clone returns a copy of m.
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Validate reports entries that name an unknown target field or a header
// that is not in headers.
func (m ColumnMapping) Validate(headers []string) error {
	unknown := make(map[TargetField]string)
	for f, h := range m {
		if !f.Valid() {
			unknown[f] = h
			continue
		}
		if h != "" && !slices.Contains(headers, h) {
			unknown[f] = h
		}
	}
	if len(unknown) > 0 {
		return &MappingError{Unknown: unknown}
	}
	return nil
}

// UnmappedRequired lists required fields without a header, in canonical order.
func (m ColumnMapping) UnmappedRequired() []TargetField {
	var out []TargetField
	for _, f := range RequiredFields() {
		if m[f] == "" {
			out = append(out, f)
		}
	}
	return out
}

// MappedCount returns the number of mapped fields.
func (m ColumnMapping) MappedCount() int {
	n := 0
	for f, h := range m {
		if h != "" && f.Valid() {
			n++
		}
	}
	return n
}
