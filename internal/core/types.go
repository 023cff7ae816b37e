package core

import (
	"context"
	"time"
)

// RawTable is a parsed file: a header row plus data rows, all as strings.
// It is not modified after parsing.
type RawTable struct {
	Headers []string
	Rows    []RawRow

	// Format is the detected input format.
	Format Format
}

// RawRow is one data row. Cells are positional and may be shorter or longer
// than Headers.
type RawRow struct {
	Line  int // 1-based line (or sheet row) in the source file
	Cells []string
}

// RowCount returns the number of data rows.
func (t *RawTable) RowCount() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HeaderIndex returns the position of header h. When a header occurs more
// than once the last occurrence wins.
func (t *RawTable) HeaderIndex(h string) (int, bool) {
	for i := len(t.Headers) - 1; i >= 0; i-- {
		if t.Headers[i] == h {
			return i, true
		}
	}
	return -1, false
}

// HasHeader reports whether h is one of the table's headers.
func (t *RawTable) HasHeader(h string) bool {
	_, ok := t.HeaderIndex(h)
	return ok
}

// Value returns the cell under header h. ok is false when the header is
// unknown or the row has no cell at that position.
func (t *RawTable) Value(row RawRow, h string) (string, bool) {
	i, ok := t.HeaderIndex(h)
	if !ok || i >= len(row.Cells) {
		return "", false
	}
	return row.Cells[i], true
}

// CandidateRecord is one mapped row, with the raw string for every target
// field. Typed conversion happens in Policy.
type CandidateRecord struct {
	Values    map[TargetField]string `json:"values"`
	SourceRow int                    `json:"sourceRow"`
}

// Get returns the raw value for f, "" when unmapped.
func (r CandidateRecord) Get(f TargetField) string {
	return r.Values[f]
}

// InvalidRecord is a candidate that failed validation.
type InvalidRecord struct {
	Record CandidateRecord    `json:"record"`
	Errors []ValidationError `json:"errors"`
}

// Candidates is the result of validating every mapped row.
type Candidates struct {
	Valid   []CandidateRecord `json:"valid"`
	Invalid []InvalidRecord   `json:"invalid"`
}

// Total returns the number of classified records.
func (c Candidates) Total() int {
	return len(c.Valid) + len(c.Invalid)
}

// PolicyCreator persists a single policy and returns its identifier.
// Implementations enforce their own per-call timeouts.
type PolicyCreator interface {
	CreatePolicy(ctx context.Context, p Policy) (string, error)
}

// Progress is a point-in-time view of an import, sent to subscribers.
type Progress struct {
	Seq       int64     `json:"seq"`
	SessionID string    `json:"sessionId"`
	Stage     Stage     `json:"stage"`
	Percent   int       `json:"percent"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Committed int       `json:"committed"`
	Failed    int       `json:"failed"`
	Cancelled bool      `json:"cancelled"`
	Done      bool      `json:"done"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CommitFailure records a valid row that the store rejected.
type CommitFailure struct {
	Row          int    `json:"row"`
	PolicyNumber string `json:"policyNumber"`
	Reason       string `json:"reason"`
	Code         string `json:"code"`
}

// CreatedPolicy pairs a created policy id with its source row.
type CreatedPolicy struct {
	Row int    `json:"row"`
	ID  string `json:"id"`
}
