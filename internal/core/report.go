package core

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DraftPoliciesURL is where the operator reviews imported drafts.
const DraftPoliciesURL = "/policies?status=draft"

// RowErrors lists the validation errors of one source row.
type RowErrors struct {
	RowNumber int               `json:"rowNumber"`
	Errors    []ValidationError `json:"errors"`
}

// ImportReport is the final summary of an import.
type ImportReport struct {
	SessionID         string          `json:"sessionId"`
	FileName          string          `json:"fileName"`
	TotalSubmitted    int             `json:"totalSubmitted"`
	ValidCount        int             `json:"validCount"`
	InvalidCount      int             `json:"invalidCount"`
	CommittedCount    int             `json:"committedCount"`
	FailedCommitCount int             `json:"failedCommitCount"`
	NotAttempted      int             `json:"notAttempted"`
	Cancelled         bool            `json:"cancelled"`
	RowLimitExceeded  bool            `json:"rowLimitExceeded"`
	InvalidRows       []RowErrors     `json:"invalidRows"`
	CommitFailures    []CommitFailure `json:"commitFailures"`
	CreatedPolicyIDs  []string        `json:"createdPolicyIds"`
	DraftCount        int             `json:"draftCount"`
	NextURL           string          `json:"nextUrl,omitempty"`
	Duration          time.Duration   `json:"durationNs"`
}

// Summarize projects the session into a report. It does not modify the
// session. Rows are ordered by source row.
func Summarize(s *ImportSession) ImportReport {
	return SummarizeSnapshot(s.Snapshot())
}

// SummarizeSnapshot builds a report from a snapshot.
func SummarizeSnapshot(snap SessionSnapshot) ImportReport {
	r := ImportReport{
		SessionID:         snap.ID,
		FileName:          snap.FileName,
		TotalSubmitted:    snap.Candidates.Total(),
		ValidCount:        len(snap.Candidates.Valid),
		InvalidCount:      len(snap.Candidates.Invalid),
		CommittedCount:    snap.CommittedCount,
		FailedCommitCount: snap.FailedCount,
		NotAttempted:      snap.NotAttempted,
		Cancelled:         snap.Cancelled,
		RowLimitExceeded:  snap.RowLimitExceeded,
		InvalidRows:       make([]RowErrors, 0, len(snap.Candidates.Invalid)),
		CommitFailures:    append([]CommitFailure{}, snap.CommitFailures...),
		CreatedPolicyIDs:  make([]string, 0, len(snap.Created)),
		DraftCount:        snap.CommittedCount,
	}

	for _, inv := range snap.Candidates.Invalid {
		r.InvalidRows = append(r.InvalidRows, RowErrors{
			RowNumber: inv.Record.SourceRow,
			Errors:    append([]ValidationError(nil), inv.Errors...),
		})
	}
	sort.SliceStable(r.InvalidRows, func(i, j int) bool {
		return r.InvalidRows[i].RowNumber < r.InvalidRows[j].RowNumber
	})
	sort.SliceStable(r.CommitFailures, func(i, j int) bool {
		return r.CommitFailures[i].Row < r.CommitFailures[j].Row
	})

	created := append([]CreatedPolicy(nil), snap.Created...)
	sort.SliceStable(created, func(i, j int) bool { return created[i].Row < created[j].Row })
	for _, c := range created {
		r.CreatedPolicyIDs = append(r.CreatedPolicyIDs, c.ID)
	}

	if r.DraftCount > 0 {
		r.NextURL = DraftPoliciesURL
	}
	if !snap.StartedAt.IsZero() && !snap.FinishedAt.IsZero() {
		r.Duration = snap.FinishedAt.Sub(snap.StartedAt)
	}

	return r
}

// Rejected returns the number of rows that were not imported.
func (r ImportReport) Rejected() int {
	return r.InvalidCount + r.FailedCommitCount + r.NotAttempted
}

// Exported returns the number of rows WriteFailedRowsCSV writes.
func (r ImportReport) Exported() int {
	return r.InvalidCount + r.FailedCommitCount
}

// WriteFailedRowsCSV writes invalid rows and rows the store rejected.
// Columns are _line and _error followed by the original headers and cells,
// so the file can be fixed and uploaded again. Rows skipped by a
// cancellation are not included.
func WriteFailedRowsCSV(w io.Writer, table *RawTable, report ImportReport) error {
	if table == nil {
		return fmt.Errorf("write failed rows: no parsed file")
	}

	type failed struct {
		line   int
		reason string
	}
	var rows []failed
	for _, inv := range report.InvalidRows {
		msgs := make([]string, len(inv.Errors))
		for i, e := range inv.Errors {
			msgs[i] = e.Message
		}
		rows = append(rows, failed{inv.RowNumber, strings.Join(msgs, "; ")})
	}
	for _, f := range report.CommitFailures {
		rows = append(rows, failed{f.Row, f.Reason})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].line < rows[j].line })

	byLine := make(map[int]RawRow, len(table.Rows))
	for _, row := range table.Rows {
		byLine[row.Line] = row
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"_line", "_error"}, table.Headers...)); err != nil {
		return fmt.Errorf("write failed rows header: %w", err)
	}
	for _, f := range rows {
		cells := make([]string, len(table.Headers))
		copy(cells, byLine[f.line].Cells)
		record := append([]string{strconv.Itoa(f.line), f.reason}, cells...)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write failed row %d: %w", f.line, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
