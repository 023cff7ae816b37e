package core

// preview.go pages through validated rows for the review step.

// ReviewFilter selects which rows a review page lists.
type ReviewFilter string

const (
	ReviewAll     ReviewFilter = ""
	ReviewValid   ReviewFilter = "valid"
	ReviewInvalid ReviewFilter = "invalid"
)

// DefaultReviewPageSize is used when no page size is given.
const DefaultReviewPageSize = 50

// ReviewSummary holds the counts shown above the review list.
type ReviewSummary struct {
	TotalRows        int           `json:"totalRows"`
	ValidRows        int           `json:"validRows"`
	InvalidRows      int           `json:"invalidRows"`
	UnmappedRequired []TargetField `json:"unmappedRequired,omitempty"`
	RowLimitExceeded bool          `json:"rowLimitExceeded"`
}

// ReviewRow is one row of a review page.
type ReviewRow struct {
	RowNumber int                    `json:"rowNumber"`
	Values    map[TargetField]string `json:"values"`
	Errors    []ValidationError      `json:"errors,omitempty"`
}

// ReviewPage is a page of validated rows in file order.
type ReviewPage struct {
	Summary    ReviewSummary `json:"summary"`
	Filter     ReviewFilter  `json:"filter"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
	Rows       []ReviewRow   `json:"rows"`
}

// Review returns page (1-based) of the rows matching filter. It is
// available once the mapping is confirmed.
func (s *ImportSession) Review(filter ReviewFilter, page, pageSize int) (*ReviewPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireLocked("Review", StageReview, StageImporting, StageComplete); err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = DefaultReviewPageSize
	}
	if page <= 0 {
		page = 1
	}

	rows := reviewRows(s.candidates, filter)

	result := &ReviewPage{
		Summary: ReviewSummary{
			TotalRows:        s.candidates.Total(),
			ValidRows:        len(s.candidates.Valid),
			InvalidRows:      len(s.candidates.Invalid),
			UnmappedRequired: s.mapping.UnmappedRequired(),
			RowLimitExceeded: s.rowLimitExceeded,
		},
		Filter:     filter,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (len(rows) + pageSize - 1) / pageSize,
		Rows:       []ReviewRow{},
	}

	start := (page - 1) * pageSize
	if start < len(rows) {
		end := min(start+pageSize, len(rows))
		result.Rows = rows[start:end]
	}
	return result, nil
}

// reviewRows merges the partitions back into file order.
func reviewRows(c Candidates, filter ReviewFilter) []ReviewRow {
	var valid, invalid []ReviewRow
	if filter != ReviewInvalid {
		for _, r := range c.Valid {
			valid = append(valid, ReviewRow{RowNumber: r.SourceRow, Values: r.Values})
		}
	}
	if filter != ReviewValid {
		for _, r := range c.Invalid {
			invalid = append(invalid, ReviewRow{RowNumber: r.Record.SourceRow, Values: r.Record.Values, Errors: r.Errors})
		}
	}

	out := make([]ReviewRow, 0, len(valid)+len(invalid))
	i, j := 0, 0
	for i < len(valid) && j < len(invalid) {
		if valid[i].RowNumber <= invalid[j].RowNumber {
			out = append(out, valid[i])
			i++
		} else {
			out = append(out, invalid[j])
			j++
		}
	}
	out = append(out, valid[i:]...)
	return append(out, invalid[j:]...)
}
