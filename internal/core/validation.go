package core

// validation.go checks mapped rows before commit.
//
// Rules are independent and every failure is collected, in canonical field
// order, so the review screen can show all problems of a row at once:
//   - a required field that is empty or whitespace
//   - a date field that is not YYYY-MM-DD
//   - a decimal field that is not a number
//
// Nothing else is constrained. There is no cross-field rule (expiry after
// start) at import time.

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// datePattern is checked on shape only. Calendar validity is checked when the
// record is converted to a Policy at commit.
var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidationError is a single field-level problem in a row. Field is empty
// for row-level problems.
type ValidationError struct {
	Field   TargetField `json:"field,omitempty"`
	Message string      `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Validate returns every validation error for r. It does not modify r and
// returns the same errors on every call.
func Validate(r CandidateRecord) []ValidationError {
	var errs []ValidationError

	for _, spec := range fieldSpecs {
		raw := strings.TrimSpace(r.Values[spec.Field])

		if raw == "" {
			if spec.Required {
				errs = append(errs, ValidationError{
					Field:   spec.Field,
					Message: spec.Label + " is required",
				})
			}
			continue
		}

		switch spec.Kind {
		case KindDate:
			if !datePattern.MatchString(raw) {
				errs = append(errs, ValidationError{
					Field:   spec.Field,
					Message: spec.Label + " has invalid date format",
				})
			}
		case KindDecimal:
			if !IsNumber(raw) {
				errs = append(errs, ValidationError{
					Field:   spec.Field,
					Message: spec.Label + " must be a number",
				})
			}
		}
	}

	return errs
}

// IsNumber reports whether s parses as a decimal number.
func IsNumber(s string) bool {
	_, err := decimal.NewFromString(strings.TrimSpace(s))
	return err == nil
}

// Partition validates every record and places each in exactly one of
// Valid or Invalid, keeping input order.
func Partition(records []CandidateRecord) Candidates {
	var c Candidates
	for _, r := range records {
		if errs := Validate(r); len(errs) > 0 {
			c.Invalid = append(c.Invalid, InvalidRecord{Record: r, Errors: errs})
			continue
		}
		c.Valid = append(c.Valid, r)
	}
	return c
}
