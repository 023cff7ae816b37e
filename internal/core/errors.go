package core

import (
	"errors"
	"fmt"
)

var (
	// ErrImportInProgress is returned when an import is cancelled without
	// confirmation while rows are being committed.
	ErrImportInProgress = errors.New("import in progress: cancellation requires confirmation")

	// ErrSessionNotFound is returned for unknown or expired session ids.
	ErrSessionNotFound = errors.New("import session not found")

	// ErrFileTooLarge is returned when an upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrNoFile is returned when an upload request carries no file.
	ErrNoFile = errors.New("no file provided")

	// ErrDuplicatePolicy is returned by stores when the policy number is
	// already taken.
	ErrDuplicatePolicy = errors.New("duplicate key: policy number already exists")
)

// ParseError means an uploaded file could not be turned into a table.
// The session stays in the upload stage.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse file: %s: %v", e.Reason, e.Err)
	}
	return "parse file: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SessionStateError means an operation was attempted in a stage that does
// not allow it.
type SessionStateError struct {
	Op    string
	Stage Stage
}

func (e *SessionStateError) Error() string {
	return fmt.Sprintf("%s not allowed in stage %s", e.Op, e.Stage)
}

// MappingError lists mapping entries that reference headers missing from
// the uploaded file.
type MappingError struct {
	Unknown map[TargetField]string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("column not found: mapping references %d unknown header(s)", len(e.Unknown))
}

// CommitError is a store failure for a single row.
type CommitError struct {
	Row int
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit row %d: %v", e.Row, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
