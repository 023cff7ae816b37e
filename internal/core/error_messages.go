package core

// error_messages.go maps technical errors to user-facing messages with a
// support code. Operators quote the code; support looks it up here.
//
// # Parse Errors (PARSE001-PARSE099)
//
//	PARSE001 - Empty file                 Patterns: "empty file"
//	PARSE002 - No header row              Patterns: "no header row"
//	PARSE003 - No data rows               Patterns: "no data rows"
//	PARSE004 - Unsupported format         Patterns: "unsupported file format"
//	PARSE005 - Unreadable file            Patterns: "unreadable"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date                 Patterns: "invalid date"
//	VAL002 - Invalid number               Patterns: "invalid number", "must be a number"
//	VAL003 - Required field               Patterns: "is required"
//	VAL004 - Mapped column missing        Patterns: "column not found"
//
// # Database Errors (DB001-DB099)
//
// Returned by the policy store while committing a row.
//
//	DB001 - Duplicate key                 Patterns: "duplicate key"
//	DB002 - Unique constraint             Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key                   Patterns: "foreign key"
//	DB004 - Connection refused            Patterns: "connection refused"
//	DB005 - Connection reset              Patterns: "connection reset"
//	DB006 - Timeout                       Patterns: "timeout"
//	DB007 - Deadlock                      Patterns: "deadlock"
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Wrong stage                  Patterns: "not allowed in stage"
//	SES002 - Session not found            Patterns: "session not found"
//	SES003 - Import running               Patterns: "import in progress"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - File too large               Patterns: "file too large"
//	UPL002 - No file                      Patterns: "no file provided"
//	UPL003 - Store busy                   Patterns: "too many concurrent commits"
//	UPL004 - Request cancelled            Patterns: "context canceled"
//	UPL005 - Request timeout              Patterns: "context deadline exceeded"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited                Patterns: "rate limit"
//
// ERR000 is the fallback when nothing matches; check the logs for the
// technical error.
//
// Patterns are matched case-insensitively with strings.Contains. The first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Parse
	{"empty file", UserMessage{"The uploaded file is empty", "Upload a file with a header row and at least one policy", "PARSE001"}},
	{"no header row", UserMessage{"The file has no header row", "Put the column names in the first row", "PARSE002"}},
	{"no data rows", UserMessage{"The file has a header row but no policies", "Add at least one policy row below the header", "PARSE003"}},
	{"unsupported file format", UserMessage{"This file type is not supported", "Upload a CSV, TSV or Excel (.xlsx) file", "PARSE004"}},
	{"unreadable", UserMessage{"The file could not be read", "Re-export the file and try again", "PARSE005"}},

	// Validation
	{"invalid date", UserMessage{"Invalid date format detected", "Use YYYY-MM-DD, for example 2024-01-31", "VAL001"}},
	{"invalid number", UserMessage{"Invalid number format detected", "Use plain decimals without currency symbols or thousands separators", "VAL002"}},
	{"must be a number", UserMessage{"Invalid number format detected", "Use plain decimals without currency symbols or thousands separators", "VAL002"}},
	{"is required", UserMessage{"Required field is empty", "Fill in every required column", "VAL003"}},
	{"column not found", UserMessage{"A mapped column does not exist in the file", "Choose columns from the uploaded file's header row", "VAL004"}},

	// Database
	{"duplicate key", UserMessage{"A policy with this number already exists", "Download the failed rows to review duplicates", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check for duplicate policy numbers in your file", "DB002"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Check for duplicate policy numbers in your file", "DB002"}},
	{"foreign key", UserMessage{"Referenced record does not exist", "Make sure insurers and products exist first", "DB003"}},
	{"connection refused", UserMessage{"Unable to connect to the database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Please try again later", "DB006"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},

	// Session
	{"not allowed in stage", UserMessage{"This step is not available right now", "Reload the import and continue from the current step", "SES001"}},
	{"session not found", UserMessage{"Import session not found", "The import may have expired. Please start a new import", "SES002"}},
	{"import in progress", UserMessage{"Policies are still being imported", "Confirm cancellation to stop the import; committed policies are kept", "SES003"}},

	// Upload
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the file into smaller files", "UPL001"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a file to upload", "UPL002"}},
	{"too many concurrent commits", UserMessage{"The system is busy with other imports", "Please wait a moment and try again", "UPL003"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "UPL004"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Please try again", "UPL005"}},

	// Rate limiting
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Unknown errors map to ERR000; nil maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError carries a technical error together with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. It returns nil for a nil error.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
