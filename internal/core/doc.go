// Package core provides the business logic for bulk policy imports.
//
// The package has no transport or storage dependencies beyond the
// [PolicyCreator] interface, so the web server, the CLI and tests drive the
// same code.
//
// # Pipeline
//
// An import moves a file through five steps:
//
//  1. [Parse] turns CSV, TSV or .xlsx bytes into a [RawTable].
//  2. [SuggestMapping] proposes a [ColumnMapping] from the headers; the
//     operator edits it and [ApplyMapping] projects each row to a
//     [CandidateRecord].
//  3. [Validate] checks each record and [Partition] splits them into valid
//     and invalid rows.
//  4. The commit loop hands every valid record to a [PolicyCreator].
//  5. [Summarize] builds the final [ImportReport].
//
// # Sessions
//
// [ImportSession] is the state machine that sequences these steps:
//
//	instructions → upload → mapping → review → importing → complete
//
// Operations called in the wrong stage fail with [*SessionStateError].
// [SessionManager] keeps sessions for the web server and expires idle ones.
//
// # Error Handling
//
// Parse failures are [*ParseError] and keep the session in upload.
// Validation problems are collected per row as [ValidationError] values.
// Store failures are recorded per row as [CommitFailure] and never stop the
// loop. [MapError] turns any of them into a user message with a support code.
package core
