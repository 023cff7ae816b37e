// Package templates renders the HTML fragments served by the import UI.
package templates

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/a-h/templ"
)

// ErrorAlert renders an error message with its suggested action and code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<div class="alert alert-error" role="alert"><p class="alert-message">%s</p>`,
			templ.EscapeString(message))
		if err != nil {
			return err
		}
		if action != "" {
			if _, err := fmt.Fprintf(w, `<p class="alert-action">%s</p>`, templ.EscapeString(action)); err != nil {
				return err
			}
		}
		_, err = fmt.Fprintf(w, `<p class="alert-code">Reference: %s</p></div>`, templ.EscapeString(code))
		return err
	})
}

// Report renders the completion summary of an import.
func Report(r core.ImportReport) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ew := &errWriter{w: w}

		ew.printf(`<section class="import-report" data-session="%s">`, templ.EscapeString(r.SessionID))
		if r.Cancelled {
			ew.printf(`<p class="report-banner cancelled">Import cancelled. Policies created before cancelling were kept.</p>`)
		}
		ew.printf(`<h2>Import complete</h2>`)
		if r.FileName != "" {
			ew.printf(`<p class="report-file">%s</p>`, templ.EscapeString(r.FileName))
		}

		ew.printf(`<dl class="report-counts">`)
		count(ew, "Rows submitted", r.TotalSubmitted)
		count(ew, "Policies created", r.CommittedCount)
		count(ew, "Invalid rows", r.InvalidCount)
		count(ew, "Failed to save", r.FailedCommitCount)
		if r.NotAttempted > 0 {
			count(ew, "Not attempted", r.NotAttempted)
		}
		if n := r.Rejected(); n > 0 {
			count(ew, "Rows not imported", n)
		}
		ew.printf(`</dl>`)

		if r.RowLimitExceeded {
			ew.printf(`<p class="report-warning">The file exceeded the recommended row limit.</p>`)
		}

		if len(r.InvalidRows) > 0 {
			ew.printf(`<h3>Invalid rows</h3><table class="report-table"><thead><tr><th>Row</th><th>Problems</th></tr></thead><tbody>`)
			for _, row := range r.InvalidRows {
				ew.printf(`<tr><td>%d</td><td><ul>`, row.RowNumber)
				for _, e := range row.Errors {
					ew.printf(`<li>%s</li>`, templ.EscapeString(e.Message))
				}
				ew.printf(`</ul></td></tr>`)
			}
			ew.printf(`</tbody></table>`)
		}

		if len(r.CommitFailures) > 0 {
			ew.printf(`<h3>Rows that could not be saved</h3><table class="report-table"><thead><tr><th>Row</th><th>Policy number</th><th>Reason</th><th>Code</th></tr></thead><tbody>`)
			for _, f := range r.CommitFailures {
				ew.printf(`<tr><td>%d</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
					f.Row, templ.EscapeString(f.PolicyNumber), templ.EscapeString(f.Reason), templ.EscapeString(f.Code))
			}
			ew.printf(`</tbody></table>`)
		}

		if r.Exported() > 0 {
			ew.printf(`<a class="report-download" href="/api/import/sessions/%s/report/invalid.csv">Download rejected rows</a>`,
				templ.EscapeString(r.SessionID))
		}
		if r.DraftCount > 0 && r.NextURL != "" {
			ew.printf(`<a class="report-next" href="%s">Review %s draft policies</a>`,
				templ.EscapeString(r.NextURL), strconv.Itoa(r.DraftCount))
		}
		ew.printf(`</section>`)
		return ew.err
	})
}

func count(ew *errWriter, label string, n int) {
	ew.printf(`<dt>%s</dt><dd>%d</dd>`, templ.EscapeString(label), n)
}

// errWriter keeps the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
