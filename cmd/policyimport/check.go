package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/spf13/cobra"
)

// errInvalidRows fails check --strict when any row is invalid.
var errInvalidRows = errors.New("file contains invalid rows")

type checkOptions struct {
	mapping string
	maxRows int
	strict  bool
}

func newCheckCmd() *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:   "check FILE",
		Short: "Validate a file without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := prepareSession(args[0], opts.mapping, opts.maxRows)
			if err != nil {
				return err
			}
			return runCheck(cmd.OutOrStdout(), session, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mapping, "mapping", "m", "", "Mapping YAML file (default: suggested mapping)")
	cmd.Flags().IntVar(&opts.maxRows, "max-rows", 1000, "Recommended row limit; larger files only warn")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Exit non-zero when any row is invalid")
	return cmd
}

func runCheck(stdout io.Writer, session *core.ImportSession, opts checkOptions) error {
	report := core.Summarize(session)
	printValidation(stdout, session, report)

	if opts.strict && report.InvalidCount > 0 {
		return errInvalidRows
	}
	return nil
}

// prepareSession drives a new session to the review stage.
func prepareSession(path, mappingPath string, maxRows int) (*core.ImportSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	session := core.NewSession("", core.SessionOptions{MaxRows: maxRows})
	if err := session.Continue(); err != nil {
		return nil, err
	}
	if _, err := session.Upload(filepath.Base(path), "", data); err != nil {
		return nil, fmt.Errorf("%s: %s", path, core.FormatUserError(err))
	}

	mapping := session.Mapping()
	if mappingPath != "" {
		if mapping, err = core.LoadMappingFile(mappingPath); err != nil {
			return nil, err
		}
	}
	if _, err := session.ConfirmMapping(mapping); err != nil {
		return nil, fmt.Errorf("%s: %s", path, core.FormatUserError(err))
	}
	return session, nil
}

func printValidation(w io.Writer, session *core.ImportSession, report core.ImportReport) {
	snap := session.Snapshot()

	fmt.Fprintf(w, "%s: %d rows, %d valid, %d invalid\n",
		report.FileName, report.TotalSubmitted, report.ValidCount, report.InvalidCount)
	if report.RowLimitExceeded {
		fmt.Fprintln(w, "warning: file exceeds the recommended row limit")
	}
	if len(snap.UnmappedRequired) > 0 {
		names := make([]string, len(snap.UnmappedRequired))
		for i, f := range snap.UnmappedRequired {
			names[i] = string(f)
		}
		fmt.Fprintf(w, "unmapped required fields: %s\n", strings.Join(names, ", "))
	}

	for _, row := range report.InvalidRows {
		msgs := make([]string, len(row.Errors))
		for i, e := range row.Errors {
			msgs[i] = e.Error()
		}
		fmt.Fprintf(w, "  row %d: %s\n", row.RowNumber, strings.Join(msgs, "; "))
	}
}
