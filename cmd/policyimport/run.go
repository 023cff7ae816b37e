package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JonMunkholm/policyimport/internal/config"
	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/JonMunkholm/policyimport/internal/store"
	"github.com/spf13/cobra"
)

type runOptions struct {
	mapping   string
	store     string
	workers   int
	yes       bool
	failedOut string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Validate a file and create draft policies from its valid rows",
		Long: "Validate FILE, then create a draft policy for every valid row. Invalid rows\n" +
			"are reported and never block the import. Interrupting stops new creates;\n" +
			"policies already created are kept.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.store != "" {
				// Applied before config.Load so validation sees the chosen driver.
				os.Setenv("STORE_DRIVER", opts.store)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if opts.workers > 0 {
				cfg.Import.Workers = opts.workers
			}
			return runImport(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), args[0], cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mapping, "mapping", "m", "", "Mapping YAML file (default: suggested mapping)")
	cmd.Flags().StringVar(&opts.store, "store", "", "Store driver: postgres, gorm-postgres, sqlite or memory (default: STORE_DRIVER)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Concurrent creates (default: IMPORT_WORKERS)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Import without asking for confirmation")
	cmd.Flags().StringVar(&opts.failedOut, "failed-out", "", "Write rejected rows to this CSV file")
	return cmd
}

func runImport(ctx context.Context, stdin io.Reader, stdout io.Writer, path string, cfg *config.Config, opts runOptions) error {
	session, err := prepareSession(path, opts.mapping, cfg.Import.MaxRows)
	if err != nil {
		return err
	}
	printValidation(stdout, session, core.Summarize(session))

	valid := len(session.Candidates().Valid)
	if valid == 0 {
		fmt.Fprintln(stdout, "nothing to import")
		return nil
	}
	if !opts.yes && !confirm(stdin, stdout, fmt.Sprintf("Create %d draft policies?", valid)) {
		fmt.Fprintln(stdout, "aborted")
		return nil
	}

	policies, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer policies.Close()

	progress, unsubscribe := session.Subscribe()
	defer unsubscribe()

	err = session.StartImport(ctx, policies, core.ImportOptions{
		Workers:       cfg.Import.Workers,
		CommitTimeout: cfg.Import.CommitTimeout,
	})
	if err != nil {
		return err
	}

	last := -1
	for p := range progress {
		if p.Percent != last && p.Percent%10 == 0 {
			fmt.Fprintf(stdout, "  %3d%% (%d/%d)\n", p.Percent, p.Processed, p.Total)
			last = p.Percent
		}
	}
	// The subscription may close before the loop has finished.
	if err := session.Wait(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	report := core.Summarize(session)
	printReport(stdout, report)

	if opts.failedOut != "" && report.Exported() > 0 {
		if err := writeFailedRows(opts.failedOut, session.Table(), report); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "rejected rows written to %s\n", opts.failedOut)
	}
	return nil
}

func confirm(stdin io.Reader, stdout io.Writer, question string) bool {
	fmt.Fprintf(stdout, "%s [y/N] ", question)
	answer, _ := bufio.NewReader(stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func printReport(w io.Writer, r core.ImportReport) {
	if r.Cancelled {
		fmt.Fprintln(w, "import cancelled; policies created before cancelling were kept")
	}
	fmt.Fprintf(w, "created %d draft policies, %d invalid, %d failed",
		r.CommittedCount, r.InvalidCount, r.FailedCommitCount)
	if r.NotAttempted > 0 {
		fmt.Fprintf(w, ", %d not attempted", r.NotAttempted)
	}
	fmt.Fprintln(w)

	for _, f := range r.CommitFailures {
		fmt.Fprintf(w, "  row %d (%s): %s [%s]\n", f.Row, f.PolicyNumber, f.Reason, f.Code)
	}
}

func writeFailedRows(path string, table *core.RawTable, report core.ImportReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := core.WriteFailedRowsCSV(f, table, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
