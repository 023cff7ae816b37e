package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/spf13/cobra"
)

type suggestOptions struct {
	output string
}

func newSuggestCmd() *cobra.Command {
	var opts suggestOptions

	cmd := &cobra.Command{
		Use:   "suggest FILE",
		Short: "Suggest a column mapping for a file",
		Long: "Suggest a column mapping for FILE and print it. With --output the mapping\n" +
			"is saved as YAML so it can be edited and passed to check or run.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuggest(cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the mapping to this YAML file")
	return cmd
}

func runSuggest(stdout io.Writer, path string, opts suggestOptions) error {
	table, err := parseFile(path)
	if err != nil {
		return err
	}

	mapping := core.SuggestMapping(table.Headers)
	printMapping(stdout, mapping)

	if missing := mapping.UnmappedRequired(); len(missing) > 0 {
		fmt.Fprintf(stdout, "\n%d required field(s) unmapped\n", len(missing))
	}

	if opts.output != "" {
		if err := core.WriteMappingFile(opts.output, mapping); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "\nmapping written to %s\n", opts.output)
	}
	return nil
}

// parseFile reads and parses a CSV, TSV or XLSX file.
func parseFile(path string) (*core.RawTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return core.Parse(data, filepath.Base(path), "")
}

func printMapping(w io.Writer, m core.ColumnMapping) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tCOLUMN\tREQUIRED")
	for _, f := range core.AllFields() {
		column := m[f]
		if column == "" {
			column = "-"
		}
		required := ""
		if f.Required() {
			required = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f, column, required)
	}
	tw.Flush()
}
