package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/spf13/cobra"
)

type templateOptions struct {
	format string
	output string
}

func newTemplateCmd() *cobra.Command {
	var opts templateOptions

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the blank import template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplate(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "csv", "Template format: csv or xlsx")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

func runTemplate(stdout io.Writer, opts templateOptions) error {
	write := core.TemplateCSV
	switch strings.ToLower(opts.format) {
	case "csv":
	case "xlsx":
		write = core.TemplateXLSX
		if opts.output == "" {
			return fmt.Errorf("--output is required for xlsx templates")
		}
	default:
		return fmt.Errorf("unsupported --format %q", opts.format)
	}

	if opts.output == "" {
		return write(stdout)
	}

	f, err := os.Create(opts.output)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
