package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tabload/internal/config"
	"github.com/JonMunkholm/tabload/internal/core"
	"github.com/JonMunkholm/tabload/internal/dataset"
	"github.com/JonMunkholm/tabload/internal/input"
)

// errInvalid makes the validate command exit non-zero after printing
// its report.
var errInvalid = errors.New("dataset is not valid")

func newSchemasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schemas [entity]",
		Short: "List registered schemas, or describe one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.close()

			if len(args) == 0 {
				renderSchemas(cmd.OutOrStdout(), a.service.Schemas())
				return nil
			}
			info, err := a.service.Schema(args[0])
			if err != nil {
				return err
			}
			renderSchema(cmd.OutOrStdout(), info)
			return nil
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <entity> <file>",
		Short: "Check a file against an entity schema without saving it",
		Example: `  tabload validate anrok_transactions export.csv
  tabload validate ns_customers customers.json --schema-dir ./schemas`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.close()

			raw, err := readFile(args[1], a.cfg.Ingest)
			if err != nil {
				return err
			}
			res, err := a.service.Validate(cmd.Context(), args[0], raw)
			if err != nil {
				return err
			}

			renderValidation(cmd.OutOrStdout(), res)
			if !res.Valid() {
				return errInvalid
			}
			return nil
		},
	}
}

func newLoadCommand() *cobra.Command {
	var returning []string

	cmd := &cobra.Command{
		Use:   "load <entity> <file>",
		Short: "Validate a file and save it into the entity's table",
		Long: `load validates the file and, when every row passes, saves it in one
transaction. Rows whose keys already exist are updated.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.close()

			raw, err := readFile(args[1], a.cfg.Ingest)
			if err != nil {
				return err
			}
			res, err := a.service.Ingest(cmd.Context(), args[0], raw, returning)
			if err != nil {
				var vf *core.ValidationFailedError
				if errors.As(err, &vf) {
					renderReport(cmd.OutOrStdout(), vf.Report)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), core.FormatUserError(err))
				return err
			}

			renderIngest(cmd.OutOrStdout(), res, returning)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&returning, "returning", nil, "columns to print for every saved row")
	return cmd
}

// readFile decodes path, choosing the format from its extension.
func readFile(path string, ic config.IngestConfig) (*dataset.Raw, error) {
	format, err := input.DetectFormat("", path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	opts := input.CSVOptions{
		Encoding:   ic.Encoding,
		KeepEmpty:  ic.KeepEmpty,
		CleanCells: ic.CleanCells,
	}
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		opts.Comma = '\t'
	}

	raw, err := input.Read(f, format, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return raw, nil
}
