package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/theirongolddev/costroll/internal/cli"
	"github.com/theirongolddev/costroll/internal/export"

	"github.com/spf13/cobra"
)

var (
	flagImportFormat string
	flagImportJSON   bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge budget lines from a CSV or XLSX file",
	Long: "Import reads the first sheet of a CSV or XLSX file. The header row needs\n" +
		"\"Cost Code\" and \"Cost Type\" columns; \"Sub Job\", \"Description\", \"Unit Qty\",\n" +
		"\"UOM\", \"Unit Cost\" and \"Budget Amount\" (or \"Original Budget\") are optional.\n" +
		"Rows merge like `costroll merge`: one atomic batch of at most 1000 rows.",
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&flagImportFormat, "format", "", "csv or xlsx (default from the file extension; required for stdin)")
	importCmd.Flags().BoolVar(&flagImportJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(importCmd)
}

func runImport(_ *cobra.Command, args []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}
	path := args[0]

	var format export.Format
	if flagImportFormat != "" {
		format, err = export.ParseFormat(flagImportFormat)
	} else {
		format, err = export.FormatOf(path)
	}
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if path != "-" {
		//nolint:gosec // import path is supplied by the local user
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	actor, err := a.requireActor()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := a.budget.ImportBudget(ctx, project, actor, in, format)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	if flagImportJSON {
		return printJSON(res)
	}
	for _, w := range res.Warnings {
		progressf("  warning: %s\n", w)
	}
	fmt.Printf("  Imported %d of %d rows into %s (%d blank skipped)\n", res.Imported, res.TotalRows, project, res.Skipped)
	fmt.Printf("  Batch total:    %s\n", cli.FormatMoney(res.Merge.BatchTotal, a.cfg.General.Currency))
	fmt.Printf("  Current budget: %s\n", cli.FormatMoney(res.Merge.CurrentBudget, a.cfg.General.Currency))
	return nil
}
