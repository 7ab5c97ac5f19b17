package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/theirongolddev/costroll/internal/export"

	"github.com/spf13/cobra"
)

var (
	flagExportFormat     string
	flagExportOut        string
	flagExportBestEffort bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the budget rollup as CSV or XLSX",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&flagExportFormat, "format", "xlsx", "Export format (csv, xlsx)")
	exportCmd.Flags().StringVarP(&flagExportOut, "out", "o", "", "Output file (default <project>-Budget-<date>.<ext>, \"-\" for stdout)")
	exportCmd.Flags().BoolVar(&flagExportBestEffort, "best-effort", false, "Treat unavailable optional ledgers as empty")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(flagExportFormat)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	bestEffort := a.cfg.Rollup.BestEffort
	if cmd.Flags().Changed("best-effort") {
		bestEffort = flagExportBestEffort
	}

	ctx, cancel := signalContext()
	defer cancel()

	r, err := a.engine.GetBudgetRollup(ctx, project, bestEffort)
	if err != nil {
		return fmt.Errorf("rollup: %w", err)
	}
	table := export.Project(r)

	if flagExportOut == "-" {
		return export.Write(os.Stdout, table, format)
	}

	out := flagExportOut
	if out == "" {
		name := project
		if p, err := a.budget.Project(ctx, project); err == nil && p.Name != "" {
			name = p.Name
		}
		out = export.FileName(name, format, time.Now())
	}
	//nolint:gosec // export path is supplied by the local user
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}
	if err := export.Write(f, table, format); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	progressf("  Wrote %d lines to %s\n", len(table.Rows), out)
	return nil
}
