package cmd

import (
	"fmt"

	"github.com/theirongolddev/costroll/internal/cli"

	"github.com/spf13/cobra"
)

var (
	flagRollupBestEffort bool
	flagRollupJSON       bool
	flagRollupSummary    bool
)

var rollupDetailsCmd = &cobra.Command{
	Use:   "details <cost-code>",
	Short: "List the ledger rows behind one cost code's figures",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollupDetails,
}

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Show the budget rollup for a project",
	RunE:  runRollup,
}

func init() {
	rollupCmd.Flags().BoolVar(&flagRollupBestEffort, "best-effort", false, "Treat unavailable optional ledgers as empty")
	rollupCmd.Flags().BoolVar(&flagRollupJSON, "json", false, "Print the rollup as JSON")
	rollupCmd.Flags().BoolVar(&flagRollupSummary, "summary", false, "Print grand totals only")
	rollupDetailsCmd.Flags().BoolVar(&flagRollupBestEffort, "best-effort", false, "Treat unavailable optional ledgers as empty")
	rollupDetailsCmd.Flags().BoolVar(&flagRollupJSON, "json", false, "Print the details as JSON")
	rollupCmd.AddCommand(rollupDetailsCmd)
	rootCmd.AddCommand(rollupCmd)
}

func runRollup(cmd *cobra.Command, _ []string) error {
	project, err := requireProject()
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
		bestEffort = flagRollupBestEffort
	}

	ctx, cancel := signalContext()
	defer cancel()

	progressf("  Reading ledgers for %s...\n", project)
	r, err := a.engine.GetBudgetRollup(ctx, project, bestEffort)
	if err != nil {
		return fmt.Errorf("rollup: %w", err)
	}
	progressf("  Rolled up %s cost code lines\n", cli.FormatNumber(int64(len(r.Lines))))

	if flagRollupJSON {
		return printJSON(r)
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("Budget  |  %s", project)))
	fmt.Println()
	if !flagRollupSummary {
		fmt.Print(cli.RenderRollup(r, ""))
		fmt.Println()
	}
	fmt.Print(cli.RenderSummary(r, a.cfg.General.Currency))
	fmt.Println()
	return nil
}

func runRollupDetails(cmd *cobra.Command, args []string) error {
	project, err := requireProject()
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
		bestEffort = flagRollupBestEffort
	}

	ctx, cancel := signalContext()
	defer cancel()

	d, err := a.engine.GetCostCodeDetails(ctx, project, args[0], bestEffort)
	if err != nil {
		return fmt.Errorf("details: %w", err)
	}
	if flagRollupJSON {
		return printJSON(d)
	}
	fmt.Println()
	fmt.Print(cli.RenderDetails(d, a.cfg.General.Currency))
	fmt.Println()
	return nil
}
