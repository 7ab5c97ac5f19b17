package cmd

import (
	"context"
	"fmt"

	"github.com/theirongolddev/costroll/internal/cli"
	"github.com/theirongolddev/costroll/internal/store"

	"github.com/spf13/cobra"
)

var linesCmd = &cobra.Command{
	Use:   "lines",
	Short: "List a project's live budget lines",
	RunE:  runLinesList,
}

var linesDeleteCmd = &cobra.Command{
	Use:   "delete <line-id>",
	Short: "Delete a budget line (refused while the budget is locked)",
	Args:  cobra.ExactArgs(1),
	RunE:  runLinesDelete,
}

func init() {
	linesCmd.AddCommand(linesDeleteCmd)
	rootCmd.AddCommand(linesCmd)
}

func runLinesList(_ *cobra.Command, _ []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}
	return readStore(func(ctx context.Context, tx *store.Tx, cur string) error {
		lines, err := tx.BudgetLines(ctx, project)
		if err != nil {
			return err
		}
		t := cli.Table{
			Title:       "Budget lines: " + project,
			Headers:     []string{"Id", "Cost Code", "Type", "Sub Job", "Description", "Original"},
			LeftColumns: 5,
		}
		for _, l := range lines {
			t.Rows = append(t.Rows, []string{
				l.ID, l.CostCodeID, cli.OrDash(l.CostTypeID), cli.OrDash(l.SubJobID), cli.OrDash(l.Description),
				cli.FormatMoney(l.OriginalAmount, cur),
			})
		}
		fmt.Print(cli.RenderTable(t))
		return nil
	})
}

func runLinesDelete(_ *cobra.Command, args []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	p, err := a.budget.DeleteBudgetLine(ctx, project, args[0])
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	fmt.Printf("  Deleted budget line %s\n", args[0])
	fmt.Printf("  Current budget: %s\n", cli.FormatMoney(p.CurrentBudget, a.cfg.General.Currency))
	return nil
}
