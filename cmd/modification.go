package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/theirongolddev/costroll/internal/budget"
	"github.com/theirongolddev/costroll/internal/cli"
	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"

	"github.com/spf13/cobra"
)

var (
	flagModFrom   string
	flagModTo     string
	flagModAmount string
	flagModTitle  string
	flagModDate   string
)

var modificationCmd = &cobra.Command{
	Use:     "modification",
	Aliases: []string{"mod"},
	Short:   "Budget modifications that transfer budget between cost codes",
	RunE:    runModificationList,
}

var modificationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a project's budget modifications",
	RunE:  runModificationList,
}

var modificationCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a draft budget modification",
	RunE:  runModificationCreate,
}

func init() {
	modificationCreateCmd.Flags().StringVar(&flagModFrom, "from", "", "Cost code giving budget")
	modificationCreateCmd.Flags().StringVar(&flagModTo, "to", "", "Cost code receiving budget")
	modificationCreateCmd.Flags().StringVar(&flagModAmount, "amount", "", "Amount to transfer")
	modificationCreateCmd.Flags().StringVar(&flagModTitle, "title", "", "Title")
	modificationCreateCmd.Flags().StringVar(&flagModDate, "date", "", "Date (YYYY-MM-DD, default today)")

	modificationCmd.AddCommand(modificationListCmd)
	modificationCmd.AddCommand(modificationCreateCmd)

	for _, action := range []model.ModificationAction{
		model.ActionSubmit, model.ActionApprove, model.ActionReject, model.ActionRevise, model.ActionVoid,
	} {
		modificationCmd.AddCommand(&cobra.Command{
			Use:   string(action) + " <number|id>",
			Short: strings.ToUpper(string(action[:1])) + string(action[1:]) + " a budget modification",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return runModificationTransition(action, args[0])
			},
		})
	}

	rootCmd.AddCommand(modificationCmd)
}

func runModificationList(_ *cobra.Command, _ []string) error {
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

	mods, err := a.budget.Modifications(ctx, project)
	if err != nil {
		return err
	}
	if len(mods) == 0 {
		fmt.Printf("  No budget modifications for %s.\n", project)
		return nil
	}
	fmt.Print(cli.RenderModifications(mods, a.cfg.General.Currency))
	return nil
}

func runModificationCreate(_ *cobra.Command, _ []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}
	if flagModFrom == "" || flagModTo == "" || flagModAmount == "" {
		return errors.New("--from, --to and --amount are required")
	}
	amount, err := money.Parse(flagModAmount)
	if err != nil {
		return fmt.Errorf("--amount: %w", err)
	}
	var date time.Time
	if flagModDate != "" {
		date, err = time.Parse("2006-01-02", flagModDate)
		if err != nil {
			return fmt.Errorf("--date: %w", err)
		}
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

	m, err := a.budget.CreateModification(ctx, budget.NewModification{
		ProjectID:    project,
		Title:        flagModTitle,
		FromCostCode: flagModFrom,
		ToCostCode:   flagModTo,
		Amount:       amount,
		Date:         date,
		ActorID:      actor,
	})
	if err != nil {
		return fmt.Errorf("create modification: %w", err)
	}
	fmt.Printf("  Created %s (%s): %s from %s to %s\n",
		m.Number, m.Status, cli.FormatMoney(m.Amount, a.cfg.General.Currency), m.FromCostCode, m.ToCostCode)
	return nil
}

func runModificationTransition(action model.ModificationAction, ref string) error {
	project, err := requireProject()
	if err != nil {
		return err
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

	id := ref
	mods, err := a.budget.Modifications(ctx, project)
	if err != nil {
		return err
	}
	for _, m := range mods {
		if strings.EqualFold(m.Number, ref) {
			id = m.ID
			break
		}
	}

	m, err := a.budget.TransitionModification(ctx, project, id, action, actor)
	if err != nil {
		return fmt.Errorf("%s %s: %w", action, ref, err)
	}
	fmt.Printf("  %s is now %s\n", m.Number, m.Status)
	return nil
}
