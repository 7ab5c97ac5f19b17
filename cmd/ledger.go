package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/theirongolddev/costroll/internal/cli"
	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"
	"github.com/theirongolddev/costroll/internal/store"

	"github.com/spf13/cobra"
)

var (
	flagLedgerName     string
	flagLedgerTitle    string
	flagLedgerDivision string
	flagLedgerCode     string
	flagLedgerDesc     string
	flagLedgerNumber   string
	flagLedgerCostCode string
	flagLedgerAmount   string
	flagLedgerStatus   string
	flagLedgerKind     string
	flagLedgerCOs      string
	flagLedgerRevised  string
	flagLedgerInvoiced string
	flagLedgerPaid     string
	flagLedgerRetained string
	flagLedgerType     string
	flagLedgerApproved bool
	flagLedgerDate     string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Record reference data and the ledgers the rollup reads",
}

var projectCmd = &cobra.Command{
	Use:   "project <id>",
	Short: "Register or rename a project and show its cached budget",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerProject,
}

var dictionaryCmd = &cobra.Command{
	Use:     "dictionary",
	Aliases: []string{"dict"},
	Short:   "Show the cost code, cost type and sub-job dictionary",
	RunE:    runDictionaryList,
}

var costCodeCmd = &cobra.Command{
	Use:   "cost-code <id>",
	Short: "Add or update a cost code",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if flagLedgerTitle == "" {
			return errors.New("--title is required")
		}
		return updateStore(func(ctx context.Context, tx *store.Tx) error {
			return tx.PutCostCode(ctx, model.CostCode{ID: args[0], Title: flagLedgerTitle, DivisionID: flagLedgerDivision})
		}, "Saved cost code %s", args[0])
	},
}

var costTypeCmd = &cobra.Command{
	Use:   "cost-type <id>",
	Short: "Add or update a cost type",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		code := firstNonEmpty(flagLedgerCode, args[0])
		return updateStore(func(ctx context.Context, tx *store.Tx) error {
			return tx.PutCostType(ctx, model.CostType{ID: args[0], Code: code, Description: flagLedgerDesc})
		}, "Saved cost type %s", args[0])
	},
}

var subJobCmd = &cobra.Command{
	Use:   "sub-job <id>",
	Short: "Add or update a sub-job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		code := firstNonEmpty(flagLedgerCode, args[0])
		return updateStore(func(ctx context.Context, tx *store.Tx) error {
			return tx.PutSubJob(ctx, model.SubJob{ID: args[0], Code: code, Name: flagLedgerName})
		}, "Saved sub-job %s", args[0])
	},
}

var deleteCostCodeCmd = &cobra.Command{
	Use:   "delete-cost-code <id>",
	Short: "Remove a cost code (budget lines on it surface as orphans)",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return updateStore(func(ctx context.Context, tx *store.Tx) error {
			return tx.DeleteCostCode(ctx, args[0])
		}, "Deleted cost code %s", args[0])
	},
}

var changeOrderCmd = &cobra.Command{
	Use:     "change-order",
	Aliases: []string{"co"},
	Short:   "List a project's change order lines",
	RunE:    runChangeOrderList,
}

var changeOrderAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a change order line",
	RunE:  runChangeOrderAdd,
}

var changeOrderStatusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Set a change order's status",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		project, err := requireProject()
		if err != nil {
			return err
		}
		return updateStore(func(ctx context.Context, tx *store.Tx) error {
			return tx.SetChangeOrderStatus(ctx, project, args[0], model.ChangeOrderStatus(args[1]))
		}, "Change order %s is now %s", args[0], args[1])
	},
}

var commitmentCmd = &cobra.Command{
	Use:   "commitment",
	Short: "List a project's subcontracts and purchase orders",
	RunE:  runCommitmentList,
}

var commitmentAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a subcontract or purchase order",
	RunE:  runCommitmentAdd,
}

var commitmentStatusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Set a commitment's contract status",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		project, err := requireProject()
		if err != nil {
			return err
		}
		return updateStore(func(ctx context.Context, tx *store.Tx) error {
			return tx.SetCommitmentStatus(ctx, project, args[0], model.CommitmentStatus(args[1]))
		}, "Commitment %s is now %s", args[0], args[1])
	},
}

var directCostCmd = &cobra.Command{
	Use:   "direct-cost",
	Short: "List a project's posted direct costs",
	RunE:  runDirectCostList,
}

var directCostAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Post a direct cost",
	RunE:  runDirectCostAdd,
}

func init() {
	projectCmd.Flags().StringVar(&flagLedgerName, "name", "", "Project name")

	costCodeCmd.Flags().StringVar(&flagLedgerTitle, "title", "", "Cost code title")
	costCodeCmd.Flags().StringVar(&flagLedgerDivision, "division", "", "Division id")
	costTypeCmd.Flags().StringVar(&flagLedgerCode, "code", "", "Short code (default id)")
	costTypeCmd.Flags().StringVar(&flagLedgerDesc, "description", "", "Description, e.g. Labor")
	subJobCmd.Flags().StringVar(&flagLedgerCode, "code", "", "Short code (default id)")
	subJobCmd.Flags().StringVar(&flagLedgerName, "name", "", "Sub-job name")
	dictionaryCmd.AddCommand(costCodeCmd, costTypeCmd, subJobCmd, deleteCostCodeCmd)

	changeOrderAddCmd.Flags().StringVar(&flagLedgerCostCode, "code", "", "Cost code id")
	changeOrderAddCmd.Flags().StringVar(&flagLedgerAmount, "amount", "", "Amount")
	changeOrderAddCmd.Flags().StringVar(&flagLedgerNumber, "number", "", "Change order number")
	changeOrderAddCmd.Flags().StringVar(&flagLedgerStatus, "status", string(model.ChangeOrderPending), "Status (draft, pending, approved, executed, rejected, void)")
	changeOrderCmd.AddCommand(changeOrderAddCmd, changeOrderStatusCmd)

	commitmentAddCmd.Flags().StringVar(&flagLedgerKind, "kind", string(model.Subcontract), "subcontract or purchase_order")
	commitmentAddCmd.Flags().StringVar(&flagLedgerCostCode, "code", "", "Cost code id")
	commitmentAddCmd.Flags().StringVar(&flagLedgerNumber, "number", "", "Contract number")
	commitmentAddCmd.Flags().StringVar(&flagLedgerAmount, "amount", "", "Original contract amount")
	commitmentAddCmd.Flags().StringVar(&flagLedgerCOs, "approved-cos", "", "Approved change orders on the contract")
	commitmentAddCmd.Flags().StringVar(&flagLedgerRevised, "revised", "", "Recorded revised amount (default original plus approved change orders)")
	commitmentAddCmd.Flags().StringVar(&flagLedgerInvoiced, "invoiced", "", "Invoiced to date")
	commitmentAddCmd.Flags().StringVar(&flagLedgerPaid, "paid", "", "Payments made")
	commitmentAddCmd.Flags().StringVar(&flagLedgerRetained, "retention", "", "Retention held")
	commitmentAddCmd.Flags().StringVar(&flagLedgerStatus, "status", string(model.CommitmentApproved), "Contract status")
	commitmentCmd.AddCommand(commitmentAddCmd, commitmentStatusCmd)

	directCostAddCmd.Flags().StringVar(&flagLedgerCostCode, "code", "", "Cost code id")
	directCostAddCmd.Flags().StringVar(&flagLedgerAmount, "amount", "", "Amount")
	directCostAddCmd.Flags().StringVar(&flagLedgerType, "type", model.CostInvoice, "Invoice, Expense, Payroll or Subcontractor Invoice")
	directCostAddCmd.Flags().BoolVar(&flagLedgerApproved, "approved", true, "Whether the cost is approved")
	directCostAddCmd.Flags().StringVar(&flagLedgerDate, "date", "", "Posting date (YYYY-MM-DD, default today)")
	directCostCmd.AddCommand(directCostAddCmd)

	ledgerCmd.AddCommand(projectCmd, dictionaryCmd, changeOrderCmd, commitmentCmd, directCostCmd)
	rootCmd.AddCommand(ledgerCmd)
}

// updateStore runs fn in a write transaction and reports success.
func updateStore(fn func(context.Context, *store.Tx) error, done string, args ...any) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	if err := a.store.Update(ctx, func(tx *store.Tx) error { return fn(ctx, tx) }); err != nil {
		return err
	}
	fmt.Printf("  "+done+"\n", args...)
	return nil
}

// readStore runs fn in a snapshot with the app's currency.
func readStore(fn func(context.Context, *store.Tx, string) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	return a.store.Snapshot(ctx, func(tx *store.Tx) error { return fn(ctx, tx, a.cfg.General.Currency) })
}

func runLedgerProject(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("name") {
		err := updateStore(func(ctx context.Context, tx *store.Tx) error {
			return tx.PutProject(ctx, model.Project{ID: args[0], Name: flagLedgerName})
		}, "Saved project %s", args[0])
		if err != nil {
			return err
		}
	}
	return readStore(func(ctx context.Context, tx *store.Tx, cur string) error {
		p, err := tx.Project(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("  Project:        %s\n", p.ID)
		fmt.Printf("  Name:           %s\n", cli.OrDash(p.Name))
		fmt.Printf("  Current budget: %s\n", cli.FormatMoney(p.CurrentBudget, cur))
		return nil
	})
}

func runDictionaryList(_ *cobra.Command, _ []string) error {
	return readStore(func(ctx context.Context, tx *store.Tx, _ string) error {
		d, err := tx.Dictionary(ctx)
		if err != nil {
			return err
		}

		codes := cli.Table{Title: "Cost codes", Headers: []string{"Id", "Title", "Division"}, LeftColumns: 3}
		for _, id := range sortedKeys(d.CostCodes) {
			c := d.CostCodes[id]
			codes.Rows = append(codes.Rows, []string{c.ID, c.Title, cli.OrDash(c.DivisionID)})
		}
		types := cli.Table{Title: "Cost types", Headers: []string{"Id", "Code", "Description"}, LeftColumns: 3}
		for _, id := range sortedKeys(d.CostTypes) {
			c := d.CostTypes[id]
			types.Rows = append(types.Rows, []string{c.ID, c.Code, cli.OrDash(c.Description)})
		}
		subs := cli.Table{Title: "Sub-jobs", Headers: []string{"Id", "Code", "Name"}, LeftColumns: 3}
		for _, id := range sortedKeys(d.SubJobs) {
			s := d.SubJobs[id]
			subs.Rows = append(subs.Rows, []string{s.ID, s.Code, cli.OrDash(s.Name)})
		}
		for _, t := range []cli.Table{codes, types, subs} {
			if len(t.Rows) > 0 {
				fmt.Print(cli.RenderTable(t))
				fmt.Println()
			}
		}
		return nil
	})
}

func runChangeOrderAdd(_ *cobra.Command, _ []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}
	amount, err := parseLedgerAmount("--amount", flagLedgerAmount, true)
	if err != nil {
		return err
	}
	if flagLedgerCostCode == "" {
		return errors.New("--code is required")
	}

	var id string
	err = updateStore(func(ctx context.Context, tx *store.Tx) error {
		co, err := tx.InsertChangeOrder(ctx, model.ChangeOrder{
			ProjectID:  project,
			Number:     flagLedgerNumber,
			CostCodeID: flagLedgerCostCode,
			Amount:     amount,
			Status:     model.ChangeOrderStatus(flagLedgerStatus),
		})
		id = co.ID
		return err
	}, "Recorded change order line on %s", flagLedgerCostCode)
	if err == nil {
		fmt.Printf("  Id: %s\n", id)
	}
	return err
}

func runChangeOrderList(_ *cobra.Command, _ []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}
	return readStore(func(ctx context.Context, tx *store.Tx, cur string) error {
		cos, err := tx.ChangeOrders(ctx, project)
		if err != nil {
			return err
		}
		t := cli.Table{Title: "Change orders", Headers: []string{"Id", "Number", "Cost Code", "Status", "Amount"}, LeftColumns: 4}
		for _, co := range cos {
			t.Rows = append(t.Rows, []string{co.ID, cli.OrDash(co.Number), co.CostCodeID, string(co.Status), cli.FormatMoney(co.Amount, cur)})
		}
		fmt.Print(cli.RenderTable(t))
		return nil
	})
}

func runCommitmentAdd(_ *cobra.Command, _ []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}
	kind := model.CommitmentKind(flagLedgerKind)
	if !kind.Valid() {
		return fmt.Errorf("--kind must be %s or %s", model.Subcontract, model.PurchaseOrder)
	}

	c := model.Commitment{
		ProjectID:  project,
		Kind:       kind,
		Number:     flagLedgerNumber,
		CostCodeID: flagLedgerCostCode,
		Status:     model.CommitmentStatus(flagLedgerStatus),
	}
	for _, f := range []struct {
		flag, value string
		dst         *money.Money
		required    bool
	}{
		{"--amount", flagLedgerAmount, &c.OriginalAmount, true},
		{"--approved-cos", flagLedgerCOs, &c.ApprovedChangeOrders, false},
		{"--invoiced", flagLedgerInvoiced, &c.InvoicedAmount, false},
		{"--paid", flagLedgerPaid, &c.PaymentsMade, false},
		{"--retention", flagLedgerRetained, &c.RetentionHeld, false},
	} {
		if *f.dst, err = parseLedgerAmount(f.flag, f.value, f.required); err != nil {
			return err
		}
	}
	if flagLedgerRevised != "" {
		revised, err := parseLedgerAmount("--revised", flagLedgerRevised, true)
		if err != nil {
			return err
		}
		c.RevisedAmount = &revised
	}

	var id string
	err = updateStore(func(ctx context.Context, tx *store.Tx) error {
		saved, err := tx.InsertCommitment(ctx, c)
		id = saved.ID
		return err
	}, "Recorded %s %s", kind, cli.OrDash(c.Number))
	if err == nil {
		fmt.Printf("  Id: %s\n", id)
	}
	return err
}

func runCommitmentList(_ *cobra.Command, _ []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}
	return readStore(func(ctx context.Context, tx *store.Tx, cur string) error {
		cs, err := tx.Commitments(ctx, project)
		if err != nil {
			return err
		}
		t := cli.Table{
			Title:       "Commitments",
			Headers:     []string{"Id", "Kind", "Number", "Cost Code", "Status", "Revised", "Invoiced"},
			LeftColumns: 5,
		}
		for _, c := range cs {
			t.Rows = append(t.Rows, []string{
				c.ID, string(c.Kind), cli.OrDash(c.Number), cli.OrDash(c.CostCodeID), string(c.Status),
				cli.FormatMoney(c.Revised(), cur), cli.FormatMoney(c.InvoicedAmount, cur),
			})
		}
		fmt.Print(cli.RenderTable(t))
		return nil
	})
}

func runDirectCostAdd(_ *cobra.Command, _ []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}
	if flagLedgerCostCode == "" {
		return errors.New("--code is required")
	}
	amount, err := parseLedgerAmount("--amount", flagLedgerAmount, true)
	if err != nil {
		return err
	}
	var date time.Time
	if flagLedgerDate != "" {
		if date, err = time.Parse("2006-01-02", flagLedgerDate); err != nil {
			return fmt.Errorf("--date: %w", err)
		}
	}

	return updateStore(func(ctx context.Context, tx *store.Tx) error {
		_, err := tx.InsertDirectCost(ctx, model.DirectCost{
			ProjectID:  project,
			CostCodeID: flagLedgerCostCode,
			CostType:   flagLedgerType,
			Amount:     amount,
			Approved:   flagLedgerApproved,
			Date:       date,
		})
		return err
	}, "Posted %s %s to %s", flagLedgerType, amount, flagLedgerCostCode)
}

func runDirectCostList(_ *cobra.Command, _ []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}
	return readStore(func(ctx context.Context, tx *store.Tx, cur string) error {
		ds, err := tx.DirectCosts(ctx, project)
		if err != nil {
			return err
		}
		t := cli.Table{
			Title:       "Direct costs",
			Headers:     []string{"Date", "Cost Code", "Type", "Approved", "Amount"},
			LeftColumns: 4,
		}
		for _, d := range ds {
			approved := "no"
			if d.Approved {
				approved = "yes"
			}
			t.Rows = append(t.Rows, []string{
				d.Date.Local().Format("2006-01-02"), d.CostCodeID, d.Type(), approved, cli.FormatMoney(d.Amount, cur),
			})
		}
		fmt.Print(cli.RenderTable(t))
		return nil
	})
}

func parseLedgerAmount(flag, value string, required bool) (money.Money, error) {
	if value == "" {
		if required {
			return money.Money{}, fmt.Errorf("%s is required", flag)
		}
		return money.Zero(), nil
	}
	m, err := money.Parse(value)
	if err != nil {
		return money.Money{}, fmt.Errorf("%s: %w", flag, err)
	}
	if !m.Exact() {
		return money.Money{}, fmt.Errorf("%s: %w: more than two decimals", flag, model.ErrInvalidAmount)
	}
	return m, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
