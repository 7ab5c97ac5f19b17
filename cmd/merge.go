package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/theirongolddev/costroll/internal/cli"
	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	flagMergeFile     string
	flagMergeCode     string
	flagMergeType     string
	flagMergeSubJob   string
	flagMergeAmount   string
	flagMergeQty      string
	flagMergeUnitCost string
	flagMergeUOM      string
	flagMergeDesc     string
	flagMergeJSON     bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Add amounts to budget lines, creating lines that don't exist",
	Long: "Merge one line from flags, or a batch from --file (a JSON array of lines,\n" +
		"or {\"lines\": [...]}; \"-\" reads stdin). Amounts add to existing lines with\n" +
		"the same cost code, cost type and sub-job. The batch applies atomically.",
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().StringVarP(&flagMergeFile, "file", "f", "", "JSON batch file")
	mergeCmd.Flags().StringVar(&flagMergeCode, "code", "", "Cost code id")
	mergeCmd.Flags().StringVar(&flagMergeType, "type", "", "Cost type id")
	mergeCmd.Flags().StringVar(&flagMergeSubJob, "sub-job", "", "Sub-job id")
	mergeCmd.Flags().StringVar(&flagMergeAmount, "amount", "", "Amount to add")
	mergeCmd.Flags().StringVar(&flagMergeQty, "qty", "", "Quantity (with --unit-cost, instead of --amount)")
	mergeCmd.Flags().StringVar(&flagMergeUnitCost, "unit-cost", "", "Unit cost")
	mergeCmd.Flags().StringVar(&flagMergeUOM, "uom", "", "Unit of measure")
	mergeCmd.Flags().StringVar(&flagMergeDesc, "description", "", "Line description")
	mergeCmd.Flags().BoolVar(&flagMergeJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(_ *cobra.Command, _ []string) error {
	project, err := requireProject()
	if err != nil {
		return err
	}

	var lines []model.LineRequest
	if flagMergeFile != "" {
		lines, err = readLineRequests(flagMergeFile)
	} else {
		var line model.LineRequest
		line, err = lineFromFlags()
		lines = []model.LineRequest{line}
	}
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

	res, err := a.budget.MergeBudgetLines(ctx, project, actor, lines)
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}

	if flagMergeJSON {
		return printJSON(res)
	}
	cur := a.cfg.General.Currency
	fmt.Printf("  Merged %d line(s) into %s\n", len(res.IDs), project)
	fmt.Printf("  Batch total:    %s\n", cli.FormatMoney(res.BatchTotal, cur))
	fmt.Printf("  Current budget: %s\n", cli.FormatMoney(res.CurrentBudget, cur))
	return nil
}

func lineFromFlags() (model.LineRequest, error) {
	if flagMergeCode == "" {
		return model.LineRequest{}, errors.New("--code is required (or use --file)")
	}
	req := model.LineRequest{
		CostCodeID:    flagMergeCode,
		CostTypeID:    flagMergeType,
		SubJobID:      flagMergeSubJob,
		UnitOfMeasure: flagMergeUOM,
		Description:   flagMergeDesc,
	}
	if flagMergeAmount != "" {
		m, err := money.Parse(flagMergeAmount)
		if err != nil {
			return req, fmt.Errorf("--amount: %w", err)
		}
		req.Amount = &m
	}
	if flagMergeQty != "" {
		q, err := decimal.NewFromString(flagMergeQty)
		if err != nil {
			return req, fmt.Errorf("--qty: %w", err)
		}
		req.Quantity = &q
	}
	if flagMergeUnitCost != "" {
		m, err := money.Parse(flagMergeUnitCost)
		if err != nil {
			return req, fmt.Errorf("--unit-cost: %w", err)
		}
		req.UnitCost = &m
	}
	return req, nil
}

// readLineRequests accepts a bare JSON array or an object with a "lines" key.
func readLineRequests(path string) ([]model.LineRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		//nolint:gosec // batch path is supplied by the local user
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading batch: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var lines []model.LineRequest
		if err := json.Unmarshal(data, &lines); err != nil {
			return nil, fmt.Errorf("parsing batch: %w", err)
		}
		return lines, nil
	}
	var body struct {
		Lines []model.LineRequest `json:"lines"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("parsing batch: %w", err)
	}
	return body.Lines, nil
}
