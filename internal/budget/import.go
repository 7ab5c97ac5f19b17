package budget

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/costroll/internal/export"
	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"
	"github.com/theirongolddev/costroll/internal/store"
)

// MaxImportRows caps the data rows of one import file.
const MaxImportRows = 1000

// Import columns. Headers match case-insensitively; spaces, hyphens and
// underscores are interchangeable.
const (
	colCostCode    = "cost code"
	colCostType    = "cost type"
	colSubJob      = "sub job"
	colDescription = "description"
	colQuantity    = "unit qty"
	colUOM         = "uom"
	colUnitCost    = "unit cost"
	colAmount      = "budget amount"
)

var columnAliases = map[string]string{
	"quantity":        colQuantity,
	"unit of measure": colUOM,
	"original budget": colAmount,
	"amount":          colAmount,
}

// ImportRow is one data row of an import file. Row is the 1-based sheet
// row number, header included.
type ImportRow struct {
	Row         int
	CostCode    string
	CostType    string
	SubJob      string
	Description string
	Quantity    string
	UOM         string
	UnitCost    string
	Amount      string
}

func (r ImportRow) empty() bool {
	return r.CostCode == "" && r.CostType == "" && r.Amount == ""
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer("-", " ", "_", " ").Replace(h)
	h = strings.Join(strings.Fields(h), " ")
	if alias, ok := columnAliases[h]; ok {
		return alias
	}
	return h
}

// ParseImportRows maps sheet rows to import rows using the header row.
// Cost Code and Cost Type columns are required. Blank rows are dropped and
// counted.
func ParseImportRows(rows [][]string) ([]ImportRow, int, error) {
	if len(rows) == 0 {
		return nil, 0, fmt.Errorf("%w: import file is empty", model.ErrInvalidRequest)
	}
	index := map[string]int{}
	for i, h := range rows[0] {
		name := normalizeHeader(h)
		if _, dup := index[name]; !dup && name != "" {
			index[name] = i
		}
	}
	var missing []string
	for _, col := range []string{colCostCode, colCostType} {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, 0, fmt.Errorf("%w: missing required columns: %s", model.ErrInvalidRequest, strings.Join(missing, ", "))
	}

	data := rows[1:]
	if len(data) > MaxImportRows {
		return nil, 0, fmt.Errorf("%w: %d rows, at most %d per import", model.ErrInvalidRequest, len(data), MaxImportRows)
	}

	cell := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	var (
		out     []ImportRow
		skipped int
	)
	for i, row := range data {
		r := ImportRow{
			Row:         i + 2,
			CostCode:    cell(row, colCostCode),
			CostType:    cell(row, colCostType),
			SubJob:      cell(row, colSubJob),
			Description: cell(row, colDescription),
			Quantity:    cell(row, colQuantity),
			UOM:         cell(row, colUOM),
			UnitCost:    cell(row, colUnitCost),
			Amount:      cell(row, colAmount),
		}
		if r.empty() {
			skipped++
			continue
		}
		out = append(out, r)
	}
	return out, skipped, nil
}

// ImportBudget reads a CSV or XLSX budget file and merges its rows.
func (s *Service) ImportBudget(ctx context.Context, projectID, actorID string, r io.Reader, f export.Format) (model.ImportResult, error) {
	rows, err := export.ReadRows(r, f)
	if err != nil {
		return model.ImportResult{}, err
	}
	return s.ImportRows(ctx, projectID, actorID, rows)
}

// ImportRows resolves sheet rows against the dictionary and merges them as
// one batch, so a locked budget or any bad row imports nothing.
func (s *Service) ImportRows(ctx context.Context, projectID, actorID string, rows [][]string) (model.ImportResult, error) {
	parsed, skipped, err := ParseImportRows(rows)
	if err != nil {
		return model.ImportResult{}, err
	}
	result := model.ImportResult{TotalRows: len(parsed) + skipped, Skipped: skipped}
	if len(parsed) == 0 {
		return result, fmt.Errorf("%w: no data rows in import file", model.ErrInvalidRequest)
	}

	var dict model.Dictionary
	err = s.store.Snapshot(ctx, func(tx *store.Tx) error {
		var err error
		dict, err = tx.Dictionary(ctx)
		return err
	})
	if err != nil {
		return result, err
	}

	reqs := make([]model.LineRequest, 0, len(parsed))
	for _, r := range parsed {
		req, warn, err := resolveRow(r, dict)
		if err != nil {
			return result, fmt.Errorf("row %d: %w", r.Row, err)
		}
		if warn != "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: %s", r.Row, warn))
		}
		reqs = append(reqs, req)
	}

	merged, err := s.MergeBudgetLines(ctx, projectID, actorID, reqs)
	if err != nil {
		return result, err
	}
	result.Imported = len(reqs)
	result.Merge = merged
	return result, nil
}

func resolveRow(r ImportRow, dict model.Dictionary) (model.LineRequest, string, error) {
	req := model.LineRequest{
		CostCodeID:    r.CostCode,
		Description:   r.Description,
		UnitOfMeasure: r.UOM,
	}
	if r.CostCode == "" {
		return req, "", fmt.Errorf("%w: cost code is required", model.ErrInvalidReference)
	}
	if _, ok := dict.CostCodes[r.CostCode]; !ok {
		return req, "", fmt.Errorf("%w: unknown cost code %q", model.ErrInvalidReference, r.CostCode)
	}
	if r.CostType == "" {
		return req, "", fmt.Errorf("%w: cost type is required", model.ErrInvalidReference)
	}
	typeID, err := lookup("cost type", r.CostType, dict.CostTypes, func(t model.CostType) []string {
		return []string{t.Code}
	})
	if err != nil {
		return req, "", err
	}
	req.CostTypeID = typeID
	if r.SubJob != "" {
		if req.SubJobID, err = lookup("sub job", r.SubJob, dict.SubJobs, func(s model.SubJob) []string {
			return []string{s.Code, s.Name}
		}); err != nil {
			return req, "", err
		}
	}

	if r.Quantity != "" {
		q, err := decimal.NewFromString(strings.ReplaceAll(r.Quantity, ",", ""))
		if err != nil {
			return req, "", fmt.Errorf("%w: quantity %q", model.ErrInvalidAmount, r.Quantity)
		}
		req.Quantity = &q
	}
	if r.UnitCost != "" {
		c, err := money.Parse(r.UnitCost)
		if err != nil {
			return req, "", fmt.Errorf("%w: unit cost %q", model.ErrInvalidAmount, r.UnitCost)
		}
		req.UnitCost = &c
	}

	switch {
	case r.Amount != "":
		a, err := money.Parse(r.Amount)
		if err != nil {
			return req, "", fmt.Errorf("%w: amount %q", model.ErrInvalidAmount, r.Amount)
		}
		req.Amount = &a
		if !a.IsPositive() {
			return req, fmt.Sprintf("budget amount is %s", a), nil
		}
	case req.Quantity != nil && req.UnitCost != nil:
	default:
		zero := money.Zero()
		req.Amount = &zero
		return req, "no budget amount, line added at 0.00", nil
	}
	return req, "", nil
}

// lookup resolves a dictionary reference by id, then by any of the entry's
// alternate keys, case-insensitively. Several alternate matches are an
// error.
func lookup[T any](what, ref string, entries map[string]T, keys func(T) []string) (string, error) {
	if _, ok := entries[ref]; ok {
		return ref, nil
	}
	var matches []string
	for id, e := range entries {
		for _, k := range keys(e) {
			if k != "" && strings.EqualFold(k, ref) {
				matches = append(matches, id)
				break
			}
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: unknown %s %q", model.ErrInvalidReference, what, ref)
	case 1:
		return matches[0], nil
	}
	sort.Strings(matches)
	return "", fmt.Errorf("%w: %s %q matches %s", model.ErrInvalidReference, what, ref, strings.Join(matches, ", "))
}
