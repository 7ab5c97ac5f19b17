// Package export projects a rollup into a flat table and serializes it as
// CSV or XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"
)

// Format is an export file format.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, XLSX:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", model.ErrInvalidRequest, s)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == XLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

var labelColumns = []string{"Cost Code", "Description", "Cost Type", "Sub Job"}

var amountColumns = []struct {
	header string
	get    func(model.DerivedBudgetLine) money.Money
}{
	{"Original Budget", func(l model.DerivedBudgetLine) money.Money { return l.OriginalAmount }},
	{"Budget Modifications", func(l model.DerivedBudgetLine) money.Money { return l.BudgetModTotal }},
	{"Approved Change Orders", func(l model.DerivedBudgetLine) money.Money { return l.ApprovedCOTotal }},
	{"Revised Budget", func(l model.DerivedBudgetLine) money.Money { return l.RevisedBudget }},
	{"Job to Date Cost", func(l model.DerivedBudgetLine) money.Money { return l.JobToDateCost }},
	{"Direct Costs", func(l model.DerivedBudgetLine) money.Money { return l.DirectCosts }},
	{"Pending Changes", func(l model.DerivedBudgetLine) money.Money { return l.PendingCostChanges }},
	{"Committed Costs", func(l model.DerivedBudgetLine) money.Money { return l.CommittedCosts }},
	{"Projected Costs", func(l model.DerivedBudgetLine) money.Money { return l.ProjectedCosts }},
	{"Forecast to Complete", func(l model.DerivedBudgetLine) money.Money { return l.ForecastToComplete }},
	{"Estimated Cost at Completion", func(l model.DerivedBudgetLine) money.Money { return l.EstimatedCostAtCompletion }},
	{"Projected Over/Under", func(l model.DerivedBudgetLine) money.Money { return l.ProjectedOverUnder }},
}

// Row is one exported line.
type Row struct {
	CostCode    string
	Description string
	CostType    string
	SubJob      string
	Amounts     []money.Money
}

func (r Row) labels() []string {
	return []string{r.CostCode, r.Description, r.CostType, r.SubJob}
}

// Table is the single row model both serializations are written from.
type Table struct {
	Columns []string
	Rows    []Row
	Summary Row
}

// Project builds the export table for a rollup. The summary row is the
// rollup's grand totals as computed by the engine.
func Project(r model.Rollup) Table {
	t := Table{Columns: make([]string, 0, len(labelColumns)+len(amountColumns))}
	t.Columns = append(t.Columns, labelColumns...)
	for _, c := range amountColumns {
		t.Columns = append(t.Columns, c.header)
	}

	for _, l := range r.Lines {
		t.Rows = append(t.Rows, Row{
			CostCode:    l.CostCodeID,
			Description: l.Description,
			CostType:    firstNonEmpty(l.CostTypeCode, l.CostTypeID),
			SubJob:      firstNonEmpty(l.SubJobName, l.SubJobID),
			Amounts:     amounts(l),
		})
	}
	t.Summary = Row{CostCode: "Grand Total", Amounts: amounts(r.GrandTotals)}
	return t
}

func amounts(l model.DerivedBudgetLine) []money.Money {
	out := make([]money.Money, len(amountColumns))
	for i, c := range amountColumns {
		out[i] = c.get(l)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Write serializes t in the given format.
func Write(w io.Writer, t Table, f Format) error {
	switch f {
	case CSV:
		return WriteCSV(w, t)
	case XLSX:
		return WriteXLSX(w, t)
	}
	return fmt.Errorf("%w: unknown export format %q", model.ErrInvalidRequest, f)
}

// WriteCSV writes t as CSV with two-decimal amount cells.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, r := range append(append([]Row(nil), t.Rows...), t.Summary) {
		rec := r.labels()
		for _, a := range r.Amounts {
			rec = append(rec, a.String())
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SheetName is the worksheet the XLSX export writes to.
const SheetName = "Budget"

// WriteXLSX writes t as a single-sheet workbook with numeric amount cells.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}
	total, err := f.NewStyle(&excelize.Style{NumFmt: 4, Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	for i, h := range t.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellStr(SheetName, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(t.Columns), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, header); err != nil {
		return err
	}

	writeRow := func(rowNum int, r Row, style int) error {
		for i, v := range r.labels() {
			cell, _ := excelize.CoordinatesToCellName(i+1, rowNum)
			if err := f.SetCellStr(SheetName, cell, v); err != nil {
				return err
			}
		}
		first := len(labelColumns) + 1
		for i, a := range r.Amounts {
			cell, _ := excelize.CoordinatesToCellName(first+i, rowNum)
			if err := f.SetCellFloat(SheetName, cell, a.Decimal().InexactFloat64(), money.Fraction, 64); err != nil {
				return err
			}
		}
		from, _ := excelize.CoordinatesToCellName(first, rowNum)
		to, _ := excelize.CoordinatesToCellName(first+len(r.Amounts)-1, rowNum)
		return f.SetCellStyle(SheetName, from, to, style)
	}

	row := 2
	for _, r := range t.Rows {
		if err := writeRow(row, r, amount); err != nil {
			return err
		}
		row++
	}
	if err := writeRow(row, t.Summary, total); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), header); err != nil {
		return err
	}

	if err := f.SetColWidth(SheetName, "A", "A", 12); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "B", "B", 30); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(t.Columns))
	if err := f.SetColWidth(SheetName, "C", lastCol, 16); err != nil {
		return err
	}
	return f.Write(w)
}

// FileName returns "<project>-Budget-<yyyy-mm-dd>.<ext>" with characters
// unsafe in file names replaced.
func FileName(project string, f Format, date time.Time) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(project))
	if name == "" {
		name = "project"
	}
	return fmt.Sprintf("%s-Budget-%s.%s", name, date.Format("2006-01-02"), f)
}
