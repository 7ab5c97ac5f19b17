package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"
	"github.com/theirongolddev/costroll/internal/rollup"
)

func sampleRollup() model.Rollup {
	lines := rollup.Aggregate(rollup.Input{
		Dictionary: model.NewDictionary(
			[]model.CostCode{{ID: "01-100", Title: "General Conditions"}, {ID: "03-1000", Title: "Concrete"}},
			[]model.CostType{{ID: "L", Code: "L", Description: "Labor"}},
			nil,
		),
		Lines: []model.BudgetLine{
			{CostCodeID: "01-100", CostTypeID: "L", OriginalAmount: money.MustParse("10000")},
			{CostCodeID: "03-1000", OriginalAmount: money.MustParse("2500.55")},
		},
		DirectCosts: []model.DirectCost{
			{CostCodeID: "01-100", Amount: money.MustParse("4000"), Approved: true},
			{CostCodeID: "03-1000", Amount: money.MustParse("3000.10"), Approved: true},
		},
		Commitments: []model.Commitment{
			{Kind: model.Subcontract, CostCodeID: "03-1000", OriginalAmount: money.MustParse("1234.56"), Status: model.CommitmentApproved},
		},
	}, rollup.Primary{})
	return model.Rollup{ProjectID: "p1", Lines: lines, GrandTotals: rollup.Totals(lines)}
}

func TestProject_Columns(t *testing.T) {
	tbl := Project(sampleRollup())
	if len(tbl.Columns) != 16 {
		t.Fatalf("len(Columns) = %d, want 16", len(tbl.Columns))
	}
	if tbl.Columns[0] != "Cost Code" || tbl.Columns[15] != "Projected Over/Under" {
		t.Errorf("Columns = %v", tbl.Columns)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(tbl.Rows))
	}
	if tbl.Rows[0].CostType != "L" || tbl.Rows[0].Description != "General Conditions" {
		t.Errorf("row 0 = %+v", tbl.Rows[0])
	}
}

func TestWriteCSV_SummaryMatchesGrandTotals(t *testing.T) {
	r := sampleRollup()
	var buf bytes.Buffer
	if err := WriteCSV(&buf, Project(r)); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("len(records) = %d, want 4", len(records))
	}
	summary := records[3]
	if summary[0] != "Grand Total" {
		t.Errorf("summary label = %q", summary[0])
	}
	want := amounts(r.GrandTotals)
	for i, w := range want {
		if got := summary[4+i]; got != w.String() {
			t.Errorf("summary %s = %s, want %s", records[0][4+i], got, w)
		}
	}
	if got := records[2][4+7]; got != "1234.56" {
		t.Errorf("committed cell = %s, want 1234.56", got)
	}
}

func TestWriteXLSX_SummaryMatchesGrandTotals(t *testing.T) {
	r := sampleRollup()
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, Project(r)); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer func() { _ = f.Close() }()

	header, err := f.GetCellValue(SheetName, "E1")
	if err != nil || header != "Original Budget" {
		t.Errorf("E1 = %q, %v", header, err)
	}
	label, _ := f.GetCellValue(SheetName, "A4")
	if label != "Grand Total" {
		t.Errorf("A4 = %q, want Grand Total", label)
	}

	for i, w := range amounts(r.GrandTotals) {
		cell, _ := excelize.CoordinatesToCellName(5+i, 4)
		raw, err := f.GetCellValue(SheetName, cell, excelize.Options{RawCellValue: true})
		if err != nil {
			t.Fatalf("GetCellValue(%s): %v", cell, err)
		}
		got, err := money.Parse(raw)
		if err != nil {
			t.Fatalf("parse %s=%q: %v", cell, raw, err)
		}
		if !got.Equal(w) {
			t.Errorf("%s = %s, want %s", cell, got, w)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"csv": CSV, "XLSX": XLSX, " xlsx ": XLSX} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Error("ParseFormat(pdf) returned nil error")
	}
}

func TestFileName(t *testing.T) {
	date := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		project string
		format  Format
		want    string
	}{
		{"Harbor Tower", XLSX, "Harbor Tower-Budget-2026-03-09.xlsx"},
		{"A/B: Phase 2", CSV, "A_B_ Phase 2-Budget-2026-03-09.csv"},
		{"  ", CSV, "project-Budget-2026-03-09.csv"},
	}
	for _, tt := range tests {
		if got := FileName(tt.project, tt.format, date); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.project, got, tt.want)
		}
	}
}
