package budget

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/theirongolddev/costroll/internal/export"
	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"
)

func TestParseImportRows(t *testing.T) {
	rows := [][]string{
		{"cost-code", "Cost_Type", "Description", "Quantity", "UOM", "Unit Cost", "Original Budget"},
		{"03-1000", "L", "Footings", "", "", "", "1,200.00"},
		{"", "", "", "", "", "", ""},
		{"01-100", "L"},
	}
	got, skipped, err := ParseImportRows(rows)
	if err != nil {
		t.Fatalf("ParseImportRows() error = %v", err)
	}
	if skipped != 1 || len(got) != 2 {
		t.Fatalf("rows = %d skipped = %d, want 2 and 1", len(got), skipped)
	}
	if got[0].Row != 2 || got[0].Amount != "1,200.00" || got[0].Description != "Footings" {
		t.Errorf("row 0 = %+v", got[0])
	}
	if got[1].Row != 4 || got[1].CostCode != "01-100" || got[1].Amount != "" {
		t.Errorf("row 1 = %+v", got[1])
	}
}

func TestParseImportRows_Rejects(t *testing.T) {
	tooMany := [][]string{{"Cost Code", "Cost Type"}}
	for i := range MaxImportRows + 1 {
		tooMany = append(tooMany, []string{fmt.Sprintf("C%d", i), "L"})
	}
	tests := []struct {
		name string
		rows [][]string
		want string
	}{
		{"empty", nil, "empty"},
		{"missing cost type", [][]string{{"Cost Code", "Amount"}, {"03-1000", "1"}}, "cost type"},
		{"too many rows", tooMany, "at most 1000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseImportRows(tt.rows)
			if !errors.Is(err, model.ErrInvalidRequest) || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want ErrInvalidRequest mentioning %q", err, tt.want)
			}
		})
	}
}

func TestImportRows_MergesBatch(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	res, err := svc.ImportRows(ctx, "p1", "alice", [][]string{
		{"Cost Code", "Cost Type", "Sub Job", "Description", "Unit Qty", "UOM", "Unit Cost", "Budget Amount"},
		{"03-1000", "l", "Tower", "Footings", "", "", "", "$1,000.00"},
		{"03-1000", "L", "SJ1", "", "", "", "", "250"},
		{"01-100", "L", "", "Supervision", "10", "wk", "150", ""},
		{"05-500", "L", "", "", "", "", "", ""},
	})
	if err != nil {
		t.Fatalf("ImportRows() error = %v", err)
	}
	if res.TotalRows != 4 || res.Imported != 4 || res.Skipped != 0 {
		t.Errorf("result = %+v, want 4 rows imported", res)
	}
	if len(res.Warnings) != 1 || !strings.HasPrefix(res.Warnings[0], "row 5:") {
		t.Errorf("Warnings = %v, want one for row 5", res.Warnings)
	}
	if len(res.Merge.IDs) != 3 {
		t.Errorf("merged ids = %v, want 3 distinct lines", res.Merge.IDs)
	}
	if !res.Merge.CurrentBudget.Equal(money.New(2750)) {
		t.Errorf("CurrentBudget = %s, want 2750.00", res.Merge.CurrentBudget)
	}

	lines := budgetLines(t, st, "p1")
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for _, l := range lines {
		if l.CostCodeID == "03-1000" && !l.OriginalAmount.Equal(money.New(1250)) {
			t.Errorf("03-1000 = %s, want compounded 1250.00", l.OriginalAmount)
		}
		if l.CostCodeID == "01-100" && l.UnitOfMeasure != "wk" {
			t.Errorf("01-100 UOM = %q, want wk", l.UnitOfMeasure)
		}
	}
}

func TestImportRows_AllOrNothing(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		row  []string
		want error
	}{
		{"unknown cost code", []string{"99-999", "L", "1"}, model.ErrInvalidReference},
		{"unknown cost type", []string{"03-1000", "Q", "1"}, model.ErrInvalidReference},
		{"blank cost type", []string{"03-1000", "", "1"}, model.ErrInvalidReference},
		{"sub-cent amount", []string{"03-1000", "L", "1.005"}, model.ErrInvalidAmount},
		{"bad amount", []string{"03-1000", "L", "lots"}, model.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ImportRows(ctx, "p1", "alice", [][]string{
				{"Cost Code", "Cost Type", "Amount"},
				{"01-100", "L", "500"},
				tt.row,
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if n := len(budgetLines(t, st, "p1")); n != 0 {
				t.Errorf("%d lines stored after failed import, want 0", n)
			}
		})
	}
}

func TestImportRows_LockedBudget(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	if _, err := svc.SetLockState(ctx, model.LockRequest{ProjectID: "p1", Locked: true, ActorID: "pm"}); err != nil {
		t.Fatalf("lock: %v", err)
	}

	_, err := svc.ImportRows(ctx, "p1", "alice", [][]string{{"Cost Code", "Cost Type", "Amount"}, {"01-100", "L", "500"}})
	if !errors.Is(err, model.ErrBudgetLocked) {
		t.Fatalf("err = %v, want ErrBudgetLocked", err)
	}
	if n := len(budgetLines(t, st, "p1")); n != 0 {
		t.Errorf("%d lines stored while locked, want 0", n)
	}
}

func TestImportBudget_Formats(t *testing.T) {
	csvBody := "\ufeffCost Code,Cost Type,Budget Amount\n03-1000,L,400\n"

	wb := excelize.NewFile()
	for i, row := range [][]any{{"Cost Code", "Cost Type", "Budget Amount"}, {"03-1000", "L", 400}} {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := wb.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	var xlsx bytes.Buffer
	if err := wb.Write(&xlsx); err != nil {
		t.Fatal(err)
	}
	_ = wb.Close()

	tests := []struct {
		format export.Format
		body   []byte
	}{
		{export.CSV, []byte(csvBody)},
		{export.XLSX, xlsx.Bytes()},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			svc, _ := newTestService(t)
			res, err := svc.ImportBudget(context.Background(), "p1", "alice", bytes.NewReader(tt.body), tt.format)
			if err != nil {
				t.Fatalf("ImportBudget() error = %v", err)
			}
			if res.Imported != 1 || !res.Merge.CurrentBudget.Equal(money.New(400)) {
				t.Errorf("result = %+v, want one line of 400.00", res)
			}
		})
	}
}
