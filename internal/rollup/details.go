package rollup

import (
	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"
)

// Details lists the ledger rows of in that feed costCode, in the order the
// rollup accumulates them. It applies the same classification as Aggregate,
// so each type's subtotal equals the cost code's unattributed column total.
// A pending commitment appears twice: once as committed, once as pending.
func Details(in Input, costCode string) model.CostCodeDetails {
	d := model.CostCodeDetails{
		CostCodeID: costCode,
		Items:      []model.DetailItem{},
		Subtotals:  map[model.DetailType]money.Money{},
	}
	if c, ok := in.Dictionary.CostCodes[costCode]; ok {
		d.CostCodeTitle = c.Title
	}
	add := func(item model.DetailItem) {
		d.Items = append(d.Items, item)
		d.Subtotals[item.Type] = d.Subtotals[item.Type].Add(item.Amount)
	}

	for _, bl := range in.Lines {
		if bl.CostCodeID != costCode {
			continue
		}
		add(model.DetailItem{
			SourceID:    bl.ID,
			Type:        model.DetailOriginalBudget,
			Item:        lineLabel(bl, in.Dictionary),
			Description: bl.Description,
			Amount:      bl.OriginalAmount,
		})
	}

	for _, mod := range in.Modifications {
		if mod.Status != model.ModificationApproved || mod.FromCostCode == mod.ToCostCode {
			continue
		}
		item := model.DetailItem{
			SourceID:    mod.ID,
			Type:        model.DetailBudgetChanges,
			Item:        mod.Number,
			Description: mod.Title,
			Status:      string(mod.Status),
		}
		switch costCode {
		case mod.FromCostCode:
			item.Amount = mod.Amount.Neg()
		case mod.ToCostCode:
			item.Amount = mod.Amount
		default:
			continue
		}
		add(item)
	}

	for _, co := range in.ChangeOrders {
		if co.CostCodeID != costCode {
			continue
		}
		item := model.DetailItem{SourceID: co.ID, Item: co.Number, Status: string(co.Status), Amount: co.Amount}
		switch {
		case co.Approved():
			item.Type = model.DetailApprovedCOs
		case co.Pending():
			item.Type = model.DetailPendingCOs
		default:
			continue
		}
		add(item)
	}

	for _, dc := range in.DirectCosts {
		if dc.CostCodeID != costCode || !dc.Approved || !dc.CountsToJobToDate() {
			continue
		}
		item := model.DetailItem{
			SourceID:    dc.ID,
			Type:        model.DetailJobToDateOnly,
			Item:        dc.Date.Format("2006-01-02"),
			Description: dc.Type(),
			Amount:      dc.Amount,
		}
		if dc.CountsToDirectCosts() {
			item.Type = model.DetailDirectCosts
		}
		add(item)
	}

	for _, c := range in.Commitments {
		if c.CostCodeID != costCode {
			continue
		}
		item := model.DetailItem{
			SourceID:    c.ID,
			Item:        c.Number,
			Description: string(c.Kind),
			Status:      string(c.Status),
			Amount:      c.Revised(),
		}
		if c.Committed() {
			item.Type = model.DetailCommitments
			add(item)
		}
		if c.Pending() {
			item.Type = model.DetailPendingCommitments
			add(item)
		}
	}
	return d
}

func lineLabel(bl model.BudgetLine, dict model.Dictionary) string {
	label := bl.CostCodeID
	if bl.CostTypeID != "" {
		if t, ok := dict.CostTypes[bl.CostTypeID]; ok {
			label += "." + t.Code
		} else {
			label += "." + bl.CostTypeID
		}
	}
	if bl.SubJobID != "" {
		label += " / " + bl.SubJobID
	}
	return label
}
