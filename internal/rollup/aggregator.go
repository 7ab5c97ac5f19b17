// Package rollup derives the per-line financial view of a project from its
// budget lines and the independent cost ledgers.
package rollup

import (
	"sort"

	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"
)

// Input is everything one rollup reads.
type Input struct {
	Dictionary    model.Dictionary
	Lines         []model.BudgetLine
	Modifications []model.BudgetModification
	ChangeOrders  []model.ChangeOrder
	DirectCosts   []model.DirectCost
	Commitments   []model.Commitment
}

// codeTotals accumulates the cost-code-keyed ledger contributions.
type codeTotals struct {
	mods      money.Money
	cos       money.Money
	jtd       money.Money
	direct    money.Money
	committed money.Money
	pending   money.Money
}

// Aggregate computes derived budget lines. It is pure: the same input
// always yields the same output. Lines are ordered by cost code, cost type
// and sub-job with empty parts first. Cost codes that receive ledger
// contributions but have no budget line get a synthesized line with a zero
// original amount.
func Aggregate(in Input, attr Attribution) []model.DerivedBudgetLine {
	if attr == nil {
		attr = Primary{}
	}

	totals := accumulate(in)

	lines := make([]model.DerivedBudgetLine, 0, len(in.Lines))
	seeded := make(map[string]bool, len(in.Lines))
	for _, bl := range in.Lines {
		lines = append(lines, model.DerivedBudgetLine{
			BudgetLineID:   bl.ID,
			CostCodeID:     bl.CostCodeID,
			CostTypeID:     bl.CostTypeID,
			SubJobID:       bl.SubJobID,
			Description:    bl.Description,
			OriginalAmount: bl.OriginalAmount,
		})
		seeded[bl.CostCodeID] = true
	}
	for code := range totals {
		if !seeded[code] {
			lines = append(lines, model.DerivedBudgetLine{CostCodeID: code, Synthesized: true})
		}
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Key().Less(lines[j].Key()) })

	byCode := make(map[string][]int)
	for i, l := range lines {
		byCode[l.CostCodeID] = append(byCode[l.CostCodeID], i)
	}

	for code, idx := range byCode {
		t, ok := totals[code]
		if !ok {
			continue
		}
		weights := make([]money.Money, len(idx))
		for k, i := range idx {
			weights[k] = lines[i].OriginalAmount
		}
		spread := func(amount money.Money, set func(*model.DerivedBudgetLine, money.Money)) {
			if amount.IsZero() {
				return
			}
			for k, share := range attr.Split(amount, weights) {
				set(&lines[idx[k]], share)
			}
		}
		spread(t.mods, func(l *model.DerivedBudgetLine, m money.Money) { l.BudgetModTotal = m })
		spread(t.cos, func(l *model.DerivedBudgetLine, m money.Money) { l.ApprovedCOTotal = m })
		spread(t.jtd, func(l *model.DerivedBudgetLine, m money.Money) { l.JobToDateCost = m })
		spread(t.direct, func(l *model.DerivedBudgetLine, m money.Money) { l.DirectCosts = m })
		spread(t.committed, func(l *model.DerivedBudgetLine, m money.Money) { l.CommittedCosts = m })
		spread(t.pending, func(l *model.DerivedBudgetLine, m money.Money) { l.PendingCostChanges = m })
	}

	for i := range lines {
		describe(&lines[i], in.Dictionary)
		Forecast(&lines[i])
	}
	return lines
}

func accumulate(in Input) map[string]*codeTotals {
	totals := make(map[string]*codeTotals)
	at := func(code string) *codeTotals {
		t, ok := totals[code]
		if !ok {
			t = &codeTotals{}
			totals[code] = t
		}
		return t
	}

	for _, m := range in.Modifications {
		if m.Status != model.ModificationApproved {
			continue
		}
		from := at(m.FromCostCode)
		from.mods = from.mods.Sub(m.Amount)
		to := at(m.ToCostCode)
		to.mods = to.mods.Add(m.Amount)
	}

	for _, co := range in.ChangeOrders {
		switch {
		case co.Approved():
			t := at(co.CostCodeID)
			t.cos = t.cos.Add(co.Amount)
		case co.Pending():
			t := at(co.CostCodeID)
			t.pending = t.pending.Add(co.Amount)
		}
	}

	for _, d := range in.DirectCosts {
		if !d.Approved || !d.CountsToJobToDate() {
			continue
		}
		t := at(d.CostCodeID)
		t.jtd = t.jtd.Add(d.Amount)
		if d.CountsToDirectCosts() {
			t.direct = t.direct.Add(d.Amount)
		}
	}

	for _, c := range in.Commitments {
		if c.CostCodeID == "" {
			continue
		}
		if c.Committed() {
			t := at(c.CostCodeID)
			t.committed = t.committed.Add(c.Revised())
		}
		if c.Pending() {
			t := at(c.CostCodeID)
			t.pending = t.pending.Add(c.Revised())
		}
	}
	return totals
}

// describe fills display fields from the dictionary. References missing
// from the dictionary leave the fields empty.
func describe(l *model.DerivedBudgetLine, dict model.Dictionary) {
	if c, ok := dict.CostCodes[l.CostCodeID]; ok {
		l.CostCodeTitle = c.Title
		l.DivisionID = c.DivisionID
	}
	if t, ok := dict.CostTypes[l.CostTypeID]; ok {
		l.CostTypeCode = t.Code
	}
	if s, ok := dict.SubJobs[l.SubJobID]; ok {
		l.SubJobName = s.Name
	}
	if l.Description == "" {
		l.Description = l.CostCodeTitle
	}
}

// Forecast derives the revised budget and forecast fields from the
// accumulated ledger fields.
func Forecast(l *model.DerivedBudgetLine) {
	l.RevisedBudget = l.OriginalAmount.Add(l.BudgetModTotal).Add(l.ApprovedCOTotal)
	l.ProjectedBudget = l.RevisedBudget
	l.ProjectedCosts = l.DirectCosts.Add(l.PendingCostChanges)
	l.ForecastToComplete = money.Max(money.Zero(), l.RevisedBudget.Sub(l.JobToDateCost))
	l.EstimatedCostAtCompletion = l.JobToDateCost.Add(l.ForecastToComplete)
	l.ProjectedOverUnder = l.RevisedBudget.Sub(l.EstimatedCostAtCompletion)
}

// Totals sums every amount field of lines. It is the only place grand
// totals are computed.
func Totals(lines []model.DerivedBudgetLine) model.DerivedBudgetLine {
	var t model.DerivedBudgetLine
	for _, l := range lines {
		t.OriginalAmount = t.OriginalAmount.Add(l.OriginalAmount)
		t.BudgetModTotal = t.BudgetModTotal.Add(l.BudgetModTotal)
		t.ApprovedCOTotal = t.ApprovedCOTotal.Add(l.ApprovedCOTotal)
		t.RevisedBudget = t.RevisedBudget.Add(l.RevisedBudget)
		t.JobToDateCost = t.JobToDateCost.Add(l.JobToDateCost)
		t.DirectCosts = t.DirectCosts.Add(l.DirectCosts)
		t.CommittedCosts = t.CommittedCosts.Add(l.CommittedCosts)
		t.PendingCostChanges = t.PendingCostChanges.Add(l.PendingCostChanges)
		t.ProjectedBudget = t.ProjectedBudget.Add(l.ProjectedBudget)
		t.ProjectedCosts = t.ProjectedCosts.Add(l.ProjectedCosts)
		t.ForecastToComplete = t.ForecastToComplete.Add(l.ForecastToComplete)
		t.EstimatedCostAtCompletion = t.EstimatedCostAtCompletion.Add(l.EstimatedCostAtCompletion)
		t.ProjectedOverUnder = t.ProjectedOverUnder.Add(l.ProjectedOverUnder)
	}
	t.Description = "Grand Total"
	return t
}
