package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/theirongolddev/costroll/internal/model"
)

// RenderRollup renders the rollup as a table of the headline columns
// followed by a grand total row.
func RenderRollup(r model.Rollup, title string) string {
	t := Table{
		Title: title,
		Headers: []string{
			"Cost Code", "Description", "Type", "Original", "Revised",
			"JTD", "Committed", "Pending", "Forecast", "EAC", "Over/Under", "Spent",
		},
		LeftColumns: 3,
	}
	row := func(l model.DerivedBudgetLine, code string) []string {
		desc := l.Description
		if l.Synthesized {
			desc = "(unbudgeted) " + desc
		}
		return []string{
			code,
			truncate(desc, 32),
			OrDash(firstNonEmpty(l.CostTypeCode, l.CostTypeID)),
			FormatAmount(l.OriginalAmount),
			FormatAmount(l.RevisedBudget),
			FormatAmount(l.JobToDateCost),
			FormatAmount(l.CommittedCosts),
			FormatAmount(l.PendingCostChanges),
			FormatAmount(l.ForecastToComplete),
			FormatAmount(l.EstimatedCostAtCompletion),
			FormatAmount(l.ProjectedOverUnder),
			FormatPercent(l.JobToDateCost, l.RevisedBudget),
		}
	}
	for _, l := range r.Lines {
		t.Rows = append(t.Rows, row(l, l.CostCodeID))
	}
	t.Rows = append(t.Rows, []string{separatorRow})
	total := row(r.GrandTotals, "Total")
	total[1] = ""
	total[2] = ""
	t.Rows = append(t.Rows, total)

	var b strings.Builder
	b.WriteString(RenderTable(t))
	if len(r.Degraded) > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("  degraded: %s treated as empty", strings.Join(r.Degraded, ", "))))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderSummary renders the grand totals as a short key/value block.
func RenderSummary(r model.Rollup, currency string) string {
	g := r.GrandTotals
	over := FormatMoney(g.ProjectedOverUnder, currency)
	if g.ProjectedOverUnder.IsNegative() {
		over = errStyle.Render(over)
	} else {
		over = okStyle.Render(over)
	}

	var b strings.Builder
	kv := func(k, v string) {
		fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("%-22s", k)), v)
	}
	kv("Original budget", FormatMoney(g.OriginalAmount, currency))
	kv("Revised budget", FormatMoney(g.RevisedBudget, currency))
	kv("Job to date", FormatMoney(g.JobToDateCost, currency)+"  "+dimStyle.Render(FormatPercent(g.JobToDateCost, g.RevisedBudget)))
	kv("Committed", FormatMoney(g.CommittedCosts, currency))
	kv("Pending changes", FormatMoney(g.PendingCostChanges, currency))
	kv("Estimate at completion", FormatMoney(g.EstimatedCostAtCompletion, currency))
	kv("Projected over/under", over)
	return b.String()
}

// RenderLockState renders a project's lock state.
func RenderLockState(st model.BudgetLockState) string {
	status := "unlocked"
	if st.Locked {
		status = "locked"
	}
	t := Table{
		Headers: []string{"Project", "Status", "Locked By", "Locked At", "Unlocked By", "Unlocked At", "Version"},
		Rows: [][]string{{
			st.ProjectID,
			status,
			OrDash(st.LockedBy),
			FormatTime(st.LockedAt),
			OrDash(st.UnlockedBy),
			FormatTime(st.UnlockedAt),
			fmt.Sprintf("%d", st.Version),
		}},
		LeftColumns: 6,
	}
	return RenderTable(t)
}

// RenderLockHistory renders lock events, oldest first.
func RenderLockHistory(projectID string, events []model.LockEvent) string {
	t := Table{
		Title:       "Lock history: " + projectID,
		Headers:     []string{"Version", "Action", "Actor", "At"},
		LeftColumns: 4,
	}
	for _, ev := range events {
		at := ev.At
		t.Rows = append(t.Rows, []string{fmt.Sprintf("%d", ev.Version), string(ev.Action), ev.ActorID, FormatTime(&at)})
	}
	return RenderTable(t)
}

// RenderModifications renders budget modifications.
func RenderModifications(mods []model.BudgetModification, currency string) string {
	t := Table{
		Title:       "Budget modifications",
		Headers:     []string{"Number", "Status", "From", "To", "Title", "Amount"},
		LeftColumns: 5,
	}
	for _, m := range mods {
		t.Rows = append(t.Rows, []string{
			m.Number, string(m.Status), m.FromCostCode, m.ToCostCode, truncate(m.Title, 30), FormatMoney(m.Amount, currency),
		})
	}
	return RenderTable(t)
}

// RenderDetails renders the ledger rows behind one cost code with a
// subtotal per detail type.
func RenderDetails(d model.CostCodeDetails, currency string) string {
	t := Table{
		Title:       fmt.Sprintf("%s  %s", d.CostCodeID, d.CostCodeTitle),
		Headers:     []string{"Type", "Item", "Description", "Status", "Amount"},
		LeftColumns: 4,
	}
	for _, it := range d.Items {
		t.Rows = append(t.Rows, []string{
			string(it.Type), OrDash(it.Item), truncate(it.Description, 30), OrDash(it.Status), FormatMoney(it.Amount, currency),
		})
	}

	types := make([]string, 0, len(d.Subtotals))
	for typ := range d.Subtotals {
		types = append(types, string(typ))
	}
	sort.Strings(types)
	if len(types) > 0 {
		t.Rows = append(t.Rows, []string{separatorRow})
	}
	for _, typ := range types {
		t.Rows = append(t.Rows, []string{typ, "", "", "", FormatMoney(d.Subtotals[model.DetailType(typ)], currency)})
	}

	var b strings.Builder
	b.WriteString(RenderTable(t))
	if len(d.Items) == 0 {
		b.WriteString(mutedStyle.Render("  no ledger rows for this cost code"))
		b.WriteString("\n")
	}
	if len(d.Degraded) > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("  degraded: %s treated as empty", strings.Join(d.Degraded, ", "))))
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
