package rollup

import (
	"math/rand"
	"testing"

	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"
)

func m(s string) money.Money { return money.MustParse(s) }

func mp(s string) *money.Money {
	v := m(s)
	return &v
}

func findLine(t *testing.T, lines []model.DerivedBudgetLine, code string) model.DerivedBudgetLine {
	t.Helper()
	for _, l := range lines {
		if l.CostCodeID == code {
			return l
		}
	}
	t.Fatalf("no derived line for cost code %s", code)
	return model.DerivedBudgetLine{}
}

func expectMoney(t *testing.T, field string, got money.Money, want string) {
	t.Helper()
	if !got.Equal(m(want)) {
		t.Errorf("%s = %s, want %s", field, got, want)
	}
}

func scenario(jtd string) Input {
	return Input{
		Dictionary: model.NewDictionary([]model.CostCode{{ID: "01-100", Title: "General Conditions"}}, nil, nil),
		Lines:      []model.BudgetLine{{ID: "bl1", CostCodeID: "01-100", OriginalAmount: m("10000")}},
		DirectCosts: []model.DirectCost{
			{CostCodeID: "01-100", CostType: model.CostInvoice, Amount: m(jtd), Approved: true},
		},
	}
}

func TestAggregate_UnderBudget(t *testing.T) {
	lines := Aggregate(scenario("4000"), Primary{})
	if len(lines) != 1 {
		t.Fatalf("len(lines) = %d, want 1", len(lines))
	}
	l := lines[0]
	expectMoney(t, "RevisedBudget", l.RevisedBudget, "10000")
	expectMoney(t, "JobToDateCost", l.JobToDateCost, "4000")
	expectMoney(t, "ForecastToComplete", l.ForecastToComplete, "6000")
	expectMoney(t, "EstimatedCostAtCompletion", l.EstimatedCostAtCompletion, "10000")
	expectMoney(t, "ProjectedOverUnder", l.ProjectedOverUnder, "0")
	if l.CostCodeTitle != "General Conditions" || l.Description != "General Conditions" {
		t.Errorf("title/description = %q/%q", l.CostCodeTitle, l.Description)
	}
}

func TestAggregate_OverBudget(t *testing.T) {
	l := Aggregate(scenario("12000"), Primary{})[0]
	expectMoney(t, "ForecastToComplete", l.ForecastToComplete, "0")
	expectMoney(t, "EstimatedCostAtCompletion", l.EstimatedCostAtCompletion, "12000")
	expectMoney(t, "ProjectedOverUnder", l.ProjectedOverUnder, "-2000")
}

func TestAggregate_OrphanSpendSynthesizesLine(t *testing.T) {
	in := scenario("4000")
	in.DirectCosts = append(in.DirectCosts, model.DirectCost{
		CostCodeID: "09-900", CostType: model.CostExpense, Amount: m("250"), Approved: true,
	})

	lines := Aggregate(in, Primary{})
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	orphan := findLine(t, lines, "09-900")
	if !orphan.Synthesized {
		t.Error("orphan line not marked synthesized")
	}
	expectMoney(t, "OriginalAmount", orphan.OriginalAmount, "0")
	expectMoney(t, "JobToDateCost", orphan.JobToDateCost, "250")
	expectMoney(t, "ProjectedOverUnder", orphan.ProjectedOverUnder, "-250")
	if orphan.CostCodeTitle != "" {
		t.Errorf("orphan title = %q, want empty", orphan.CostCodeTitle)
	}
}

func TestAggregate_LedgerClassification(t *testing.T) {
	in := Input{
		Lines: []model.BudgetLine{
			{CostCodeID: "A", OriginalAmount: m("1000")},
			{CostCodeID: "B", OriginalAmount: m("500")},
		},
		Modifications: []model.BudgetModification{
			{FromCostCode: "A", ToCostCode: "B", Amount: m("100"), Status: model.ModificationApproved},
			{FromCostCode: "A", ToCostCode: "B", Amount: m("999"), Status: model.ModificationPending},
			{FromCostCode: "B", ToCostCode: "A", Amount: m("999"), Status: model.ModificationVoid},
		},
		ChangeOrders: []model.ChangeOrder{
			{CostCodeID: "A", Amount: m("50"), Status: model.ChangeOrderApproved},
			{CostCodeID: "A", Amount: m("25"), Status: model.ChangeOrderExecuted},
			{CostCodeID: "A", Amount: m("10"), Status: "pending - in review"},
			{CostCodeID: "A", Amount: m("999"), Status: model.ChangeOrderRejected},
		},
		DirectCosts: []model.DirectCost{
			{CostCodeID: "A", CostType: "", Amount: m("100"), Approved: true},
			{CostCodeID: "A", CostType: model.CostSubcontractorInvoice, Amount: m("40"), Approved: true},
			{CostCodeID: "A", CostType: model.CostPayroll, Amount: m("999"), Approved: false},
			{CostCodeID: "A", CostType: "Retainage", Amount: m("999"), Approved: true},
		},
		Commitments: []model.Commitment{
			{Kind: model.Subcontract, CostCodeID: "A", OriginalAmount: m("300"), ApprovedChangeOrders: m("20"), Status: model.CommitmentExecuted},
			{Kind: model.Subcontract, CostCodeID: "A", OriginalAmount: m("70"), Status: model.CommitmentOutForSignature},
			{Kind: model.PurchaseOrder, CostCodeID: "A", RevisedAmount: mp("5"), Status: model.CommitmentSubmitted},
			{Kind: model.PurchaseOrder, CostCodeID: "A", OriginalAmount: m("999"), Status: model.CommitmentVoid},
			{Kind: model.PurchaseOrder, CostCodeID: "A", OriginalAmount: m("999"), Status: model.CommitmentDraft},
			{Kind: model.PurchaseOrder, OriginalAmount: m("999"), Status: model.CommitmentApproved},
		},
	}

	lines := Aggregate(in, Primary{})
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	a := findLine(t, lines, "A")
	expectMoney(t, "A.BudgetModTotal", a.BudgetModTotal, "-100")
	expectMoney(t, "A.ApprovedCOTotal", a.ApprovedCOTotal, "75")
	expectMoney(t, "A.RevisedBudget", a.RevisedBudget, "975")
	expectMoney(t, "A.JobToDateCost", a.JobToDateCost, "140")
	expectMoney(t, "A.DirectCosts", a.DirectCosts, "100")
	expectMoney(t, "A.CommittedCosts", a.CommittedCosts, "1394")
	expectMoney(t, "A.PendingCostChanges", a.PendingCostChanges, "85")
	expectMoney(t, "A.ProjectedBudget", a.ProjectedBudget, "975")
	expectMoney(t, "A.ProjectedCosts", a.ProjectedCosts, "185")

	b := findLine(t, lines, "B")
	expectMoney(t, "B.BudgetModTotal", b.BudgetModTotal, "100")
	expectMoney(t, "B.RevisedBudget", b.RevisedBudget, "600")
}

func TestAggregate_CommitmentStatuses(t *testing.T) {
	tests := []struct {
		kind          model.CommitmentKind
		status        model.CommitmentStatus
		wantCommitted string
		wantPending   string
	}{
		{model.Subcontract, model.CommitmentDraft, "5000", "0"},
		{model.Subcontract, model.CommitmentOutForSignature, "5000", "5000"},
		{model.Subcontract, model.CommitmentApproved, "5000", "0"},
		{model.Subcontract, model.CommitmentExecuted, "5000", "0"},
		{model.Subcontract, model.CommitmentComplete, "5000", "0"},
		{model.Subcontract, model.CommitmentTerminated, "5000", "0"},
		{model.Subcontract, model.CommitmentVoid, "0", "0"},
		{model.Subcontract, model.CommitmentRejected, "0", "0"},
		{model.PurchaseOrder, model.CommitmentDraft, "5000", "0"},
		{model.PurchaseOrder, model.CommitmentProcessing, "5000", "5000"},
		{model.PurchaseOrder, model.CommitmentSubmitted, "5000", "5000"},
		{model.PurchaseOrder, model.CommitmentPartiallyReceived, "5000", "5000"},
		{model.PurchaseOrder, model.CommitmentReceived, "5000", "5000"},
		{model.PurchaseOrder, model.CommitmentApproved, "5000", "0"},
		{model.PurchaseOrder, model.CommitmentComplete, "5000", "0"},
		{model.PurchaseOrder, model.CommitmentTerminated, "5000", "0"},
		{model.PurchaseOrder, model.CommitmentVoid, "0", "0"},
		{model.PurchaseOrder, model.CommitmentRejected, "0", "0"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+string(tt.status), func(t *testing.T) {
			in := Input{
				Lines: []model.BudgetLine{{CostCodeID: "A", OriginalAmount: m("10000")}},
				Commitments: []model.Commitment{
					{Kind: tt.kind, CostCodeID: "A", OriginalAmount: m("5000"), Status: tt.status},
				},
			}
			l := findLine(t, Aggregate(in, Primary{}), "A")
			expectMoney(t, "CommittedCosts", l.CommittedCosts, tt.wantCommitted)
			expectMoney(t, "PendingCostChanges", l.PendingCostChanges, tt.wantPending)
		})
	}
}

func TestAggregate_RecordedZeroRevised(t *testing.T) {
	in := Input{
		Lines: []model.BudgetLine{{CostCodeID: "A", OriginalAmount: m("1000")}},
		Commitments: []model.Commitment{
			{Kind: model.Subcontract, CostCodeID: "A", OriginalAmount: m("400"), RevisedAmount: mp("0"), Status: model.CommitmentApproved},
			{Kind: model.Subcontract, CostCodeID: "A", OriginalAmount: m("250"), Status: model.CommitmentApproved},
		},
	}
	l := findLine(t, Aggregate(in, Primary{}), "A")
	expectMoney(t, "CommittedCosts", l.CommittedCosts, "250")
}

func TestAggregate_PendingModificationIsNeutral(t *testing.T) {
	base := Input{Lines: []model.BudgetLine{
		{CostCodeID: "A", OriginalAmount: m("1000")},
		{CostCodeID: "B", OriginalAmount: m("500")},
	}}
	with := base
	with.Modifications = []model.BudgetModification{
		{FromCostCode: "A", ToCostCode: "B", Amount: m("300"), Status: model.ModificationPending},
	}

	before := Aggregate(base, Primary{})
	after := Aggregate(with, Primary{})
	for i := range before {
		if !before[i].RevisedBudget.Equal(after[i].RevisedBudget) || !after[i].BudgetModTotal.IsZero() {
			t.Errorf("line %s changed by pending modification: %s -> %s",
				before[i].CostCodeID, before[i].RevisedBudget, after[i].RevisedBudget)
		}
	}
}

func TestAggregate_OrderAndOrphanReferences(t *testing.T) {
	in := Input{
		Dictionary: model.NewDictionary(
			[]model.CostCode{{ID: "A", Title: "Alpha"}},
			[]model.CostType{{ID: "L", Code: "L"}},
			nil,
		),
		Lines: []model.BudgetLine{
			{ID: "3", CostCodeID: "B"},
			{ID: "2", CostCodeID: "A", CostTypeID: "L"},
			{ID: "1", CostCodeID: "A"},
			{ID: "4", CostCodeID: "A", CostTypeID: "L", SubJobID: "gone"},
		},
	}
	lines := Aggregate(in, Primary{})
	var ids []string
	for _, l := range lines {
		ids = append(ids, l.BudgetLineID)
	}
	want := []string{"1", "2", "4", "3"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
	if lines[2].SubJobName != "" || lines[2].CostTypeCode != "L" {
		t.Errorf("orphan sub-job line = %+v", lines[2])
	}
	if lines[3].CostCodeTitle != "" {
		t.Errorf("unknown cost code title = %q, want empty", lines[3].CostCodeTitle)
	}
}

func TestAggregate_AttributionStrategies(t *testing.T) {
	in := Input{
		Lines: []model.BudgetLine{
			{CostCodeID: "A", CostTypeID: "L", OriginalAmount: m("300")},
			{CostCodeID: "A", CostTypeID: "M", OriginalAmount: m("600")},
			{CostCodeID: "A", OriginalAmount: m("100")},
		},
		ChangeOrders: []model.ChangeOrder{
			{CostCodeID: "A", Amount: m("100.01"), Status: model.ChangeOrderApproved},
		},
	}

	primary := Aggregate(in, Primary{})
	expectMoney(t, "primary[0]", primary[0].ApprovedCOTotal, "100.01")
	expectMoney(t, "primary[1]", primary[1].ApprovedCOTotal, "0")
	expectMoney(t, "primary[2]", primary[2].ApprovedCOTotal, "0")

	prop := Aggregate(in, Proportional{})
	// key order: A/"" (100), A/L (300), A/M (600)
	expectMoney(t, "prop[1]", prop[1].ApprovedCOTotal, "30.00")
	expectMoney(t, "prop[2]", prop[2].ApprovedCOTotal, "60.00")
	expectMoney(t, "prop[0]", prop[0].ApprovedCOTotal, "10.01")
	expectMoney(t, "prop total", Totals(prop).ApprovedCOTotal, "100.01")
}

func TestProportional_ZeroWeightsFallBack(t *testing.T) {
	shares := Proportional{}.Split(m("7"), []money.Money{money.Zero(), money.Zero()})
	expectMoney(t, "shares[0]", shares[0], "7")
	expectMoney(t, "shares[1]", shares[1], "0")
}

func TestParseAttribution(t *testing.T) {
	for name, want := range map[string]string{"": "primary", "primary": "primary", "proportional": "proportional"} {
		a, err := ParseAttribution(name)
		if err != nil {
			t.Fatalf("ParseAttribution(%q): %v", name, err)
		}
		if a.Name() != want {
			t.Errorf("ParseAttribution(%q).Name() = %q, want %q", name, a.Name(), want)
		}
	}
	if _, err := ParseAttribution("weighted"); err == nil {
		t.Error("ParseAttribution(weighted) returned nil error")
	}
}

func TestTotals_FieldwiseSum(t *testing.T) {
	lines := Aggregate(Input{
		Lines: []model.BudgetLine{
			{CostCodeID: "A", OriginalAmount: m("100")},
			{CostCodeID: "B", OriginalAmount: m("50")},
		},
		DirectCosts: []model.DirectCost{
			{CostCodeID: "A", Amount: m("150"), Approved: true},
			{CostCodeID: "B", Amount: m("10"), Approved: true},
		},
	}, Primary{})
	tot := Totals(lines)
	expectMoney(t, "OriginalAmount", tot.OriginalAmount, "150")
	expectMoney(t, "JobToDateCost", tot.JobToDateCost, "160")
	expectMoney(t, "ForecastToComplete", tot.ForecastToComplete, "40")
	expectMoney(t, "EstimatedCostAtCompletion", tot.EstimatedCostAtCompletion, "200")
	expectMoney(t, "ProjectedOverUnder", tot.ProjectedOverUnder, "-50")
}

func randomCents(r *rand.Rand, limit int64) money.Money {
	return money.FromCents(r.Int63n(2*limit) - limit)
}

func randomInput(r *rand.Rand) Input {
	codes := []string{"01-100", "02-200", "03-300", "04-400", "05-500"}
	types := []string{"", "L", "M"}
	code := func() string { return codes[r.Intn(len(codes))] }

	var in Input
	used := map[model.LineKey]bool{}
	for range r.Intn(8) {
		k := model.LineKey{CostCodeID: code(), CostTypeID: types[r.Intn(len(types))]}
		if used[k] {
			continue
		}
		used[k] = true
		in.Lines = append(in.Lines, model.BudgetLine{
			CostCodeID: k.CostCodeID, CostTypeID: k.CostTypeID, OriginalAmount: randomCents(r, 5_000_000),
		})
	}
	statuses := []model.ModificationStatus{model.ModificationDraft, model.ModificationPending, model.ModificationApproved, model.ModificationVoid}
	for range r.Intn(5) {
		in.Modifications = append(in.Modifications, model.BudgetModification{
			FromCostCode: code(), ToCostCode: code(),
			Amount: money.FromCents(r.Int63n(1_000_000)), Status: statuses[r.Intn(len(statuses))],
		})
	}
	coStatuses := []model.ChangeOrderStatus{model.ChangeOrderApproved, model.ChangeOrderPending, model.ChangeOrderVoid, model.ChangeOrderExecuted}
	for range r.Intn(5) {
		in.ChangeOrders = append(in.ChangeOrders, model.ChangeOrder{
			CostCodeID: code(), Amount: randomCents(r, 1_000_000), Status: coStatuses[r.Intn(len(coStatuses))],
		})
	}
	costTypes := []string{"", model.CostInvoice, model.CostExpense, model.CostPayroll, model.CostSubcontractorInvoice, "Other"}
	for range r.Intn(6) {
		in.DirectCosts = append(in.DirectCosts, model.DirectCost{
			CostCodeID: code(), CostType: costTypes[r.Intn(len(costTypes))],
			Amount: money.FromCents(r.Int63n(8_000_000)), Approved: r.Intn(4) > 0,
		})
	}
	cStatuses := []model.CommitmentStatus{model.CommitmentApproved, model.CommitmentDraft, model.CommitmentOutForSignature, model.CommitmentProcessing, model.CommitmentVoid, model.CommitmentTerminated}
	for range r.Intn(4) {
		kind := model.Subcontract
		if r.Intn(2) == 0 {
			kind = model.PurchaseOrder
		}
		in.Commitments = append(in.Commitments, model.Commitment{
			Kind: kind, CostCodeID: code(), OriginalAmount: money.FromCents(r.Int63n(3_000_000)),
			Status: cStatuses[r.Intn(len(cStatuses))],
		})
	}
	return in
}

func TestAggregate_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	strategies := []Attribution{Primary{}, Proportional{}}

	for i := range 2000 {
		in := randomInput(r)
		attr := strategies[i%len(strategies)]
		lines := Aggregate(in, attr)

		rawOriginal := money.Zero()
		for _, bl := range in.Lines {
			rawOriginal = rawOriginal.Add(bl.OriginalAmount)
		}
		rawMods := money.Zero()
		for _, mod := range in.Modifications {
			if mod.Status == model.ModificationApproved {
				rawMods = rawMods.Add(mod.Amount).Sub(mod.Amount)
			}
		}
		rawCOs := money.Zero()
		for _, co := range in.ChangeOrders {
			if co.Approved() {
				rawCOs = rawCOs.Add(co.Amount)
			}
		}
		rawCommitted := money.Zero()
		for _, c := range in.Commitments {
			if c.Status != model.CommitmentVoid && c.Status != model.CommitmentRejected {
				rawCommitted = rawCommitted.Add(c.Revised())
			}
		}

		for _, l := range lines {
			want := l.OriginalAmount.Add(l.BudgetModTotal).Add(l.ApprovedCOTotal)
			if !l.RevisedBudget.Equal(want) {
				t.Fatalf("case %d (%s): revised %s != %s", i, attr.Name(), l.RevisedBudget, want)
			}
			if l.ForecastToComplete.IsNegative() {
				t.Fatalf("case %d (%s): negative forecast %s", i, attr.Name(), l.ForecastToComplete)
			}
			if !l.EstimatedCostAtCompletion.Equal(l.JobToDateCost.Add(l.ForecastToComplete)) {
				t.Fatalf("case %d: EAC identity broken", i)
			}
			if l.JobToDateCost.LessThan(l.RevisedBudget) || l.JobToDateCost.Equal(l.RevisedBudget) {
				if !l.ProjectedOverUnder.IsZero() {
					t.Fatalf("case %d: over/under %s with jtd <= revised", i, l.ProjectedOverUnder)
				}
			} else if !l.ProjectedOverUnder.IsNegative() {
				t.Fatalf("case %d: over/under %s with jtd > revised", i, l.ProjectedOverUnder)
			}
		}

		tot := Totals(lines)
		if !tot.OriginalAmount.Equal(rawOriginal) {
			t.Fatalf("case %d: original total %s != raw %s", i, tot.OriginalAmount, rawOriginal)
		}
		if !tot.BudgetModTotal.Equal(rawMods) {
			t.Fatalf("case %d: modifications total %s, want %s", i, tot.BudgetModTotal, rawMods)
		}
		if !tot.ApprovedCOTotal.Equal(rawCOs) {
			t.Fatalf("case %d: change order total %s != raw %s", i, tot.ApprovedCOTotal, rawCOs)
		}
		if !tot.CommittedCosts.Equal(rawCommitted) {
			t.Fatalf("case %d: committed total %s != raw %s", i, tot.CommittedCosts, rawCommitted)
		}
	}
}

func TestAggregate_Deterministic(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for range 200 {
		in := randomInput(r)
		a := Totals(Aggregate(in, Proportional{}))
		b := Totals(Aggregate(in, Proportional{}))
		if !a.RevisedBudget.Equal(b.RevisedBudget) || !a.CommittedCosts.Equal(b.CommittedCosts) {
			t.Fatal("repeated aggregation differs")
		}
	}
}
