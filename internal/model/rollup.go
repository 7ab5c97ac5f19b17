package model

import (
	"time"

	"github.com/theirongolddev/costroll/internal/money"
)

// DerivedBudgetLine is one row of the rollup view. It is recomputed from
// the ledgers on every read and never persisted.
type DerivedBudgetLine struct {
	BudgetLineID  string `json:"budget_line_id,omitempty"`
	CostCodeID    string `json:"cost_code_id"`
	CostCodeTitle string `json:"cost_code_title"`
	DivisionID    string `json:"division_id,omitempty"`
	CostTypeID    string `json:"cost_type_id,omitempty"`
	CostTypeCode  string `json:"cost_type_code,omitempty"`
	SubJobID      string `json:"sub_job_id,omitempty"`
	SubJobName    string `json:"sub_job_name,omitempty"`
	Description   string `json:"description"`
	Synthesized   bool   `json:"synthesized,omitempty"`

	OriginalAmount            money.Money `json:"original_amount"`
	BudgetModTotal            money.Money `json:"budget_mod_total"`
	ApprovedCOTotal           money.Money `json:"approved_co_total"`
	RevisedBudget             money.Money `json:"revised_budget"`
	JobToDateCost             money.Money `json:"job_to_date_cost"`
	DirectCosts               money.Money `json:"direct_costs"`
	CommittedCosts            money.Money `json:"committed_costs"`
	PendingCostChanges        money.Money `json:"pending_cost_changes"`
	ProjectedBudget           money.Money `json:"projected_budget"`
	ProjectedCosts            money.Money `json:"projected_costs"`
	ForecastToComplete        money.Money `json:"forecast_to_complete"`
	EstimatedCostAtCompletion money.Money `json:"estimated_cost_at_completion"`
	ProjectedOverUnder        money.Money `json:"projected_over_under"`
}

// Key returns the line's budget key.
func (d DerivedBudgetLine) Key() LineKey {
	return LineKey{CostCodeID: d.CostCodeID, CostTypeID: d.CostTypeID, SubJobID: d.SubJobID}
}

// Rollup is the derived financial view of one project.
type Rollup struct {
	ProjectID   string              `json:"project_id"`
	Lines       []DerivedBudgetLine `json:"lines"`
	GrandTotals DerivedBudgetLine   `json:"grand_totals"`
	Degraded    []string            `json:"degraded,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// DetailType names the rollup column a source row feeds.
type DetailType string

const (
	DetailOriginalBudget     DetailType = "original_budget"
	DetailBudgetChanges      DetailType = "budget_changes"
	DetailApprovedCOs        DetailType = "approved_change_orders"
	DetailPendingCOs         DetailType = "pending_change_orders"
	DetailCommitments        DetailType = "commitments"
	DetailPendingCommitments DetailType = "pending_commitments"
	DetailDirectCosts        DetailType = "direct_costs"
	DetailJobToDateOnly      DetailType = "job_to_date"
)

// DetailItem is one ledger row behind a cost code's rollup figures.
// Amounts are signed as they enter the rollup: a modification moving
// budget away from the cost code is negative.
type DetailItem struct {
	SourceID    string      `json:"source_id"`
	Type        DetailType  `json:"type"`
	Item        string      `json:"item,omitempty"`
	Description string      `json:"description,omitempty"`
	Status      string      `json:"status,omitempty"`
	Amount      money.Money `json:"amount"`
}

// CostCodeDetails lists every ledger row that feeds one cost code, with a
// subtotal per detail type. Amounts are before attribution.
type CostCodeDetails struct {
	ProjectID     string                     `json:"project_id"`
	CostCodeID    string                     `json:"cost_code_id"`
	CostCodeTitle string                     `json:"cost_code_title,omitempty"`
	Items         []DetailItem               `json:"items"`
	Subtotals     map[DetailType]money.Money `json:"subtotals"`
	Degraded      []string                   `json:"degraded,omitempty"`
	GeneratedAt   time.Time                  `json:"generated_at"`
}
