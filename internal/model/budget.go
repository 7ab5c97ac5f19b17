// Package model defines domain types for budget lines, the source ledgers,
// the derived rollup view and the budget lock.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/costroll/internal/money"
)

// LineKey identifies a budget line within a project. Empty cost type or
// sub-job means "none"; two empty parts compare equal.
type LineKey struct {
	CostCodeID string `json:"cost_code_id"`
	CostTypeID string `json:"cost_type_id,omitempty"`
	SubJobID   string `json:"sub_job_id,omitempty"`
}

// Less orders keys by cost code, then cost type, then sub-job, with empty
// parts first.
func (k LineKey) Less(o LineKey) bool {
	if k.CostCodeID != o.CostCodeID {
		return k.CostCodeID < o.CostCodeID
	}
	if k.CostTypeID != o.CostTypeID {
		return k.CostTypeID < o.CostTypeID
	}
	return k.SubJobID < o.SubJobID
}

// BudgetLine is one original-budget row.
type BudgetLine struct {
	ID             string           `json:"id"`
	ProjectID      string           `json:"project_id"`
	CostCodeID     string           `json:"cost_code_id"`
	CostTypeID     string           `json:"cost_type_id,omitempty"`
	SubJobID       string           `json:"sub_job_id,omitempty"`
	Description    string           `json:"description,omitempty"`
	Quantity       *decimal.Decimal `json:"quantity,omitempty"`
	UnitOfMeasure  string           `json:"unit_of_measure,omitempty"`
	UnitCost       *money.Money     `json:"unit_cost,omitempty"`
	OriginalAmount money.Money      `json:"original_amount"`
	CreatedBy      string           `json:"created_by,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Key returns the line's uniqueness key.
func (b BudgetLine) Key() LineKey {
	return LineKey{CostCodeID: b.CostCodeID, CostTypeID: b.CostTypeID, SubJobID: b.SubJobID}
}

// LineRequest asks the merge service to add budget to a key.
// Amount may be omitted when Quantity and UnitCost are both given.
type LineRequest struct {
	CostCodeID    string           `json:"cost_code_id"`
	CostTypeID    string           `json:"cost_type_id,omitempty"`
	SubJobID      string           `json:"sub_job_id,omitempty"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	UnitOfMeasure string           `json:"unit_of_measure,omitempty"`
	UnitCost      *money.Money     `json:"unit_cost,omitempty"`
	Amount        *money.Money     `json:"amount,omitempty"`
	Description   string           `json:"description,omitempty"`
}

// Key returns the budget line key the request targets.
func (r LineRequest) Key() LineKey {
	return LineKey{CostCodeID: r.CostCodeID, CostTypeID: r.CostTypeID, SubJobID: r.SubJobID}
}

// MergeResult is returned by a successful merge batch.
type MergeResult struct {
	IDs           []string    `json:"ids"`
	BatchTotal    money.Money `json:"batch_total"`
	CurrentBudget money.Money `json:"current_budget"`
}

// Project carries the denormalized budget cache. CurrentBudget is derived
// from budget lines and is never the source of truth.
type Project struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	CurrentBudget money.Money `json:"current_budget"`
}

// ImportResult reports a budget import. Rows are imported all or nothing.
type ImportResult struct {
	TotalRows int         `json:"total_rows"`
	Imported  int         `json:"imported"`
	Skipped   int         `json:"skipped"`
	Warnings  []string    `json:"warnings,omitempty"`
	Merge     MergeResult `json:"merge"`
}
