package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/theirongolddev/costroll/internal/money"
)

// ModificationStatus is the workflow state of a budget modification.
type ModificationStatus string

const (
	ModificationDraft    ModificationStatus = "draft"
	ModificationPending  ModificationStatus = "pending"
	ModificationApproved ModificationStatus = "approved"
	ModificationRejected ModificationStatus = "rejected"
	ModificationVoid     ModificationStatus = "void"
)

// ModificationAction moves a modification between statuses.
type ModificationAction string

const (
	ActionSubmit  ModificationAction = "submit"
	ActionApprove ModificationAction = "approve"
	ActionReject  ModificationAction = "reject"
	ActionRevise  ModificationAction = "revise"
	ActionVoid    ModificationAction = "void"
)

var modificationTransitions = map[ModificationAction]struct {
	from, to ModificationStatus
}{
	ActionSubmit:  {ModificationDraft, ModificationPending},
	ActionApprove: {ModificationPending, ModificationApproved},
	ActionReject:  {ModificationPending, ModificationRejected},
	ActionRevise:  {ModificationRejected, ModificationDraft},
	ActionVoid:    {ModificationApproved, ModificationVoid},
}

// Next returns the status reached by applying action to s.
func (s ModificationStatus) Next(action ModificationAction) (ModificationStatus, error) {
	t, ok := modificationTransitions[action]
	if !ok {
		return s, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
	if t.from != s {
		return s, fmt.Errorf("%w: cannot %s a %s modification", ErrInvalidTransition, action, s)
	}
	return t.to, nil
}

// BudgetModification transfers budget from one cost code to another.
// Only approved modifications affect the rollup.
type BudgetModification struct {
	ID           string             `json:"id"`
	ProjectID    string             `json:"project_id"`
	Number       string             `json:"number"`
	Title        string             `json:"title,omitempty"`
	FromCostCode string             `json:"from_cost_code"`
	ToCostCode   string             `json:"to_cost_code"`
	Amount       money.Money        `json:"amount"`
	Status       ModificationStatus `json:"status"`
	Date         time.Time          `json:"date"`
	CreatedBy    string             `json:"created_by,omitempty"`
}

// ChangeOrderStatus is the state of a change order.
type ChangeOrderStatus string

const (
	ChangeOrderDraft    ChangeOrderStatus = "draft"
	ChangeOrderPending  ChangeOrderStatus = "pending"
	ChangeOrderApproved ChangeOrderStatus = "approved"
	ChangeOrderExecuted ChangeOrderStatus = "executed"
	ChangeOrderRejected ChangeOrderStatus = "rejected"
	ChangeOrderVoid     ChangeOrderStatus = "void"
)

// ChangeOrder is one cost-code line of a change order.
type ChangeOrder struct {
	ID         string            `json:"id"`
	ProjectID  string            `json:"project_id"`
	Number     string            `json:"number,omitempty"`
	CostCodeID string            `json:"cost_code_id"`
	Amount     money.Money       `json:"amount"`
	Status     ChangeOrderStatus `json:"status"`
}

// Approved reports whether the change order revises the budget.
func (c ChangeOrder) Approved() bool {
	return c.Status == ChangeOrderApproved || c.Status == ChangeOrderExecuted
}

// Pending reports whether the change order is awaiting a decision.
// Workflow sub-states such as "pending - in review" count as pending.
func (c ChangeOrder) Pending() bool {
	return strings.HasPrefix(strings.ToLower(string(c.Status)), string(ChangeOrderPending))
}

// CommitmentKind distinguishes subcontracts from purchase orders.
type CommitmentKind string

const (
	Subcontract   CommitmentKind = "subcontract"
	PurchaseOrder CommitmentKind = "purchase_order"
)

// CommitmentStatus is the contract state of a commitment.
type CommitmentStatus string

const (
	CommitmentDraft             CommitmentStatus = "draft"
	CommitmentOutForSignature   CommitmentStatus = "out_for_signature"
	CommitmentProcessing        CommitmentStatus = "processing"
	CommitmentSubmitted         CommitmentStatus = "submitted"
	CommitmentPartiallyReceived CommitmentStatus = "partially_received"
	CommitmentReceived          CommitmentStatus = "received"
	CommitmentApproved          CommitmentStatus = "approved"
	CommitmentExecuted          CommitmentStatus = "executed"
	CommitmentComplete          CommitmentStatus = "complete"
	CommitmentVoid              CommitmentStatus = "void"
	CommitmentRejected          CommitmentStatus = "rejected"
	CommitmentTerminated        CommitmentStatus = "terminated"
)

// Valid reports whether s is a known change order status. Workflow
// sub-states of pending are accepted.
func (s ChangeOrderStatus) Valid() bool {
	switch s {
	case ChangeOrderDraft, ChangeOrderApproved, ChangeOrderExecuted, ChangeOrderRejected, ChangeOrderVoid:
		return true
	}
	return ChangeOrder{Status: s}.Pending()
}

// Valid reports whether k is a known commitment kind.
func (k CommitmentKind) Valid() bool {
	return k == Subcontract || k == PurchaseOrder
}

// Valid reports whether s is a known commitment status.
func (s CommitmentStatus) Valid() bool {
	switch s {
	case CommitmentDraft, CommitmentOutForSignature, CommitmentProcessing, CommitmentSubmitted,
		CommitmentPartiallyReceived, CommitmentReceived, CommitmentApproved, CommitmentExecuted,
		CommitmentComplete, CommitmentVoid, CommitmentRejected, CommitmentTerminated:
		return true
	}
	return false
}

// Commitment is contractually committed spend against a cost code.
// A nil RevisedAmount means no revised value was recorded.
type Commitment struct {
	ID                   string           `json:"id"`
	ProjectID            string           `json:"project_id"`
	Kind                 CommitmentKind   `json:"kind"`
	Number               string           `json:"number,omitempty"`
	CostCodeID           string           `json:"cost_code_id,omitempty"`
	OriginalAmount       money.Money      `json:"original_amount"`
	ApprovedChangeOrders money.Money      `json:"approved_change_orders"`
	RevisedAmount        *money.Money     `json:"revised_amount,omitempty"`
	InvoicedAmount       money.Money      `json:"invoiced_amount"`
	PaymentsMade         money.Money      `json:"payments_made"`
	RetentionHeld        money.Money      `json:"retention_held"`
	Status               CommitmentStatus `json:"status"`
}

// Pending reports whether the commitment is not yet in force but expected:
// subcontracts out for signature, purchase orders in procurement.
// Pending commitments are still committed.
func (c Commitment) Pending() bool {
	switch c.Kind {
	case Subcontract:
		return c.Status == CommitmentOutForSignature
	case PurchaseOrder:
		switch c.Status {
		case CommitmentProcessing, CommitmentSubmitted, CommitmentPartiallyReceived, CommitmentReceived:
			return true
		}
	}
	return false
}

// Committed reports whether the commitment counts as committed spend.
// Everything except voided and rejected commitments does.
func (c Commitment) Committed() bool {
	return c.Status != CommitmentVoid && c.Status != CommitmentRejected
}

// Revised returns the recorded revised contract value, or the original plus
// approved change orders when none was recorded. A recorded zero is kept.
func (c Commitment) Revised() money.Money {
	if c.RevisedAmount == nil {
		return c.OriginalAmount.Add(c.ApprovedChangeOrders)
	}
	return *c.RevisedAmount
}

// Direct cost types.
const (
	CostInvoice              = "Invoice"
	CostExpense              = "Expense"
	CostPayroll              = "Payroll"
	CostSubcontractorInvoice = "Subcontractor Invoice"
)

// DirectCost is one posted cost line.
type DirectCost struct {
	ID         string      `json:"id"`
	ProjectID  string      `json:"project_id"`
	CostCodeID string      `json:"cost_code_id"`
	CostType   string      `json:"cost_type"`
	Amount     money.Money `json:"amount"`
	Approved   bool        `json:"approved"`
	Date       time.Time   `json:"date"`
}

// Type returns the cost type, defaulting to Invoice when unset.
func (d DirectCost) Type() string {
	if strings.TrimSpace(d.CostType) == "" {
		return CostInvoice
	}
	return d.CostType
}

// CountsToJobToDate reports whether the cost is recognized in job-to-date cost.
func (d DirectCost) CountsToJobToDate() bool {
	switch d.Type() {
	case CostInvoice, CostExpense, CostPayroll, CostSubcontractorInvoice:
		return true
	}
	return false
}

// CountsToDirectCosts reports whether the cost is a direct cost.
// Subcontractor invoices are job-to-date but not direct.
func (d DirectCost) CountsToDirectCosts() bool {
	switch d.Type() {
	case CostInvoice, CostExpense, CostPayroll:
		return true
	}
	return false
}
