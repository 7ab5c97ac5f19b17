package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"
)

const modificationSelect = `SELECT id, project_id, number, title, from_cost_code, to_cost_code,
	amount_cents, status, date, created_by FROM budget_modifications`

// InsertModification stores a new modification, assigning its id and the
// next BM-nnnn number for the project when they are empty.
func (t *Tx) InsertModification(ctx context.Context, m model.BudgetModification) (model.BudgetModification, error) {
	if m.ID == "" {
		m.ID = t.s.newID()
	}
	if m.Number == "" {
		var n int
		if err := t.tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM budget_modifications WHERE project_id = ?", m.ProjectID).Scan(&n); err != nil {
			return m, fmt.Errorf("counting modifications: %w", err)
		}
		m.Number = fmt.Sprintf("BM-%04d", n+1)
	}
	if m.Date.IsZero() {
		m.Date = t.Now()
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO budget_modifications
		(id, project_id, number, title, from_cost_code, to_cost_code, amount_cents, status, date, created_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProjectID, m.Number, m.Title, m.FromCostCode, m.ToCostCode,
		m.Amount.Cents(), string(m.Status), formatTime(m.Date), m.CreatedBy, formatTime(t.Now()))
	if err != nil {
		return m, fmt.Errorf("inserting modification: %w", err)
	}
	return m, nil
}

// Modification returns one modification by id.
func (t *Tx) Modification(ctx context.Context, projectID, id string) (model.BudgetModification, error) {
	row := t.tx.QueryRowContext(ctx, modificationSelect+" WHERE project_id = ? AND id = ?", projectID, id)
	m, err := scanModification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return m, fmt.Errorf("%w: modification %s", model.ErrNotFound, id)
	}
	return m, err
}

// SetModificationStatus moves a modification from one status to another.
// It fails with model.ErrConcurrentModification if the stored status is no
// longer from.
func (t *Tx) SetModificationStatus(ctx context.Context, projectID, id string, from, to model.ModificationStatus) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE budget_modifications SET status = ?, updated_at = ?
		WHERE project_id = ? AND id = ? AND status = ?`,
		string(to), formatTime(t.Now()), projectID, id, string(from))
	if err != nil {
		return fmt.Errorf("updating modification status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: modification %s is no longer %s", model.ErrConcurrentModification, id, from)
	}
	return nil
}

// Modifications lists the project's modifications by number.
func (t *Tx) Modifications(ctx context.Context, projectID string) ([]model.BudgetModification, error) {
	return t.queryModifications(ctx, modificationSelect+" WHERE project_id = ? ORDER BY number", projectID)
}

// ApprovedModifications lists only approved modifications.
func (t *Tx) ApprovedModifications(ctx context.Context, projectID string) ([]model.BudgetModification, error) {
	return t.queryModifications(ctx, modificationSelect+" WHERE project_id = ? AND status = ? ORDER BY number",
		projectID, string(model.ModificationApproved))
}

func (t *Tx) queryModifications(ctx context.Context, query string, args ...any) ([]model.BudgetModification, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying modifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var mods []model.BudgetModification
	for rows.Next() {
		m, err := scanModification(rows)
		if err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanModification(sc scanner) (model.BudgetModification, error) {
	var (
		m      model.BudgetModification
		cents  int64
		status string
		date   string
	)
	err := sc.Scan(&m.ID, &m.ProjectID, &m.Number, &m.Title, &m.FromCostCode, &m.ToCostCode,
		&cents, &status, &date, &m.CreatedBy)
	if err != nil {
		return m, err
	}
	m.Amount = money.FromCents(cents)
	m.Status = model.ModificationStatus(status)
	m.Date = parseTime(date)
	return m, nil
}

// exactCents rejects amounts with sub-cent precision.
func exactCents(what string, amounts ...money.Money) error {
	for _, m := range amounts {
		if !m.Exact() {
			return fmt.Errorf("%w: %s %s has more than two decimals", model.ErrInvalidAmount, what, m.Decimal())
		}
	}
	return nil
}

func validChangeOrderStatus(status model.ChangeOrderStatus) (model.ChangeOrderStatus, error) {
	status = model.ChangeOrderStatus(strings.ToLower(strings.TrimSpace(string(status))))
	if !status.Valid() {
		return status, fmt.Errorf("%w: unknown change order status %q", model.ErrInvalidRequest, status)
	}
	return status, nil
}

func validCommitmentStatus(status model.CommitmentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown commitment status %q", model.ErrInvalidRequest, status)
	}
	return nil
}

// InsertChangeOrder stores a change order line.
func (t *Tx) InsertChangeOrder(ctx context.Context, co model.ChangeOrder) (model.ChangeOrder, error) {
	status, err := validChangeOrderStatus(co.Status)
	if err != nil {
		return co, err
	}
	if err := exactCents("change order amount", co.Amount); err != nil {
		return co, err
	}
	co.Status = status
	if co.ID == "" {
		co.ID = t.s.newID()
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO change_orders
		(id, project_id, number, cost_code_id, amount_cents, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		co.ID, co.ProjectID, co.Number, co.CostCodeID, co.Amount.Cents(),
		string(co.Status), formatTime(t.Now()))
	if err != nil {
		return co, fmt.Errorf("inserting change order: %w", err)
	}
	return co, nil
}

// SetChangeOrderStatus updates a change order's status.
func (t *Tx) SetChangeOrderStatus(ctx context.Context, projectID, id string, status model.ChangeOrderStatus) error {
	status, err := validChangeOrderStatus(status)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, "UPDATE change_orders SET status = ? WHERE project_id = ? AND id = ?",
		string(status), projectID, id)
	if err != nil {
		return fmt.Errorf("updating change order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: change order %s", model.ErrNotFound, id)
	}
	return nil
}

// ChangeOrders lists the project's change order lines.
func (t *Tx) ChangeOrders(ctx context.Context, projectID string) ([]model.ChangeOrder, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, project_id, number, cost_code_id, amount_cents, status
		FROM change_orders WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying change orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ChangeOrder
	for rows.Next() {
		var (
			co     model.ChangeOrder
			cents  int64
			status string
		)
		if err := rows.Scan(&co.ID, &co.ProjectID, &co.Number, &co.CostCodeID, &cents, &status); err != nil {
			return nil, err
		}
		co.Amount = money.FromCents(cents)
		co.Status = model.ChangeOrderStatus(status)
		out = append(out, co)
	}
	return out, rows.Err()
}

// InsertCommitment stores a subcontract or purchase order.
func (t *Tx) InsertCommitment(ctx context.Context, c model.Commitment) (model.Commitment, error) {
	if !c.Kind.Valid() {
		return c, fmt.Errorf("%w: unknown commitment kind %q", model.ErrInvalidRequest, c.Kind)
	}
	if err := validCommitmentStatus(c.Status); err != nil {
		return c, err
	}
	err := exactCents("commitment amount", c.OriginalAmount, c.ApprovedChangeOrders,
		c.InvoicedAmount, c.PaymentsMade, c.RetentionHeld)
	if err != nil {
		return c, err
	}
	var revised sql.NullInt64
	if c.RevisedAmount != nil {
		if err := exactCents("commitment revised amount", *c.RevisedAmount); err != nil {
			return c, err
		}
		revised = sql.NullInt64{Int64: c.RevisedAmount.Cents(), Valid: true}
	}
	if c.ID == "" {
		c.ID = t.s.newID()
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO commitments
		(id, project_id, kind, number, cost_code_id, original_cents, approved_co_cents, revised_cents,
		 invoiced_cents, payments_cents, retention_cents, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, string(c.Kind), c.Number, c.CostCodeID,
		c.OriginalAmount.Cents(), c.ApprovedChangeOrders.Cents(), revised,
		c.InvoicedAmount.Cents(), c.PaymentsMade.Cents(), c.RetentionHeld.Cents(),
		string(c.Status), formatTime(t.Now()))
	if err != nil {
		return c, fmt.Errorf("inserting commitment: %w", err)
	}
	return c, nil
}

// SetCommitmentStatus updates a commitment's contract status.
func (t *Tx) SetCommitmentStatus(ctx context.Context, projectID, id string, status model.CommitmentStatus) error {
	if err := validCommitmentStatus(status); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, "UPDATE commitments SET status = ? WHERE project_id = ? AND id = ?",
		string(status), projectID, id)
	if err != nil {
		return fmt.Errorf("updating commitment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: commitment %s", model.ErrNotFound, id)
	}
	return nil
}

// Commitments lists the project's subcontracts and purchase orders.
func (t *Tx) Commitments(ctx context.Context, projectID string) ([]model.Commitment, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, project_id, kind, number, cost_code_id,
		original_cents, approved_co_cents, revised_cents, invoiced_cents, payments_cents, retention_cents, status
		FROM commitments WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying commitments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Commitment
	for rows.Next() {
		var (
			c                                   model.Commitment
			kind, status                        string
			orig, cos, invoiced, paid, retained int64
			revised                             sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.ProjectID, &kind, &c.Number, &c.CostCodeID,
			&orig, &cos, &revised, &invoiced, &paid, &retained, &status); err != nil {
			return nil, err
		}
		c.Kind = model.CommitmentKind(kind)
		c.Status = model.CommitmentStatus(status)
		c.OriginalAmount = money.FromCents(orig)
		c.ApprovedChangeOrders = money.FromCents(cos)
		if revised.Valid {
			r := money.FromCents(revised.Int64)
			c.RevisedAmount = &r
		}
		c.InvoicedAmount = money.FromCents(invoiced)
		c.PaymentsMade = money.FromCents(paid)
		c.RetentionHeld = money.FromCents(retained)
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertDirectCost records a posted cost.
func (t *Tx) InsertDirectCost(ctx context.Context, d model.DirectCost) (model.DirectCost, error) {
	if err := exactCents("direct cost amount", d.Amount); err != nil {
		return d, err
	}
	if d.ID == "" {
		d.ID = t.s.newID()
	}
	if d.Date.IsZero() {
		d.Date = t.Now()
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO direct_costs
		(id, project_id, cost_code_id, cost_type, amount_cents, approved, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ProjectID, d.CostCodeID, d.CostType, d.Amount.Cents(), boolInt(d.Approved),
		formatTime(d.Date), formatTime(t.Now()))
	if err != nil {
		return d, fmt.Errorf("inserting direct cost: %w", err)
	}
	return d, nil
}

// DirectCosts lists the project's posted costs, oldest first.
func (t *Tx) DirectCosts(ctx context.Context, projectID string) ([]model.DirectCost, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, project_id, cost_code_id, cost_type, amount_cents, approved, date
		FROM direct_costs WHERE project_id = ? ORDER BY date, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying direct costs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.DirectCost
	for rows.Next() {
		var (
			d        model.DirectCost
			cents    int64
			approved int
			date     string
		)
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.CostCodeID, &d.CostType, &cents, &approved, &date); err != nil {
			return nil, err
		}
		d.Amount = money.FromCents(cents)
		d.Approved = approved != 0
		d.Date = parseTime(date)
		out = append(out, d)
	}
	return out, rows.Err()
}
