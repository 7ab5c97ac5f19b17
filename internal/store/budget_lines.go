package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"
)

// AddToBudgetLine adds amount to the live line at the request's key,
// creating the line when none exists. A soft-deleted line at the same key
// is revived with amount as its original. Descriptive fields are only
// overwritten when the request carries them. The increment happens in the
// database so concurrent adds compound. It returns the line id.
func (t *Tx) AddToBudgetLine(ctx context.Context, projectID, actorID string, req model.LineRequest, amount money.Money) (string, error) {
	now := formatTime(t.Now())

	var qty, unitCost any
	if req.Quantity != nil {
		qty = req.Quantity.String()
	}
	if req.UnitCost != nil {
		unitCost = req.UnitCost.Cents()
	}

	var id string
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO budget_lines (
			id, project_id, cost_code_id, cost_type_id, sub_job_id, description,
			quantity, unit_of_measure, unit_cost_cents, original_amount_cents,
			created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, cost_code_id, cost_type_id, sub_job_id) DO UPDATE SET
			original_amount_cents = CASE
				WHEN budget_lines.deleted_at IS NULL
				THEN budget_lines.original_amount_cents + excluded.original_amount_cents
				ELSE excluded.original_amount_cents
			END,
			description     = CASE WHEN excluded.description != '' THEN excluded.description ELSE budget_lines.description END,
			quantity        = COALESCE(excluded.quantity, budget_lines.quantity),
			unit_of_measure = CASE WHEN excluded.unit_of_measure != '' THEN excluded.unit_of_measure ELSE budget_lines.unit_of_measure END,
			unit_cost_cents = COALESCE(excluded.unit_cost_cents, budget_lines.unit_cost_cents),
			updated_at      = excluded.updated_at,
			deleted_at      = NULL
		RETURNING id`,
		t.s.newID(), projectID, req.CostCodeID, req.CostTypeID, req.SubJobID, req.Description,
		qty, req.UnitOfMeasure, unitCost, amount.Cents(),
		actorID, now, now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upserting budget line %s/%s/%s: %w",
			req.CostCodeID, req.CostTypeID, req.SubJobID, err)
	}
	return id, nil
}

// DeleteBudgetLine soft-deletes a line. A later merge at the same key
// starts from zero.
func (t *Tx) DeleteBudgetLine(ctx context.Context, projectID, id string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE budget_lines SET deleted_at = ?, updated_at = ?
		WHERE project_id = ? AND id = ? AND deleted_at IS NULL`,
		formatTime(t.Now()), formatTime(t.Now()), projectID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: budget line %s", model.ErrNotFound, id)
	}
	return nil
}

// BudgetLines returns the project's live budget lines in key order.
func (t *Tx) BudgetLines(ctx context.Context, projectID string) ([]model.BudgetLine, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, project_id, cost_code_id, cost_type_id, sub_job_id, description,
			quantity, unit_of_measure, unit_cost_cents, original_amount_cents,
			created_by, created_at, updated_at
		FROM budget_lines
		WHERE project_id = ? AND deleted_at IS NULL
		ORDER BY cost_code_id, cost_type_id, sub_job_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying budget lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []model.BudgetLine
	for rows.Next() {
		var (
			l                    model.BudgetLine
			qty                  sql.NullString
			unitCost             sql.NullInt64
			original             int64
			createdAt, updatedAt string
		)
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.CostCodeID, &l.CostTypeID, &l.SubJobID, &l.Description,
			&qty, &l.UnitOfMeasure, &unitCost, &original,
			&l.CreatedBy, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning budget line: %w", err)
		}
		if qty.Valid {
			if q, err := decimal.NewFromString(qty.String); err == nil {
				l.Quantity = &q
			}
		}
		if unitCost.Valid {
			uc := money.FromCents(unitCost.Int64)
			l.UnitCost = &uc
		}
		l.OriginalAmount = money.FromCents(original)
		l.CreatedAt = parseTime(createdAt)
		l.UpdatedAt = parseTime(updatedAt)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
