package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"
)

// Dictionary loads every cost code, cost type and sub-job.
func (t *Tx) Dictionary(ctx context.Context) (model.Dictionary, error) {
	var codes []model.CostCode
	rows, err := t.tx.QueryContext(ctx, "SELECT id, title, division_id FROM cost_codes")
	if err != nil {
		return model.Dictionary{}, fmt.Errorf("querying cost codes: %w", err)
	}
	for rows.Next() {
		var c model.CostCode
		if err := rows.Scan(&c.ID, &c.Title, &c.DivisionID); err != nil {
			_ = rows.Close()
			return model.Dictionary{}, err
		}
		codes = append(codes, c)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return model.Dictionary{}, err
	}

	var types []model.CostType
	rows, err = t.tx.QueryContext(ctx, "SELECT id, code, description FROM cost_types")
	if err != nil {
		return model.Dictionary{}, fmt.Errorf("querying cost types: %w", err)
	}
	for rows.Next() {
		var c model.CostType
		if err := rows.Scan(&c.ID, &c.Code, &c.Description); err != nil {
			_ = rows.Close()
			return model.Dictionary{}, err
		}
		types = append(types, c)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return model.Dictionary{}, err
	}

	var subJobs []model.SubJob
	rows, err = t.tx.QueryContext(ctx, "SELECT id, code, name FROM sub_jobs")
	if err != nil {
		return model.Dictionary{}, fmt.Errorf("querying sub jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var s model.SubJob
		if err := rows.Scan(&s.ID, &s.Code, &s.Name); err != nil {
			return model.Dictionary{}, err
		}
		subJobs = append(subJobs, s)
	}
	if err := rows.Err(); err != nil {
		return model.Dictionary{}, err
	}

	return model.NewDictionary(codes, types, subJobs), nil
}

// HasCostCode reports whether the cost code exists.
func (t *Tx) HasCostCode(ctx context.Context, id string) (bool, error) {
	return t.exists(ctx, "SELECT 1 FROM cost_codes WHERE id = ?", id)
}

// HasCostType reports whether the cost type exists.
func (t *Tx) HasCostType(ctx context.Context, id string) (bool, error) {
	return t.exists(ctx, "SELECT 1 FROM cost_types WHERE id = ?", id)
}

// HasSubJob reports whether the sub-job exists.
func (t *Tx) HasSubJob(ctx context.Context, id string) (bool, error) {
	return t.exists(ctx, "SELECT 1 FROM sub_jobs WHERE id = ?", id)
}

func (t *Tx) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found int
	err := t.tx.QueryRowContext(ctx, query, args...).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PutCostCode inserts or replaces a cost code.
func (t *Tx) PutCostCode(ctx context.Context, c model.CostCode) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO cost_codes (id, title, division_id) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, division_id = excluded.division_id`,
		c.ID, c.Title, c.DivisionID)
	return err
}

// PutCostType inserts or replaces a cost type.
func (t *Tx) PutCostType(ctx context.Context, c model.CostType) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO cost_types (id, code, description) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET code = excluded.code, description = excluded.description`,
		c.ID, c.Code, c.Description)
	return err
}

// PutSubJob inserts or replaces a sub-job.
func (t *Tx) PutSubJob(ctx context.Context, s model.SubJob) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO sub_jobs (id, code, name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET code = excluded.code, name = excluded.name`,
		s.ID, s.Code, s.Name)
	return err
}

// DeleteCostCode removes a cost code from the dictionary. Budget lines that
// reference it are kept and surface as orphans in the rollup.
func (t *Tx) DeleteCostCode(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM cost_codes WHERE id = ?", id)
	return err
}

// PutProject inserts a project or renames an existing one.
func (t *Tx) PutProject(ctx context.Context, p model.Project) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO projects (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`, p.ID, p.Name)
	return err
}

// Project returns the project row. A project that was never registered is
// returned with only its id set.
func (t *Tx) Project(ctx context.Context, id string) (model.Project, error) {
	p := model.Project{ID: id}
	var cents int64
	err := t.tx.QueryRowContext(ctx,
		"SELECT name, current_budget_cents FROM projects WHERE id = ?", id).Scan(&p.Name, &cents)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	p.CurrentBudget = money.FromCents(cents)
	return p, nil
}

// RefreshProjectBudget recomputes the denormalized current budget from the
// project's budget lines and returns it.
func (t *Tx) RefreshProjectBudget(ctx context.Context, projectID string) (money.Money, error) {
	var cents int64
	err := t.tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(original_amount_cents), 0)
		FROM budget_lines WHERE project_id = ? AND deleted_at IS NULL`, projectID).Scan(&cents)
	if err != nil {
		return money.Money{}, fmt.Errorf("summing budget lines: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO projects (id, current_budget_cents, budget_cached_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET current_budget_cents = excluded.current_budget_cents,
			budget_cached_at = excluded.budget_cached_at`,
		projectID, cents, formatTime(t.Now()))
	if err != nil {
		return money.Money{}, fmt.Errorf("updating project budget cache: %w", err)
	}
	return money.FromCents(cents), nil
}
