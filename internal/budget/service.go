// Package budget implements the write side of the engine: additive merges
// of original budget lines, the budget lock state machine and the budget
// modification workflow.
package budget

import (
	"context"
	"fmt"
	"strings"

	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"
	"github.com/theirongolddev/costroll/internal/store"
)

// Service runs budget mutations against a store. Every operation is one
// write transaction.
type Service struct {
	store *store.Store
}

// NewService returns a Service backed by s.
func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// MergeBudgetLines adds each request's amount to the live budget line at
// its key, creating lines that do not exist. The batch is atomic: a locked
// budget, an unknown reference or any storage error rolls back every
// request. Returned ids are de-duplicated in first-seen order.
func (s *Service) MergeBudgetLines(ctx context.Context, projectID, actorID string, lines []model.LineRequest) (model.MergeResult, error) {
	var result model.MergeResult
	if strings.TrimSpace(projectID) == "" {
		return result, fmt.Errorf("%w: project id is required", model.ErrInvalidRequest)
	}
	if strings.TrimSpace(actorID) == "" {
		return result, fmt.Errorf("%w: actor id is required", model.ErrInvalidRequest)
	}
	if len(lines) == 0 {
		return result, fmt.Errorf("%w: no budget lines", model.ErrInvalidRequest)
	}

	amounts := make([]money.Money, len(lines))
	for i, req := range lines {
		amt, err := lineAmount(req)
		if err != nil {
			return result, fmt.Errorf("line %d: %w", i+1, err)
		}
		amounts[i] = amt
	}

	err := s.store.Update(ctx, func(tx *store.Tx) error {
		state, err := tx.LockState(ctx, projectID)
		if err != nil {
			return err
		}
		if state.Locked {
			return fmt.Errorf("%w: project %s locked by %s", model.ErrBudgetLocked, projectID, state.LockedBy)
		}

		seen := make(map[string]bool, len(lines))
		ids := make([]string, 0, len(lines))
		total := money.Zero()
		for i, req := range lines {
			if err := checkReferences(ctx, tx, req); err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			id, err := tx.AddToBudgetLine(ctx, projectID, actorID, req, amounts[i])
			if err != nil {
				return err
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
			total = total.Add(amounts[i])
		}

		current, err := tx.RefreshProjectBudget(ctx, projectID)
		if err != nil {
			return err
		}
		result = model.MergeResult{IDs: ids, BatchTotal: total, CurrentBudget: current}
		return nil
	})
	if err != nil {
		return model.MergeResult{}, err
	}
	return result, nil
}

// DeleteBudgetLine removes a budget line. Like a merge it is refused while
// the budget is locked. A later merge at the same key starts from zero.
func (s *Service) DeleteBudgetLine(ctx context.Context, projectID, lineID string) (model.Project, error) {
	var p model.Project
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		state, err := tx.LockState(ctx, projectID)
		if err != nil {
			return err
		}
		if state.Locked {
			return fmt.Errorf("%w: project %s locked by %s", model.ErrBudgetLocked, projectID, state.LockedBy)
		}
		if err := tx.DeleteBudgetLine(ctx, projectID, lineID); err != nil {
			return err
		}
		if _, err := tx.RefreshProjectBudget(ctx, projectID); err != nil {
			return err
		}
		p, err = tx.Project(ctx, projectID)
		return err
	})
	return p, err
}

// lineAmount returns the amount a request adds. Without an explicit amount
// it is quantity times unit cost, rounded to cents.
func lineAmount(req model.LineRequest) (money.Money, error) {
	if req.Amount != nil {
		if !req.Amount.Exact() {
			return money.Money{}, fmt.Errorf("%w: %s has more than two decimals", model.ErrInvalidAmount, req.Amount.Decimal())
		}
		return *req.Amount, nil
	}
	if req.Quantity == nil || req.UnitCost == nil {
		return money.Money{}, fmt.Errorf("%w: amount or quantity and unit cost required", model.ErrInvalidAmount)
	}
	return req.UnitCost.Mul(*req.Quantity).Round(), nil
}

func checkReferences(ctx context.Context, tx *store.Tx, req model.LineRequest) error {
	if strings.TrimSpace(req.CostCodeID) == "" {
		return fmt.Errorf("%w: cost code is required", model.ErrInvalidReference)
	}
	ok, err := tx.HasCostCode(ctx, req.CostCodeID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unknown cost code %q", model.ErrInvalidReference, req.CostCodeID)
	}
	if req.CostTypeID != "" {
		if ok, err = tx.HasCostType(ctx, req.CostTypeID); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: unknown cost type %q", model.ErrInvalidReference, req.CostTypeID)
		}
	}
	if req.SubJobID != "" {
		if ok, err = tx.HasSubJob(ctx, req.SubJobID); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: unknown sub job %q", model.ErrInvalidReference, req.SubJobID)
		}
	}
	return nil
}

// Project returns the project record with its cached current budget.
func (s *Service) Project(ctx context.Context, projectID string) (model.Project, error) {
	var p model.Project
	err := s.store.Snapshot(ctx, func(tx *store.Tx) error {
		var err error
		p, err = tx.Project(ctx, projectID)
		return err
	})
	return p, err
}
