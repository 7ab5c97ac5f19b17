package budget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"
	"github.com/theirongolddev/costroll/internal/store"
)

// NewModification describes a budget transfer to create as a draft.
type NewModification struct {
	ProjectID    string      `json:"project_id"`
	Title        string      `json:"title"`
	FromCostCode string      `json:"from_cost_code"`
	ToCostCode   string      `json:"to_cost_code"`
	Amount       money.Money `json:"amount"`
	Date         time.Time   `json:"date"`
	ActorID      string      `json:"actor_id"`
}

// CreateModification stores a draft modification with the project's next
// BM-nnnn number. Modifications are allowed while the budget is locked.
func (s *Service) CreateModification(ctx context.Context, in NewModification) (model.BudgetModification, error) {
	switch {
	case strings.TrimSpace(in.ProjectID) == "":
		return model.BudgetModification{}, fmt.Errorf("%w: project id is required", model.ErrInvalidRequest)
	case strings.TrimSpace(in.ActorID) == "":
		return model.BudgetModification{}, fmt.Errorf("%w: actor id is required", model.ErrInvalidRequest)
	case in.FromCostCode == in.ToCostCode:
		return model.BudgetModification{}, fmt.Errorf("%w: from and to cost codes must differ", model.ErrInvalidRequest)
	case !in.Amount.IsPositive():
		return model.BudgetModification{}, fmt.Errorf("%w: modification amount must be positive", model.ErrInvalidAmount)
	case !in.Amount.Exact():
		return model.BudgetModification{}, fmt.Errorf("%w: %s has more than two decimals", model.ErrInvalidAmount, in.Amount.Decimal())
	}

	var created model.BudgetModification
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		for _, code := range []string{in.FromCostCode, in.ToCostCode} {
			ok, err := tx.HasCostCode(ctx, code)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: unknown cost code %q", model.ErrInvalidReference, code)
			}
		}
		var err error
		created, err = tx.InsertModification(ctx, model.BudgetModification{
			ProjectID:    in.ProjectID,
			Title:        in.Title,
			FromCostCode: in.FromCostCode,
			ToCostCode:   in.ToCostCode,
			Amount:       in.Amount,
			Status:       model.ModificationDraft,
			Date:         in.Date,
			CreatedBy:    in.ActorID,
		})
		return err
	})
	if err != nil {
		return model.BudgetModification{}, err
	}
	return created, nil
}

// TransitionModification applies a workflow action to a modification.
func (s *Service) TransitionModification(ctx context.Context, projectID, id string, action model.ModificationAction, actorID string) (model.BudgetModification, error) {
	if strings.TrimSpace(actorID) == "" {
		return model.BudgetModification{}, fmt.Errorf("%w: actor id is required", model.ErrInvalidRequest)
	}

	var updated model.BudgetModification
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		m, err := tx.Modification(ctx, projectID, id)
		if err != nil {
			return err
		}
		next, err := m.Status.Next(action)
		if err != nil {
			return fmt.Errorf("%s: %w", m.Number, err)
		}
		if err := tx.SetModificationStatus(ctx, projectID, id, m.Status, next); err != nil {
			return err
		}
		m.Status = next
		updated = m
		return nil
	})
	if err != nil {
		return model.BudgetModification{}, err
	}
	return updated, nil
}

// Modifications lists every modification of a project.
func (s *Service) Modifications(ctx context.Context, projectID string) ([]model.BudgetModification, error) {
	var mods []model.BudgetModification
	err := s.store.Snapshot(ctx, func(tx *store.Tx) error {
		var err error
		mods, err = tx.Modifications(ctx, projectID)
		return err
	})
	return mods, err
}
