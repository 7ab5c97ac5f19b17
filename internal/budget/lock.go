package budget

import (
	"context"
	"fmt"
	"strings"

	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/store"
)

// SetLockState locks or unlocks a project's budget. Transitions are a
// compare-and-swap on the state version: a request for the state the
// project is already in, or one whose ExpectedVersion is stale, fails with
// model.ErrConcurrentModification so the caller re-reads.
func (s *Service) SetLockState(ctx context.Context, req model.LockRequest) (model.BudgetLockState, error) {
	if strings.TrimSpace(req.ProjectID) == "" {
		return model.BudgetLockState{}, fmt.Errorf("%w: project id is required", model.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.ActorID) == "" {
		return model.BudgetLockState{}, fmt.Errorf("%w: actor id is required", model.ErrInvalidRequest)
	}

	var next model.BudgetLockState
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		cur, err := tx.LockState(ctx, req.ProjectID)
		if err != nil {
			return err
		}
		if req.ExpectedVersion != nil && *req.ExpectedVersion != cur.Version {
			return fmt.Errorf("%w: lock version is %d, not %d",
				model.ErrConcurrentModification, cur.Version, *req.ExpectedVersion)
		}
		if cur.Locked == req.Locked {
			return fmt.Errorf("%w: project %s is already %s",
				model.ErrConcurrentModification, req.ProjectID, lockWord(cur.Locked))
		}

		now := tx.Now()
		next = cur
		next.Locked = req.Locked
		next.Version = cur.Version + 1
		action := model.LockActionUnlock
		if req.Locked {
			action = model.LockActionLock
			next.LockedAt = &now
			next.LockedBy = req.ActorID
		} else {
			next.LockedAt = nil
			next.LockedBy = ""
			next.UnlockedAt = &now
			next.UnlockedBy = req.ActorID
		}

		if err := tx.SaveLockState(ctx, next, cur.Version); err != nil {
			return err
		}
		return tx.AppendLockEvent(ctx, model.LockEvent{
			ProjectID: req.ProjectID,
			Action:    action,
			ActorID:   req.ActorID,
			At:        now,
			Version:   next.Version,
		})
	})
	if err != nil {
		return model.BudgetLockState{}, err
	}
	return next, nil
}

// LockState returns the project's current lock state.
func (s *Service) LockState(ctx context.Context, projectID string) (model.BudgetLockState, error) {
	var st model.BudgetLockState
	err := s.store.Snapshot(ctx, func(tx *store.Tx) error {
		var err error
		st, err = tx.LockState(ctx, projectID)
		return err
	})
	return st, err
}

// LockHistory returns every lock transition for the project, oldest first.
func (s *Service) LockHistory(ctx context.Context, projectID string) ([]model.LockEvent, error) {
	var events []model.LockEvent
	err := s.store.Snapshot(ctx, func(tx *store.Tx) error {
		var err error
		events, err = tx.LockEvents(ctx, projectID)
		return err
	})
	return events, err
}

func lockWord(locked bool) string {
	if locked {
		return "locked"
	}
	return "unlocked"
}
