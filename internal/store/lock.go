package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/theirongolddev/costroll/internal/model"
)

// LockState returns the project's lock state. A project with no stored row
// is unlocked at version 0.
func (t *Tx) LockState(ctx context.Context, projectID string) (model.BudgetLockState, error) {
	st := model.BudgetLockState{ProjectID: projectID}
	var (
		locked               int
		lockedAt, unlockedAt sql.NullString
	)
	err := t.tx.QueryRowContext(ctx, `SELECT locked, locked_at, locked_by, unlocked_at, unlocked_by, version
		FROM budget_lock_state WHERE project_id = ?`, projectID).
		Scan(&locked, &lockedAt, &st.LockedBy, &unlockedAt, &st.UnlockedBy, &st.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("reading lock state: %w", err)
	}
	st.Locked = locked != 0
	st.LockedAt = parseNullTime(lockedAt)
	st.UnlockedAt = parseNullTime(unlockedAt)
	return st, nil
}

// SaveLockState writes next if the stored version still equals prevVersion.
// next.Version must be prevVersion+1. A lost race returns
// model.ErrConcurrentModification.
func (t *Tx) SaveLockState(ctx context.Context, next model.BudgetLockState, prevVersion int64) error {
	var (
		res sql.Result
		err error
	)
	if prevVersion == 0 {
		res, err = t.tx.ExecContext(ctx, `INSERT INTO budget_lock_state
			(project_id, locked, locked_at, locked_by, unlocked_at, unlocked_by, version)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id) DO NOTHING`,
			next.ProjectID, boolInt(next.Locked), nullTime(next.LockedAt), next.LockedBy,
			nullTime(next.UnlockedAt), next.UnlockedBy, next.Version)
	} else {
		res, err = t.tx.ExecContext(ctx, `UPDATE budget_lock_state
			SET locked = ?, locked_at = ?, locked_by = ?, unlocked_at = ?, unlocked_by = ?, version = ?
			WHERE project_id = ? AND version = ?`,
			boolInt(next.Locked), nullTime(next.LockedAt), next.LockedBy,
			nullTime(next.UnlockedAt), next.UnlockedBy, next.Version,
			next.ProjectID, prevVersion)
	}
	if err != nil {
		return fmt.Errorf("writing lock state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: lock state for %s changed", model.ErrConcurrentModification, next.ProjectID)
	}
	return nil
}

// AppendLockEvent records a lock transition.
func (t *Tx) AppendLockEvent(ctx context.Context, ev model.LockEvent) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO lock_events (project_id, action, actor_id, at, version)
		VALUES (?, ?, ?, ?, ?)`, ev.ProjectID, string(ev.Action), ev.ActorID, formatTime(ev.At), ev.Version)
	if err != nil {
		return fmt.Errorf("appending lock event: %w", err)
	}
	return nil
}

// LockEvents returns the project's lock history, oldest first.
func (t *Tx) LockEvents(ctx context.Context, projectID string) ([]model.LockEvent, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT project_id, action, actor_id, at, version
		FROM lock_events WHERE project_id = ? ORDER BY seq`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying lock events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.LockEvent
	for rows.Next() {
		var (
			ev     model.LockEvent
			action string
			at     string
		)
		if err := rows.Scan(&ev.ProjectID, &action, &ev.ActorID, &at, &ev.Version); err != nil {
			return nil, err
		}
		ev.Action = model.LockAction(action)
		ev.At = parseTime(at)
		events = append(events, ev)
	}
	return events, rows.Err()
}
