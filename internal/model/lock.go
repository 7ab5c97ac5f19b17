package model

import "time"

// BudgetLockState gates mutation of original budget amounts for a project.
// A project with no stored state is unlocked at version 0.
type BudgetLockState struct {
	ProjectID  string     `json:"project_id"`
	Locked     bool       `json:"locked"`
	LockedAt   *time.Time `json:"locked_at,omitempty"`
	LockedBy   string     `json:"locked_by,omitempty"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
	UnlockedBy string     `json:"unlocked_by,omitempty"`
	Version    int64      `json:"version"`
}

// LockRequest asks for a lock transition. When ExpectedVersion is set the
// transition only applies if the stored version still matches it.
type LockRequest struct {
	ProjectID       string `json:"project_id"`
	Locked          bool   `json:"locked"`
	ActorID         string `json:"actor_id"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

// LockAction names a lock transition in the history.
type LockAction string

const (
	LockActionLock   LockAction = "lock"
	LockActionUnlock LockAction = "unlock"
)

// LockEvent is one attributable lock transition.
type LockEvent struct {
	ProjectID string     `json:"project_id"`
	Action    LockAction `json:"action"`
	ActorID   string     `json:"actor_id"`
	At        time.Time  `json:"at"`
	Version   int64      `json:"version"`
}
