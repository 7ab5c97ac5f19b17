package server

import (
	"context"
	"errors"
)

// ErrForbidden is returned by an Authorizer to deny a request.
var ErrForbidden = errors.New("forbidden")

// Action is an operation subject to authorization.
type Action string

const (
	ActionRead         Action = "read"
	ActionMergeLines   Action = "merge_lines"
	ActionSetLock      Action = "set_lock"
	ActionModification Action = "modification"
)

// Authorizer decides whether an actor may perform an action on a project.
// Implementations wrap ErrForbidden to deny.
type Authorizer interface {
	Authorize(ctx context.Context, actorID, projectID string, action Action) error
}

// AllowAll permits every request.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, string, string, Action) error { return nil }

// AuthorizerFunc adapts a function to an Authorizer.
type AuthorizerFunc func(ctx context.Context, actorID, projectID string, action Action) error

func (f AuthorizerFunc) Authorize(ctx context.Context, actorID, projectID string, action Action) error {
	return f(ctx, actorID, projectID, action)
}
