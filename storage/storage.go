package storage

import (
	"context"
	"errors"

	"github.com/flowstatehq/flowstate/types"
)

// Errors reported by Storage implementations.
var (
	ErrDefinitionExists   = errors.New("definition already exists")
	ErrDefinitionNotFound = errors.New("definition not found")
	ErrInstanceExists     = errors.New("instance already exists")
	ErrInstanceNotFound   = errors.New("instance not found")
)

// Storage is the concurrent key-value store the engine runs against.
// Implementations must make each operation individually atomic:
// inserts are insert-if-absent, gets are snapshot reads, and
// ReplaceInstance is an unconditional overwrite. Nothing here spans
// multiple keys, so two concurrent ReplaceInstance calls on the same
// instance resolve to whichever writer lands last.
type Storage interface {
	// InsertDefinition stores a definition if and only if its id is not
	// already present. Returns ErrDefinitionExists otherwise.
	InsertDefinition(ctx context.Context, def types.WorkflowDefinition) error

	// GetDefinition retrieves a definition by id.
	GetDefinition(ctx context.Context, id string) (types.WorkflowDefinition, error)

	// ListDefinitions returns all stored definitions in insertion order.
	ListDefinitions(ctx context.Context) ([]types.WorkflowDefinition, error)

	// InsertInstance stores an instance if and only if its id is not
	// already present. Returns ErrInstanceExists otherwise.
	InsertInstance(ctx context.Context, inst types.WorkflowInstance) error

	// GetInstance retrieves an instance by id.
	GetInstance(ctx context.Context, id string) (types.WorkflowInstance, error)

	// ReplaceInstance overwrites the stored instance with the same id.
	// Returns ErrInstanceNotFound if no such instance exists.
	ReplaceInstance(ctx context.Context, inst types.WorkflowInstance) error

	// ListInstances returns all stored instances in insertion order.
	ListInstances(ctx context.Context) ([]types.WorkflowInstance, error)
}

// withContext is a standalone generic helper function.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
		return fn()
	}
}

// withContextError handles context cancellation for operations that only return an error.
func withContextError(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}
