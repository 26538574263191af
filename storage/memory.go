package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowstatehq/flowstate/types"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
// Insertion order is tracked per entity so listings are stable.
type MemoryStorage struct {
	definitions     map[string]types.WorkflowDefinition
	definitionOrder []string
	instances       map[string]types.WorkflowInstance
	instanceOrder   []string
	mu              sync.RWMutex
}

// NewMemoryStorage creates a new MemoryStorage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		definitions: make(map[string]types.WorkflowDefinition),
		instances:   make(map[string]types.WorkflowInstance),
	}
}

// getItem is a standalone generic helper function.
func getItem[T any](ctx context.Context, mu *sync.RWMutex, m map[string]T, id string, errNotFound error) (T, error) {
	return withContext(ctx, func() (T, error) {
		mu.RLock()
		defer mu.RUnlock()
		item, ok := m[id]
		if !ok {
			var zero T
			return zero, fmt.Errorf("%w: id=%s", errNotFound, id)
		}
		return item, nil
	})
}

// InsertDefinition stores a definition under its id unless the id is taken.
func (s *MemoryStorage) InsertDefinition(ctx context.Context, def types.WorkflowDefinition) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.definitions[def.ID]; ok {
			return fmt.Errorf("%w: id=%s", ErrDefinitionExists, def.ID)
		}
		s.definitions[def.ID] = def
		s.definitionOrder = append(s.definitionOrder, def.ID)
		return nil
	})
}

// GetDefinition retrieves a definition from memory.
func (s *MemoryStorage) GetDefinition(ctx context.Context, id string) (types.WorkflowDefinition, error) {
	return getItem(ctx, &s.mu, s.definitions, id, ErrDefinitionNotFound)
}

// ListDefinitions returns all definitions in insertion order.
func (s *MemoryStorage) ListDefinitions(ctx context.Context) ([]types.WorkflowDefinition, error) {
	return withContext(ctx, func() ([]types.WorkflowDefinition, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		out := make([]types.WorkflowDefinition, 0, len(s.definitionOrder))
		for _, id := range s.definitionOrder {
			out = append(out, s.definitions[id])
		}
		return out, nil
	})
}

// InsertInstance stores an instance under its id unless the id is taken.
func (s *MemoryStorage) InsertInstance(ctx context.Context, inst types.WorkflowInstance) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.instances[inst.InstanceID]; ok {
			return fmt.Errorf("%w: id=%s", ErrInstanceExists, inst.InstanceID)
		}
		s.instances[inst.InstanceID] = inst
		s.instanceOrder = append(s.instanceOrder, inst.InstanceID)
		return nil
	})
}

// GetInstance retrieves a workflow instance from memory.
func (s *MemoryStorage) GetInstance(ctx context.Context, id string) (types.WorkflowInstance, error) {
	return getItem(ctx, &s.mu, s.instances, id, ErrInstanceNotFound)
}

// ReplaceInstance overwrites an existing instance. The overwrite is a
// single atomic step; it does not compare against the caller's
// previously read value, so concurrent replacers race last-writer-wins.
func (s *MemoryStorage) ReplaceInstance(ctx context.Context, inst types.WorkflowInstance) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.instances[inst.InstanceID]; !ok {
			return fmt.Errorf("%w: id=%s", ErrInstanceNotFound, inst.InstanceID)
		}
		s.instances[inst.InstanceID] = inst
		return nil
	})
}

// ListInstances returns all instances in insertion order.
func (s *MemoryStorage) ListInstances(ctx context.Context) ([]types.WorkflowInstance, error) {
	return withContext(ctx, func() ([]types.WorkflowInstance, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		out := make([]types.WorkflowInstance, 0, len(s.instanceOrder))
		for _, id := range s.instanceOrder {
			out = append(out, s.instances[id])
		}
		return out, nil
	})
}
