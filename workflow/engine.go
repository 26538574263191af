package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowstatehq/flowstate/events"
	"github.com/flowstatehq/flowstate/rules"
	"github.com/flowstatehq/flowstate/storage"
	"github.com/flowstatehq/flowstate/types"
)

// Standard error definitions
var (
	// ErrInvalidDefinition rejects a structurally malformed definition
	// before it reaches the store.
	ErrInvalidDefinition = errors.New("invalid definition")
	// ErrDuplicateDefinition rejects a definition whose id is taken.
	ErrDuplicateDefinition = errors.New("definition id already in use")
	// ErrDefinitionNotFound is returned when starting an instance of an
	// unknown definition.
	ErrDefinitionNotFound = errors.New("definition not found")
	// ErrInstanceNotFound is returned when executing against an unknown
	// instance.
	ErrInstanceNotFound = errors.New("instance not found")
	// ErrActionRejected covers every execute-time refusal: action
	// missing or disabled, wrong source state, failed guard, bad target.
	// The instance is never mutated when this is returned.
	ErrActionRejected = errors.New("action rejected")
	// ErrIntegrity signals a consistency bug rather than bad input:
	// definitions are never deleted, so an instance pointing at a
	// missing definition (or a stored definition without an initial
	// state) means the store has been corrupted.
	ErrIntegrity = errors.New("workflow state integrity violation")
)

// Engine is the validation-and-transition core. It owns no state of
// its own: definitions and instances live in the Storage, and every
// operation is a synchronous run-to-completion computation over a
// snapshot read from it.
type Engine struct {
	storage   storage.Storage
	evaluator rules.Evaluator
	eventBus  *events.EventBus
	idgen     IDGenerator
}

// NewEngine creates an Engine backed by the given storage. A nil store
// falls back to in-memory storage, a nil evaluator to the expr
// evaluator, and a nil id generator to UUIDs.
func NewEngine(idgen IDGenerator, store storage.Storage, evaluator rules.Evaluator) *Engine {
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	if store == nil {
		store = storage.NewMemoryStorage()
	}
	if evaluator == nil {
		evaluator = rules.NewExprEvaluator()
	}
	return &Engine{
		storage:   store,
		evaluator: evaluator,
		eventBus:  events.NewEventBus(),
		idgen:     idgen,
	}
}

// SubscribeEvent subscribes an event handler to a specific event type.
func (e *Engine) SubscribeEvent(eventType string, handler events.EventHandler) {
	e.eventBus.Subscribe(eventType, handler)
}

// publishEvent publishes an event asynchronously to the event bus.
func (e *Engine) publishEvent(ctx context.Context, eventType, instanceID string, data map[string]interface{}) {
	go e.eventBus.Publish(ctx, events.Event{
		Type:       eventType,
		InstanceID: instanceID,
		Data:       data,
	})
}

// validateDefinition checks a candidate definition for structural
// well-formedness. Dangling fromStates/toState references are allowed
// here; a missing or disabled target is caught at execution time
// instead, so a definition can be registered before every state it
// mentions is wired up.
func validateDefinition(def types.WorkflowDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("%w: definition id is required", ErrInvalidDefinition)
	}

	stateIDs := make(map[string]bool, len(def.States))
	initialCount := 0
	for _, s := range def.States {
		if s.ID == "" {
			return fmt.Errorf("%w: state id is required", ErrInvalidDefinition)
		}
		if stateIDs[s.ID] {
			return fmt.Errorf("%w: duplicate state id %q", ErrInvalidDefinition, s.ID)
		}
		stateIDs[s.ID] = true
		if s.IsInitial {
			initialCount++
		}
	}
	if initialCount != 1 {
		return fmt.Errorf("%w: must have exactly one initial state, got %d", ErrInvalidDefinition, initialCount)
	}

	actionIDs := make(map[string]bool, len(def.Actions))
	for _, a := range def.Actions {
		if a.ID == "" {
			return fmt.Errorf("%w: action id is required", ErrInvalidDefinition)
		}
		if actionIDs[a.ID] {
			return fmt.Errorf("%w: duplicate action id %q", ErrInvalidDefinition, a.ID)
		}
		actionIDs[a.ID] = true
	}

	return nil
}

// CreateDefinition validates and persists a workflow definition. The
// store's atomic insert-if-absent is the source of truth for id
// uniqueness; two racing creates with the same id are broken there,
// not by the local checks.
func (e *Engine) CreateDefinition(ctx context.Context, def types.WorkflowDefinition) (types.WorkflowDefinition, error) {
	if err := validateDefinition(def); err != nil {
		return types.WorkflowDefinition{}, err
	}

	if err := e.storage.InsertDefinition(ctx, def); err != nil {
		if errors.Is(err, storage.ErrDefinitionExists) {
			return types.WorkflowDefinition{}, fmt.Errorf("%w: id=%s", ErrDuplicateDefinition, def.ID)
		}
		return types.WorkflowDefinition{}, fmt.Errorf("failed to store definition: %w", err)
	}

	e.publishEvent(ctx, events.TypeDefinitionCreated, "", map[string]interface{}{
		"definitionId": def.ID,
	})

	return def, nil
}

// GetDefinition retrieves a definition by id.
func (e *Engine) GetDefinition(ctx context.Context, id string) (types.WorkflowDefinition, error) {
	def, err := e.storage.GetDefinition(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrDefinitionNotFound) {
			return types.WorkflowDefinition{}, fmt.Errorf("%w: id=%s", ErrDefinitionNotFound, id)
		}
		return types.WorkflowDefinition{}, err
	}
	return def, nil
}

// ListDefinitions returns a snapshot of all stored definitions.
func (e *Engine) ListDefinitions(ctx context.Context) ([]types.WorkflowDefinition, error) {
	return e.storage.ListDefinitions(ctx)
}

// StartInstance creates a new instance of the given definition,
// positioned at its unique initial state.
func (e *Engine) StartInstance(ctx context.Context, definitionID string, initialContext map[string]interface{}) (*types.WorkflowInstance, error) {
	def, err := e.GetDefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	initial, ok := def.InitialState()
	if !ok {
		// Unreachable for definitions that passed validation.
		return nil, fmt.Errorf("%w: definition %s has no initial state", ErrIntegrity, definitionID)
	}

	id, err := e.idgen.NewID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate instance id: %w", err)
	}

	inst := types.WorkflowInstance{
		InstanceID:   id,
		DefinitionID: definitionID,
		CurrentState: initial.ID,
		Context:      initialContext,
	}

	// The id is freshly generated, so the insert-if-absent always
	// succeeds; any failure here is a storage fault.
	if err := e.storage.InsertInstance(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to store instance: %w", err)
	}

	e.publishEvent(ctx, events.TypeInstanceStarted, inst.InstanceID, map[string]interface{}{
		"definitionId": inst.DefinitionID,
		"currentState": inst.CurrentState,
	})

	return &inst, nil
}

// GetInstance retrieves a workflow instance by id.
func (e *Engine) GetInstance(ctx context.Context, id string) (*types.WorkflowInstance, error) {
	inst, err := e.storage.GetInstance(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrInstanceNotFound) {
			return nil, fmt.Errorf("%w: id=%s", ErrInstanceNotFound, id)
		}
		return nil, err
	}
	return &inst, nil
}

// ListInstances returns a snapshot of all stored instances.
func (e *Engine) ListInstances(ctx context.Context) ([]types.WorkflowInstance, error) {
	return e.storage.ListInstances(ctx)
}

// ExecuteAction fires actionID against the instance, checking each
// rule in order and stopping at the first failure. The stored instance
// is only touched after every check has passed; a rejection never
// leaves a partial transition behind. The final replace is
// unconditional, so two concurrent executions against the same
// instance race last-writer-wins (no conflict is signalled).
func (e *Engine) ExecuteAction(ctx context.Context, instanceID, actionID string, input map[string]interface{}) (*types.WorkflowInstance, error) {
	inst, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	def, err := e.storage.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		// Definitions are never deleted, so this is a consistency bug,
		// not a user error.
		return nil, fmt.Errorf("%w: instance %s references definition %s: %v",
			ErrIntegrity, instanceID, inst.DefinitionID, err)
	}

	action, ok := def.FindAction(actionID)
	if !ok || !action.Enabled {
		return nil, fmt.Errorf("%w: action %q not found or disabled", ErrActionRejected, actionID)
	}

	if !action.CanFireFrom(inst.CurrentState) {
		return nil, fmt.Errorf("%w: action %q not executable from state %q",
			ErrActionRejected, actionID, inst.CurrentState)
	}

	guardContext := mergeContext(inst.Context, input)
	if action.Condition != "" {
		pass, err := e.evaluator.Evaluate(action.Condition, guardContext)
		if err != nil {
			return nil, fmt.Errorf("%w: guard condition %q: %v", ErrActionRejected, action.Condition, err)
		}
		if !pass {
			return nil, fmt.Errorf("%w: guard condition %q not satisfied", ErrActionRejected, action.Condition)
		}
	}

	// A state's isFinal flag is descriptive only; it does not stop
	// further actions from firing. Only a missing or disabled target
	// blocks the transition.
	target, ok := def.FindState(action.ToState)
	if !ok || !target.Enabled {
		return nil, fmt.Errorf("%w: target state %q not found or disabled", ErrActionRejected, action.ToState)
	}

	next := inst.WithCurrentState(target.ID)
	if len(input) > 0 {
		next.Context = guardContext
	}

	if err := e.storage.ReplaceInstance(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to replace instance: %w", err)
	}

	e.publishEvent(ctx, events.TypeStateChanged, next.InstanceID, map[string]interface{}{
		"actionId":      actionID,
		"previousState": inst.CurrentState,
		"currentState":  next.CurrentState,
	})

	return &next, nil
}

// mergeContext overlays input onto base without touching either map.
// Returns nil when both are empty.
func mergeContext(base, input map[string]interface{}) map[string]interface{} {
	if len(base) == 0 && len(input) == 0 {
		return nil
	}
	merged := make(map[string]interface{}, len(base)+len(input))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range input {
		merged[k] = v
	}
	return merged
}

// Stop gracefully stops the engine's event bus.
func (e *Engine) Stop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		e.eventBus.Stop()
		return nil
	}
}
