package types

// State is a named node in a workflow definition.
type State struct {
	ID        string `json:"id"`
	IsInitial bool   `json:"isInitial"`
	IsFinal   bool   `json:"isFinal"`
	Enabled   bool   `json:"enabled"`
}

// Action is a directed transition rule: it may fire from any of its
// FromStates and always lands on ToState. Condition is an optional
// boolean expression evaluated against the instance context before
// the transition fires; empty means "always".
type Action struct {
	ID         string   `json:"id"`
	FromStates []string `json:"fromStates"`
	ToState    string   `json:"toState"`
	Enabled    bool     `json:"enabled"`
	Condition  string   `json:"condition,omitempty"`
}

// CanFireFrom reports whether stateID is one of the action's legal
// source states.
func (a Action) CanFireFrom(stateID string) bool {
	for _, from := range a.FromStates {
		if from == stateID {
			return true
		}
	}
	return false
}

// WorkflowDefinition is the immutable description of a workflow: its
// states and the actions that move instances between them. Once stored
// it is never mutated or deleted.
type WorkflowDefinition struct {
	ID      string   `json:"id"`
	States  []State  `json:"states"`
	Actions []Action `json:"actions"`
}

// FindState returns the state with the given id, or false if the
// definition declares no such state.
func (d WorkflowDefinition) FindState(id string) (State, bool) {
	for _, s := range d.States {
		if s.ID == id {
			return s, true
		}
	}
	return State{}, false
}

// FindAction returns the action with the given id, or false if the
// definition declares no such action.
func (d WorkflowDefinition) FindAction(id string) (Action, bool) {
	for _, a := range d.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return Action{}, false
}

// InitialState returns the definition's initial state. The second
// return is false when no state is flagged initial.
func (d WorkflowDefinition) InitialState() (State, bool) {
	for _, s := range d.States {
		if s.IsInitial {
			return s, true
		}
	}
	return State{}, false
}

// WorkflowInstance is one running execution of a definition. It is
// treated as an immutable value: transitions never mutate an instance
// in place, they build a replacement via WithCurrentState.
type WorkflowInstance struct {
	InstanceID   string                 `json:"instanceId"`
	DefinitionID string                 `json:"definitionId"`
	CurrentState string                 `json:"currentState"`
	Context      map[string]interface{} `json:"context,omitempty"`
}

// WithCurrentState returns a copy of the instance positioned at
// stateID. The context map is copied as well so the old and new values
// share no mutable storage.
func (i WorkflowInstance) WithCurrentState(stateID string) WorkflowInstance {
	next := i
	next.CurrentState = stateID
	if i.Context != nil {
		next.Context = make(map[string]interface{}, len(i.Context))
		for k, v := range i.Context {
			next.Context[k] = v
		}
	}
	return next
}
