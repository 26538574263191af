package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefinitionLookups(t *testing.T) {
	def := WorkflowDefinition{
		ID: "doc-approval",
		States: []State{
			{ID: "draft", IsInitial: true, Enabled: true},
			{ID: "in-review", Enabled: true},
		},
		Actions: []Action{
			{ID: "submit", FromStates: []string{"draft"}, ToState: "in-review", Enabled: true},
		},
	}

	t.Run("FindState", func(t *testing.T) {
		s, ok := def.FindState("draft")
		assert.True(t, ok)
		assert.True(t, s.IsInitial)

		_, ok = def.FindState("missing")
		assert.False(t, ok)
	})

	t.Run("FindAction", func(t *testing.T) {
		a, ok := def.FindAction("submit")
		assert.True(t, ok)
		assert.Equal(t, "in-review", a.ToState)

		_, ok = def.FindAction("missing")
		assert.False(t, ok)
	})

	t.Run("InitialState", func(t *testing.T) {
		s, ok := def.InitialState()
		assert.True(t, ok)
		assert.Equal(t, "draft", s.ID)

		none := WorkflowDefinition{States: []State{{ID: "a"}}}
		_, ok = none.InitialState()
		assert.False(t, ok)
	})

	t.Run("CanFireFrom", func(t *testing.T) {
		a, _ := def.FindAction("submit")
		assert.True(t, a.CanFireFrom("draft"))
		assert.False(t, a.CanFireFrom("in-review"))
	})
}

func TestWithCurrentState(t *testing.T) {
	inst := WorkflowInstance{
		InstanceID:   "inst-1",
		DefinitionID: "doc-approval",
		CurrentState: "draft",
		Context:      map[string]interface{}{"owner": "sam"},
	}

	next := inst.WithCurrentState("in-review")

	assert.Equal(t, "in-review", next.CurrentState)
	assert.Equal(t, "draft", inst.CurrentState)
	assert.Equal(t, inst.InstanceID, next.InstanceID)
	assert.Equal(t, inst.DefinitionID, next.DefinitionID)

	// The copies must not share context storage.
	next.Context["owner"] = "kim"
	assert.Equal(t, "sam", inst.Context["owner"])
}
