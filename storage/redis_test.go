package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowstatehq/flowstate/types"
)

// newRedisTestStorage connects to a local Redis or skips the test when
// none is listening.
func newRedisTestStorage(t *testing.T) *RedisStorage {
	t.Helper()
	store, err := NewRedisStorage(RedisOptions{
		Addr:        "localhost:6379",
		DB:          15, // dedicated test db
		PoolSize:    10,
		IdleTimeout: time.Minute,
	})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		store.client.FlushDB(context.Background())
		store.Close()
	})
	store.client.FlushDB(context.Background())
	return store
}

func TestRedisStorage(t *testing.T) {
	newDefinition := func(id string) types.WorkflowDefinition {
		return types.WorkflowDefinition{
			ID: id,
			States: []types.State{
				{ID: "draft", IsInitial: true, Enabled: true},
				{ID: "done", IsFinal: true, Enabled: true},
			},
			Actions: []types.Action{
				{ID: "finish", FromStates: []string{"draft"}, ToState: "done", Enabled: true},
			},
		}
	}

	newInstance := func(id, state string) types.WorkflowInstance {
		return types.WorkflowInstance{
			InstanceID:   id,
			DefinitionID: "wf-1",
			CurrentState: state,
		}
	}

	t.Run("InsertAndGetDefinition", func(t *testing.T) {
		store := newRedisTestStorage(t)
		ctx := context.Background()

		def := newDefinition("wf-1")
		assert.NoError(t, store.InsertDefinition(ctx, def))

		got, err := store.GetDefinition(ctx, "wf-1")
		assert.NoError(t, err)
		assert.Equal(t, def, got)

		err = store.InsertDefinition(ctx, newDefinition("wf-1"))
		assert.ErrorIs(t, err, ErrDefinitionExists)
	})

	t.Run("GetDefinitionNotFound", func(t *testing.T) {
		store := newRedisTestStorage(t)
		_, err := store.GetDefinition(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrDefinitionNotFound)
	})

	t.Run("ListDefinitionsInsertionOrder", func(t *testing.T) {
		store := newRedisTestStorage(t)
		ctx := context.Background()

		for _, id := range []string{"c", "a", "b"} {
			assert.NoError(t, store.InsertDefinition(ctx, newDefinition(id)))
		}

		defs, err := store.ListDefinitions(ctx)
		assert.NoError(t, err)
		ids := make([]string, 0, len(defs))
		for _, d := range defs {
			ids = append(ids, d.ID)
		}
		assert.Equal(t, []string{"c", "a", "b"}, ids)
	})

	t.Run("InstanceLifecycle", func(t *testing.T) {
		store := newRedisTestStorage(t)
		ctx := context.Background()

		assert.NoError(t, store.InsertInstance(ctx, newInstance("inst-1", "draft")))
		err := store.InsertInstance(ctx, newInstance("inst-1", "done"))
		assert.ErrorIs(t, err, ErrInstanceExists)

		assert.NoError(t, store.ReplaceInstance(ctx, newInstance("inst-1", "done")))
		got, err := store.GetInstance(ctx, "inst-1")
		assert.NoError(t, err)
		assert.Equal(t, "done", got.CurrentState)

		err = store.ReplaceInstance(ctx, newInstance("ghost", "draft"))
		assert.ErrorIs(t, err, ErrInstanceNotFound)
	})

	t.Run("ListInstances", func(t *testing.T) {
		store := newRedisTestStorage(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			assert.NoError(t, store.InsertInstance(ctx, newInstance(fmt.Sprintf("inst-%d", i), "draft")))
		}

		insts, err := store.ListInstances(ctx)
		assert.NoError(t, err)
		assert.Len(t, insts, 3)
		for i, inst := range insts {
			assert.Equal(t, fmt.Sprintf("inst-%d", i), inst.InstanceID)
		}
	})
}
