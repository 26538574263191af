package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/flowstatehq/flowstate/types"
)

const (
	definitionPrefix  = "definition:"
	instancePrefix    = "instance:"
	definitionListKey = "definitions"
	instanceListKey   = "instances"
)

// RedisStorage is a Redis-backed implementation of the Storage interface.
// Records are stored as JSON values under prefixed keys; a list per
// entity type preserves insertion order for the listing operations.
type RedisStorage struct {
	client *redis.Client
}

// RedisOptions extends redis.Options with additional configuration.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	IdleTimeout  time.Duration
}

// NewRedisStorage creates a new RedisStorage instance with configurable options.
func NewRedisStorage(opts RedisOptions) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		IdleTimeout:  opts.IdleTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &RedisStorage{client: client}, nil
}

// insert stores value under prefix+id via SetNX, the atomic
// insert-if-absent. On success the id is appended to listKey so
// listings come back in insertion order.
func (s *RedisStorage) insert(ctx context.Context, prefix, listKey, id string, value interface{}, errExists error) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal %s%s: %v", prefix, id, err)
		}
		key := prefix + id
		set, err := s.client.SetNX(ctx, key, data, 0).Result()
		if err != nil {
			return fmt.Errorf("failed to set %s in Redis: %v", key, err)
		}
		if !set {
			return fmt.Errorf("%w: id=%s", errExists, id)
		}
		if err := s.client.RPush(ctx, listKey, id).Err(); err != nil {
			return fmt.Errorf("failed to track %s in Redis: %v", key, err)
		}
		return nil
	})
}

// getFromRedis retrieves and unmarshals a value from Redis with the given key prefix and ID.
func getFromRedis[T any](ctx context.Context, client *redis.Client, prefix, id string, errNotFound error) (T, error) {
	return withContext(ctx, func() (T, error) {
		var zero T
		key := prefix + id
		data, err := client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("%w: id=%s", errNotFound, id)
		} else if err != nil {
			return zero, fmt.Errorf("failed to get %s from Redis: %v", key, err)
		}

		var result T
		if err := json.Unmarshal(data, &result); err != nil {
			return zero, fmt.Errorf("failed to unmarshal %s: %v", key, err)
		}
		return result, nil
	})
}

// listFromRedis loads every record named by the order list. Records
// deleted out from under the list are skipped rather than failing the
// whole listing.
func listFromRedis[T any](ctx context.Context, client *redis.Client, prefix, listKey string) ([]T, error) {
	return withContext(ctx, func() ([]T, error) {
		ids, err := client.LRange(ctx, listKey, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s list: %v", listKey, err)
		}

		out := make([]T, 0, len(ids))
		for _, id := range ids {
			data, err := client.Get(ctx, prefix+id).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			} else if err != nil {
				return nil, fmt.Errorf("failed to get %s%s from Redis: %v", prefix, id, err)
			}
			var item T
			if err := json.Unmarshal(data, &item); err != nil {
				return nil, fmt.Errorf("failed to unmarshal %s%s: %v", prefix, id, err)
			}
			out = append(out, item)
		}
		return out, nil
	})
}

// InsertDefinition stores a definition in Redis if its id is free.
func (s *RedisStorage) InsertDefinition(ctx context.Context, def types.WorkflowDefinition) error {
	return s.insert(ctx, definitionPrefix, definitionListKey, def.ID, def, ErrDefinitionExists)
}

// GetDefinition retrieves a definition from Redis.
func (s *RedisStorage) GetDefinition(ctx context.Context, id string) (types.WorkflowDefinition, error) {
	return getFromRedis[types.WorkflowDefinition](ctx, s.client, definitionPrefix, id, ErrDefinitionNotFound)
}

// ListDefinitions returns all definitions in insertion order.
func (s *RedisStorage) ListDefinitions(ctx context.Context) ([]types.WorkflowDefinition, error) {
	return listFromRedis[types.WorkflowDefinition](ctx, s.client, definitionPrefix, definitionListKey)
}

// InsertInstance stores an instance in Redis if its id is free.
func (s *RedisStorage) InsertInstance(ctx context.Context, inst types.WorkflowInstance) error {
	return s.insert(ctx, instancePrefix, instanceListKey, inst.InstanceID, inst, ErrInstanceExists)
}

// GetInstance retrieves a workflow instance from Redis.
func (s *RedisStorage) GetInstance(ctx context.Context, id string) (types.WorkflowInstance, error) {
	return getFromRedis[types.WorkflowInstance](ctx, s.client, instancePrefix, id, ErrInstanceNotFound)
}

// ReplaceInstance overwrites an existing instance with SET XX, the
// atomic unconditional overwrite. Last writer wins under contention.
func (s *RedisStorage) ReplaceInstance(ctx context.Context, inst types.WorkflowInstance) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(inst)
		if err != nil {
			return fmt.Errorf("failed to marshal %s%s: %v", instancePrefix, inst.InstanceID, err)
		}
		key := instancePrefix + inst.InstanceID
		set, err := s.client.SetXX(ctx, key, data, 0).Result()
		if err != nil {
			return fmt.Errorf("failed to replace %s in Redis: %v", key, err)
		}
		if !set {
			return fmt.Errorf("%w: id=%s", ErrInstanceNotFound, inst.InstanceID)
		}
		return nil
	})
}

// ListInstances returns all instances in insertion order.
func (s *RedisStorage) ListInstances(ctx context.Context) ([]types.WorkflowInstance, error) {
	return listFromRedis[types.WorkflowInstance](ctx, s.client, instancePrefix, instanceListKey)
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
