package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"todo-api/domain"
)

const maxUpdateAttempts = 8

// RedisStore keeps todos in a single Redis hash keyed by todo id so every
// instance of the service shares the same collection.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *log.Logger
}

// NewRedisStore creates a store using the provided client. prefix namespaces
// the hash key.
func NewRedisStore(client *redis.Client, prefix string, logger *log.Logger) *RedisStore {
	if client == nil {
		panic("storage.NewRedisStore: redis client is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisStore{client: client, key: todosHashKey(prefix), logger: logger}
}

func (r *RedisStore) GetAll(ctx context.Context) []domain.Todo {
	values, err := r.client.HVals(ctx, r.key).Result()
	if err != nil {
		r.logError(ctx, err, "", "list todos failed")
		return []domain.Todo{}
	}
	todos := make([]domain.Todo, 0, len(values))
	for _, v := range values {
		var t domain.Todo
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			r.logError(ctx, err, "", "skipping corrupt todo")
			continue
		}
		todos = append(todos, t)
	}
	return todos
}

func (r *RedisStore) GetByID(ctx context.Context, id string) (domain.Todo, bool) {
	if id == "" {
		return domain.Todo{}, false
	}
	data, err := r.client.HGet(ctx, r.key, id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logError(ctx, err, id, "get todo failed")
		}
		return domain.Todo{}, false
	}
	var t domain.Todo
	if err := json.Unmarshal(data, &t); err != nil {
		r.logError(ctx, err, id, "corrupt todo")
		return domain.Todo{}, false
	}
	return t, true
}

// Insert relies on HSETNX so concurrent inserts of one id race inside Redis
// and exactly one of them wins.
func (r *RedisStore) Insert(ctx context.Context, todo *domain.Todo) bool {
	if todo == nil || todo.ID == "" {
		return false
	}
	data, err := json.Marshal(todo)
	if err != nil {
		r.logError(ctx, err, todo.ID, "encode todo failed")
		return false
	}
	added, err := r.client.HSetNX(ctx, r.key, todo.ID, data).Result()
	if err != nil {
		r.logError(ctx, err, todo.ID, "insert todo failed")
		return false
	}
	return added
}

// Update reads and replaces the todo inside a WATCH/MULTI transaction and
// retries when another writer touched the hash in between.
func (r *RedisStore) Update(ctx context.Context, id string, title, description, done *string) bool {
	if id == "" {
		return false
	}
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		applied := false
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.HGet(ctx, r.key, id).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return nil
				}
				return err
			}
			var current domain.Todo
			if err := json.Unmarshal(data, &current); err != nil {
				return err
			}
			next, err := json.Marshal(current.WithChanges(title, description, done))
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, r.key, id, next)
				return nil
			})
			if err == nil {
				applied = true
			}
			return err
		}, r.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			r.logError(ctx, err, id, "update todo failed")
			return false
		}
		return applied
	}
	r.logger.WithFields(log.Fields{"todo_id": id, "request_id": domain.RequestIDFromContext(ctx)}).Warn("update todo gave up after repeated conflicts")
	return false
}

func (r *RedisStore) DeleteByID(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	n, err := r.client.HDel(ctx, r.key, id).Result()
	if err != nil {
		r.logError(ctx, err, id, "delete todo failed")
		return false
	}
	return n > 0
}

func (r *RedisStore) DeleteAll(ctx context.Context) {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		r.logError(ctx, err, "", "delete all todos failed")
	}
}

func (r *RedisStore) logError(ctx context.Context, err error, id, msg string) {
	fields := log.Fields{"request_id": domain.RequestIDFromContext(ctx), "backend": "redis"}
	if id != "" {
		fields["todo_id"] = id
	}
	r.logger.WithError(err).WithFields(fields).Error(msg)
}

func todosHashKey(prefix string) string {
	return prefix + "todos"
}
