package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"todo-api/domain"
)

// errStaleSnapshot aborts a fill that raced with an eviction.
var errStaleSnapshot = errors.New("storage: cache generation moved")

// Cache wraps a TodoStore with a Redis-backed snapshot of GetAll. Any
// successful mutation evicts the snapshot and bumps a generation counter;
// a snapshot read from the backing store is only written back while the
// generation it was read under is still current.
type Cache struct {
	base   domain.TodoStore
	redis  *redis.Client
	ttl    time.Duration
	key    string
	genKey string
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base domain.TodoStore, client *redis.Client, prefix string, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{
		base:   base,
		redis:  client,
		ttl:    ttl,
		key:    todosCacheKey(prefix),
		genKey: todosGenerationKey(prefix),
	}
}

func (c *Cache) GetAll(ctx context.Context) []domain.Todo {
	if todos, ok := c.loadTodosFromCache(ctx); ok {
		return todos
	}
	gen, genOK := c.generation(ctx)
	todos := c.base.GetAll(ctx)
	if genOK {
		c.storeTodos(ctx, todos, gen)
	}
	return todos
}

func (c *Cache) GetByID(ctx context.Context, id string) (domain.Todo, bool) {
	return c.base.GetByID(ctx, id)
}

func (c *Cache) Insert(ctx context.Context, todo *domain.Todo) bool {
	if !c.base.Insert(ctx, todo) {
		return false
	}
	c.evict(ctx)
	return true
}

func (c *Cache) Update(ctx context.Context, id string, title, description, done *string) bool {
	if !c.base.Update(ctx, id, title, description, done) {
		return false
	}
	c.evict(ctx)
	return true
}

func (c *Cache) DeleteByID(ctx context.Context, id string) bool {
	if !c.base.DeleteByID(ctx, id) {
		return false
	}
	c.evict(ctx)
	return true
}

func (c *Cache) DeleteAll(ctx context.Context) {
	c.base.DeleteAll(ctx)
	c.evict(ctx)
}

func (c *Cache) loadTodosFromCache(ctx context.Context) ([]domain.Todo, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, c.key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, c.key).Err()
		}
		return nil, false
	}
	var todos []domain.Todo
	if err := json.Unmarshal(data, &todos); err != nil || todos == nil {
		_ = c.redis.Del(ctx, c.key).Err()
		return nil, false
	}
	return todos, true
}

// generation returns the current eviction counter. A missing key counts as
// generation zero.
func (c *Cache) generation(ctx context.Context) (int64, bool) {
	if c.redis == nil || c.ttl == 0 {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, c.genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	return gen, err == nil
}

// storeTodos writes the snapshot under WATCH on the generation key, so an
// eviction that lands after gen was read aborts the write.
func (c *Cache) storeTodos(ctx context.Context, todos []domain.Todo, gen int64) {
	data, err := json.Marshal(todos)
	if err != nil {
		return
	}
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, c.genKey).Int64()
		if errors.Is(err, redis.Nil) {
			cur, err = 0, nil
		}
		if err != nil {
			return err
		}
		if cur != gen {
			return errStaleSnapshot
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key, data, c.ttl)
			return nil
		})
		return err
	}, c.genKey)
}

func (c *Cache) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey)
		pipe.Del(ctx, c.key)
		return nil
	})
}

func todosCacheKey(prefix string) string {
	return prefix + "cache:todos"
}

func todosGenerationKey(prefix string) string {
	return todosCacheKey(prefix) + ":gen"
}
