package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"dealdesk-api/domain"
)

type backend interface {
	FetchOpenTasks(ctx context.Context, workspaceID string) ([]domain.Task, error)
	GetTask(ctx context.Context, workspaceID, taskID string) (*domain.Task, error)
	InsertTask(ctx context.Context, workspaceID string, t domain.Task) error
	UpdateTask(ctx context.Context, workspaceID string, upd domain.TaskUpdate) error
	UpdateTaskRank(ctx context.Context, workspaceID, taskID string, rank int) error
	DeleteTask(ctx context.Context, workspaceID, taskID string) error
}

// Cache wraps a Storage instance with a Redis-backed cache of each
// workspace's open task pool. Every write through the cache evicts the
// workspace entry; redis failures fall back to the backing storage.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) FetchOpenTasks(ctx context.Context, workspaceID string) ([]domain.Task, error) {
	if tasks, ok := c.loadFromCache(ctx, workspaceID); ok {
		return tasks, nil
	}

	tasks, err := c.base.FetchOpenTasks(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, workspaceID, tasks)
	return tasks, nil
}

func (c *Cache) GetTask(ctx context.Context, workspaceID, taskID string) (*domain.Task, error) {
	return c.base.GetTask(ctx, workspaceID, taskID)
}

func (c *Cache) InsertTask(ctx context.Context, workspaceID string, t domain.Task) error {
	if err := c.base.InsertTask(ctx, workspaceID, t); err != nil {
		return err
	}
	c.evict(ctx, workspaceID)
	return nil
}

func (c *Cache) UpdateTask(ctx context.Context, workspaceID string, upd domain.TaskUpdate) error {
	if err := c.base.UpdateTask(ctx, workspaceID, upd); err != nil {
		return err
	}
	c.evict(ctx, workspaceID)
	return nil
}

func (c *Cache) UpdateTaskRank(ctx context.Context, workspaceID, taskID string, rank int) error {
	if err := c.base.UpdateTaskRank(ctx, workspaceID, taskID, rank); err != nil {
		return err
	}
	c.evict(ctx, workspaceID)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, workspaceID, taskID string) error {
	if err := c.base.DeleteTask(ctx, workspaceID, taskID); err != nil {
		return err
	}
	c.evict(ctx, workspaceID)
	return nil
}

func (c *Cache) loadFromCache(ctx context.Context, workspaceID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, openTasksCacheKey(workspaceID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, openTasksCacheKey(workspaceID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, openTasksCacheKey(workspaceID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) store(ctx context.Context, workspaceID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, openTasksCacheKey(workspaceID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, workspaceID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, openTasksCacheKey(workspaceID)).Result()
}

func openTasksCacheKey(workspaceID string) string {
	return "opentasks:" + workspaceID
}
