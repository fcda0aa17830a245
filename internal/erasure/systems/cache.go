package systems

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"lethe/internal/erasure/models"
	id "lethe/pkg/domain"
)

const cacheScanBatch = 100

// RedisCache erases subject-scoped entries from the secondary key-value
// cache by key-pattern match, deleting in bounded batches so one subject
// with many keys cannot monopolize the server.
type RedisCache struct {
	client redis.Cmdable
}

// NewRedisCache constructs the cache system over a go-redis client.
func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Type() models.SystemType {
	return models.SystemCache
}

// Erase deletes every key matching the subject's pattern.
func (c *RedisCache) Erase(ctx context.Context, subjectID id.SubjectID) (int, error) {
	return c.DeleteByPattern(ctx, KeyPattern(subjectID))
}

// DeleteByPattern scans for matching keys and deletes them batch by batch.
// No matches is a no-op success.
func (c *RedisCache) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, cacheScanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			removed, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("delete cache keys: %w", err)
			}
			deleted += int(removed)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func (c *RedisCache) ExistsForSubject(ctx context.Context, subjectID id.SubjectID) (bool, error) {
	count, err := c.ResidualCount(ctx, subjectID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ResidualCount scans the subject's key namespace without deleting.
func (c *RedisCache) ResidualCount(ctx context.Context, subjectID id.SubjectID) (int, error) {
	count := 0
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, KeyPattern(subjectID), cacheScanBatch).Result()
		if err != nil {
			return 0, fmt.Errorf("scan cache residue: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}
