package systems

import (
	"context"
	"strings"
	"sync"

	"lethe/internal/erasure/models"
	id "lethe/pkg/domain"
)

// InMemoryCache is the dev/test stand-in for the redis-backed cache system.
// It supports the same prefix-style key patterns the engine generates.
type InMemoryCache struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewInMemoryCache constructs an empty in-memory cache system.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{keys: make(map[string]string)}
}

// Set stores a cache entry.
func (c *InMemoryCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key] = value
}

func (c *InMemoryCache) Type() models.SystemType {
	return models.SystemCache
}

func (c *InMemoryCache) Erase(ctx context.Context, subjectID id.SubjectID) (int, error) {
	return c.DeleteByPattern(ctx, KeyPattern(subjectID))
}

func (c *InMemoryCache) DeleteByPattern(_ context.Context, pattern string) (int, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	c.mu.Lock()
	defer c.mu.Unlock()
	deleted := 0
	for key := range c.keys {
		if strings.HasPrefix(key, prefix) {
			delete(c.keys, key)
			deleted++
		}
	}
	return deleted, nil
}

func (c *InMemoryCache) ExistsForSubject(ctx context.Context, subjectID id.SubjectID) (bool, error) {
	count, err := c.ResidualCount(ctx, subjectID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (c *InMemoryCache) ResidualCount(_ context.Context, subjectID id.SubjectID) (int, error) {
	prefix := strings.TrimSuffix(KeyPattern(subjectID), "*")
	c.mu.RLock()
	defer c.mu.RUnlock()
	count := 0
	for key := range c.keys {
		if strings.HasPrefix(key, prefix) {
			count++
		}
	}
	return count, nil
}
