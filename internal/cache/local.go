package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bluele/gcache"
)

// LocalCache is an in-process LRU used when Redis is not configured
type LocalCache struct {
	lru    gcache.Cache
	logger *slog.Logger
}

func NewLocalCache(size int, logger *slog.Logger) *LocalCache {
	if size <= 0 {
		size = 64
	}
	return &LocalCache{
		lru:    gcache.New(size).LRU().Build(),
		logger: logger.With("component", "local_cache"),
	}
}

func (c *LocalCache) Get(_ context.Context, key string) ([]byte, error) {
	v, err := c.lru.Get(key)
	if errors.Is(err, gcache.KeyNotFoundError) {
		c.logger.Debug("cache miss", "key", key)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, nil
	}
	return data, nil
}

// Set stores value; a zero ttl keeps it until evicted
func (c *LocalCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl > 0 {
		return c.lru.SetWithExpire(key, value, ttl)
	}
	return c.lru.Set(key, value)
}

func (c *LocalCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

func (c *LocalCache) DeletePrefix(_ context.Context, prefix string) (int, error) {
	removed := 0
	for _, k := range c.lru.Keys(false) {
		key, ok := k.(string)
		if ok && strings.HasPrefix(key, prefix) && c.lru.Remove(key) {
			removed++
		}
	}
	return removed, nil
}

func (c *LocalCache) Len() int {
	return c.lru.Len(true)
}

func (c *LocalCache) Close() error {
	c.lru.Purge()
	return nil
}
