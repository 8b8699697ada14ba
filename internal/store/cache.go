package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"habitsync/internal/model"
)

// Cache persists a serialized copy of the collection. It is a cache only,
// never the source of truth; failures are logged and swallowed.
type Cache interface {
	Save(ctx context.Context, data []byte) error
	Load(ctx context.Context) ([]byte, error)
}

const cacheKey = "habitsync:habits"

// RedisCache keeps the latest collection snapshot in redis so a restarted
// process can render something before the first remote refresh lands.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *RedisCache) Save(ctx context.Context, data []byte) error {
	return c.rdb.Set(ctx, cacheKey, data, c.ttl).Err()
}

func (c *RedisCache) Load(ctx context.Context) ([]byte, error) {
	data, err := c.rdb.Get(ctx, cacheKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return data, err
}

// persist writes the current collection through to the cache, best-effort.
func (s *Store) persist() {
	if s.cache == nil {
		return
	}

	s.mu.RLock()
	data, err := json.Marshal(s.habits)
	s.mu.RUnlock()
	if err != nil {
		s.logger.Error("Failed to serialize habits for cache", zap.Error(err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.Save(ctx, data); err != nil {
			s.logger.Warn("Habit cache write failed", zap.Error(err))
		}
	}()
}

// LoadCached seeds the collection from the cache when it holds data. Used
// once at startup, before the first remote refresh.
func (s *Store) LoadCached(ctx context.Context) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Load(ctx)
	if err != nil {
		s.logger.Warn("Habit cache read failed", zap.Error(err))
		return false
	}
	if len(data) == 0 {
		return false
	}

	var habits []*model.Habit
	if err := json.Unmarshal(data, &habits); err != nil {
		s.logger.Warn("Habit cache payload invalid, ignoring", zap.Error(err))
		return false
	}

	s.Replace(habits)
	s.logger.Info("Habit collection seeded from cache", zap.Int("habit_count", len(habits)))
	return true
}
