package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper hands out one-shot locks backed by redis SetNX. The badge-award
// chain uses it so a rapid double toggle settles at most one add-badge
// mutation per toggle settlement.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce tries to acquire the dedup lock for a scope + key pair.
// Returns true on first acquisition, false for a duplicate. When redis is
// unreachable it fails open and allows processing.
func (d *Deduper) AcquireOnce(ctx context.Context, scope, key string) bool {
	lockKey := fmt.Sprintf("dedup:%s:%s", scope, key)

	ok, err := d.rdb.SetNX(ctx, lockKey, 1, d.ttl).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("scope", scope),
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated operation",
			zap.String("scope", scope),
			zap.String("key", key),
			zap.String("dedup_key", lockKey),
		)
	}

	return ok
}
