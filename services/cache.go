package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// jsonCache read-through cache of JSON values in Redis. A nil client
// disables caching.
type jsonCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func (c jsonCache) get(ctx context.Context, key string, v interface{}) bool {
	if c.rdb == nil {
		return false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("cache read", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func (c jsonCache) set(ctx context.Context, key string, v interface{}) {
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Debug("cache write", zap.String("key", key), zap.Error(err))
	}
}

func (c jsonCache) del(ctx context.Context, keys ...string) {
	if c.rdb == nil {
		return
	}
	c.rdb.Del(ctx, keys...)
}
