package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

// ToolCache backs the tool-execution endpoint: response caching by request
// shape and a fixed-window per-user rate limit. Both are best-effort; a
// dead Redis degrades to uncached, unlimited execution.
type ToolCache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Close() error
}

type toolCache struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewToolCache(log *logger.Logger) (ToolCache, error) {
	addr := strings.TrimSpace(envutil.String("REDIS_ADDR", ""))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &toolCache{
		log: log.With("client", "ToolCache"),
		rdb: rdb,
	}, nil
}

func (c *toolCache) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *toolCache) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

// Allow counts calls in a fixed window. The first call in a window sets the
// expiry; the N+1th call within it is rejected.
func (c *toolCache) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(limit), nil
}

func (c *toolCache) Close() error {
	return c.rdb.Close()
}
