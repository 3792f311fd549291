// Package rediscache is a retriever.Cache backed by Redis, for
// deployments that want the decoded-frame-text cache shared across
// process instances rather than held in a single process's memory.
package rediscache

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/qrvid/corpus/internal/platform/corerr"
	"github.com/qrvid/corpus/internal/platform/logger"
)

type Cache struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// Open connects to addr and verifies reachability with a Ping.
func Open(log *logger.Logger, addr string, keyPrefix string, ttl time.Duration) (*Cache, error) {
	if log == nil {
		return nil, corerr.Config("retriever_rediscache", "logger required")
	}
	if strings.TrimSpace(addr) == "" {
		return nil, corerr.Config("retriever_rediscache", "redis address required")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = "qrvid:frame-text"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, corerr.IO("retriever_rediscache", "redis ping failed", err)
	}

	return &Cache{
		log:    log.With("service", "retriever_rediscache"),
		rdb:    rdb,
		prefix: keyPrefix,
		ttl:    ttl,
	}, nil
}

// Get and Set swallow Redis errors into a cache miss / no-op rather than
// surfacing them — the cache is an optimization, and the retriever
// falls back to re-extracting the frame on a miss.
func (c *Cache) Get(videoPath string, frameNumber int) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	val, err := c.rdb.Get(ctx, c.key(videoPath, frameNumber)).Result()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("retriever_rediscache: get failed", "error", err.Error())
		}
		return "", false
	}
	return val, true
}

func (c *Cache) Set(videoPath string, frameNumber int, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.rdb.Set(ctx, c.key(videoPath, frameNumber), text, c.ttl).Err(); err != nil {
		c.log.Warn("retriever_rediscache: set failed", "error", err.Error())
	}
}

// Clear removes every key under this cache's prefix, scanning in pages
// rather than issuing a blocking FLUSHDB (the Redis instance may be
// shared with other prefixes).
func (c *Cache) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, c.prefix+":*", 256).Result()
		if err != nil {
			c.log.Warn("retriever_rediscache: scan failed", "error", err.Error())
			return
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				c.log.Warn("retriever_rediscache: del failed", "error", err.Error())
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// Len reports an approximate count via SCAN; not constant-time, and
// intended for observability rather than a hot path.
func (c *Cache) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count := 0
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, c.prefix+":*", 256).Result()
		if err != nil {
			return count
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count
		}
	}
}

func (c *Cache) Close() error { return c.rdb.Close() }

func (c *Cache) key(videoPath string, frameNumber int) string {
	return fmt.Sprintf("%s:%s#%d", c.prefix, videoPath, frameNumber)
}
