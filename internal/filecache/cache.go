// Package filecache keeps agent session file listings in Redis so repeated
// lookups for sessions the gateway never relayed do not hit the agent.
package filecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oremus-labs/lockin/internal/logutil"
	"github.com/redis/go-redis/v9"
)

type fileSource interface {
	SessionFiles(ctx context.Context, sessionID string) (map[string]string, error)
}

type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Options configure the cache.
type Options struct {
	Source   fileSource
	Redis    kv
	TTL      time.Duration
	KeySpace string
}

// Cache is a read-through cache in front of a file source.
type Cache struct {
	source   fileSource
	redis    kv
	ttl      time.Duration
	keySpace string
}

// New creates a new cache. Without Redis every call goes to the source.
func New(opts Options) *Cache {
	keySpace := opts.KeySpace
	if keySpace == "" {
		keySpace = "lockin:files"
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	return &Cache{
		source:   opts.Source,
		redis:    opts.Redis,
		ttl:      opts.TTL,
		keySpace: keySpace,
	}
}

func (c *Cache) key(sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.keySpace, sessionID)
}

// SessionFiles returns the files of a session, preferring Redis.
func (c *Cache) SessionFiles(ctx context.Context, sessionID string) (map[string]string, error) {
	if c.source == nil {
		return nil, errors.New("file source unavailable")
	}
	key := c.key(sessionID)
	if c.redis != nil && key != "" {
		data, err := c.redis.Get(ctx, key).Bytes()
		if err == nil && len(data) > 0 {
			var files map[string]string
			if err := json.Unmarshal(data, &files); err == nil {
				return files, nil
			}
		} else if err != nil && !errors.Is(err, redis.Nil) {
			logutil.Warn("file cache: redis get failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
	}

	files, err := c.source.SessionFiles(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// Empty listings are not cached: the agent may still be generating.
	if c.redis != nil && key != "" && len(files) > 0 {
		payload, err := json.Marshal(files)
		if err == nil {
			if err := c.redis.Set(ctx, key, payload, c.ttl).Err(); err != nil {
				logutil.Warn("file cache: redis set failed", map[string]interface{}{"key": key, "error": err.Error()})
			}
		}
	}
	return files, nil
}
