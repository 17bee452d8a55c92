package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how long an invocation response stays cached.
const DefaultCacheTTL = 15 * time.Minute

const cacheKeyPrefix = "reviewforge:llm:"

// Cache is a Redis-backed invocation response cache keyed by model and
// payload digest. Cache failures degrade to a gateway call; they are logged
// and never surfaced to the tool caller.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache connects a cache to the Redis instance at addr.
func NewCache(addr string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		ttl: ttl,
	}
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Get returns the cached response for key, if present.
func (c *Cache) Get(ctx context.Context, key string) (map[string]any, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}

	raw, err := c.rdb.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("llm cache get failed: %v", err)
		}
		return nil, false
	}

	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		log.Printf("llm cache entry undecodable, dropping: %v", err)
		_ = c.rdb.Del(ctx, cacheKeyPrefix+key).Err()
		return nil, false
	}
	return value, true
}

// Set stores a response under key for the cache TTL.
func (c *Cache) Set(ctx context.Context, key string, value map[string]any) {
	if c == nil || c.rdb == nil {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("llm cache encode failed: %v", err)
		return
	}
	if err := c.rdb.Set(ctx, cacheKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		log.Printf("llm cache set failed: %v", err)
	}
}

// invokeKey digests model and payload into a stable cache key.
func invokeKey(model string, payload map[string]any) string {
	hasher := sha256.New()
	hasher.Write([]byte(model))
	hasher.Write([]byte{0})
	if encoded, err := json.Marshal(payload); err == nil {
		hasher.Write(encoded)
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
