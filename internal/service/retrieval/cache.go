package retrieval

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key 前缀
const expansionKeyPrefix = "next_tutor:expansion:"

// ExpansionCache 查询扩展缓存
type ExpansionCache interface {
	Get(ctx context.Context, query string) ([]string, bool)
	Set(ctx context.Context, query string, keywords []string)
}

// RedisExpansionCache 基于 Redis 的扩展缓存，错误只影响命中率
type RedisExpansionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisExpansionCache 创建缓存
func NewRedisExpansionCache(client *redis.Client, ttl time.Duration) *RedisExpansionCache {
	return &RedisExpansionCache{client: client, ttl: ttl}
}

func (c *RedisExpansionCache) Get(ctx context.Context, query string) ([]string, bool) {
	data, err := c.client.Get(ctx, expansionKey(query)).Bytes()
	if err != nil {
		return nil, false
	}
	var kws []string
	if err := json.Unmarshal(data, &kws); err != nil || len(kws) == 0 {
		return nil, false
	}
	return kws, true
}

func (c *RedisExpansionCache) Set(ctx context.Context, query string, keywords []string) {
	data, err := json.Marshal(keywords)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, expansionKey(query), data, c.ttl).Err()
}

// expansionKey 查询归一化后取哈希
func expansionKey(query string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return expansionKeyPrefix + hex.EncodeToString(sum[:])
}
