package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisPayload[V any] struct {
	FetchedAt time.Time `json:"fetched_at"`
	Value     V         `json:"value"`
}

// 文档注释：Redis 二级缓存
// 背景：多实例部署时共享查询结果，避免每个实例各自回源；值以 JSON 编码并携带首次取数时间，TTL 以首次取数为准。
// 约束：键为 roaddb:<ns>:<sha256(缓存键)>，不在 Redis 中暴露 SQL 文本与参数。
type RedisTier[V any] struct {
	rc *redis.Client
	ns string
}

func NewRedisTier[V any](rc *redis.Client, namespace string) *RedisTier[V] {
	return &RedisTier[V]{rc: rc, ns: namespace}
}

func RedisKey(namespace, key string) string {
	sum := sha256.Sum256([]byte(key))
	return "roaddb:" + namespace + ":" + hex.EncodeToString(sum[:])
}

func (t *RedisTier[V]) Get(ctx context.Context, key string) (V, time.Time, bool, error) {
	var zero V
	b, err := t.rc.Get(ctx, RedisKey(t.ns, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, time.Time{}, false, nil
	}
	if err != nil {
		return zero, time.Time{}, false, err
	}
	var p redisPayload[V]
	if err := json.Unmarshal(b, &p); err != nil {
		return zero, time.Time{}, false, err
	}
	return p.Value, p.FetchedAt, true, nil
}

func (t *RedisTier[V]) Set(ctx context.Context, key string, v V, fetchedAt time.Time, ttl time.Duration) error {
	b, err := json.Marshal(redisPayload[V]{FetchedAt: fetchedAt, Value: v})
	if err != nil {
		return err
	}
	return t.rc.Set(ctx, RedisKey(t.ns, key), b, ttl).Err()
}
