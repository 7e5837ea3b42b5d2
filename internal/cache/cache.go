// 包 cache：进程级结果缓存（TTL + 同键合并 + 可选 Redis 二级）
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/logger"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/metrics"
)

// DefaultTTL：结果复用窗口
const DefaultTTL = 600 * time.Second

// Tier：二级缓存（跨进程共享）；实现方的错误只记日志，不影响主流程
type Tier[V any] interface {
	Get(ctx context.Context, key string) (v V, fetchedAt time.Time, ok bool, err error)
	Set(ctx context.Context, key string, v V, fetchedAt time.Time, ttl time.Duration) error
}

type entry[V any] struct {
	v         V
	fetchedAt time.Time
}

// 文档注释：结果缓存
// 背景：同一查询在 TTL 内只访问一次数据库；并发的同键请求合并为一次计算，后到者等待先到者的结果。
// 约束：失败不缓存；调用方上下文结束只会停止等待，已在途的共享计算在脱离取消的上下文上继续完成并写入缓存。
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	group   singleflight.Group
	ttl     time.Duration
	now     func() time.Time
	tier    Tier[V]
}

func New[V any](ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{entries: map[string]entry[V]{}, ttl: ttl, now: time.Now}
}

// WithClock：注入时钟（测试用）；须在首次使用前调用
func (c *Cache[V]) WithClock(now func() time.Time) *Cache[V] {
	c.now = now
	return c
}

// WithTier：挂载二级缓存；nil 表示仅使用进程内缓存
func (c *Cache[V]) WithTier(t Tier[V]) *Cache[V] {
	c.tier = t
	return c
}

func (c *Cache[V]) TTL() time.Duration { return c.ttl }

func (c *Cache[V]) lookup(key string, ttl time.Duration) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.fetchedAt) >= ttl {
		var zero V
		return zero, false
	}
	return e.v, true
}

func (c *Cache[V]) store(key string, v V, at time.Time) {
	c.mu.Lock()
	c.entries[key] = entry[V]{v: v, fetchedAt: at}
	c.mu.Unlock()
}

// 文档注释：读取或计算
// 参数：ttl<=0 时使用缓存默认 TTL；fn 接收的上下文不随调用方取消。
// 返回：命中时返回缓存值；未命中时返回本次（或并发共享的）计算结果。
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) (V, error)) (V, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if v, ok := c.lookup(key, ttl); ok {
		metrics.CacheHitsTotal.WithLabelValues("memory").Inc()
		return v, nil
	}
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// 上一轮共享计算可能刚刚写入
		if v, ok := c.lookup(key, ttl); ok {
			return v, nil
		}
		if c.tier != nil {
			v, at, ok, err := c.tier.Get(detached, key)
			if err != nil {
				logger.L().Warn("cache_tier_get_error", "err", err)
			} else if ok && c.now().Sub(at) < ttl {
				metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
				c.store(key, v, at)
				return v, nil
			}
		}
		metrics.CacheMissesTotal.Inc()
		logger.L().Debug("cache_miss", "request_id", logger.RequestID(detached))
		v, err := fn(detached)
		if err != nil {
			return nil, err
		}
		at := c.now()
		c.store(key, v, at)
		if c.tier != nil {
			if err := c.tier.Set(detached, key, v, at, ttl); err != nil {
				logger.L().Warn("cache_tier_set_error", "err", err)
			}
		}
		return v, nil
	})
	select {
	case res := <-ch:
		if res.Shared {
			metrics.CacheSharedTotal.Inc()
		}
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Invalidate：删除单个键（仅进程内）
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Sweep：清理超过默认 TTL 的条目，返回清理数量
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if now.Sub(e.fetchedAt) >= c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
