// 包 warm：按 cron 表达式在服务进程内后台预热结果缓存
package warm

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/logger"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/metrics"
)

// DefaultSpec：默认每 5 分钟一次，短于缓存 TTL
const DefaultSpec = "*/5 * * * *"

// Warmer：预热目标（engine.Engine）
type Warmer interface {
	Warm(ctx context.Context) (int, error)
	Sweep() int
}

// 文档注释：预热调度器
// 背景：统计报表与 Others 标签在 TTL 过期后第一次访问会回源，提前在后台补齐；同时清理过期条目控制内存。
// 约束：上一轮未结束时跳过本轮；单轮耗时受 timeout 限制；错误只记录日志，调度继续。
type Scheduler struct {
	c       *cron.Cron
	w       Warmer
	timeout time.Duration
	running atomic.Bool
	entry   cron.EntryID
}

// Start：spec 为标准 5 段 cron 表达式或 @every 描述；spec 为 off 时返回 nil
func Start(spec string, w Warmer, timeout time.Duration) (*Scheduler, error) {
	if spec == "off" {
		logger.L().Info("warm_disabled")
		return nil, nil
	}
	if spec == "" {
		spec = DefaultSpec
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	s := &Scheduler{c: cron.New(), w: w, timeout: timeout}
	id, err := s.c.AddFunc(spec, func() { s.RunOnce(context.Background()) })
	if err != nil {
		return nil, err
	}
	s.entry = id
	s.c.Start()
	logger.L().Info("warm_scheduled", "spec", spec, "next", s.Next())
	return s, nil
}

// RunOnce：执行一轮清理与预热；返回 false 表示因上一轮仍在进行而跳过
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		metrics.WarmRunsTotal.WithLabelValues("skipped").Inc()
		logger.L().Debug("warm_skip_busy")
		return false
	}
	defer s.running.Store(false)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	swept := s.w.Sweep()
	failed, err := s.w.Warm(ctx)
	if err != nil {
		metrics.WarmRunsTotal.WithLabelValues("error").Inc()
		logger.L().Warn("warm_error", "failed", failed, "err", err, "swept", swept)
		return true
	}
	metrics.WarmRunsTotal.WithLabelValues("ok").Inc()
	logger.L().Debug("warm_ok", "swept", swept)
	return true
}

// Next：下一次调度时间
func (s *Scheduler) Next() time.Time { return s.c.Entry(s.entry).Next }

// Stop：停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}
