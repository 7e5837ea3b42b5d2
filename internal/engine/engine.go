// 包 engine：把分类表、谓词编译、报表目录、执行器与结果缓存组合为对外操作
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/cache"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/logger"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/metrics"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/predicate"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/report"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/store"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/taxonomy"
)

// Executor：store.Executor 的行为子集
type Executor interface {
	Execute(ctx context.Context, text string, args ...any) (*store.ResultSet, error)
	ExecuteTabular(ctx context.Context, text string, args ...any) (*store.ResultSet, error)
	Distinct(ctx context.Context, table, column string) ([]string, error)
}

// 文档注释：查询引擎
// 背景：请求之间无状态，只共享只读的分类表/报表目录与可变的结果缓存。
// 约束：查询结果与实时去重值分别缓存，二者使用相同 TTL；Others 因此最多滞后一个 TTL。
type Engine struct {
	reg      *taxonomy.Registry
	compiler *predicate.Compiler
	exec     Executor
	results  *cache.Cache[*store.ResultSet]
	labels   *cache.Cache[[]string]
}

// New：results/labels 为 nil 时按默认 TTL 创建进程内缓存
func New(reg *taxonomy.Registry, exec Executor, results *cache.Cache[*store.ResultSet], labels *cache.Cache[[]string]) *Engine {
	if results == nil {
		results = cache.New[*store.ResultSet](cache.DefaultTTL)
	}
	if labels == nil {
		labels = cache.New[[]string](results.TTL())
	}
	e := &Engine{reg: reg, exec: exec, results: results, labels: labels}
	e.compiler = predicate.New(reg, e)
	return e
}

func (e *Engine) Registry() *taxonomy.Registry { return e.reg }

// Sweep：清理两级进程内缓存中的过期条目
func (e *Engine) Sweep() int { return e.results.Sweep() + e.labels.Sweep() }

// FilterResult：编译后的查询与结果集
type FilterResult struct {
	Query  predicate.Query
	Result *store.ResultSet
}

func compileErrorKind(err error) string {
	switch {
	case errors.Is(err, predicate.ErrNoFilter):
		return "no_filter"
	case errors.Is(err, taxonomy.ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, predicate.ErrInvalidInput):
		return "invalid_input"
	}
	return "other"
}

// Compile：仅编译不执行（CLI 与调试接口使用）
func (e *Engine) Compile(ctx context.Context, category string, sel predicate.Selection, region string) (predicate.Query, error) {
	q, err := e.compiler.Compile(ctx, category, sel, region)
	if err != nil {
		metrics.CompileErrorsTotal.WithLabelValues(compileErrorKind(err)).Inc()
		return predicate.Query{}, err
	}
	return q, nil
}

// 文档注释：按分类选择过滤道路
// 返回：NoFilter/InvalidInput/DataUnavailable 来自编译阶段；ResourceExhausted/QueryError 来自执行阶段。
func (e *Engine) Filter(ctx context.Context, category string, sel predicate.Selection, region string) (*FilterResult, error) {
	q, err := e.Compile(ctx, category, sel, region)
	if err != nil {
		return nil, err
	}
	rs, err := e.results.GetOrCompute(ctx, "filter\x00"+q.Key(), 0, func(ctx context.Context) (*store.ResultSet, error) {
		return e.exec.Execute(ctx, q.Text, q.Args...)
	})
	if err != nil {
		return nil, err
	}
	logger.L().Debug("filter_ok", "category", category, "region", region, "rows", len(rs.Features), "request_id", logger.RequestID(ctx))
	return &FilterResult{Query: q, Result: rs}, nil
}

// Report：执行目录中的报表；需要几何的走空间执行器，其余走表格执行器
func (e *Engine) Report(ctx context.Context, name string) (report.Definition, *store.ResultSet, error) {
	def, err := report.Lookup(name)
	if err != nil {
		return report.Definition{}, nil, err
	}
	rs, err := e.results.GetOrCompute(ctx, "report\x00"+def.Name, 0, func(ctx context.Context) (*store.ResultSet, error) {
		if def.RequiresGeometry {
			return e.exec.Execute(ctx, def.SQL)
		}
		return e.exec.ExecuteTabular(ctx, def.SQL)
	})
	if err != nil {
		return def, nil, err
	}
	return def, rs, nil
}

// 文档注释：分类对应列的实时去重值
// 约束：仅支持单列分类（日期/比较类没有单一列）；存储失败包装为 DataUnavailable，并保留原始错误链。
func (e *Engine) Distinct(ctx context.Context, category string) ([]string, error) {
	cat, err := e.reg.Category(category)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", predicate.ErrInvalidInput, err)
	}
	if cat.Column == "" {
		return nil, fmt.Errorf("%w: %s has no single backing column", predicate.ErrInvalidInput, category)
	}
	vals, err := e.labels.GetOrCompute(ctx, "distinct\x00"+cat.Column, 0, func(ctx context.Context) ([]string, error) {
		return e.exec.Distinct(ctx, e.reg.Table(), cat.Column)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", taxonomy.ErrDataUnavailable, err)
	}
	return vals, nil
}

// Others：实现 predicate.OthersResolver
func (e *Engine) Others(ctx context.Context, category string) ([]string, error) {
	cat, err := e.reg.Category(category)
	if err != nil {
		return nil, err
	}
	if !cat.Others {
		return nil, nil
	}
	live, err := e.Distinct(ctx, category)
	if err != nil {
		return nil, err
	}
	return e.reg.OthersFor(category, live)
}

// 文档注释：可选标签（预置分组 + Others）
// 返回：Others 无法计算时仍返回预置分组标签，同时返回 DataUnavailable 错误供调用方展示。
func (e *Engine) Selectable(ctx context.Context, category string) ([]string, error) {
	others, oerr := e.Others(ctx, category)
	if oerr != nil && !errors.Is(oerr, taxonomy.ErrDataUnavailable) {
		return nil, oerr
	}
	labels, err := e.reg.AllSelectableLabels(category, others)
	if err != nil {
		return nil, err
	}
	if oerr != nil {
		logger.L().Warn("others_unavailable", "category", category, "err", oerr, "request_id", logger.RequestID(ctx))
	}
	return labels, oerr
}

// Raw：直接执行一条语句（旧版调试通道，调用方负责鉴权）；不经过缓存
func (e *Engine) Raw(ctx context.Context, text string) (*store.ResultSet, error) {
	logger.L().Warn("raw_query", "len", len(text), "request_id", logger.RequestID(ctx))
	return e.exec.Execute(ctx, text)
}

// 文档注释：预热
// 背景：统计报表与 Others 标签是首页最常访问的数据；定时任务补齐缺失或已过期的条目，命中的条目不重复取数。
// 返回：失败的报表数量与首个错误；单个失败不影响其余项。
func (e *Engine) Warm(ctx context.Context) (int, error) {
	start := time.Now()
	failed := 0
	var first error
	for _, name := range report.Names() {
		if _, _, err := e.Report(ctx, name); err != nil {
			failed++
			if first == nil {
				first = err
			}
		}
	}
	for _, c := range e.reg.Categories() {
		if !c.Others {
			continue
		}
		if _, err := e.Others(ctx, c.Name); err != nil {
			failed++
			if first == nil {
				first = err
			}
		}
	}
	logger.L().Info("cache_warm_done", "failed", failed, "duration_ms", time.Since(start).Milliseconds())
	return failed, first
}
