// 包 store：空间查询执行器，负责有界并发、单次执行、几何解码与坐标系归一
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/semaphore"

	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/geo"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/logger"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/metrics"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/road"
)

var ErrResourceExhausted = errors.New("store: no connection available within wait bound")

// QueryError：存储层执行失败，Err 原样保留驱动返回的消息
type QueryError struct {
	Path string
	Err  error
}

func (e *QueryError) Error() string { return "query failed: " + e.Err.Error() }
func (e *QueryError) Unwrap() error { return e.Err }

// Rows：*sql.Rows 的最小子集，测试中用假实现替代
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Querier：执行只读语句
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

type dbQuerier struct{ db *sql.DB }

func (q dbQuerier) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	return q.db.QueryContext(ctx, query, args...)
}

// FromDB：把 *sql.DB 适配为 Querier
func FromDB(db *sql.DB) Querier { return dbQuerier{db: db} }

// Config：并发上限与等待/执行时限；GeomColumn 为空时使用 geom
type Config struct {
	MaxConcurrent int64
	PoolWait      time.Duration
	QueryTimeout  time.Duration
	GeomColumn    string
}

// 文档注释：查询执行器
// 背景：连接池在高峰期被耗尽时不能无限排队；用加权信号量限制同时在途的查询数，等待超过上限即失败。
// 约束：每次调用只执行一次，不重试；进程内共享，并发安全。
type Executor struct {
	q   Querier
	sem *semaphore.Weighted
	cfg Config
}

func NewExecutor(q Querier, cfg Config) *Executor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 15
	}
	if cfg.PoolWait <= 0 {
		cfg.PoolWait = 5 * time.Second
	}
	if cfg.GeomColumn == "" {
		cfg.GeomColumn = road.ColGeom
	}
	return &Executor{q: q, sem: semaphore.NewWeighted(cfg.MaxConcurrent), cfg: cfg}
}

const (
	geomJSONCol = "__geom_json"
	geomSRIDCol = "__geom_srid"
)

// acquire：等待执行槽位；调用方上下文结束时返回其错误，等待超时返回 ErrResourceExhausted
func (e *Executor) acquire(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, e.cfg.PoolWait)
	defer cancel()
	if err := e.sem.Acquire(wctx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.PoolExhaustedTotal.Inc()
		return ErrResourceExhausted
	}
	return nil
}

func (e *Executor) run(ctx context.Context, path, text string, args []any, fn func(Rows) error) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.sem.Release(1)
	if e.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.QueryTimeout)
		defer cancel()
	}
	start := time.Now()
	metrics.QueriesTotal.WithLabelValues(path).Inc()
	err := func() error {
		rows, err := e.q.QueryContext(ctx, text, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		if err := fn(rows); err != nil {
			return err
		}
		return rows.Err()
	}()
	dur := time.Since(start)
	metrics.QueryDurationMs.WithLabelValues(path).Observe(float64(dur.Milliseconds()))
	if err != nil {
		metrics.QueryErrorsTotal.WithLabelValues(path).Inc()
		logger.L().Warn("store_query_error", "path", path, "err", err, "duration_ms", dur.Milliseconds(), "request_id", logger.RequestID(ctx))
		var qe *QueryError
		if errors.As(err, &qe) || errors.Is(err, geo.ErrUnsupportedCRS) {
			return err
		}
		return &QueryError{Path: path, Err: err}
	}
	logger.L().Debug("store_query_ok", "path", path, "duration_ms", dur.Milliseconds())
	return nil
}

// 文档注释：执行返回几何的查询
// 背景：额外取出 ST_AsGeoJSON 与 ST_SRID；几何按 SRID 归一到 EPSG:4326（SRID 0 视为已归一）。
// 约束：以 "SELECT *" 开头的语句（编译器与报表目录的产物）直接在选择列表中追加几何列，语句自身的 ORDER BY 原样生效；
// 其余语句包装为子查询，行顺序不作保证。
// 返回：ResultSet，属性中不含原始 geom 列；几何为空的行保留且 Geometry 为 nil。
func (e *Executor) Execute(ctx context.Context, text string, args ...any) (*ResultSet, error) {
	rs := &ResultSet{}
	err := e.run(ctx, "spatial", e.withGeometry(text), args, func(rows Rows) error {
		return rs.scan(rows, e.cfg.GeomColumn, true)
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

const selectAll = "SELECT *"

func (e *Executor) withGeometry(text string) string {
	g := quoteIdent(e.cfg.GeomColumn)
	if rest, ok := strings.CutPrefix(text, selectAll); ok && (rest == "" || rest[0] == ' ' || rest[0] == ',') {
		return selectAll + `, ST_AsGeoJSON(` + g + `) AS "` + geomJSONCol + `", ST_SRID(` + g + `) AS "` + geomSRIDCol + `"` + rest
	}
	return `SELECT q.*, ST_AsGeoJSON(q.` + g + `) AS "` + geomJSONCol + `", ST_SRID(q.` + g + `) AS "` + geomSRIDCol + `" FROM (` + text + `) AS q`
}

// ExecuteTabular：执行不含几何的查询（聚合报表），跳过坐标系处理
func (e *Executor) ExecuteTabular(ctx context.Context, text string, args ...any) (*ResultSet, error) {
	rs := &ResultSet{}
	err := e.run(ctx, "tabular", text, args, func(rows Rows) error {
		return rs.scan(rows, "", false)
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// 文档注释：读取列的实时去重值
// 约束：table/column 必须来自已校验的分类表；结果排除 NULL、空串与纯空白值（与缺失同等对待，不可选择），按字典序返回。
func (e *Executor) Distinct(ctx context.Context, table, column string) ([]string, error) {
	c := quoteIdent(column)
	text := `SELECT DISTINCT ` + c + `::text FROM ` + quoteIdent(table) + ` WHERE ` + c + ` IS NOT NULL AND ` + c + `::text ~ '\S' ORDER BY 1`
	var out []string
	err := e.run(ctx, "distinct", text, nil, func(rows Rows) error {
		for rows.Next() {
			var v sql.NullString
			if err := rows.Scan(&v); err != nil {
				return err
			}
			if v.Valid && strings.TrimSpace(v.String) != "" {
				out = append(out, v.String)
			}
		}
		return nil
	})
	return out, err
}

// ResultSet：按存储返回顺序排列的记录；表格查询的 Feature 不带几何
type ResultSet struct {
	Columns  []string      `json:"columns"`
	Features []geo.Feature `json:"features"`
}

func (rs *ResultSet) scan(rows Rows, geomCol string, spatial bool) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	for _, c := range cols {
		if spatial && (c == geomCol || c == geomJSONCol || c == geomSRIDCol) {
			continue
		}
		rs.Columns = append(rs.Columns, c)
	}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		props := make(map[string]any, len(cols))
		var (
			gjson string
			srid  int
		)
		for i, c := range cols {
			switch {
			case spatial && c == geomJSONCol:
				gjson = textValue(vals[i])
			case spatial && c == geomSRIDCol:
				srid = intValue(vals[i])
			case spatial && c == geomCol:
			default:
				props[c] = normalizeValue(vals[i])
			}
		}
		f := geo.NewFeature(props, nil)
		if gjson != "" {
			g, err := decodeGeometry(gjson, srid)
			if err != nil {
				return err
			}
			f.Geometry = g
		}
		rs.Features = append(rs.Features, f)
	}
	return nil
}

func decodeGeometry(s string, srid int) (*geo.Geometry, error) {
	var g geo.Geometry
	if err := json.Unmarshal([]byte(s), &g); err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	g.SRID = srid
	return geo.Normalize(&g)
}

// normalizeValue：驱动返回的 numeric 为 []byte 文本，能解析为有限数值的转为 float64，其余转为字符串
// 约束：NaN / Infinity 保留为文本，JSON 编码与 Redis 序列化不接受非有限浮点数
func normalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		if f, err := strconv.ParseFloat(string(x), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
		return string(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return strconv.FormatFloat(x, 'g', -1, 64)
		}
	case float32:
		if f := float64(x); math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 32)
		}
	}
	return v
}

func quoteIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

func textValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	}
	return ""
}

func intValue(v any) int {
	switch x := v.(type) {
	case int64:
		return int(x)
	case int:
		return x
	case float64:
		return int(x)
	case []byte:
		n, _ := strconv.Atoi(string(x))
		return n
	case string:
		n, _ := strconv.Atoi(x)
		return n
	}
	return 0
}

// Rows：表格视图（列名 → 值），顺序与 Columns 一致
func (rs *ResultSet) Rows() []map[string]any {
	out := make([]map[string]any, len(rs.Features))
	for i, f := range rs.Features {
		out[i] = f.Properties
	}
	return out
}

// Records：解码为道路记录（几何已归一）
func (rs *ResultSet) Records() []road.Record {
	out := make([]road.Record, len(rs.Features))
	for i, f := range rs.Features {
		out[i] = road.FromProperties(f.Properties, f.Geometry)
	}
	return out
}

// Collection：转为 GeoJSON FeatureCollection
func (rs *ResultSet) Collection() geo.FeatureCollection {
	return geo.NewFeatureCollection(rs.Features)
}
