// 包 api：集中注册 HTTP API 路由以解耦主入口，便于在 /api 前缀下挂载
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/engine"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/geo"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/metrics"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/predicate"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/report"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/taxonomy"
)

const maxBodyBytes = 1 << 20

// AdminTokenHeader：调试通道鉴权头，与运维接口共用
const AdminTokenHeader = "x-admin-token"

// 文档注释：路由选项
// 背景：静态图层在启动时加载，按名称（district / roads）挂载；原始 SQL 通道默认关闭。
type Options struct {
	Layers     map[string]*geo.Layer
	RawEnabled bool
	AdminToken string
}

// categoryView：分类定义 + 范围类可选比较方式
type categoryView struct {
	taxonomy.Category
	Operators []string `json:"operators,omitempty"`
}

type queryRequest struct {
	Category string `json:"category"`
	Region   string `json:"region"`
	predicate.Selection
}

type queryResponse struct {
	Category string                `json:"category"`
	SQL      string                `json:"sql"`
	Args     []any                 `json:"args"`
	Count    int                   `json:"count"`
	GeoJSON  geo.FeatureCollection `json:"geojson"`
}

type reportView struct {
	Name             string   `json:"name"`
	RequiresGeometry bool     `json:"requires_geometry"`
	Columns          []string `json:"columns"`
}

type reportResponse struct {
	Name    string                 `json:"name"`
	Columns []string               `json:"columns"`
	Count   int                    `json:"count"`
	Rows    []map[string]any       `json:"rows,omitempty"`
	GeoJSON *geo.FeatureCollection `json:"geojson,omitempty"`
}

// instrument：按路由统计请求数与耗时
func instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.RequestsTotal.WithLabelValues(route).Inc()
		h(w, r)
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	}
}

// 构建并返回 API 路由：独立 ServeMux 便于在主入口挂载到 /api 前缀
func BuildRoutes(eng *engine.Engine, opts Options) *http.ServeMux {
	apiMux := http.NewServeMux()

	apiMux.HandleFunc("GET /categories", instrument("categories", func(w http.ResponseWriter, r *http.Request) {
		cats := eng.Registry().Categories()
		out := make([]categoryView, 0, len(cats))
		for _, c := range cats {
			v := categoryView{Category: c}
			if c.Kind == taxonomy.KindRange {
				v.Operators = predicate.RangeOperators()
			}
			out = append(out, v)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"categories": out,
			"regions":    append([]string{taxonomy.AllRegions}, eng.Registry().Regions()...),
		})
	}))

	apiMux.HandleFunc("GET /categories/labels", instrument("labels", func(w http.ResponseWriter, r *http.Request) {
		category := r.URL.Query().Get("category")
		labels, err := eng.Selectable(r.Context(), category)
		if err != nil {
			// 降级：Others 不可用时仍返回预置分组
			writeError(w, r, err, labels)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"category": category, "labels": labels})
	}))

	distinct := func(w http.ResponseWriter, r *http.Request, category string) {
		vals, err := eng.Distinct(r.Context(), category)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"category": category, "values": vals})
	}
	apiMux.HandleFunc("GET /distinct", instrument("distinct", func(w http.ResponseWriter, r *http.Request) {
		distinct(w, r, r.URL.Query().Get("category"))
	}))
	apiMux.HandleFunc("GET /unique-statuses", instrument("unique_statuses", func(w http.ResponseWriter, r *http.Request) {
		distinct(w, r, "Current Status")
	}))

	apiMux.HandleFunc("POST /query", instrument("query", func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		res, err := eng.Filter(r.Context(), req.Category, req.Selection, req.Region)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, queryResponse{
			Category: res.Query.Category,
			SQL:      res.Query.Text,
			Args:     res.Query.Args,
			Count:    len(res.Result.Features),
			GeoJSON:  res.Result.Collection(),
		})
	}))

	apiMux.HandleFunc("GET /reports", instrument("reports", func(w http.ResponseWriter, r *http.Request) {
		defs := report.All()
		out := make([]reportView, 0, len(defs))
		for _, d := range defs {
			out = append(out, reportView{Name: d.Name, RequiresGeometry: d.RequiresGeometry, Columns: d.Columns})
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": out})
	}))

	apiMux.HandleFunc("GET /reports/run", instrument("report_run", func(w http.ResponseWriter, r *http.Request) {
		def, rs, err := eng.Report(r.Context(), r.URL.Query().Get("name"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := reportResponse{Name: def.Name, Columns: rs.Columns, Count: len(rs.Features)}
		if def.RequiresGeometry {
			fc := rs.Collection()
			out.GeoJSON = &fc
		} else {
			out.Rows = rs.Rows()
		}
		writeJSON(w, http.StatusOK, out)
	}))

	apiMux.HandleFunc("GET /layers/{name}", instrument("layers", func(w http.ResponseWriter, r *http.Request) {
		l, ok := opts.Layers[r.PathValue("name")]
		if !ok || l == nil {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "layer not found", Kind: "not_found"})
			return
		}
		w.Header().Set("content-type", "application/geo+json; charset=utf-8")
		w.Header().Set("cache-control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(l.Collection())
	}))

	apiMux.HandleFunc("GET /locate", instrument("locate", func(w http.ResponseWriter, r *http.Request) {
		l := opts.Layers["district"]
		if l == nil {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "district layer not loaded", Kind: "not_found"})
			return
		}
		pt, err := parsePoint(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		f, ok := l.Locate(pt)
		if !ok {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "point outside district", Kind: "not_found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"lat": pt.Lat, "lon": pt.Lon, "properties": f.Properties})
	}))

	// 旧版调试通道：任意语句直通存储，存在注入风险，默认关闭
	apiMux.HandleFunc("POST /query/raw", instrument("query_raw", func(w http.ResponseWriter, r *http.Request) {
		if !opts.RawEnabled {
			http.NotFound(w, r)
			return
		}
		tok := r.Header.Get(AdminTokenHeader)
		if opts.AdminToken == "" || subtle.ConstantTimeCompare([]byte(tok), []byte(opts.AdminToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Kind: "unauthorized"})
			return
		}
		var req struct {
			SQL string `json:"sql"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if req.SQL == "" {
			writeError(w, r, fmt.Errorf("%w: empty statement", predicate.ErrInvalidInput), nil)
			return
		}
		rs, err := eng.Raw(r.Context(), req.SQL)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(rs.Features), "geojson": rs.Collection()})
	}))

	return apiMux
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %v", predicate.ErrInvalidInput, err)
	}
	return nil
}

func parsePoint(r *http.Request) (geo.Point, error) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err := errors.Join(err1, err2); err != nil {
		return geo.Point{}, fmt.Errorf("%w: lat/lon: %v", predicate.ErrInvalidInput, err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return geo.Point{}, fmt.Errorf("%w: lat/lon out of range", predicate.ErrInvalidInput)
	}
	return geo.Point{Lat: lat, Lon: lon}, nil
}
