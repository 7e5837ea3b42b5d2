// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/api"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/cache"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/engine"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/geo"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/logger"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/metrics"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/middleware"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/report"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/store"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/taxonomy"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/utils"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/version"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/warm"
)

// 地图默认视图（拉特纳吉里县中心）
const (
	mapCenterLat = 17.0
	mapCenterLon = 73.3
	mapZoom      = 10
)

func main() {
	utils.LoadEnvFiles()
	// 日志初始化
	l := logger.Setup()
	l.Debug("log_init_ok", "commit", version.Commit)
	apiBase := utils.EnvString("API_BASE", "/api")
	l.Debug("config_api_base", "base", apiBase)
	ui := utils.EnvString("UI_DIST", filepath.Join("ui", "dist"))
	l.Debug("config_ui_dir", "dir", ui)

	reg, err := taxonomy.LoadFile(os.Getenv("TAXONOMY_PATH"))
	if err != nil {
		l.Error("taxonomy_error", "err", err)
		os.Exit(1)
	}
	l.Info("taxonomy_ok", "version", reg.Version(), "categories", len(reg.Categories()))

	db, pc, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	l.Info("db_open_ok", "max_open", pc.MaxOpen, "max_idle", pc.MaxIdle)
	if err := db.Ping(); err != nil {
		// 数据库暂不可达时仍启动：分类、报表目录与静态图层可用，查询返回 503
		l.Error("db_ping_error", "err", err)
	} else {
		l.Info("db_ping_ok")
	}
	exec := store.NewExecutor(store.FromDB(db), store.Config{
		MaxConcurrent: int64(pc.MaxOpen),
		PoolWait:      pc.Wait,
		QueryTimeout:  pc.QueryTimeout,
	})
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		cols := append(reg.Columns(), report.Columns()...)
		if missing, err := exec.VerifySchema(ctx, reg.Table(), cols); err != nil {
			l.Warn("schema_check_skipped", "err", err)
		} else if len(missing) == 0 {
			l.Info("schema_ok", "table", reg.Table())
		}
		cancel()
	}

	ttl := utils.EnvSeconds("CACHE_TTL_S", cache.DefaultTTL)
	results := cache.New[*store.ResultSet](ttl)
	labels := cache.New[[]string](ttl)
	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		if err := rc.Ping(context.Background()).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
		results.WithTier(cache.NewRedisTier[*store.ResultSet](rc, "q"))
		labels.WithTier(cache.NewRedisTier[[]string](rc, "labels"))
	}
	eng := engine.New(reg, exec, results, labels)

	sched, err := warm.Start(os.Getenv("WARM_CRON"), eng, utils.EnvSeconds("WARM_TIMEOUT_S", time.Minute))
	if err != nil {
		l.Error("warm_schedule_error", "err", err)
		os.Exit(1)
	}
	if sched != nil {
		defer sched.Stop()
		go sched.RunOnce(context.Background())
	}

	// 静态图层：加载失败只影响对应接口
	layers := map[string]*geo.Layer{}
	for name, path := range map[string]string{
		"district": utils.EnvString("DISTRICT_LAYER_PATH", filepath.Join("data", "layers", "district.geojson")),
		"roads":    utils.EnvString("ROAD_LAYER_PATH", filepath.Join("data", "layers", "roads.geojson")),
	} {
		ly, err := geo.LoadLayer(name, path)
		if err != nil {
			l.Warn("layer_load_error", "name", name, "path", path, "err", err)
			continue
		}
		layers[name] = ly
		l.Info("layer_ready", "name", name, "features", len(ly.Features))
	}

	adminToken := os.Getenv("ADMIN_TOKEN")
	rawEnabled := utils.EnvBool("RAW_QUERY_ENABLED", false)
	if rawEnabled {
		l.Warn("raw_query_enabled", "token_set", adminToken != "")
	}

	mux := http.NewServeMux()
	apiMux := api.BuildRoutes(eng, api.Options{Layers: layers, RawEnabled: rawEnabled, AdminToken: adminToken})
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())
	// 运维接口：清理已过期条目并重新预热；未过期的条目保持不变，数据变更仍按 TTL 生效
	mux.HandleFunc(apiBase+"/admin/warm", func(w http.ResponseWriter, r *http.Request) {
		t := r.Header.Get(api.AdminTokenHeader)
		if adminToken == "" || subtle.ConstantTimeCompare([]byte(t), []byte(adminToken)) != 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		swept := eng.Sweep()
		failed, err := eng.Warm(r.Context())
		if err != nil {
			l.Error("admin_warm_error", "failed", failed, "err", err)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		l.Info("admin_warm_ok", "swept", swept)
		w.WriteHeader(http.StatusNoContent)
	})

	fs := http.FileServer(http.Dir(ui))
	mux.Handle("/", fs)

	// NOTE: 向前端暴露 API 基础路径与地图默认视图，避免硬编码
	mux.HandleFunc("/config.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/javascript; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_, _ = fmt.Fprintf(w, "window.__API_BASE__='%s'\n", apiBase)
		_, _ = fmt.Fprintf(w, "window.__MAP_CENTER__=[%g,%g]\n", mapCenterLat, mapCenterLon)
		_, _ = fmt.Fprintf(w, "window.__MAP_ZOOM__=%d\n", mapZoom)
		_, _ = fmt.Fprintf(w, "window.__COMMIT_SHA__='%s'", version.Commit)
	})

	addr := utils.EnvString("ADDR", ":8080")
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	if utils.EnvBool("TLS_ENABLE", false) {
		certPath := utils.EnvString("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt"))
		keyPath := utils.EnvString("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key"))
		if err := utils.EnsureSelfSignedCert(certPath, keyPath, "roaddb.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", addr, "cert", certPath)
		if err := s.ListenAndServeTLS(certPath, keyPath); err != nil {
			l.Error("server_error", "err", err)
		}
		return
	}
	l.Info("listening", "addr", addr)
	if err := s.ListenAndServe(); err != nil {
		l.Error("server_error", "err", err)
	}
}
