package utils

import (
	"database/sql"
	"net/url"
	"time"

	_ "github.com/lib/pq"
)

// PoolConfig：连接池与查询时限
// 背景：默认 15 个连接（5 常驻 + 10 溢出），等待上限 5s，单条查询 30s。
type PoolConfig struct {
	MaxOpen      int
	MaxIdle      int
	Wait         time.Duration
	QueryTimeout time.Duration
}

// PoolConfigFromEnv：PG_MAX_OPEN_CONNS / PG_MAX_IDLE_CONNS / PG_POOL_WAIT_MS / PG_QUERY_TIMEOUT_MS
func PoolConfigFromEnv() PoolConfig {
	c := PoolConfig{
		MaxOpen:      EnvInt("PG_MAX_OPEN_CONNS", 15),
		MaxIdle:      EnvInt("PG_MAX_IDLE_CONNS", 5),
		Wait:         EnvMillis("PG_POOL_WAIT_MS", 5*time.Second),
		QueryTimeout: EnvMillis("PG_QUERY_TIMEOUT_MS", 30*time.Second),
	}
	if c.MaxOpen <= 0 {
		c.MaxOpen = 15
	}
	if c.MaxIdle < 0 || c.MaxIdle > c.MaxOpen {
		c.MaxIdle = c.MaxOpen
	}
	return c
}

// BuildPostgresDSNFromEnv：拼接连接串；口令经 URL 编码，日志中不要打印返回值
func BuildPostgresDSNFromEnv() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   EnvString("PG_HOST", "localhost") + ":" + EnvString("PG_PORT", "5432"),
		Path:   "/" + EnvString("PG_DB", "testing1"),
	}
	user := EnvString("PG_USER", "postgres")
	if pass := EnvString("PG_PASSWORD", ""); pass != "" {
		u.User = url.UserPassword(user, pass)
	} else {
		u.User = url.User(user)
	}
	q := url.Values{}
	q.Set("sslmode", EnvString("PG_SSLMODE", "disable"))
	u.RawQuery = q.Encode()
	return u.String()
}

// OpenPostgres：打开连接并应用连接池上限；不做连通性检查（由调用方 Ping）
func OpenPostgres(dsn string, pc PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(pc.MaxOpen)
	db.SetMaxIdleConns(pc.MaxIdle)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func OpenPostgresFromEnv() (*sql.DB, PoolConfig, error) {
	pc := PoolConfigFromEnv()
	db, err := OpenPostgres(BuildPostgresDSNFromEnv(), pc)
	return db, pc, err
}
