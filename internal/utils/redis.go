package utils

import (
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/logger"
)

// OpenRedisFromEnv：REDIS_ENABLE=true 时按 REDIS_HOST/REDIS_PORT/REDIS_PASS/REDIS_DB 打开客户端
// 约束：未启用时返回 nil（结果缓存只使用进程内一级）；REDIS_DB 非法时回退到 0
func OpenRedisFromEnv() *redis.Client {
	if !EnvBool("REDIS_ENABLE", false) {
		return nil
	}
	addr := EnvString("REDIS_HOST", "127.0.0.1") + ":" + EnvString("REDIS_PORT", "6379")
	db := EnvInt("REDIS_DB", 0)
	if db < 0 {
		db = 0
	}
	logger.L().Debug("redis_env", "addr", addr, "db", strconv.Itoa(db))
	return redis.NewClient(&redis.Options{Addr: addr, Password: EnvString("REDIS_PASS", ""), DB: db})
}
