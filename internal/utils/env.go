// 包 utils：环境变量读取、数据库/Redis 连接、TLS 证书等进程级工具
package utils

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnvFiles：依次加载 .env 与 data/env/.env；文件不存在时静默跳过，已存在的环境变量不被覆盖
func LoadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
}

// EnvString：读取字符串，未设置或为空时返回默认值
func EnvString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// EnvInt：读取整数，解析失败回退默认值
func EnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// EnvBool：仅识别 true/false（大小写不敏感），其余取默认值
func EnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true":
		return true
	case "false":
		return false
	}
	return def
}

// EnvMillis：读取毫秒数并转换为 Duration；非正数回退默认值
func EnvMillis(key string, def time.Duration) time.Duration {
	if n := EnvInt(key, 0); n > 0 {
		return time.Duration(n) * time.Millisecond
	}
	return def
}

// EnvSeconds：读取秒数并转换为 Duration；非正数回退默认值
func EnvSeconds(key string, def time.Duration) time.Duration {
	if n := EnvInt(key, 0); n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
