package store

import (
	"context"
	"database/sql"

	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/logger"
)

// 文档注释：启动时只读校验表结构
// 背景：道路表由 shapefile 导入生成，列名随导入工具变化；缺列时查询会在运行期才失败，提前在日志中暴露。
// 约束：不创建、不修改任何结构；返回缺失列（按传入顺序），表不存在时全部列视为缺失。
func (e *Executor) VerifySchema(ctx context.Context, table string, columns []string) ([]string, error) {
	present := map[string]bool{}
	err := e.run(ctx, "schema", `SELECT column_name FROM information_schema.columns WHERE table_name = $1`, []any{table}, func(rows Rows) error {
		for rows.Next() {
			var c sql.NullString
			if err := rows.Scan(&c); err != nil {
				return err
			}
			if c.Valid {
				present[c.String] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var missing []string
	seen := map[string]bool{}
	for _, c := range columns {
		if seen[c] {
			continue
		}
		seen[c] = true
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		logger.L().Warn("schema_missing_columns", "table", table, "columns", missing)
	} else {
		logger.L().Debug("schema_ok", "table", table, "columns", len(seen))
	}
	return missing, nil
}
