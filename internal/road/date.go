package road

import (
	"regexp"
	"time"
)

// 存储日期格式：DD.MM.YYYY（自由文本列）
const StoredDateLayout = "02.01.2006"

// 用户输入日期格式：ISO YYYY-MM-DD
const InputDateLayout = "2006-01-02"

var storedDatePattern = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)

// 文档注释：解析存储的日期文本
// 背景：列为自由文本，存在 "2024-02-31"、空串、"31.02.2024" 等脏数据；先做格式匹配再做日历校验。
// 返回：合法日期与 true；格式不符或日历非法（含 0000 年）一律返回 false，不报错。
func ParseStoredDate(s string) (time.Time, bool) {
	if !storedDatePattern.MatchString(s) {
		return time.Time{}, false
	}
	t, err := time.Parse(StoredDateLayout, s)
	if err != nil || t.Year() < 1 {
		return time.Time{}, false
	}
	return t, true
}
