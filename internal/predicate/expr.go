package predicate

import (
	"strconv"
	"strings"
	"time"

	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/road"
)

// 文档注释：谓词表达式树
// 背景：同一棵树既渲染为参数化 SQL（值一律走 $n 绑定），也可在内存中对记录求值（离线图层过滤与测试）。
// 约束：列名只来自分类表（加载时已校验标识符格式），值只来自闭集词表或已校验的数值/日期。
type Expr interface {
	render(b *builder, top bool)
	Match(r road.Record) bool
}

type builder struct {
	sb   strings.Builder
	args []any
	pos  map[string]int
}

// bind：绑定参数并返回占位符；相同类型相同值复用同一占位符（区域条件在每个分支重复出现）
func (b *builder) bind(v any) string {
	k := argKey(v)
	if b.pos == nil {
		b.pos = map[string]int{}
	}
	if i, ok := b.pos[k]; ok {
		return "$" + strconv.Itoa(i)
	}
	b.args = append(b.args, v)
	i := len(b.args)
	b.pos[k] = i
	return "$" + strconv.Itoa(i)
}

func argKey(v any) string {
	switch x := v.(type) {
	case float64:
		return "f:" + strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return "s:" + strconv.Quote(x)
	}
	return "?"
}

func quoteIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

func compare(op string, a, b float64) bool {
	switch op {
	case ">":
		return a > b
	case "<":
		return a < b
	case "=":
		return a == b
	}
	return false
}

// numCmp：列 与 数值 比较
type numCmp struct {
	Column string
	Op     string
	Value  float64
}

func (e numCmp) render(b *builder, _ bool) {
	b.sb.WriteString(quoteIdent(e.Column) + " " + e.Op + " " + b.bind(e.Value))
}

func (e numCmp) Match(r road.Record) bool {
	v, ok := r.Number(e.Column)
	return ok && compare(e.Op, v, e.Value)
}

// colCmp：列 与 列 比较（支出与批复金额对比）
type colCmp struct {
	Left  string
	Op    string
	Right string
}

func (e colCmp) render(b *builder, _ bool) {
	b.sb.WriteString(quoteIdent(e.Left) + " " + e.Op + " " + quoteIdent(e.Right))
}

func (e colCmp) Match(r road.Record) bool {
	a, ok1 := r.Number(e.Left)
	c, ok2 := r.Number(e.Right)
	return ok1 && ok2 && compare(e.Op, a, c)
}

type textEq struct {
	Column string
	Value  string
}

func (e textEq) render(b *builder, _ bool) {
	b.sb.WriteString(quoteIdent(e.Column) + " = " + b.bind(e.Value))
}

func (e textEq) Match(r road.Record) bool {
	v, ok := r.Text(e.Column)
	return ok && v == e.Value
}

// prefix：前缀匹配，LIKE 元字符转义后追加 %
type prefix struct {
	Column string
	Value  string
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (e prefix) render(b *builder, _ bool) {
	b.sb.WriteString(quoteIdent(e.Column) + ` LIKE ` + b.bind(likeEscaper.Replace(e.Value)+"%") + ` ESCAPE '\'`)
}

func (e prefix) Match(r road.Record) bool {
	v, ok := r.Text(e.Column)
	return ok && strings.HasPrefix(v, e.Value)
}

// 文档注释：存储日期比较
// 背景：日期列为 DD.MM.YYYY 自由文本；to_date 遇到 31.02.2024 之类会报错，因此用逐层 CASE 保证
// 只有格式匹配且日历合法的文本才会被转换，其余得到 NULL 并在比较中被排除。
// 约束：PostgreSQL 不保证 AND 的求值顺序，校验必须放在嵌套 CASE 中而不是 AND 链中。
type storedDate struct {
	Column string
	Op     string
	Date   time.Time
}

func safeDateSQL(col string) string {
	c := quoteIdent(col)
	dd := "substr(" + c + ", 1, 2)::int"
	mm := "substr(" + c + ", 4, 2)::int"
	yyyy := "substr(" + c + ", 7, 4)::int"
	return "CASE WHEN " + c + ` ~ '^\d{2}\.\d{2}\.\d{4}$' THEN ` +
		"CASE WHEN " + mm + " BETWEEN 1 AND 12 AND " + yyyy + " >= 1 THEN " +
		"CASE WHEN " + dd + " BETWEEN 1 AND EXTRACT(DAY FROM make_date(" + yyyy + ", " + mm + ", 1) + INTERVAL '1 month - 1 day')::int " +
		"THEN to_date(" + c + ", 'DD.MM.YYYY') END END END"
}

func (e storedDate) render(b *builder, _ bool) {
	b.sb.WriteString("(" + safeDateSQL(e.Column) + ") " + e.Op + " " + b.bind(e.Date.Format(road.InputDateLayout)) + "::date")
}

func (e storedDate) Match(r road.Record) bool {
	s, ok := r.Text(e.Column)
	if !ok {
		return false
	}
	d, ok := road.ParseStoredDate(s)
	if !ok {
		return false
	}
	switch e.Op {
	case "<":
		return d.Before(e.Date)
	case ">":
		return d.After(e.Date)
	case "=":
		return d.Equal(e.Date)
	}
	return false
}

type and []Expr

func (e and) render(b *builder, top bool) {
	if !top {
		b.sb.WriteString("(")
	}
	for i, x := range e {
		if i > 0 {
			b.sb.WriteString(" AND ")
		}
		x.render(b, false)
	}
	if !top {
		b.sb.WriteString(")")
	}
}

func (e and) Match(r road.Record) bool {
	for _, x := range e {
		if !x.Match(r) {
			return false
		}
	}
	return true
}

// or：总是带括号输出，保证与外层 AND 组合时语义不变
type or []Expr

func (e or) render(b *builder, _ bool) {
	b.sb.WriteString("(")
	for i, x := range e {
		if i > 0 {
			b.sb.WriteString(" OR ")
		}
		x.render(b, false)
	}
	b.sb.WriteString(")")
}

func (e or) Match(r road.Record) bool {
	for _, x := range e {
		if x.Match(r) {
			return true
		}
	}
	return false
}
