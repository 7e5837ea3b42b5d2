// 包 predicate：把用户的分类选择编译为参数化 SQL 谓词
package predicate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/road"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/taxonomy"
)

var (
	// 选择为空：调用方应提示用户而不是执行查询
	ErrNoFilter     = errors.New("no filter selected")
	ErrInvalidInput = errors.New("invalid input")
)

// 范围分类的比较方式 → SQL 运算符
var rangeOps = map[string]string{
	"Greater than": ">",
	"Less than":    "<",
	"Equal to":     "=",
}

// RangeOperators：范围分类可选的比较方式（展示顺序）
func RangeOperators() []string { return []string{"Greater than", "Less than", "Equal to"} }

// Selection：用户在某个分类下的选择；各字段按分类类型取用
type Selection struct {
	Operator string   `json:"operator,omitempty"`
	Value    *float64 `json:"value,omitempty"`
	Mode     string   `json:"mode,omitempty"`
	Date     string   `json:"date,omitempty"`
	Labels   []string `json:"labels,omitempty"`
}

// OthersResolver：提供分类当前的 Others 标签（由实时去重值计算）
type OthersResolver interface {
	Others(ctx context.Context, category string) ([]string, error)
}

// 文档注释：谓词编译器
// 约束：纯函数式（除 Others 解析外不触达存储）；相同输入得到相同文本与参数，可直接作为缓存键。
type Compiler struct {
	reg    *taxonomy.Registry
	others OthersResolver
}

// New：others 可为 nil，此时非分组标签一律视为非法
func New(reg *taxonomy.Registry, others OthersResolver) *Compiler {
	return &Compiler{reg: reg, others: others}
}

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, a...))
}

// 文档注释：编译查询
// 参数：category 分类名；sel 用户选择；region 区域（""/All 表示不过滤）
// 返回：Query（SELECT * 语句 + 位置参数）；选择为空返回 ErrNoFilter；任何不在闭集内的值返回 ErrInvalidInput。
// 约束：区域条件与每个析取分支做 AND，避免 OR 优先级导致区域过滤只作用于最后一个分支。
func (c *Compiler) Compile(ctx context.Context, category string, sel Selection, region string) (Query, error) {
	cat, err := c.reg.Category(category)
	if err != nil {
		return Query{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if !c.reg.IsRegion(region) {
		return Query{}, invalid("unknown region %q", region)
	}
	var disjuncts []Expr
	switch cat.Kind {
	case taxonomy.KindRange:
		e, err := compileRange(cat, sel)
		if err != nil {
			return Query{}, err
		}
		disjuncts = []Expr{e}
	case taxonomy.KindDate:
		e, err := compileDate(cat, sel)
		if err != nil {
			return Query{}, err
		}
		disjuncts = []Expr{e}
	case taxonomy.KindCompare:
		m, err := pickMode(cat, sel.Mode)
		if err != nil {
			return Query{}, err
		}
		disjuncts = []Expr{colCmp{Left: m.Column, Op: m.Op, Right: m.Right}}
	case taxonomy.KindPrefix:
		disjuncts, err = c.compilePrefix(cat, sel.Labels)
		if err != nil {
			return Query{}, err
		}
	case taxonomy.KindTaxonomy:
		disjuncts, err = c.compileLabels(ctx, cat, sel.Labels)
		if err != nil {
			return Query{}, err
		}
	default:
		return Query{}, invalid("unsupported kind %q", cat.Kind)
	}

	var where Expr
	if region != "" && region != taxonomy.AllRegions {
		rf := textEq{Column: c.reg.RegionColumn(), Value: region}
		if len(disjuncts) == 1 {
			where = and{disjuncts[0], rf}
		} else {
			branches := make(or, 0, len(disjuncts))
			for _, d := range disjuncts {
				branches = append(branches, and{d, rf})
			}
			where = branches
		}
	} else if len(disjuncts) == 1 {
		where = disjuncts[0]
	} else {
		where = or(disjuncts)
	}
	return build(category, c.reg.Table(), where), nil
}

func compileRange(cat *taxonomy.Category, sel Selection) (Expr, error) {
	if sel.Operator == "" || sel.Value == nil {
		return nil, ErrNoFilter
	}
	op, ok := rangeOps[sel.Operator]
	if !ok {
		return nil, invalid("unknown operator %q", sel.Operator)
	}
	v := *sel.Value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, invalid("value must be finite")
	}
	return numCmp{Column: cat.Column, Op: op, Value: v}, nil
}

func pickMode(cat *taxonomy.Category, name string) (taxonomy.Mode, error) {
	if name == "" {
		return taxonomy.Mode{}, ErrNoFilter
	}
	for _, m := range cat.Modes {
		if m.Name == name {
			return m, nil
		}
	}
	return taxonomy.Mode{}, invalid("%s: unknown mode %q", cat.Name, name)
}

func compileDate(cat *taxonomy.Category, sel Selection) (Expr, error) {
	m, err := pickMode(cat, sel.Mode)
	if err != nil {
		return nil, err
	}
	if sel.Date == "" {
		return nil, ErrNoFilter
	}
	d, err := time.Parse(road.InputDateLayout, sel.Date)
	if err != nil {
		return nil, invalid("date %q is not YYYY-MM-DD", sel.Date)
	}
	return storedDate{Column: m.Column, Op: m.Op, Date: d}, nil
}

func (c *Compiler) compilePrefix(cat *taxonomy.Category, labels []string) ([]Expr, error) {
	type pick struct {
		idx int
		g   taxonomy.Group
	}
	var picks []pick
	seen := map[string]bool{}
	for _, l := range labels {
		if strings.TrimSpace(l) == "" || seen[l] {
			continue
		}
		seen[l] = true
		i, ok := c.reg.GroupIndex(cat.Name, l)
		if !ok {
			return nil, invalid("%s: unknown value %q", cat.Name, l)
		}
		picks = append(picks, pick{idx: i, g: cat.Groups[i]})
	}
	if len(picks) == 0 {
		return nil, ErrNoFilter
	}
	sort.Slice(picks, func(a, b int) bool { return picks[a].idx < picks[b].idx })
	var out []Expr
	for _, p := range picks {
		for _, v := range p.g.Raw {
			out = append(out, prefix{Column: cat.Column, Value: v})
		}
	}
	return out, nil
}

// 文档注释：分组/Others 标签展开
// 背景：每个分组标签展开为其全部原始拼写的等值 OR；Others 标签按原值单独匹配。
// 约束：标签去重；输出顺序按词表位置（分组编写顺序在前，Others 字典序在后），与用户点选顺序无关。
func (c *Compiler) compileLabels(ctx context.Context, cat *taxonomy.Category, labels []string) ([]Expr, error) {
	type pick struct {
		idx  int
		vals []string
	}
	var (
		picks     []pick
		others    map[string]int
		othersErr error
		resolved  bool
	)
	resolveOthers := func() {
		resolved = true
		if !cat.Others || c.others == nil {
			return
		}
		list, err := c.others.Others(ctx, cat.Name)
		if err != nil {
			othersErr = err
			return
		}
		others = make(map[string]int, len(list))
		for i, v := range list {
			others[v] = i
		}
	}
	seen := map[string]bool{}
	for _, l := range labels {
		if strings.TrimSpace(l) == "" || seen[l] {
			continue
		}
		seen[l] = true
		if i, ok := c.reg.GroupIndex(cat.Name, l); ok {
			picks = append(picks, pick{idx: i, vals: cat.Groups[i].Raw})
			continue
		}
		if !resolved {
			resolveOthers()
		}
		if othersErr != nil {
			return nil, othersErr
		}
		oi, ok := others[l]
		if !ok {
			return nil, invalid("%s: unknown label %q", cat.Name, l)
		}
		picks = append(picks, pick{idx: len(cat.Groups) + oi, vals: []string{l}})
	}
	if len(picks) == 0 {
		return nil, ErrNoFilter
	}
	sort.Slice(picks, func(a, b int) bool { return picks[a].idx < picks[b].idx })
	out := make([]Expr, 0, len(picks))
	for _, p := range picks {
		g := make(or, 0, len(p.vals))
		for _, v := range p.vals {
			g = append(g, textEq{Column: cat.Column, Value: v})
		}
		out = append(out, g)
	}
	return out, nil
}

// Query：编译结果；Text 与 Args 一一对应（$n ↔ Args[n-1]）
type Query struct {
	Category string
	Text     string
	Args     []any
	where    Expr
}

func build(category, tbl string, where Expr) Query {
	var b builder
	b.sb.WriteString("SELECT * FROM " + quoteIdent(tbl) + " WHERE ")
	where.render(&b, true)
	return Query{Category: category, Text: b.sb.String(), Args: b.args, where: where}
}

// Key：缓存键，文本与带类型的参数值共同决定
func (q Query) Key() string {
	var sb strings.Builder
	sb.WriteString(q.Text)
	for _, a := range q.Args {
		sb.WriteByte('\x1f')
		switch x := a.(type) {
		case float64:
			sb.WriteString("f:" + strconv.FormatFloat(x, 'g', -1, 64))
		case string:
			sb.WriteString("s:" + strconv.Quote(x))
		default:
			sb.WriteString(fmt.Sprintf("%T:%v", a, a))
		}
	}
	return sb.String()
}

// Match：在内存中对单条记录求值，与 SQL 语义一致（日期非法、列缺失均视为不匹配）
func (q Query) Match(r road.Record) bool {
	if q.where == nil {
		return false
	}
	return q.where.Match(r)
}

// Filter：对记录集合做内存过滤，保持原顺序
func (q Query) Filter(rs []road.Record) []road.Record {
	var out []road.Record
	for _, r := range rs {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
