// 包 taxonomy：分类体系注册表（用户可见分类 → 存储原始标签），启动时加载一次，进程内只读
package taxonomy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultTable []byte

var (
	ErrUnknownCategory = errors.New("unknown category")
	// 存储不可达导致 Others 无法计算；调用方应降级为仅展示预置分组并把错误展示出来
	ErrDataUnavailable = errors.New("data unavailable")
)

type Kind string

const (
	KindRange    Kind = "range"
	KindDate     Kind = "date"
	KindCompare  Kind = "compare"
	KindPrefix   Kind = "prefix"
	KindTaxonomy Kind = "taxonomy"
)

// 区域过滤的通配值
const AllRegions = "All"

type Domain struct {
	Min  float64 `yaml:"min" json:"min"`
	Max  float64 `yaml:"max" json:"max"`
	Step float64 `yaml:"step" json:"step"`
	Unit string  `yaml:"unit" json:"unit,omitempty"`
}

// Mode：日期/比较类分类的查询方式，Right 仅比较类使用
type Mode struct {
	Name   string `yaml:"name" json:"name"`
	Column string `yaml:"column" json:"column"`
	Op     string `yaml:"op" json:"op"`
	Right  string `yaml:"right" json:"right,omitempty"`
}

// Group：预置分组，Raw 为其覆盖的全部原始拼写
type Group struct {
	Label string   `yaml:"label" json:"label"`
	Raw   []string `yaml:"raw" json:"raw"`
}

type Category struct {
	Name   string   `yaml:"name" json:"name"`
	Kind   Kind     `yaml:"kind" json:"kind"`
	Column string   `yaml:"column" json:"column,omitempty"`
	Domain *Domain  `yaml:"domain" json:"domain,omitempty"`
	Modes  []Mode   `yaml:"modes" json:"modes,omitempty"`
	Groups []Group  `yaml:"groups" json:"groups,omitempty"`
	Values []string `yaml:"values" json:"-"`
	Others bool     `yaml:"others" json:"others"`
}

type table struct {
	Version      int        `yaml:"version"`
	Table        string     `yaml:"table"`
	RegionColumn string     `yaml:"region_column"`
	Regions      []string   `yaml:"regions"`
	Categories   []Category `yaml:"categories"`
}

// 文档注释：分类注册表
// 背景：分类与原始标签的映射作为数据维护（YAML），编译器只依赖这里暴露的闭集词表。
// 约束：构造后不可变；并发读安全。
type Registry struct {
	t      table
	byName map[string]*Category
	// 分类 → 原始标签 → 所属分组
	rawIndex map[string]map[string]string
	// 分类 → 分组标签 → 下标
	groupIndex map[string]map[string]int
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Default：加载内置分类表
func Default() (*Registry, error) { return Parse(defaultTable) }

// LoadFile：从外部文件加载分类表；path 为空时回退到内置表
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// 文档注释：解析并校验分类表
// 约束：标识符（表名/列名）必须满足 SQL 安全标识符格式；分组非空；同一分类内原始标签不得跨组重复；
// 分组标签并入自身原始拼写，且不得是其他分组的原始标签；values 列表展开为单变体分组（标签即原始值）。
func Parse(b []byte) (*Registry, error) {
	var t table
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("taxonomy: %w", err)
	}
	if !identPattern.MatchString(t.Table) {
		return nil, fmt.Errorf("taxonomy: bad table identifier %q", t.Table)
	}
	if !identPattern.MatchString(t.RegionColumn) {
		return nil, fmt.Errorf("taxonomy: bad region column %q", t.RegionColumn)
	}
	r := &Registry{
		byName:     map[string]*Category{},
		rawIndex:   map[string]map[string]string{},
		groupIndex: map[string]map[string]int{},
	}
	for i := range t.Categories {
		c := &t.Categories[i]
		if c.Name == "" {
			return nil, fmt.Errorf("taxonomy: category #%d has no name", i)
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, fmt.Errorf("taxonomy: duplicate category %q", c.Name)
		}
		if err := normalizeCategory(c); err != nil {
			return nil, err
		}
		raw := map[string]string{}
		idx := map[string]int{}
		for gi, g := range c.Groups {
			if _, dup := idx[g.Label]; dup {
				return nil, fmt.Errorf("taxonomy: %s: duplicate group %q", c.Name, g.Label)
			}
			idx[g.Label] = gi
			for _, v := range g.Raw {
				if owner, taken := raw[v]; taken {
					return nil, fmt.Errorf("taxonomy: %s: raw label %q in both %q and %q", c.Name, v, owner, g.Label)
				}
				raw[v] = g.Label
			}
		}
		// 分组标签本身也是其原始拼写：实时数据中与标签同名的值归入该组，不会进入 Others
		for gi := range c.Groups {
			g := &c.Groups[gi]
			owner, taken := raw[g.Label]
			if !taken {
				g.Raw = append(g.Raw, g.Label)
				raw[g.Label] = g.Label
			} else if owner != g.Label {
				return nil, fmt.Errorf("taxonomy: %s: group label %q is a raw label of %q", c.Name, g.Label, owner)
			}
		}
		r.byName[c.Name] = c
		r.rawIndex[c.Name] = raw
		r.groupIndex[c.Name] = idx
	}
	r.t = t
	return r, nil
}

func normalizeCategory(c *Category) error {
	switch c.Kind {
	case KindRange:
		if c.Domain == nil {
			return fmt.Errorf("taxonomy: %s: range category needs a domain", c.Name)
		}
		return checkIdent(c.Name, c.Column)
	case KindDate, KindCompare:
		if len(c.Modes) == 0 {
			return fmt.Errorf("taxonomy: %s: no modes", c.Name)
		}
		for _, m := range c.Modes {
			switch m.Op {
			case "<", ">", "=":
			default:
				return fmt.Errorf("taxonomy: %s: bad operator %q", c.Name, m.Op)
			}
			if err := checkIdent(c.Name, m.Column); err != nil {
				return err
			}
			if c.Kind == KindCompare {
				if err := checkIdent(c.Name, m.Right); err != nil {
					return err
				}
			}
		}
		return nil
	case KindPrefix, KindTaxonomy:
		if err := checkIdent(c.Name, c.Column); err != nil {
			return err
		}
		for _, v := range c.Values {
			c.Groups = append(c.Groups, Group{Label: v, Raw: []string{v}})
		}
		c.Values = nil
		if len(c.Groups) == 0 {
			return fmt.Errorf("taxonomy: %s: no groups", c.Name)
		}
		for i := range c.Groups {
			c.Groups[i].Raw = dedupe(c.Groups[i].Raw)
			if c.Groups[i].Label == "" || len(c.Groups[i].Raw) == 0 {
				return fmt.Errorf("taxonomy: %s: empty group #%d", c.Name, i)
			}
		}
		return nil
	}
	return fmt.Errorf("taxonomy: %s: unknown kind %q", c.Name, c.Kind)
}

func checkIdent(cat, col string) error {
	if !identPattern.MatchString(col) {
		return fmt.Errorf("taxonomy: %s: bad column identifier %q", cat, col)
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func (r *Registry) Version() int         { return r.t.Version }
func (r *Registry) Table() string        { return r.t.Table }
func (r *Registry) RegionColumn() string { return r.t.RegionColumn }

// Regions：可选区域（不含 All），按表中顺序
func (r *Registry) Regions() []string { return append([]string(nil), r.t.Regions...) }

// IsRegion：区域值是否属于闭集；All 视为合法
func (r *Registry) IsRegion(v string) bool {
	if v == "" || v == AllRegions {
		return true
	}
	for _, x := range r.t.Regions {
		if x == v {
			return true
		}
	}
	return false
}

// Columns：分类表引用到的全部存储列（含区域列），去重并保持首次出现顺序；启动时用于校验表结构
func (r *Registry) Columns() []string {
	var cols []string
	cols = append(cols, r.t.RegionColumn)
	for _, c := range r.t.Categories {
		if c.Column != "" {
			cols = append(cols, c.Column)
		}
		for _, m := range c.Modes {
			cols = append(cols, m.Column)
			if m.Right != "" {
				cols = append(cols, m.Right)
			}
		}
	}
	return dedupe(cols)
}

// Categories：全部分类，保持表中顺序
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.t.Categories))
	copy(out, r.t.Categories)
	return out
}

func (r *Registry) Category(name string) (*Category, error) {
	c, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
	return c, nil
}

// GroupsFor：预置分组（按编写顺序）
func (r *Registry) GroupsFor(name string) ([]Group, error) {
	c, err := r.Category(name)
	if err != nil {
		return nil, err
	}
	return append([]Group(nil), c.Groups...), nil
}

// GroupIndex：分组标签在编写顺序中的位置
func (r *Registry) GroupIndex(category, label string) (int, bool) {
	i, ok := r.groupIndex[category][label]
	return i, ok
}

// Classify：原始标签归属的预置分组；未覆盖时返回 false（即属于 Others）
func (r *Registry) Classify(category, raw string) (string, bool) {
	g, ok := r.rawIndex[category][raw]
	return g, ok
}

// 文档注释：计算 Others 分桶
// 背景：原始标签随录入增长，Others 必须基于实时去重值计算，不能手工维护。
// 返回：实时标签减去全部预置原始标签，去掉空值后按字典序排序；分类没有开启 others 时返回空。
func (r *Registry) OthersFor(name string, live []string) ([]string, error) {
	c, err := r.Category(name)
	if err != nil {
		return nil, err
	}
	if !c.Others {
		return nil, nil
	}
	return Others(c.Groups, live), nil
}

// Others：纯函数形式的差集计算，便于独立测试
func Others(curated []Group, live []string) []string {
	covered := map[string]bool{}
	for _, g := range curated {
		for _, v := range g.Raw {
			covered[v] = true
		}
	}
	seen := map[string]bool{}
	var out []string
	for _, v := range live {
		if strings.TrimSpace(v) == "" || covered[v] || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// AllSelectableLabels：预置分组标签（编写顺序）后接 Others 标签
// 约束：分组标签已并入自身原始拼写，OthersFor 不会产出同名标签；外部传入的同名值按分组展开，不重复列出
func (r *Registry) AllSelectableLabels(name string, others []string) ([]string, error) {
	c, err := r.Category(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(c.Groups)+len(others))
	for _, g := range c.Groups {
		out = append(out, g.Label)
	}
	for _, o := range others {
		if _, isGroup := r.groupIndex[name][o]; isGroup {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}
