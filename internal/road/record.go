// 包 road：道路资产记录模型，集中声明 RN_DIV 表的列名约定
package road

import (
	"math"
	"strconv"
	"strings"

	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/geo"
)

// 存储列名：与 shapefile 导入 PostGIS 后的字段保持一致
const (
	ColID               = "gid"
	ColBlock            = "block_name"
	ColRoadType         = "drrp_road_"
	ColTaluka           = "ratnagiri_final_taluka"
	ColScheme           = "ratnagiri_final_scheme_name"
	ColLength           = "ratnagiri_final_total_length"
	ColExpenditure      = "ratnagiri_final_total_expenditure"
	ColApprovedAmount   = "ratnagiri_final_approved_amount"
	ColPCI              = "ratnagiri_final_pci_after_completion_of_work"
	ColStatus           = "ratnagiri_final_current_status"
	ColCategoryOfWork   = "ratnagiri_final_category_of_work"
	ColContractor       = "ratnagiri_final_contractor_name"
	ColCompletionDate   = "ratnagiri_final_completion_certificate_date"
	ColApprovalDate     = "ratnagiri_final_date_of_approval"
	ColGeom             = "geom"
	DefaultTable        = "RN_DIV"
	DefaultRegionColumn = ColBlock
)

// 文档注释：单条道路资产记录
// 背景：数值列在 PostGIS 中为 numeric，驱动返回文本；统一在解码阶段转换为 float64。
// 约束：数值缺失（NULL）或无法解析为有限数时为 nil，任何比较都不成立（与 SQL 的 NULL 比较一致）；日期字段保留原始文本（DD.MM.YYYY，可能缺失或格式错误），比较时再按需解析。
type Record struct {
	ID               string
	Block            string
	RoadType         string
	Taluka           string
	Scheme           string
	Length           *float64
	TotalExpenditure *float64
	ApprovedAmount   *float64
	PCI              *float64
	Status           string
	CategoryOfWork   string
	Contractor       string
	CompletionDate   string
	ApprovalDate     string
	Geometry         *geo.Geometry
}

// 文档注释：从属性表解码记录
// 背景：查询结果与静态路网图层都以 map 形式携带属性；图层字段名可能为大写（shapefile 习惯），按不区分大小写匹配。
func FromProperties(props map[string]any, g *geo.Geometry) Record {
	lower := make(map[string]any, len(props))
	for k, v := range props {
		lower[strings.ToLower(k)] = v
	}
	r := Record{Geometry: g}
	r.ID = textOf(lower[ColID])
	r.Block = textOf(lower[ColBlock])
	r.RoadType = textOf(lower[ColRoadType])
	r.Taluka = textOf(lower[ColTaluka])
	r.Scheme = textOf(lower[ColScheme])
	r.Length = numberOf(lower[ColLength])
	r.TotalExpenditure = numberOf(lower[ColExpenditure])
	r.ApprovedAmount = numberOf(lower[ColApprovedAmount])
	r.PCI = numberOf(lower[ColPCI])
	r.Status = textOf(lower[ColStatus])
	r.CategoryOfWork = textOf(lower[ColCategoryOfWork])
	r.Contractor = textOf(lower[ColContractor])
	r.CompletionDate = textOf(lower[ColCompletionDate])
	r.ApprovalDate = textOf(lower[ColApprovalDate])
	return r
}

// Text：按列名读取文本字段，未知列返回 false
func (r Record) Text(col string) (string, bool) {
	switch col {
	case ColID:
		return r.ID, true
	case ColBlock:
		return r.Block, true
	case ColRoadType:
		return r.RoadType, true
	case ColTaluka:
		return r.Taluka, true
	case ColScheme:
		return r.Scheme, true
	case ColStatus:
		return r.Status, true
	case ColCategoryOfWork:
		return r.CategoryOfWork, true
	case ColContractor:
		return r.Contractor, true
	case ColCompletionDate:
		return r.CompletionDate, true
	case ColApprovalDate:
		return r.ApprovalDate, true
	}
	return "", false
}

// Number：按列名读取数值字段，未知列或值缺失返回 false
func (r Record) Number(col string) (float64, bool) {
	var p *float64
	switch col {
	case ColLength:
		p = r.Length
	case ColExpenditure:
		p = r.TotalExpenditure
	case ColApprovedAmount:
		p = r.ApprovedAmount
	case ColPCI:
		p = r.PCI
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

func textOf(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	}
	return ""
}

func numberOf(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	case []byte:
		return parseNumber(string(x))
	case string:
		return parseNumber(x)
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func parseNumber(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
