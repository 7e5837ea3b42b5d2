package geo

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// 文档注释：静态图层（区县边界 / 路网）
// 背景：启动时一次性加载，进程内只读共享；几何在加载阶段完成坐标归一化，查询期不再转换。
type Layer struct {
	Name     string
	Features []Feature
}

// 文档注释：从 GeoJSON 文件加载图层
// 背景：边界与路网由 shapefile 导出为 GeoJSON；文件顶层 crs 成员声明坐标系，缺省视为 WGS84。
// 约束：仅支持 FeatureCollection 与单个 Feature；未受支持的坐标系直接返回错误，不静默放行。
func LoadLayer(name, path string) (*Layer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseLayer(name, b)
}

type rawFeature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   *Geometry      `json:"geometry"`
}

type rawCollection struct {
	Type     string          `json:"type"`
	CRS      *rawCRS         `json:"crs"`
	Features []rawFeature    `json:"features"`
	Props    map[string]any  `json:"properties"`
	Geometry json.RawMessage `json:"geometry"`
}

type rawCRS struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

func ParseLayer(name string, b []byte) (*Layer, error) {
	var gj rawCollection
	if err := json.Unmarshal(b, &gj); err != nil {
		return nil, fmt.Errorf("layer %s: %w", name, err)
	}
	srid := 0
	if gj.CRS != nil {
		s, err := ParseCRSName(getStr(gj.CRS.Properties, "name"))
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", name, err)
		}
		srid = s
	}
	var raws []rawFeature
	switch strings.ToLower(gj.Type) {
	case "featurecollection":
		raws = gj.Features
	case "feature":
		var g *Geometry
		if len(gj.Geometry) > 0 {
			g = &Geometry{}
			if err := json.Unmarshal(gj.Geometry, g); err != nil {
				return nil, fmt.Errorf("layer %s: %w", name, err)
			}
		}
		raws = []rawFeature{{Type: "Feature", Properties: gj.Props, Geometry: g}}
	default:
		return nil, fmt.Errorf("layer %s: unsupported geojson type %q", name, gj.Type)
	}
	l := &Layer{Name: name, Features: make([]Feature, 0, len(raws))}
	for _, rf := range raws {
		g := rf.Geometry
		if g != nil {
			g.SRID = srid
			ng, err := Normalize(g)
			if err != nil {
				return nil, fmt.Errorf("layer %s: %w", name, err)
			}
			g = ng
		}
		l.Features = append(l.Features, NewFeature(rf.Properties, g))
	}
	return l, nil
}

// 文档注释：解析 GeoJSON crs 名称为 EPSG 编号
// 背景：常见写法 "EPSG:32643"、"urn:ogc:def:crs:EPSG::3857"、"urn:ogc:def:crs:OGC:1.3:CRS84"。
// 返回：CRS84 视为 4326；空字符串返回 0（未声明）。
func ParseCRSName(name string) (int, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return 0, nil
	}
	up := strings.ToUpper(n)
	if strings.HasSuffix(up, "CRS84") {
		return CanonicalSRID, nil
	}
	i := strings.LastIndex(up, ":")
	if i < 0 || !strings.Contains(up, "EPSG") {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCRS, name)
	}
	v, err := strconv.Atoi(up[i+1:])
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCRS, name)
	}
	return v, nil
}

// Collection：以 GeoJSON 集合输出图层
func (l *Layer) Collection() FeatureCollection { return NewFeatureCollection(l.Features) }

// 文档注释：定位包含给定点的要素（用于区县边界图层）
// 背景：前端点击地图时返回所属塔卢卡；沿用包围盒过滤 + 射线法判定。
// 返回：首个命中的要素与 true；未命中返回 false。
func (l *Layer) Locate(pt Point) (Feature, bool) {
	for _, f := range l.Features {
		if f.Geometry == nil {
			continue
		}
		for _, poly := range polygonsOf(f.Geometry) {
			if inBBox(pt, poly.BBox) && pointInPoly(pt, poly) {
				return f, true
			}
		}
	}
	return Feature{}, false
}

func getStr(m map[string]any, k string) string {
	if v, ok := m[k].(string); ok {
		return v
	}
	return ""
}
