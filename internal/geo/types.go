package geo

// 规范坐标参考：所有对外几何统一为 WGS84 经纬度
const CanonicalSRID = 4326

// 文档注释：GeoJSON 几何的最小承载结构
// 背景：数据库 ST_AsGeoJSON 与静态图层文件均输出 GeoJSON；坐标以嵌套数组保留原样，投影转换时逐点遍历。
// 约束：SRID 不参与序列化；0 表示来源未声明坐标系，按规范坐标处理。
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates any        `json:"coordinates,omitempty"`
	Geometries  []Geometry `json:"geometries,omitempty"`
	SRID        int        `json:"-"`
}

// Point：经纬度点（WGS84），与旧 revgeo 模块保持一致的字段顺序
type Point struct {
	Lat float64
	Lon float64
}

// Feature：属性 + 几何，查询结果与静态图层共用
type Feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   *Geometry      `json:"geometry"`
}

// FeatureCollection：对外输出的 GeoJSON 集合
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

func NewFeature(props map[string]any, g *Geometry) Feature {
	if props == nil {
		props = map[string]any{}
	}
	return Feature{Type: "Feature", Properties: props, Geometry: g}
}

func NewFeatureCollection(fs []Feature) FeatureCollection {
	if fs == nil {
		fs = []Feature{}
	}
	return FeatureCollection{Type: "FeatureCollection", Features: fs}
}
