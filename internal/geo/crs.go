package geo

import (
	"errors"
	"fmt"
	"math"
)

var ErrUnsupportedCRS = errors.New("unsupported coordinate reference")

const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
	utmK0  = 0.9996
)

// 文档注释：几何坐标系归一化（任意受支持坐标系 → EPSG:4326）
// 背景：PostGIS 列与 shapefile 转出的图层可能携带 Web Mercator 或 UTM 坐标；前端地图只接受经纬度。
// 约束：SRID 为 0 视为已是 WGS84，仅打标；已是 4326 时原样返回（幂等）；返回新对象，不修改入参。
func Normalize(g *Geometry) (*Geometry, error) {
	if g == nil {
		return nil, nil
	}
	if g.SRID == 0 || g.SRID == CanonicalSRID {
		out := *g
		out.SRID = CanonicalSRID
		return &out, nil
	}
	fn, err := inverseFor(g.SRID)
	if err != nil {
		return nil, err
	}
	return transformGeometry(g, fn), nil
}

type projFn func(x, y float64) (lon, lat float64)

func inverseFor(srid int) (projFn, error) {
	switch {
	case srid == 3857 || srid == 900913 || srid == 3785:
		return webMercatorToWGS84, nil
	case srid > 32600 && srid <= 32660:
		zone := srid - 32600
		return func(x, y float64) (float64, float64) { return utmToWGS84(x, y, zone, true) }, nil
	case srid > 32700 && srid <= 32760:
		zone := srid - 32700
		return func(x, y float64) (float64, float64) { return utmToWGS84(x, y, zone, false) }, nil
	}
	return nil, fmt.Errorf("%w: EPSG:%d", ErrUnsupportedCRS, srid)
}

func transformGeometry(g *Geometry, fn projFn) *Geometry {
	out := &Geometry{Type: g.Type, SRID: CanonicalSRID}
	if g.Coordinates != nil {
		out.Coordinates = transformCoords(g.Coordinates, fn)
	}
	for i := range g.Geometries {
		child := g.Geometries[i]
		child.SRID = g.SRID
		out.Geometries = append(out.Geometries, *transformGeometry(&child, fn))
	}
	return out
}

// 递归遍历 GeoJSON 坐标数组：叶子为 [x, y(, z)]，其余层级原样复制结构
func transformCoords(c any, fn projFn) any {
	arr, ok := c.([]any)
	if !ok {
		return c
	}
	if len(arr) >= 2 {
		if x, okx := toFloat(arr[0]); okx {
			if y, oky := toFloat(arr[1]); oky {
				lon, lat := fn(x, y)
				pos := make([]any, len(arr))
				copy(pos, arr)
				pos[0] = lon
				pos[1] = lat
				return pos
			}
		}
	}
	out := make([]any, len(arr))
	for i, v := range arr {
		out[i] = transformCoords(v, fn)
	}
	return out
}

// Web Mercator（球面）反算
func webMercatorToWGS84(x, y float64) (float64, float64) {
	lon := x / wgs84A * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/wgs84A)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}

// 文档注释：UTM → WGS84 反算
// 背景：拉特纳吉里地区处于 UTM 43N（EPSG:32643），测绘数据常以该投影交付。
// 约束：使用标准级数展开，区内误差在厘米级；不处理挪威/斯瓦尔巴特特殊分带。
func utmToWGS84(easting, northing float64, zone int, north bool) (float64, float64) {
	e2 := wgs84F * (2 - wgs84F)
	ep2 := e2 / (1 - e2)
	x := easting - 500000.0
	y := northing
	if !north {
		y -= 10000000.0
	}
	m := y / utmK0
	mu := m / (wgs84A * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))
	sq := math.Sqrt(1 - e2)
	e1 := (1 - sq) / (1 + sq)
	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)
	sin1 := math.Sin(phi1)
	cos1 := math.Cos(phi1)
	tan1 := math.Tan(phi1)
	n1 := wgs84A / math.Sqrt(1-e2*sin1*sin1)
	t1 := tan1 * tan1
	c1 := ep2 * cos1 * cos1
	r1 := wgs84A * (1 - e2) / math.Pow(1-e2*sin1*sin1, 1.5)
	d := x / (n1 * utmK0)
	lat := phi1 - (n1*tan1/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
	lon := (d - (1+2*t1+c1)*math.Pow(d, 3)/6 +
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120) / cos1
	lon0 := float64((zone-1)*6-180+3) * math.Pi / 180
	return (lon0 + lon) * 180 / math.Pi, lat * 180 / math.Pi
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
