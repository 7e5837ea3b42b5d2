package geo

import "strings"

// Polygon：按 GeoJSON 约定的环集合，第一环是外环，其后为洞
type Polygon struct {
	Rings [][]Point
	BBox  [4]float64 // minLon, minLat, maxLon, maxLat
}

// 从几何中提取面（Polygon/MultiPolygon/GeometryCollection），线要素忽略
func polygonsOf(g *Geometry) []Polygon {
	var out []Polygon
	switch strings.ToLower(g.Type) {
	case "polygon":
		if rings, ok := g.Coordinates.([]any); ok {
			out = append(out, toPolygon(rings))
		}
	case "multipolygon":
		if parts, ok := g.Coordinates.([]any); ok {
			for _, part := range parts {
				if rings, ok := part.([]any); ok {
					out = append(out, toPolygon(rings))
				}
			}
		}
	case "geometrycollection":
		for i := range g.Geometries {
			out = append(out, polygonsOf(&g.Geometries[i])...)
		}
	}
	return out
}

func toPolygon(rings []any) Polygon {
	var poly Polygon
	for _, ring := range rings {
		arr, ok := ring.([]any)
		if !ok {
			continue
		}
		var rr []Point
		for _, p := range arr {
			if vv, ok := p.([]any); ok && len(vv) >= 2 {
				lon, _ := toFloat(vv[0])
				lat, _ := toFloat(vv[1])
				rr = append(rr, Point{Lat: lat, Lon: lon})
			}
		}
		poly.Rings = append(poly.Rings, rr)
	}
	poly.BBox = computeBBox(poly)
	return poly
}

func computeBBox(p Polygon) [4]float64 {
	b := [4]float64{180, 90, -180, -90}
	for _, r := range p.Rings {
		for _, pt := range r {
			if pt.Lon < b[0] {
				b[0] = pt.Lon
			}
			if pt.Lat < b[1] {
				b[1] = pt.Lat
			}
			if pt.Lon > b[2] {
				b[2] = pt.Lon
			}
			if pt.Lat > b[3] {
				b[3] = pt.Lat
			}
		}
	}
	return b
}

// 外环命中且不在洞内视为命中
func pointInPoly(pt Point, poly Polygon) bool {
	if len(poly.Rings) == 0 {
		return false
	}
	if !pointInRing(pt, poly.Rings[0]) {
		return false
	}
	for i := 1; i < len(poly.Rings); i++ {
		if pointInRing(pt, poly.Rings[i]) {
			return false
		}
	}
	return true
}

// 射线法判定点是否在环内
func pointInRing(pt Point, ring []Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	x := pt.Lon
	y := pt.Lat
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lon, ring[i].Lat
		xj, yj := ring[j].Lon, ring[j].Lat
		intersect := ((yi > y) != (yj > y)) && (x < (xj-xi)*(y-yi)/(yj-yi+1e-12)+xi)
		if intersect {
			inside = !inside
		}
	}
	return inside
}

func inBBox(pt Point, b [4]float64) bool {
	return pt.Lon >= b[0] && pt.Lon <= b[2] && pt.Lat >= b[1] && pt.Lat <= b[3]
}
