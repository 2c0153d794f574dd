// 包 boundary：区级边界读取（Shapefile / GeoJSON）、点入多边形判定与空间索引
package boundary

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"ipress-dash/internal/geo"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// 文档注释：一个区的边界与属性
// 约束：Geometry 中每个多边形第一环为外环，其余为洞；BBox 覆盖全部多边形。
type District struct {
	Attrs    map[string]string
	Geometry *geom.MultiPolygon
	BBox     *geom.Bounds
	Index    int
}

func (d *District) Attr(name string) string { return d.Attrs[name] }

// Contains：点（与边界同一参考系）是否落在区内，洞内不算
func (d *District) Contains(x, y float64) bool {
	if d.Geometry == nil || d.BBox == nil {
		return false
	}
	c := geom.Coord{x, y}
	if !d.BBox.OverlapsPoint(geom.XY, c) {
		return false
	}
	for i := 0; i < d.Geometry.NumPolygons(); i++ {
		if polygonContains(d.Geometry.Polygon(i), c) {
			return true
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, c geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	if !xy.IsPointInRing(geom.XY, c, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(geom.XY, c, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// Set：按输入顺序排列的区集合
type Set struct {
	Fields    []string
	Districts []*District
	Frame     geo.Frame
	Source    string
	LoadedAt  time.Time
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Districts)
}

// Values：某属性在全部区上的取值，顺序与 Districts 一致
func (s *Set) Values(field string) []string {
	out := make([]string, len(s.Districts))
	for i, d := range s.Districts {
		out[i] = d.Attrs[field]
	}
	return out
}

func newDistrict(idx int, attrs map[string]string, mp *geom.MultiPolygon) *District {
	d := &District{Attrs: attrs, Geometry: mp, Index: idx}
	if mp != nil && !mp.Empty() {
		d.BBox = mp.Bounds()
	}
	return d
}

// cleanText：去掉首尾空白与 DBF 定长字段的 NUL 填充
func cleanText(s string) string {
	return strings.TrimFunc(s, func(r rune) bool { return r == 0 || unicode.IsSpace(r) })
}

// formatValue：属性值统一转为字符串；整数值浮点数不带小数部分
func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return cleanText(x)
	case []byte:
		return cleanText(string(x))
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return formatValue(float64(x))
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.Format("2006-01-02")
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
