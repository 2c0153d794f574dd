package geo

import (
	"fmt"

	"github.com/im7mortal/UTM"
	"github.com/twpayne/go-geom"
)

// PointsFromXY：x 为东向（ESTE），y 为北向（NORTE）
// 约束：两个切片长度不一致时按较短者截断。
func PointsFromXY(xs, ys []float64, f Frame) []*geom.Point {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	out := make([]*geom.Point, n)
	for i := 0; i < n; i++ {
		out[i] = geom.NewPointFlat(geom.XY, []float64{xs[i], ys[i]}).SetSRID(int(f))
	}
	return out
}

// 文档注释：投影转换接口
// 约束：结果与输入等长且顺序一致；无法转换的单个点在结果中为 nil；仅当参考系本身不受支持时返回错误。
type Reprojector interface {
	Transform(pts []*geom.Point, to Frame) ([]*geom.Point, error)
}

// UTMReprojector：UTM 与 WGS84 之间的转换，数学部分委托给 im7mortal/UTM
type UTMReprojector struct{}

func (UTMReprojector) Transform(pts []*geom.Point, to Frame) ([]*geom.Point, error) {
	if !to.Supported() {
		return nil, fmt.Errorf("unsupported target frame %s", to)
	}
	out := make([]*geom.Point, len(pts))
	for i, p := range pts {
		if p == nil || p.Empty() {
			continue
		}
		from := Frame(p.SRID())
		if !from.Supported() {
			return nil, fmt.Errorf("unsupported source frame %s", from)
		}
		q, err := transformPoint(p.X(), p.Y(), from, to)
		if err != nil {
			continue
		}
		out[i] = q
	}
	return out, nil
}

func transformPoint(x, y float64, from, to Frame) (*geom.Point, error) {
	if from == to {
		return geom.NewPointFlat(geom.XY, []float64{x, y}).SetSRID(int(to)), nil
	}
	lon, lat := x, y
	if zone, north, ok := from.UTMZone(); ok {
		la, lo, err := UTM.ToLatLon(x, y, zone, "", north)
		if err != nil {
			return nil, err
		}
		lon, lat = lo, la
	}
	if to.IsGeographic() {
		return geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(int(to)), nil
	}
	zone, _, _ := to.UTMZone()
	e, n, gotZone, _, err := UTM.FromLatLon(lat, lon, lat >= 0)
	if err != nil {
		return nil, err
	}
	if gotZone != zone {
		return nil, fmt.Errorf("point (%f, %f) falls in UTM zone %d, not %d", lon, lat, gotZone, zone)
	}
	return geom.NewPointFlat(geom.XY, []float64{e, n}).SetSRID(int(to)), nil
}
