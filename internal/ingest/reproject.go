package ingest

import (
	"fmt"
	"log/slog"

	"ipress-dash/internal/geo"
	"ipress-dash/internal/logger"

	"github.com/twpayne/go-geom"
)

// 文档注释：一次性投影转换
// 约束：返回新数据集，原数据集不变；已处于目标参考系时原样返回。
// 无法转换的点被丢弃并计入 reproject_dropped；落在部署区域外的点只记录不丢弃。
func Reproject(ds *Dataset, tr geo.Reprojector, to geo.Frame, l *slog.Logger) (*Dataset, error) {
	l = logger.OrDiscard(l)
	if ds == nil {
		return nil, fmt.Errorf("reproject: nil dataset")
	}
	if ds.Frame == to {
		return ds, nil
	}
	pts := make([]*geom.Point, len(ds.Facilities))
	for i := range ds.Facilities {
		f := &ds.Facilities[i]
		pts[i] = geom.NewPointFlat(geom.XY, []float64{f.Easting, f.Northing}).SetSRID(int(ds.Frame))
	}
	out, err := tr.Transform(pts, to)
	if err != nil {
		return nil, fmt.Errorf("reproject %s -> %s: %w", ds.Frame, to, err)
	}
	if len(out) != len(pts) {
		return nil, fmt.Errorf("reproject %s -> %s: got %d points for %d inputs", ds.Frame, to, len(out), len(pts))
	}

	fs := make([]Facility, 0, len(out))
	outside := 0
	for i, p := range out {
		if p == nil {
			continue
		}
		f := ds.Facilities[i]
		f.Point = p
		if to.IsGeographic() {
			f.Lon, f.Lat = p.X(), p.Y()
			if !geo.InRegion(geo.PeruBounds, p) {
				outside++
			}
		}
		fs = append(fs, f)
	}
	res := ds.derive(fs)
	res.Frame = to
	if dropped := len(pts) - len(fs); dropped > 0 {
		l.Warn("reproject_dropped", "count", dropped, "from", ds.Frame.String())
	}
	if outside > 0 {
		l.Warn("reproject_out_of_region", "count", outside)
	}
	l.Info("reproject_ok", "from", ds.Frame.String(), "to", to.String(), "points", len(fs))
	return res, nil
}
