package boundary

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"ipress-dash/internal/geo"
	"ipress-dash/internal/logger"

	"github.com/twpayne/go-geom"
)

type Options struct {
	// Target 为输出参考系，通常与机构点一致
	Target geo.Frame
	// Assume 用于无法识别参考系的文件
	Assume      geo.Frame
	Reprojector geo.Reprojector
}

// 文档注释：按扩展名读取边界文件并转换到目标参考系
// 约束：参考系未知时，坐标范围像经纬度则视为 WGS84，否则使用 opts.Assume；转换失败的区保留属性但几何为空。
func Load(path string, opts Options, l *slog.Logger) (*Set, error) {
	l = logger.OrDiscard(l)
	if opts.Target == 0 {
		opts.Target = geo.WGS84
	}
	if opts.Reprojector == nil {
		opts.Reprojector = geo.UTMReprojector{}
	}
	var (
		set *Set
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		set, err = LoadShapefile(path, l)
	case ".geojson", ".json":
		set, err = LoadGeoJSON(path)
	default:
		return nil, fmt.Errorf("unsupported boundary file %q (.shp, .geojson)", path)
	}
	if err != nil {
		return nil, err
	}
	if set.Frame == 0 {
		set.Frame = guessFrame(set, opts.Assume)
		l.Warn("boundary_frame_assumed", "path", path, "frame", set.Frame.String())
	}
	if err := set.Reproject(opts.Reprojector, opts.Target, l); err != nil {
		return nil, err
	}
	set.LoadedAt = time.Now()
	l.Info("boundary_loaded", "path", path, "districts", set.Len(), "fields", len(set.Fields), "frame", set.Frame.String())
	return set, nil
}

func guessFrame(set *Set, assume geo.Frame) geo.Frame {
	for _, d := range set.Districts {
		if d.BBox == nil {
			continue
		}
		if d.BBox.Min(0) < -180 || d.BBox.Max(0) > 180 || d.BBox.Min(1) < -90 || d.BBox.Max(1) > 90 {
			if assume != 0 {
				return assume
			}
			return geo.UTM18S
		}
		return geo.WGS84
	}
	return geo.WGS84
}

// Reproject：原地把全部区几何转换到 to
func (s *Set) Reproject(tr geo.Reprojector, to geo.Frame, l *slog.Logger) error {
	if s.Frame == to {
		return nil
	}
	if !s.Frame.Supported() {
		return fmt.Errorf("boundary frame %s cannot be converted to %s", s.Frame, to)
	}
	failed := 0
	for _, d := range s.Districts {
		if d.Geometry == nil || d.Geometry.Empty() {
			continue
		}
		mp, err := transformMultiPolygon(d.Geometry, s.Frame, to, tr)
		if err != nil {
			failed++
			d.Geometry = geom.NewMultiPolygon(geom.XY)
			d.BBox = nil
			continue
		}
		d.Geometry = mp
		d.BBox = mp.Bounds()
	}
	if failed > 0 {
		logger.OrDiscard(l).Warn("boundary_reproject_failed", "count", failed, "from", s.Frame.String(), "to", to.String())
	}
	s.Frame = to
	return nil
}

func transformMultiPolygon(mp *geom.MultiPolygon, from, to geo.Frame, tr geo.Reprojector) (*geom.MultiPolygon, error) {
	flat := mp.FlatCoords()
	n := len(flat) / 2
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		xs[i], ys[i] = flat[2*i], flat[2*i+1]
	}
	pts, err := tr.Transform(geo.PointsFromXY(xs, ys, from), to)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(flat))
	for i, p := range pts {
		if p == nil {
			return nil, fmt.Errorf("vertex %d cannot be converted", i)
		}
		out[2*i], out[2*i+1] = p.X(), p.Y()
	}
	endss := mp.Endss()
	cp := make([][]int, len(endss))
	for i, e := range endss {
		cp[i] = append([]int(nil), e...)
	}
	return geom.NewMultiPolygonFlat(geom.XY, out, cp), nil
}
