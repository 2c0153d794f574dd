package render

import (
	"fmt"
	"image/color"
	"io"

	"ipress-dash/internal/boundary"
	"ipress-dash/internal/ingest"
	"ipress-dash/internal/join"

	"github.com/twpayne/go-geom"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// 分级色带（由浅到深），计数为 0 的区用 NoDataColor
var (
	Ramp = []color.RGBA{
		{0xFF, 0xFF, 0xB2, 0xFF},
		{0xFE, 0xCC, 0x5C, 0xFF},
		{0xFD, 0x8D, 0x3C, 0xFF},
		{0xF0, 0x3B, 0x20, 0xFF},
		{0xBD, 0x00, 0x26, 0xFF},
	}
	NoDataColor = color.RGBA{0xF0, 0xF0, 0xF0, 0xFF}
	PointColor  = color.RGBA{0x1F, 0x4E, 0x79, 0xFF}
)

// ClassColor：按 n/max 等分到色带
func ClassColor(n, max int) color.RGBA {
	if n <= 0 || max <= 0 {
		return NoDataColor
	}
	i := (n*len(Ramp) - 1) / max
	if i >= len(Ramp) {
		i = len(Ramp) - 1
	}
	return Ramp[i]
}

// 文档注释：静态分级设色地图 + 机构点
// 约束：边界与数据集须处于同一地理参考系（经度为 X）；set 或 jr 为 nil 时只画点；ds 为空时只画边界。
func StaticMap(set *boundary.Set, jr *join.Result, ds *ingest.Dataset, title string, w io.Writer, width, height vg.Length) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Longitud"
	p.Y.Label.Text = "Latitud"

	if set != nil {
		counts := map[int]int{}
		max := 0
		if jr != nil {
			for _, row := range jr.Rows {
				counts[row.District.Index] = row.Count
			}
			max = jr.Max()
		}
		for _, d := range set.Districts {
			fill := ClassColor(counts[d.Index], max)
			if err := addDistrict(p, d, fill); err != nil {
				return err
			}
		}
	}

	if ds != nil && ds.Len() > 0 {
		xys := make(plotter.XYs, ds.Len())
		for i, f := range ds.Facilities {
			xys[i].X, xys[i].Y = f.Lon, f.Lat
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("facility layer: %w", err)
		}
		sc.GlyphStyle.Color = PointColor
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(sc)
	}
	if width <= 0 {
		width = 8 * vg.Inch
	}
	if height <= 0 {
		height = 10 * vg.Inch
	}
	return writePNG(p, w, width, height)
}

func addDistrict(p *plot.Plot, d *boundary.District, fill color.Color) error {
	if d.Geometry == nil {
		return nil
	}
	for i := 0; i < d.Geometry.NumPolygons(); i++ {
		rings := ringXYs(d.Geometry.Polygon(i))
		if len(rings) == 0 {
			continue
		}
		poly, err := plotter.NewPolygon(rings...)
		if err != nil {
			return fmt.Errorf("district %d: %w", d.Index, err)
		}
		poly.Color = fill
		poly.LineStyle.Width = vg.Points(0.2)
		poly.LineStyle.Color = color.Gray{Y: 0x80}
		p.Add(poly)
	}
	return nil
}

// ringXYs：多边形的外环与洞；少于 3 个点的环丢弃，外环无效时整块丢弃
func ringXYs(pg *geom.Polygon) []plotter.XYer {
	var out []plotter.XYer
	stride := pg.Stride()
	for i := 0; i < pg.NumLinearRings(); i++ {
		flat := pg.LinearRing(i).FlatCoords()
		if len(flat) < 3*stride {
			if i == 0 {
				return nil
			}
			continue
		}
		xys := make(plotter.XYs, len(flat)/stride)
		for j := range xys {
			xys[j].X, xys[j].Y = flat[stride*j], flat[stride*j+1]
		}
		out = append(out, xys)
	}
	return out
}
