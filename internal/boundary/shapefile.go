package boundary

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"ipress-dash/internal/geo"
	"ipress-dash/internal/logger"

	"github.com/Valentin-Kaiser/go-dbase/dbase"
	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"golang.org/x/text/encoding/charmap"
)

// 文档注释：读取 ESRI Shapefile
// 背景：几何来自 .shp（go-shp），属性来自 .dbf（go-dbase，Windows-1252），参考系来自 .prj。
// 约束：.dbf 无法由 go-dbase 打开时退回 go-shp 自带的属性读取；.prj 缺失时参考系为 0，由调用方决定。
func LoadShapefile(path string, l *slog.Logger) (*Set, error) {
	l = logger.OrDiscard(l)
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer r.Close()

	var geoms []*geom.MultiPolygon
	for r.Next() {
		_, s := r.Shape()
		geoms = append(geoms, shapeToMultiPolygon(s))
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile: %w", err)
	}

	fields, attrs, err := readDBF(swapExt(path, ".dbf"), len(geoms))
	if err != nil {
		l.Warn("boundary_dbf_fallback", "path", path, "err", err)
		fields, attrs = readShpAttributes(r, len(geoms))
	}

	set := &Set{Fields: fields, Source: path}
	for i, g := range geoms {
		set.Districts = append(set.Districts, newDistrict(i, attrs[i], g))
	}
	if b, err := os.ReadFile(swapExt(path, ".prj")); err == nil {
		if f, ok := geo.DetectPRJ(string(b)); ok {
			set.Frame = f
		} else {
			l.Warn("boundary_prj_unknown", "path", path)
		}
	}
	return set, nil
}

func swapExt(path, ext string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	if _, err := os.Stat(base + ext); err == nil {
		return base + ext
	}
	upper := base + strings.ToUpper(ext)
	if _, err := os.Stat(upper); err == nil {
		return upper
	}
	return base + ext
}

// shapeToMultiPolygon：按环方向区分外环（顺时针）与洞（逆时针），洞归入包含其首点的外环
func shapeToMultiPolygon(s shp.Shape) *geom.MultiPolygon {
	mp := geom.NewMultiPolygon(geom.XY)
	p, ok := s.(*shp.Polygon)
	if !ok || p == nil || len(p.Points) == 0 {
		return mp
	}
	var outers [][]float64
	var holes [][]float64
	for i := range p.Parts {
		start := int(p.Parts[i])
		end := len(p.Points)
		if i+1 < len(p.Parts) {
			end = int(p.Parts[i+1])
		}
		if start < 0 || start >= end || end > len(p.Points) {
			continue
		}
		flat := make([]float64, 0, 2*(end-start))
		for _, pt := range p.Points[start:end] {
			flat = append(flat, pt.X, pt.Y)
		}
		if len(flat) < 8 {
			continue
		}
		if xy.IsRingCounterClockwise(geom.XY, flat) {
			holes = append(holes, flat)
		} else {
			outers = append(outers, flat)
		}
	}
	if len(outers) == 0 {
		outers, holes = holes, nil
	}
	rings := make([][][]float64, len(outers))
	for i, o := range outers {
		rings[i] = [][]float64{o}
	}
	for _, h := range holes {
		target := len(outers) - 1
		for i, o := range outers {
			if xy.IsPointInRing(geom.XY, geom.Coord{h[0], h[1]}, o) {
				target = i
				break
			}
		}
		rings[target] = append(rings[target], h)
	}
	for _, poly := range rings {
		var flat []float64
		var ends []int
		for _, r := range poly {
			flat = append(flat, r...)
			ends = append(ends, len(flat))
		}
		_ = mp.Push(geom.NewPolygonFlat(geom.XY, flat, ends))
	}
	return mp
}

func readDBF(path string, n int) ([]string, []map[string]string, error) {
	table, err := dbase.OpenTable(&dbase.Config{
		Filename:   path,
		TrimSpaces: true,
		Untested:   true,
		Converter:  dbase.NewDefaultConverter(charmap.Windows1252),
	})
	if err != nil {
		return nil, nil, err
	}
	defer table.Close()

	var names, fields []string
	for _, c := range table.Columns() {
		names = append(names, c.Name())
		fields = append(fields, cleanText(c.Name()))
	}
	attrs := make([]map[string]string, 0, n)
	for !table.EOF() {
		row, err := table.Next()
		if err != nil {
			return nil, nil, fmt.Errorf("read dbf row %d: %w", len(attrs), err)
		}
		m := make(map[string]string, len(fields))
		for j, name := range names {
			v, err := row.ValueByName(name)
			if err != nil {
				continue
			}
			m[fields[j]] = formatValue(v)
		}
		attrs = append(attrs, m)
	}
	return fields, padAttrs(attrs, n), nil
}

func readShpAttributes(r *shp.Reader, n int) ([]string, []map[string]string) {
	var fields []string
	for _, f := range r.Fields() {
		fields = append(fields, cleanText(f.String()))
	}
	dec := charmap.Windows1252.NewDecoder()
	attrs := make([]map[string]string, n)
	for i := 0; i < n; i++ {
		m := make(map[string]string, len(fields))
		for j, f := range fields {
			v := cleanText(r.ReadAttribute(i, j))
			if !utf8.ValidString(v) {
				if s, err := dec.String(v); err == nil {
					v = s
				}
			}
			m[f] = v
		}
		attrs[i] = m
	}
	return fields, attrs
}

// padAttrs：属性行少于几何时补空，多于几何时截断
func padAttrs(attrs []map[string]string, n int) []map[string]string {
	if len(attrs) > n {
		return attrs[:n]
	}
	for len(attrs) < n {
		attrs = append(attrs, map[string]string{})
	}
	return attrs
}
