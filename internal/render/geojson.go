package render

import (
	"fmt"

	"ipress-dash/internal/boundary"
	"ipress-dash/internal/ingest"
	"ipress-dash/internal/join"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// CountProperty 区图层上的机构数属性名
const CountProperty = "n_hospitales"

var hospitalProps = []struct{ key, field string }{
	{"nombre", ingest.FieldNombre},
	{"departamento", ingest.FieldDepartamento},
	{"provincia", ingest.FieldProvincia},
	{"distrito", ingest.FieldDistrito},
	{"categoria", ingest.FieldCategoria},
	{"ubigeo", ingest.FieldUbigeo},
}

// 文档注释：机构点图层
// 约束：数据集须为地理参考系；未解析的可选列不输出该属性；空数据集返回 features 为空数组的集合。
func HospitalsGeoJSON(ds *ingest.Dataset) (*geojson.FeatureCollection, error) {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	if ds.Len() == 0 {
		return fc, nil
	}
	if !ds.Frame.IsGeographic() {
		return nil, fmt.Errorf("hospital layer needs geographic coordinates, dataset is %s", ds.Frame)
	}
	for i := range ds.Facilities {
		f := &ds.Facilities[i]
		props := map[string]interface{}{}
		for _, p := range hospitalProps {
			if ds.Has(p.field) {
				props[p.key] = ds.Text(f, p.field)
			}
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         fmt.Sprint(i),
			Geometry:   geom.NewPointFlat(geom.XY, []float64{f.Lon, f.Lat}),
			Properties: props,
		})
	}
	return fc, nil
}

// 文档注释：区分级设色图层
// 约束：每个区输出一次，属性为原始字段加 n_hospitales；jr 为 nil 时计数全为 0。
func DistrictsGeoJSON(set *boundary.Set, jr *join.Result) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	if set == nil {
		return fc
	}
	counts := map[int]int{}
	if jr != nil {
		for _, row := range jr.Rows {
			counts[row.District.Index] = row.Count
		}
	}
	for _, d := range set.Districts {
		props := make(map[string]interface{}, len(d.Attrs)+1)
		for k, v := range d.Attrs {
			props[k] = v
		}
		props[CountProperty] = counts[d.Index]
		var g geom.T = d.Geometry
		if d.Geometry == nil {
			g = geom.NewMultiPolygon(geom.XY)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         fmt.Sprint(d.Index),
			Geometry:   g,
			Properties: props,
		})
	}
	return fc
}
