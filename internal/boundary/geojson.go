package boundary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"ipress-dash/internal/geo"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

var crsCode = regexp.MustCompile(`EPSG:{1,2}(\d+)`)

// 文档注释：读取 GeoJSON FeatureCollection
// 约束：只保留 Polygon/MultiPolygon 几何，其他类型的要素以空几何保留以维持顺序；
// 字段顺序取第一个要素 properties 的书写顺序，后续要素新增的字段追加在后。
func LoadGeoJSON(path string) (*Set, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	set, err := ParseGeoJSON(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	set.Source = path
	return set, nil
}

func ParseGeoJSON(b []byte) (*Set, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	var head struct {
		CRS struct {
			Properties struct {
				Name string `json:"name"`
			} `json:"properties"`
		} `json:"crs"`
		Features []struct {
			Properties json.RawMessage `json:"properties"`
		} `json:"features"`
	}
	_ = json.Unmarshal(b, &head)

	set := &Set{Frame: crsFrame(head.CRS.Properties.Name)}

	seen := map[string]bool{}
	for _, f := range head.Features {
		for _, k := range objectKeys(f.Properties) {
			if !seen[k] {
				seen[k] = true
				set.Fields = append(set.Fields, k)
			}
		}
	}

	for i, f := range fc.Features {
		attrs := make(map[string]string, len(f.Properties))
		for k, v := range f.Properties {
			attrs[k] = formatValue(v)
			if !seen[k] {
				seen[k] = true
				set.Fields = append(set.Fields, k)
			}
		}
		set.Districts = append(set.Districts, newDistrict(i, attrs, toMultiPolygon(f.Geometry)))
	}
	return set, nil
}

// crsFrame：RFC 7946 默认 WGS84；旧式 crs 成员中的 EPSG 代码优先
func crsFrame(name string) geo.Frame {
	if name == "" || strings.Contains(strings.ToUpper(name), "CRS84") {
		return geo.WGS84
	}
	if m := crsCode.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return geo.Frame(n)
		}
	}
	return 0
}

func toMultiPolygon(g geom.T) *geom.MultiPolygon {
	var coords [][][]geom.Coord
	switch t := g.(type) {
	case *geom.MultiPolygon:
		if t.Layout() == geom.XY {
			return t
		}
		coords = t.Coords()
	case *geom.Polygon:
		coords = [][][]geom.Coord{t.Coords()}
	default:
		return geom.NewMultiPolygon(geom.XY)
	}
	// Z/M 分量丢弃，只保留平面坐标
	for _, poly := range coords {
		for _, ring := range poly {
			for k, c := range ring {
				ring[k] = c[:2]
			}
		}
	}
	mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(coords)
	if err != nil {
		return geom.NewMultiPolygon(geom.XY)
	}
	return mp
}

// objectKeys：按书写顺序返回 JSON 对象的键
func objectKeys(raw json.RawMessage) []string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if t, err := dec.Token(); err != nil || t != json.Delim('{') {
		return nil
	}
	var keys []string
	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return keys
		}
		k, ok := t.(string)
		if !ok {
			return keys
		}
		keys = append(keys, k)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return keys
		}
	}
	return keys
}
