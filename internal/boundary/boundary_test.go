package boundary

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"ipress-dash/internal/geo"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// three unit squares side by side; B has a hole in its middle
const districtsGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"NOMBDIST": "A", "IDDIST": 150101, "AREA": 1.5},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
    {"type": "Feature", "properties": {"NOMBDIST": "B", "IDDIST": 150102},
     "geometry": {"type": "Polygon", "coordinates": [[[1,0],[2,0],[2,1],[1,1],[1,0]],
                                                      [[1.4,0.4],[1.6,0.4],[1.6,0.6],[1.4,0.6],[1.4,0.4]]]}},
    {"type": "Feature", "properties": {"NOMBDIST": "C", "IDDIST": 150103, "EXTRA": "x"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[2,0],[3,0],[3,1],[2,1],[2,0]]]]}}
  ]
}`

func writeGeoJSON(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "districts.geojson")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadGeoJSONKeepsOrderAndFields(t *testing.T) {
	set, err := Load(writeGeoJSON(t, districtsGeoJSON), Options{}, quiet())
	require.NoError(t, err)
	require.Equal(t, 3, set.Len())
	assert.Equal(t, []string{"NOMBDIST", "IDDIST", "AREA", "EXTRA"}, set.Fields)
	assert.Equal(t, []string{"A", "B", "C"}, set.Values("NOMBDIST"))
	assert.Equal(t, "150101", set.Districts[0].Attr("IDDIST"))
	assert.Equal(t, "1.5", set.Districts[0].Attr("AREA"))
	assert.Equal(t, geo.WGS84, set.Frame)
	assert.False(t, set.LoadedAt.IsZero())
}

func TestContainsExcludesHoles(t *testing.T) {
	set, err := ParseGeoJSON([]byte(districtsGeoJSON))
	require.NoError(t, err)
	b := set.Districts[1]
	assert.True(t, b.Contains(1.2, 0.5))
	assert.False(t, b.Contains(1.5, 0.5), "inside the hole")
	assert.False(t, b.Contains(5, 5))
	assert.True(t, set.Districts[2].Contains(2.5, 0.5))
}

func TestIndexLocate(t *testing.T) {
	set, err := ParseGeoJSON([]byte(districtsGeoJSON))
	require.NoError(t, err)
	ix := NewIndex(set)

	assert.Equal(t, "A", ix.Locate(0.5, 0.5).Attr("NOMBDIST"))
	assert.Equal(t, "C", ix.Locate(2.5, 0.5).Attr("NOMBDIST"))
	assert.Nil(t, ix.Locate(1.5, 0.5))
	assert.Nil(t, ix.Locate(10, 10))
	assert.Len(t, ix.Candidates(1.5, 0.5), 1)
}

func TestLoadGeoJSONLegacyCRSIsReprojected(t *testing.T) {
	body := `{"type":"FeatureCollection",
	  "crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::32718"}},
	  "features":[{"type":"Feature","properties":{"NOMBDIST":"MIRAFLORES"},
	    "geometry":{"type":"Polygon","coordinates":[[[279000,8659000],[281000,8659000],[281000,8661000],[279000,8661000],[279000,8659000]]]}}]}`
	set, err := Load(writeGeoJSON(t, body), Options{Target: geo.WGS84}, quiet())
	require.NoError(t, err)
	assert.Equal(t, geo.WGS84, set.Frame)
	d := set.Districts[0]
	require.NotNil(t, d.BBox)
	assert.InDelta(t, -77.03, (d.BBox.Min(0)+d.BBox.Max(0))/2, 0.05)
	assert.InDelta(t, -12.12, (d.BBox.Min(1)+d.BBox.Max(1))/2, 0.05)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	_, err := Load("districts.kml", Options{}, quiet())
	assert.Error(t, err)
}

// writeShapefile writes two adjacent unit squares A and B with a WGS84 .prj
func writeShapefile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "DISTRITOS.shp")
	w, err := shp.Create(p, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NOMBDIST", 20), shp.StringField("UBIGEO", 6)}))
	squares := []struct {
		name, code string
		x0         float64
	}{{"A", "150101", 0}, {"B", "150102", 1}}
	for _, s := range squares {
		// clockwise outer ring
		ring := []shp.Point{{X: s.x0, Y: 0}, {X: s.x0, Y: 1}, {X: s.x0 + 1, Y: 1}, {X: s.x0 + 1, Y: 0}, {X: s.x0, Y: 0}}
		n := w.Write((*shp.Polygon)(shp.NewPolyLine([][]shp.Point{ring})))
		require.NoError(t, w.WriteAttribute(int(n), 0, s.name))
		require.NoError(t, w.WriteAttribute(int(n), 1, s.code))
	}
	w.Close()
	// the writer names its attribute table without the extension dot
	if _, err := os.Stat(filepath.Join(dir, "DISTRITOSdbf")); err == nil {
		require.NoError(t, os.Rename(filepath.Join(dir, "DISTRITOSdbf"), filepath.Join(dir, "DISTRITOS.dbf")))
	}
	_, err = os.Stat(filepath.Join(dir, "DISTRITOS.dbf"))
	require.NoError(t, err)
	wkt := `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "DISTRITOS.prj"), []byte(wkt), 0o644))
	return p
}

func TestLoadShapefile(t *testing.T) {
	p := writeShapefile(t)
	set, err := Load(p, Options{}, quiet())
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())
	assert.Equal(t, geo.WGS84, set.Frame)
	assert.Equal(t, []string{"NOMBDIST", "UBIGEO"}, set.Fields)
	assert.Equal(t, []string{"A", "B"}, set.Values("NOMBDIST"))
	assert.Equal(t, "150102", set.Districts[1].Attr("UBIGEO"))
	assert.True(t, set.Districts[0].Contains(0.5, 0.5))
	assert.True(t, set.Districts[1].Contains(1.5, 0.5))
}

func TestShapefileAttributeFallbackTrimsPadding(t *testing.T) {
	r, err := shp.Open(writeShapefile(t))
	require.NoError(t, err)
	defer r.Close()
	fields, attrs := readShpAttributes(r, 2)
	assert.Equal(t, []string{"NOMBDIST", "UBIGEO"}, fields)
	assert.Equal(t, "A", attrs[0]["NOMBDIST"])
	assert.Equal(t, "B", attrs[1]["NOMBDIST"])
	assert.Equal(t, "150101", attrs[0]["UBIGEO"])
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "150101", formatValue(150101.0))
	assert.Equal(t, "1.25", formatValue(1.25))
	assert.Equal(t, "", formatValue(nil))
	assert.Equal(t, "LIMA", formatValue(" LIMA "))
	assert.Equal(t, "A", formatValue("A\x00\x00\x00\x00"))
	assert.Equal(t, "SAN ISIDRO", formatValue([]byte("SAN ISIDRO \x00\x00")))
	assert.Equal(t, "true", formatValue(true))
}
