package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ipress-dash/internal/geo"
	"ipress-dash/internal/ingest"
	"ipress-dash/internal/join"
	"ipress-dash/internal/middleware"
	"ipress-dash/internal/pipeline"
	"ipress-dash/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

const ipressCSV = "Nombre,Estado,NORTE,ESTE,Departamento,Provincia,Distrito,UBIGEO\n" +
	"Hospital A,ACTIVO,8660000,280000,LIMA,LIMA,LIMA,150101\n" +
	"Hospital B,ACTIVO,8661000,281000,LIMA,LIMA,LIMA,150101\n" +
	"Hospital C,INACTIVO,8660000,280000,LIMA,LIMA,LIMA,150101\n" +
	"Posta D,ACTIVO,9585000,690000,LORETO,MAYNAS,IQUITOS,160101\n"

const districtsGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"NOMBDIST":"LIMA"},"geometry":{"type":"Polygon","coordinates":[[[-77.5,-12.5],[-76.5,-12.5],[-76.5,-11.5],[-77.5,-11.5],[-77.5,-12.5]]]}},
 {"type":"Feature","properties":{"NOMBDIST":"ANCON"},"geometry":{"type":"Polygon","coordinates":[[[-78.5,-12.5],[-77.5,-12.5],[-77.5,-11.5],[-78.5,-11.5],[-78.5,-12.5]]]}}
]}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func params(csvPath, gjPath string) pipeline.Params {
	return pipeline.Params{
		IpressPaths:   []string{csvPath},
		DistrictsPath: gjPath,
		Status:        ingest.StatusExact,
		Source:        geo.UTM18S,
		Target:        geo.WGS84,
		JoinMode:      join.ModeName,
	}
}

type fakeLedger struct {
	requests int
}

func (f *fakeLedger) ListRuns(context.Context, int) ([]store.Run, error) {
	return []store.Run{{RunID: "r1", Status: "ok", Valid: 3}}, nil
}

func (f *fakeLedger) GetTotals(context.Context) (*store.Totals, error) {
	return &store.Totals{Total: 10, Today: int64(f.requests)}, nil
}

func (f *fakeLedger) IncrRequests(context.Context) error {
	f.requests++
	return nil
}

func newServer(t *testing.T, p pipeline.Params, ledger Ledger) http.Handler {
	t.Helper()
	runner := &pipeline.Runner{Logger: quiet(), NearbyMaxKm: 50, NearbyTTL: time.Minute}
	d := Deps{
		Session:    pipeline.NewSession(runner, p, quiet()),
		AdminToken: "secret",
		Reload:     middleware.NewTokenBucket(1, time.Hour),
		Logger:     quiet(),
	}
	if ledger != nil {
		d.Ledger = ledger
	}
	return BuildRoutes(d)
}

func fixtureServer(t *testing.T) http.Handler {
	dir := t.TempDir()
	return newServer(t, params(writeFile(t, dir, "IPRESS.csv", ipressCSV), writeFile(t, dir, "d.geojson", districtsGeoJSON)), nil)
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestSummary(t *testing.T) {
	h := fixtureServer(t)
	rec := get(t, h, "/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	s := m["summary"].(map[string]any)
	assert.EqualValues(t, 3, s["total_hospitals"])
	assert.EqualValues(t, 2, s["departments"])
	assert.EqualValues(t, 4, m["stages"].(map[string]any)["loaded"])
	assert.NotEmpty(t, m["run_id"])

	rec = get(t, h, "/summary?department=loreto")
	m = decode(t, rec)
	assert.EqualValues(t, 1, m["summary"].(map[string]any)["total_hospitals"])
	assert.Equal(t, "LORETO", m["department"])
	assert.Equal(t, m, decode(t, get(t, h, "/summary?department=%20Loreto%20")))

	rec = get(t, h, "/summary?department=CUSCO")
	m = decode(t, rec)
	assert.EqualValues(t, 0, m["summary"].(map[string]any)["total_hospitals"])
}

func TestDepartmentsAndDistrictCounts(t *testing.T) {
	h := fixtureServer(t)
	m := decode(t, get(t, h, "/departments"))
	assert.Equal(t, []any{"LIMA", "LORETO"}, m["departments"])

	m = decode(t, get(t, h, "/districts/counts?department=LIMA"))
	rows := m["districts"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "LIMA", row["distrito"])
	assert.EqualValues(t, 2, row["n_hospitales"])
}

func TestJoinReport(t *testing.T) {
	h := fixtureServer(t)
	m := decode(t, get(t, h, "/join"))
	assert.Equal(t, true, m["available"])
	assert.EqualValues(t, 2, m["matched"])
	assert.EqualValues(t, 3, m["points"])
	unmatched := m["unmatched"].([]any)
	require.Len(t, unmatched, 1)
}

func TestGeoJSONLayers(t *testing.T) {
	h := fixtureServer(t)
	rec := get(t, h, "/hospitals.geojson?department=LIMA")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("content-type"))
	m := decode(t, rec)
	assert.Equal(t, "FeatureCollection", m["type"])
	assert.Len(t, m["features"].([]any), 2)

	m = decode(t, get(t, h, "/districts.geojson"))
	features := m["features"].([]any)
	require.Len(t, features, 2)
	props := features[0].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, "LIMA", props["NOMBDIST"])
	assert.EqualValues(t, 2, props["n_hospitales"])
}

func TestPNGEndpoints(t *testing.T) {
	h := fixtureServer(t)
	for _, target := range []string{"/charts/departments.png?top=5", "/maps/static.png", "/maps/static.png?department=LORETO"} {
		rec := get(t, h, target)
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "image/png", rec.Header().Get("content-type"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")), target)
	}
}

func TestNearby(t *testing.T) {
	h := fixtureServer(t)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/nearby?lat=abc&lon=1").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/nearby?lat=-95&lon=1").Code)

	rec := get(t, h, "/nearby?lat=-12.1&lon=-77.0&k=5")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	hits := m["hits"].([]any)
	require.Len(t, hits, 2)
	first := hits[0].(map[string]any)
	assert.Equal(t, "LIMA", first["departamento"])
	assert.Less(t, first["distance_km"].(float64), 20.0)
}

func TestReload(t *testing.T) {
	h := fixtureServer(t)
	rec := get(t, h, "/reload")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	post := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/reload", nil)
		if token != "" {
			req.Header.Set("x-admin-token", token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	assert.Equal(t, http.StatusForbidden, post("").Code)
	assert.Equal(t, http.StatusForbidden, post("wrong").Code)

	first := decode(t, get(t, h, "/summary"))["run_id"]
	rec = post("secret")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	assert.NotEqual(t, first, m["run_id"])
	assert.Equal(t, m["run_id"], decode(t, get(t, h, "/summary"))["run_id"])

	assert.Equal(t, http.StatusTooManyRequests, post("secret").Code)
}

func TestMissingFileIs404(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "IPRESS.csv")
	h := newServer(t, params(missing, ""), nil)
	rec := get(t, h, "/summary")
	require.Equal(t, http.StatusNotFound, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, []any{missing}, m["paths"])
}

func TestMissingColumnIs422(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "IPRESS.csv", "Estado,ESTE\nACTIVO,280000\n")
	h := newServer(t, params(p, ""), nil)
	rec := get(t, h, "/summary")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, []any{"Estado", "ESTE"}, m["available"])
}

func TestZeroRowsIsZeroState(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "IPRESS.csv", "Estado,NORTE,ESTE,Departamento\nINACTIVO,8660000,280000,LIMA\n")
	h := newServer(t, params(p, ""), nil)
	m := decode(t, get(t, h, "/summary"))
	assert.EqualValues(t, 0, m["summary"].(map[string]any)["total_hospitals"])
	m = decode(t, get(t, h, "/hospitals.geojson"))
	assert.Empty(t, m["features"])
	m = decode(t, get(t, h, "/districts/counts"))
	assert.Equal(t, []any{}, m["districts"])
	rec := get(t, h, "/charts/departments.png")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLedgerRoutes(t *testing.T) {
	h := fixtureServer(t)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/runs").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/stats").Code)

	fl := &fakeLedger{}
	dir := t.TempDir()
	h = newServer(t, params(writeFile(t, dir, "IPRESS.csv", ipressCSV), ""), fl)
	m := decode(t, get(t, h, "/runs"))
	runs := m["runs"].([]any)
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].(map[string]any)["run_id"])

	m = decode(t, get(t, h, "/stats"))
	assert.EqualValues(t, 10, m["total"])
	assert.EqualValues(t, 1, m["today"])
	assert.Equal(t, 2, fl.requests)
}

func TestHealth(t *testing.T) {
	h := fixtureServer(t)
	m := decode(t, get(t, h, "/health"))
	assert.Equal(t, false, m["loaded"])
	get(t, h, "/summary")
	m = decode(t, get(t, h, "/health"))
	assert.Equal(t, true, m["loaded"])
}
