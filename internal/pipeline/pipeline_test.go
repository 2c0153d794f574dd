package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ipress-dash/internal/config"
	"ipress-dash/internal/geo"
	"ipress-dash/internal/ingest"
	"ipress-dash/internal/join"
	"ipress-dash/internal/store"
	"ipress-dash/internal/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

const ipressCSV = "Nombre;Estado;NORTE;ESTE;Departamento;Provincia;Distrito;UBIGEO\n" +
	"Hospital A;ACTIVO;8660000;280000;LIMA;LIMA;LIMA;150101\n" +
	"Hospital B;INACTIVO;8660000;280000;LIMA;LIMA;LIMA;150101\n" +
	"Posta C;ACTIVO;0;0;LORETO;MAYNAS;IQUITOS;160101\n" +
	"Posta D;ACTIVO;8600000;300000;LIMA;CAÑETE;ASIA;150502\n"

const limaGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"NOMBDIST":"LIMA","IDDIST":"150101"},"geometry":{"type":"Polygon","coordinates":[[[-77.5,-12.5],[-76.5,-12.5],[-76.5,-11.5],[-77.5,-11.5],[-77.5,-12.5]]]}},
 {"type":"Feature","properties":{"NOMBDIST":"ANCON","IDDIST":"150102"},"geometry":{"type":"Polygon","coordinates":[[[-78.5,-12.5],[-77.5,-12.5],[-77.5,-11.5],[-78.5,-11.5],[-78.5,-12.5]]]}}
]}`

func fixture(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "IPRESS.csv")
	gjPath := filepath.Join(dir, "districts.geojson")
	require.NoError(t, os.WriteFile(csvPath, []byte(ipressCSV), 0o644))
	require.NoError(t, os.WriteFile(gjPath, []byte(limaGeoJSON), 0o644))
	return csvPath, gjPath
}

func baseParams(csvPath, gjPath string) Params {
	return Params{
		IpressPaths:   []string{csvPath},
		DistrictsPath: gjPath,
		Status:        ingest.StatusExact,
		Source:        geo.UTM18S,
		Target:        geo.WGS84,
		JoinMode:      join.ModeName,
	}
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []store.Run
}

func (f *fakeRecorder) RecordRun(_ context.Context, r store.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, r)
	return nil
}

func TestParamsKeyIsStable(t *testing.T) {
	a := baseParams("a.csv", "d.geojson")
	b := baseParams("a.csv", "d.geojson")
	assert.Equal(t, a.Key(), b.Key())
	assert.Len(t, a.Key(), 16)

	b.Status = ingest.StatusContains
	assert.NotEqual(t, a.Key(), b.Key())
	c := baseParams("a.csv", "other.geojson")
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestParamsFromConfig(t *testing.T) {
	cfg := config.Config{
		IpressPaths:  []string{"x.csv"},
		StatusFilter: "contains",
		SourceEPSG:   32718,
		TargetEPSG:   4326,
		JoinMode:     "CONTAINS",
	}
	p, err := ParamsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusContains, p.Status)
	assert.Equal(t, geo.UTM18S, p.Source)
	assert.Equal(t, geo.WGS84, p.Target)
	assert.Equal(t, join.ModeContains, p.JoinMode)

	cfg.JoinMode = ""
	p, err = ParamsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, join.ModeName, p.JoinMode)
}

func TestParamsFromConfigRejectsInvalid(t *testing.T) {
	good := config.Config{SourceEPSG: 32718, TargetEPSG: 4326}
	cases := map[string]func(c *config.Config){
		"status":  func(c *config.Config) { c.StatusFilter = "fuzzy" },
		"source":  func(c *config.Config) { c.SourceEPSG = 3857 },
		"target":  func(c *config.Config) { c.TargetEPSG = 1 },
		"aliases": func(c *config.Config) { c.ColumnAliases = "BOGUS=x" },
		"join":    func(c *config.Config) { c.JoinMode = "nearest" },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			c := good
			mut(&c)
			_, err := ParamsFromConfig(c)
			assert.Error(t, err)
		})
	}
}

func TestRunEndToEnd(t *testing.T) {
	csvPath, gjPath := fixture(t)
	rec := &fakeRecorder{}
	r := &Runner{Recorder: rec, Logger: quiet(), NearbyMaxKm: 50, NearbyTTL: time.Minute}
	res, err := r.Run(context.Background(), baseParams(csvPath, gjPath))
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, ingest.Stages{Loaded: 4, AfterStatus: 3, WithCoords: 3, Valid: 2}, res.Dataset.Stages)
	assert.Equal(t, geo.WGS84, res.Dataset.Frame)
	assert.Equal(t, 2, res.Summary.TotalHospitals)
	assert.Equal(t, 1, res.Summary.Departments)
	assert.Equal(t, 2, res.Summary.Provinces)
	assert.Equal(t, 2, res.Summary.Districts)

	require.NotNil(t, res.Districts)
	require.NotNil(t, res.Join)
	assert.Equal(t, []int{1, 0}, res.Join.Counts())
	assert.Equal(t, 1, res.Join.Matched)
	require.Len(t, res.Join.Unmatched, 1)
	assert.Equal(t, "ASIA", res.Join.Unmatched[0].Value)
	assert.NotEmpty(t, res.Warnings)

	require.NotNil(t, res.Nearby)
	hits := res.Nearby.Nearest(-12.1, -77.0, 1)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Index)

	require.Len(t, rec.runs, 1)
	assert.Equal(t, "ok", rec.runs[0].Status)
	assert.Equal(t, res.RunID, rec.runs[0].RunID)
	assert.Equal(t, 2, rec.runs[0].Valid)
	assert.Equal(t, 2, rec.runs[0].Districts)
}

func TestRunContainmentMode(t *testing.T) {
	csvPath, gjPath := fixture(t)
	p := baseParams(csvPath, gjPath)
	p.JoinMode = join.ModeContains
	res, err := (&Runner{Logger: quiet()}).Run(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, res.Join)
	assert.Equal(t, 2, res.Join.Points)
	assert.Equal(t, 1, res.Join.Counts()[0])
}

func TestRunBoundaryFailureIsSoft(t *testing.T) {
	csvPath, _ := fixture(t)
	p := baseParams(csvPath, filepath.Join(t.TempDir(), "missing.geojson"))
	res, err := (&Runner{Logger: quiet()}).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Nil(t, res.Districts)
	assert.Nil(t, res.Join)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "district boundaries unavailable")
	assert.Equal(t, 2, res.Summary.TotalHospitals)
}

func TestRunWithoutDistricts(t *testing.T) {
	csvPath, _ := fixture(t)
	p := baseParams(csvPath, "")
	res, err := (&Runner{Logger: quiet()}).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Nil(t, res.Join)
	assert.Empty(t, res.Warnings)
}

func TestRunMissingFileRecordsError(t *testing.T) {
	rec := &fakeRecorder{}
	p := baseParams(filepath.Join(t.TempDir(), "nope.csv"), "")
	_, err := (&Runner{Recorder: rec, Logger: quiet()}).Run(context.Background(), p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, table.ErrFileNotFound))
	require.Len(t, rec.runs, 1)
	assert.Equal(t, "error", rec.runs[0].Status)
	assert.NotEmpty(t, rec.runs[0].Error)
}

func TestRunHonoursCancellation(t *testing.T) {
	csvPath, gjPath := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Runner{Logger: quiet()}).Run(ctx, baseParams(csvPath, gjPath))
	assert.ErrorIs(t, err, context.Canceled)
}

// fakeLoader 返回递增编号的结果；fail 为真时返回错误
type fakeLoader struct {
	mu    sync.Mutex
	calls int
	fail  bool
	gate  map[int]chan struct{}
}

func (f *fakeLoader) Run(_ context.Context, p Params) (*Result, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	fail := f.fail
	gate := f.gate[n]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if fail {
		return nil, errors.New("boom")
	}
	return &Result{RunID: string(rune('a' + n - 1)), ParamsKey: p.Key()}, nil
}

func TestSessionMemoizes(t *testing.T) {
	fl := &fakeLoader{}
	s := NewSession(fl, baseParams("a.csv", ""), quiet())
	_, ok := s.Current()
	assert.False(t, ok)

	r1, err := s.Get(context.Background())
	require.NoError(t, err)
	r2, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, r1, r2)
	assert.Equal(t, 1, fl.calls)
}

func TestSessionConcurrentFirstLoadRunsOnce(t *testing.T) {
	fl := &fakeLoader{}
	s := NewSession(fl, baseParams("a.csv", ""), quiet())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Get(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fl.calls)
}

func TestSessionReloadReplacesResult(t *testing.T) {
	fl := &fakeLoader{}
	s := NewSession(fl, baseParams("a.csv", ""), quiet())
	r1, err := s.Get(context.Background())
	require.NoError(t, err)
	r2, err := s.Reload(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, r1.RunID, r2.RunID)
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Same(t, r2, cur)
}

func TestSessionReloadFailureKeepsPrevious(t *testing.T) {
	fl := &fakeLoader{}
	s := NewSession(fl, baseParams("a.csv", ""), quiet())
	r1, err := s.Get(context.Background())
	require.NoError(t, err)

	fl.mu.Lock()
	fl.fail = true
	fl.mu.Unlock()
	_, err = s.Reload(context.Background())
	require.Error(t, err)
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Same(t, r1, cur)
}

func TestSessionLastTriggeredReloadWins(t *testing.T) {
	slow := make(chan struct{})
	fl := &fakeLoader{gate: map[int]chan struct{}{1: slow}}
	s := NewSession(fl, baseParams("a.csv", ""), quiet())

	done := make(chan *Result, 1)
	go func() {
		r, _ := s.Reload(context.Background())
		done <- r
	}()
	require.Eventually(t, func() bool {
		fl.mu.Lock()
		defer fl.mu.Unlock()
		return fl.calls == 1
	}, time.Second, time.Millisecond)

	later, err := s.Reload(context.Background())
	require.NoError(t, err)
	close(slow)
	<-done

	cur, ok := s.Current()
	require.True(t, ok)
	assert.Same(t, later, cur)
	assert.Equal(t, "b", cur.RunID)
}

func TestNextRunAt(t *testing.T) {
	loc := time.FixedZone("PET", -5*3600)
	now := time.Date(2024, 3, 10, 1, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 10, 3, 0, 0, 0, loc), NextRunAt(now, loc, 3))
	assert.Equal(t, time.Date(2024, 3, 11, 1, 0, 0, 0, loc), NextRunAt(now, loc, 1))

	exact := time.Date(2024, 3, 10, 3, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 11, 3, 0, 0, 0, loc), NextRunAt(exact, loc, 3))
}
