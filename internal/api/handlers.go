package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"ipress-dash/internal/ingest"
	"ipress-dash/internal/metrics"
	"ipress-dash/internal/pipeline"
	"ipress-dash/internal/render"
	"ipress-dash/internal/store"

	"gonum.org/v1/plot/vg"
)

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	_, loaded := s.Session.Current()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "loaded": loaded})
}

// department：可选的部门筛选参数（统一为大写），空值表示全国
// 约束：缓存键与响应体都使用同一个规范化取值。
func department(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("department")))
}

type summaryResponse struct {
	RunID      string         `json:"run_id"`
	Department string         `json:"department,omitempty"`
	Summary    ingest.Summary `json:"summary"`
	Stages     ingest.Stages  `json:"stages"`
	Warnings   []string       `json:"warnings"`
}

func (s *server) summary(w http.ResponseWriter, r *http.Request) {
	res, ok := s.current(w, r)
	if !ok {
		return
	}
	dep := department(r)
	b, err := s.cached(r.Context(), cacheKey(res, "summary", dep), func() ([]byte, error) {
		out := summaryResponse{
			RunID:      res.RunID,
			Department: dep,
			Summary:    ingest.Summarize(ingest.ByDepartment(res.Dataset, dep)),
			Stages:     res.Dataset.Stages,
			Warnings:   nonNil(res.Warnings),
		}
		return json.Marshal(out)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeBody(w, "application/json; charset=utf-8", b)
}

func (s *server) departments(w http.ResponseWriter, r *http.Request) {
	res, ok := s.current(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"departments": nonNil(ingest.Departments(res.Dataset))})
}

func (s *server) districtCounts(w http.ResponseWriter, r *http.Request) {
	res, ok := s.current(w, r)
	if !ok {
		return
	}
	counts := ingest.CountByDistrict(ingest.ByDepartment(res.Dataset, department(r)))
	if counts == nil {
		counts = []ingest.DistrictCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"districts": counts})
}

// joinReport：关联诊断（使用的字段、匹配数、未匹配的取值）
func (s *server) joinReport(w http.ResponseWriter, r *http.Request) {
	res, ok := s.current(w, r)
	if !ok {
		return
	}
	if res.Join == nil {
		writeJSON(w, http.StatusOK, map[string]any{"available": false, "warnings": nonNil(res.Warnings)})
		return
	}
	jr := res.Join
	unmatched := jr.Unmatched
	if unmatched == nil {
		unmatched = []ingest.Count{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available": true,
		"mode":      jr.Mode,
		"identity":  jr.Identity,
		"districts": len(jr.Rows),
		"points":    jr.Points,
		"matched":   jr.Matched,
		"unmatched": unmatched,
		"blank":     jr.Blank(),
		"ambiguous": nonNil(jr.Ambiguous),
	})
}

func (s *server) hospitalsGeoJSON(w http.ResponseWriter, r *http.Request) {
	res, ok := s.current(w, r)
	if !ok {
		return
	}
	dep := department(r)
	b, err := s.cached(r.Context(), cacheKey(res, "hospitals", dep), func() ([]byte, error) {
		fc, err := render.HospitalsGeoJSON(ingest.ByDepartment(res.Dataset, dep))
		if err != nil {
			return nil, err
		}
		return json.Marshal(fc)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeBody(w, "application/geo+json", b)
}

func (s *server) districtsGeoJSON(w http.ResponseWriter, r *http.Request) {
	res, ok := s.current(w, r)
	if !ok {
		return
	}
	b, err := s.cached(r.Context(), cacheKey(res, "districts"), func() ([]byte, error) {
		return json.Marshal(render.DistrictsGeoJSON(res.Districts, res.Join))
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeBody(w, "application/geo+json", b)
}

func (s *server) departmentsPNG(w http.ResponseWriter, r *http.Request) {
	res, ok := s.current(w, r)
	if !ok {
		return
	}
	top, _ := strconv.Atoi(r.URL.Query().Get("top"))
	if top <= 0 || top > 25 {
		top = render.DefaultTop
	}
	b, err := s.cached(r.Context(), cacheKey(res, "departments_png", strconv.Itoa(top)), func() ([]byte, error) {
		var buf bytes.Buffer
		err := render.DepartmentBar(ingest.CountBy(res.Dataset, ingest.FieldDepartamento), top, &buf, 8*vg.Inch, 5*vg.Inch)
		return buf.Bytes(), err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeBody(w, "image/png", b)
}

func (s *server) staticMapPNG(w http.ResponseWriter, r *http.Request) {
	res, ok := s.current(w, r)
	if !ok {
		return
	}
	dep := department(r)
	title := "Hospitales por distrito"
	if dep != "" {
		title += " - " + dep
	}
	b, err := s.cached(r.Context(), cacheKey(res, "static_map", dep), func() ([]byte, error) {
		var buf bytes.Buffer
		err := render.StaticMap(res.Districts, res.Join, ingest.ByDepartment(res.Dataset, dep), title, &buf, 8*vg.Inch, 10*vg.Inch)
		return buf.Bytes(), err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeBody(w, "image/png", b)
}

type nearbyHit struct {
	Index        int     `json:"index"`
	DistanceKm   float64 `json:"distance_km"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Nombre       string  `json:"nombre,omitempty"`
	Departamento string  `json:"departamento,omitempty"`
	Distrito     string  `json:"distrito,omitempty"`
}

// nearby：坐标附近的 k 个机构，参数非法时 400
func (s *server) nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "lat/lon required: lat in [-90,90], lon in [-180,180]"})
		return
	}
	k, _ := strconv.Atoi(q.Get("k"))
	res, ok := s.current(w, r)
	if !ok {
		return
	}
	if res.Nearby == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "proximity index unavailable"})
		return
	}
	hits := res.Nearby.Nearest(lat, lon, k)
	out := make([]nearbyHit, 0, len(hits))
	for _, h := range hits {
		f := &res.Dataset.Facilities[h.Index]
		out = append(out, nearbyHit{
			Index:        h.Index,
			DistanceKm:   h.DistanceKm,
			Lat:          f.Lat,
			Lon:          f.Lon,
			Nombre:       res.Dataset.Text(f, ingest.FieldNombre),
			Departamento: res.Dataset.Text(f, ingest.FieldDepartamento),
			Distrito:     res.Dataset.Text(f, ingest.FieldDistrito),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"lat": lat, "lon": lon, "max_km": res.Nearby.MaxKm(), "hits": out})
}

// reload：显式重载，需管理令牌；令牌校验先于限流
func (s *server) reload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "POST required"})
		return
	}
	t := r.Header.Get("x-admin-token")
	if t == "" || t != s.AdminToken {
		metrics.ReloadRejectedTotal.WithLabelValues("forbidden").Inc()
		w.WriteHeader(http.StatusForbidden)
		return
	}
	s.doReload.ServeHTTP(w, r)
}

func (s *server) runReload(w http.ResponseWriter, r *http.Request) {
	res, err := s.Session.Reload(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse(res))
}

func reloadResponse(res *pipeline.Result) map[string]any {
	return map[string]any{
		"run_id":      res.RunID,
		"summary":     res.Summary,
		"stages":      res.Dataset.Stages,
		"warnings":    nonNil(res.Warnings),
		"duration_ms": res.Duration.Milliseconds(),
	}
}

func (s *server) runs(w http.ResponseWriter, r *http.Request) {
	if s.Ledger == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "run ledger disabled"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.Ledger.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, fmt.Errorf("list runs: %w", err))
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *server) stats(w http.ResponseWriter, r *http.Request) {
	if s.Ledger == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "run ledger disabled"})
		return
	}
	t, err := s.Ledger.GetTotals(r.Context())
	if err != nil {
		s.writeError(w, fmt.Errorf("stats: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": t.Total, "today": t.Today})
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
