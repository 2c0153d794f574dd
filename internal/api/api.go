// 包 api：集中注册 HTTP API 路由以解耦主入口，便于在 API_BASE 前缀下挂载
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ipress-dash/internal/logger"
	"ipress-dash/internal/metrics"
	"ipress-dash/internal/middleware"
	"ipress-dash/internal/pipeline"
	"ipress-dash/internal/store"
	"ipress-dash/internal/table"

	"github.com/redis/go-redis/v9"
)

// Ledger：运行台账与访问统计，未启用数据库时为 nil
type Ledger interface {
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	GetTotals(ctx context.Context) (*store.Totals, error)
	IncrRequests(ctx context.Context) error
}

// Deps：路由依赖；Redis 与 Ledger 可为空
type Deps struct {
	Session    *pipeline.Session
	Redis      *redis.Client
	CacheTTL   time.Duration
	Ledger     Ledger
	AdminToken string
	Reload     *middleware.TokenBucket
	Logger     *slog.Logger
}

type server struct {
	Deps
	l        *slog.Logger
	doReload http.Handler
}

// 构建并返回 API 路由：独立 ServeMux 便于在主入口挂载到 /api 前缀
func BuildRoutes(d Deps) *http.ServeMux {
	s := &server{Deps: d, l: logger.OrDiscard(d.Logger)}
	if s.CacheTTL <= 0 {
		s.CacheTTL = 10 * time.Minute
	}
	s.doReload = middleware.Limit(s.Reload, http.HandlerFunc(s.runReload))
	mux := http.NewServeMux()
	mux.Handle("/health", s.instrument("health", s.health))
	mux.Handle("/summary", s.instrument("summary", s.summary))
	mux.Handle("/departments", s.instrument("departments", s.departments))
	mux.Handle("/districts/counts", s.instrument("district_counts", s.districtCounts))
	mux.Handle("/join", s.instrument("join", s.joinReport))
	mux.Handle("/hospitals.geojson", s.instrument("hospitals_geojson", s.hospitalsGeoJSON))
	mux.Handle("/districts.geojson", s.instrument("districts_geojson", s.districtsGeoJSON))
	mux.Handle("/charts/departments.png", s.instrument("departments_png", s.departmentsPNG))
	mux.Handle("/maps/static.png", s.instrument("static_map_png", s.staticMapPNG))
	mux.Handle("/nearby", s.instrument("nearby", s.nearby))
	mux.Handle("/reload", s.instrument("reload", s.reload))
	mux.Handle("/runs", s.instrument("runs", s.runs))
	mux.Handle("/stats", s.instrument("stats", s.stats))
	return mux
}

// instrument：按路由记录请求数与耗时，并累加当日访问计数
func (s *server) instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		begin := time.Now()
		metrics.RequestsTotal.WithLabelValues(route).Inc()
		h(w, r)
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(begin).Milliseconds()))
		if s.Ledger != nil {
			if err := s.Ledger.IncrRequests(r.Context()); err != nil {
				s.l.Debug("stats_incr_error", "err", err)
			}
		}
	})
}

// current：取会话结果；首次访问时触发加载
func (s *server) current(w http.ResponseWriter, r *http.Request) (*pipeline.Result, bool) {
	res, err := s.Session.Get(r.Context())
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return res, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBody(w http.ResponseWriter, contentType string, b []byte) {
	w.Header().Set("content-type", contentType)
	w.Header().Set("cache-control", "no-store")
	_, _ = w.Write(b)
}

// 文档注释：错误到 HTTP 状态的映射
// 约束：列缺失 422 并附可用列；输入文件缺失 404 并附尝试过的路径；其余 500。
func (s *server) writeError(w http.ResponseWriter, err error) {
	var cnf *table.ColumnNotFoundError
	var fnf *table.FileNotFoundError
	switch {
	case errors.As(err, &cnf):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "column": cnf.Name, "available": cnf.Available})
	case errors.As(err, &fnf):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error(), "paths": fnf.Paths})
	default:
		s.l.Error("api_error", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}

// 文档注释：Redis 响应缓存
// 背景：地图图层与图片生成成本高，多实例部署时共享；键包含运行 ID，重载后旧键自然失效。
// 约束：Redis 未配置或出错时直接生成，不影响响应。
func (s *server) cached(ctx context.Context, key string, build func() ([]byte, error)) ([]byte, error) {
	if s.Redis == nil {
		return build()
	}
	if b, err := s.Redis.Get(ctx, key).Bytes(); err == nil {
		metrics.RedisHitsTotal.Inc()
		return b, nil
	} else if !errors.Is(err, redis.Nil) {
		s.l.Debug("redis_get_error", "key", key, "err", err)
	}
	metrics.RedisMissesTotal.Inc()
	b, err := build()
	if err != nil {
		return nil, err
	}
	if err := s.Redis.Set(ctx, key, b, s.CacheTTL).Err(); err != nil {
		s.l.Debug("redis_set_error", "key", key, "err", err)
	}
	return b, nil
}

func cacheKey(res *pipeline.Result, parts ...string) string {
	k := "ipress:" + res.RunID
	for _, p := range parts {
		k += ":" + p
	}
	return k
}
