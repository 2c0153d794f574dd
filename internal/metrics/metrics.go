package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PipelineRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipress_pipeline_runs_total",
		Help: "Pipeline runs by status",
	}, []string{"status"})
	PipelineDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ipress_pipeline_duration_ms",
		Help:    "Pipeline run duration in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})
	StageRows = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ipress_stage_rows",
		Help: "Rows remaining after each stage of the latest run",
	}, []string{"stage"})
	JoinUnmatchedPoints = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ipress_join_unmatched_points",
		Help: "Facilities whose district had no boundary in the latest join",
	})
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipress_requests_total",
		Help: "Total API requests by route",
	}, []string{"route"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ipress_request_duration_ms",
		Help:    "Request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route"})
	RedisHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipress_redis_hits_total",
		Help: "Total redis cache hits",
	})
	RedisMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipress_redis_misses_total",
		Help: "Total redis cache misses",
	})
	ReloadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipress_reload_rejected_total",
		Help: "Reload requests rejected by reason",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(PipelineRunsTotal)
	prometheus.MustRegister(PipelineDurationMs)
	prometheus.MustRegister(StageRows)
	prometheus.MustRegister(JoinUnmatchedPoints)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(RedisHitsTotal)
	prometheus.MustRegister(RedisMissesTotal)
	prometheus.MustRegister(ReloadRejectedTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在主入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
