package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ipress-dash/internal/boundary"
	"ipress-dash/internal/geo"
	"ipress-dash/internal/ingest"
	"ipress-dash/internal/join"
	"ipress-dash/internal/logger"
	"ipress-dash/internal/metrics"
	"ipress-dash/internal/nearby"
	"ipress-dash/internal/store"

	"github.com/google/uuid"
)

// 文档注释：一次运行的结果
// 约束：构造后只读，可在多个请求间共享。Districts/Join 在边界缺失或读取失败时为 nil，原因见 Warnings。
type Result struct {
	RunID     string
	ParamsKey string
	Dataset   *ingest.Dataset
	Summary   ingest.Summary
	Districts *boundary.Set
	Join      *join.Result
	Nearby    *nearby.Finder
	Warnings  []string
	StartedAt time.Time
	Duration  time.Duration
}

// Recorder：运行台账写入方，未配置数据库时为 nil
type Recorder interface {
	RecordRun(ctx context.Context, r store.Run) error
}

type Runner struct {
	Reprojector geo.Reprojector
	Recorder    Recorder
	Logger      *slog.Logger
	NearbyMaxKm float64
	NearbyTTL   time.Duration
}

// 文档注释：执行一次完整流水线
// 流程：读入并过滤 -> 投影转换 -> 边界读取与关联（可选）-> 汇总 -> 近邻索引。
// 异常：读入、列解析与投影错误直接返回；边界读取与关联失败只记入 Warnings，结果仍可用。
func (r *Runner) Run(ctx context.Context, p Params) (*Result, error) {
	l := logger.OrDiscard(r.Logger)
	tr := r.Reprojector
	if tr == nil {
		tr = geo.UTMReprojector{}
	}
	res := &Result{RunID: uuid.NewString(), ParamsKey: p.Key(), StartedAt: time.Now()}
	l = l.With("run_id", res.RunID)
	l.Info("pipeline_run_begin", "paths", p.IpressPaths, "status_policy", string(p.Status))

	err := r.run(ctx, p, tr, res, l)
	res.Duration = time.Since(res.StartedAt)
	metrics.PipelineDurationMs.Observe(float64(res.Duration.Milliseconds()))
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.PipelineRunsTotal.WithLabelValues(status).Inc()
	r.record(ctx, res, p, err, l)
	if err != nil {
		l.Error("pipeline_run_error", "err", err, "duration_ms", res.Duration.Milliseconds())
		return nil, err
	}
	l.Info("pipeline_run_ok", "valid", res.Dataset.Len(), "warnings", len(res.Warnings), "duration_ms", res.Duration.Milliseconds())
	return res, nil
}

func (r *Runner) run(ctx context.Context, p Params, tr geo.Reprojector, res *Result, l *slog.Logger) error {
	ds, err := ingest.LoadAndFilter(p.IpressPaths, ingest.Options{Aliases: p.Aliases, Status: p.Status, Frame: p.Source}, l)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ds, err = ingest.Reproject(ds, tr, p.Target, l)
	if err != nil {
		return err
	}
	res.Dataset = ds
	res.Summary = ingest.Summarize(ds)
	metrics.StageRows.WithLabelValues("loaded").Set(float64(ds.Stages.Loaded))
	metrics.StageRows.WithLabelValues("after_status").Set(float64(ds.Stages.AfterStatus))
	metrics.StageRows.WithLabelValues("with_coords").Set(float64(ds.Stages.WithCoords))
	metrics.StageRows.WithLabelValues("valid").Set(float64(ds.Stages.Valid))
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.DistrictsPath != "" {
		r.joinDistricts(p, tr, res, l)
	}

	if p.Target.IsGeographic() {
		f, err := nearby.FromDataset(ds, r.NearbyMaxKm, r.NearbyTTL)
		if err != nil {
			res.Warnings = append(res.Warnings, err.Error())
		} else {
			res.Nearby = f
		}
	}
	return nil
}

func (r *Runner) joinDistricts(p Params, tr geo.Reprojector, res *Result, l *slog.Logger) {
	set, err := boundary.Load(p.DistrictsPath, boundary.Options{Target: p.Target, Assume: p.Source, Reprojector: tr}, l)
	if err != nil {
		l.Warn("boundary_load_error", "path", p.DistrictsPath, "err", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("district boundaries unavailable: %v", err))
		return
	}
	res.Districts = set
	var jr *join.Result
	if p.JoinMode == join.ModeContains {
		jr, err = join.ByContainment(res.Dataset, set, l)
	} else {
		jr, err = join.ByName(res.Dataset, set, p.Join, l)
	}
	if err != nil {
		l.Warn("join_error", "mode", p.JoinMode, "err", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("district join failed: %v", err))
		return
	}
	res.Join = jr
	unmatched := jr.UnmatchedPoints()
	metrics.JoinUnmatchedPoints.Set(float64(unmatched))
	if unmatched > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d facilities have no matching district boundary", unmatched))
	}
	if blank := jr.Blank(); blank > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d facilities have an empty %s value", blank, jr.Identity.PointField))
	}
}

func (r *Runner) record(ctx context.Context, res *Result, p Params, runErr error, l *slog.Logger) {
	if r.Recorder == nil {
		return
	}
	row := store.Run{
		RunID:      res.RunID,
		ParamsKey:  res.ParamsKey,
		Status:     "ok",
		DurationMs: res.Duration.Milliseconds(),
		StartedAt:  res.StartedAt,
	}
	if runErr != nil {
		row.Status = "error"
		row.Error = runErr.Error()
	}
	if ds := res.Dataset; ds != nil {
		row.SourcePath = ds.Source.Path
		row.Loaded, row.AfterStatus, row.WithCoords, row.Valid = ds.Stages.Loaded, ds.Stages.AfterStatus, ds.Stages.WithCoords, ds.Stages.Valid
	}
	if res.Join != nil {
		row.Districts = len(res.Join.Rows)
		row.Matched = res.Join.Matched
		row.Unmatched = res.Join.Points - res.Join.Matched
	}
	if err := r.Recorder.RecordRun(context.WithoutCancel(ctx), row); err != nil {
		l.Warn("run_record_error", "err", err)
	}
}
