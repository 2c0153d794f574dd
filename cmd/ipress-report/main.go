package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"ipress-dash/internal/config"
	"ipress-dash/internal/geo"
	"ipress-dash/internal/ingest"
	"ipress-dash/internal/logger"
	"ipress-dash/internal/pipeline"
	"ipress-dash/internal/render"

	"gonum.org/v1/plot/vg"
)

// 文档注释：离线报告
// 背景：不启动服务，运行一次流水线，把汇总打印到标准输出，并把图表、图层与区计数表写入 OUT_DIR。
// 约束：配置与服务一致；任何一个产物写入失败即退出码 1。
func main() {
	config.LoadDotEnv()
	l := logger.Setup()
	cfg := config.Load()
	params, err := pipeline.ParamsFromConfig(cfg)
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	runner := &pipeline.Runner{Reprojector: geo.UTMReprojector{}, Logger: l}
	res, err := runner.Run(context.Background(), params)
	if err != nil {
		l.Error("report_run_error", "err", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		l.Error("out_dir_error", "dir", cfg.OutDir, "err", err)
		os.Exit(1)
	}

	ds := res.Dataset
	outputs := []struct {
		name  string
		build func(*bytes.Buffer) error
	}{
		{"departments.png", func(b *bytes.Buffer) error {
			return render.DepartmentBar(ingest.CountBy(ds, ingest.FieldDepartamento), render.DefaultTop, b, 8*vg.Inch, 5*vg.Inch)
		}},
		{"static_map.png", func(b *bytes.Buffer) error {
			return render.StaticMap(res.Districts, res.Join, ds, "Hospitales por distrito", b, 8*vg.Inch, 10*vg.Inch)
		}},
		{"districts.geojson", func(b *bytes.Buffer) error {
			return json.NewEncoder(b).Encode(render.DistrictsGeoJSON(res.Districts, res.Join))
		}},
		{"hospitals.geojson", func(b *bytes.Buffer) error {
			fc, err := render.HospitalsGeoJSON(ds)
			if err != nil {
				return err
			}
			return json.NewEncoder(b).Encode(fc)
		}},
		{"district_counts.xlsx", func(b *bytes.Buffer) error {
			return render.DistrictCountsXLSX(ingest.CountByDistrict(ds), b)
		}},
	}
	for _, o := range outputs {
		var buf bytes.Buffer
		if err := o.build(&buf); err != nil {
			l.Error("report_render_error", "file", o.name, "err", err)
			os.Exit(1)
		}
		p := filepath.Join(cfg.OutDir, o.name)
		if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
			l.Error("report_write_error", "file", p, "err", err)
			os.Exit(1)
		}
		l.Info("report_written", "file", p, "bytes", buf.Len())
	}

	out := map[string]any{
		"run_id":      res.RunID,
		"source":      ds.Source.Path,
		"stages":      ds.Stages,
		"summary":     res.Summary,
		"departments": ingest.CountBy(ds, ingest.FieldDepartamento),
		"warnings":    res.Warnings,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
