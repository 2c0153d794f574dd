package main

import (
	"fmt"
	"os"
	"strings"

	"ipress-dash/internal/boundary"
	"ipress-dash/internal/config"
	"ipress-dash/internal/geo"
	"ipress-dash/internal/join"
	"ipress-dash/internal/logger"
)

// 文档注释：边界字段检查
// 背景：更换区边界文件后，先确认字段名与关联时会选用的标识字段，再上线。
// 约束：只读；参数为边界文件路径，缺省取 DISTRICTS_PATH。
func main() {
	config.LoadDotEnv()
	l := logger.Setup()
	cfg := config.Load()
	path := cfg.DistrictsPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	src, err := geo.ParseFrame(fmt.Sprint(cfg.SourceEPSG))
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	set, err := boundary.Load(path, boundary.Options{Target: geo.WGS84, Assume: src}, l)
	if err != nil {
		l.Error("boundary_load_error", "path", path, "err", err)
		os.Exit(1)
	}
	fmt.Printf("file:      %s\n", set.Source)
	fmt.Printf("frame:     %s\n", set.Frame)
	fmt.Printf("districts: %d\n", set.Len())
	fmt.Printf("fields:    %s\n", strings.Join(set.Fields, ", "))

	id, err := join.ResolveIdentityField(set.Fields, join.Options{
		DistrictField: cfg.DistrictField,
		PointField:    cfg.PointField,
		Fragments:     cfg.JoinFragments,
	})
	if err != nil {
		l.Error("identity_field_error", "err", err)
		os.Exit(1)
	}
	fmt.Printf("identity:  %s -> %s (code=%v)\n", id.BoundaryField, id.PointField, id.Code)
	vals := set.Values(id.BoundaryField)
	if len(vals) > 5 {
		vals = vals[:5]
	}
	fmt.Printf("sample:    %s\n", strings.Join(vals, ", "))
}
