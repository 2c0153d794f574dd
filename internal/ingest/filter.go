package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"ipress-dash/internal/geo"
	"ipress-dash/internal/logger"
	"ipress-dash/internal/table"

	"github.com/twpayne/go-geom"
)

// StatusPolicy：状态列过滤策略
type StatusPolicy string

const (
	StatusExact    StatusPolicy = "exact"
	StatusContains StatusPolicy = "contains"
	StatusDisabled StatusPolicy = "disabled"
)

const activeStatus = "ACTIVO"

func ParseStatusPolicy(s string) (StatusPolicy, error) {
	switch p := StatusPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case StatusExact, StatusContains, StatusDisabled:
		return p, nil
	case "":
		return StatusExact, nil
	}
	return "", fmt.Errorf("unknown status policy %q (exact|contains|disabled)", s)
}

// Keep：按策略判断状态值；contains 为字面子串匹配，"INACTIVO" 同样命中
func (p StatusPolicy) Keep(v string) bool {
	v = strings.ToUpper(strings.TrimSpace(v))
	switch p {
	case StatusDisabled:
		return true
	case StatusContains:
		return strings.Contains(v, activeStatus)
	default:
		return v == activeStatus
	}
}

// MissingColumnError：必需逻辑列无法解析
type MissingColumnError struct {
	Field string
	Err   error
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required column %s: %v", e.Field, e.Err)
}

func (e *MissingColumnError) Unwrap() error { return e.Err }

type Options struct {
	Aliases Aliases
	Status  StatusPolicy
	Frame   geo.Frame
}

func (o Options) withDefaults() Options {
	if o.Aliases == nil {
		o.Aliases = DefaultAliases()
	}
	if o.Status == "" {
		o.Status = StatusExact
	}
	if o.Frame == 0 {
		o.Frame = geo.UTM18S
	}
	return o
}

// ResolveFields：按别名表解析全部逻辑列，必需列缺失时返回 *MissingColumnError
func ResolveFields(columns []string, aliases Aliases) (map[string]string, error) {
	fields := map[string]string{}
	for _, logical := range LogicalFields {
		label, err := table.ResolveAny(columns, aliases.lookup(logical))
		if err != nil {
			if isRequired(logical) {
				return nil, &MissingColumnError{Field: logical, Err: err}
			}
			continue
		}
		fields[logical] = label
	}
	return fields, nil
}

// 文档注释：状态与坐标过滤
// 流程：解析列 -> 状态过滤（状态列缺失时跳过并告警）-> 坐标转数值 -> 丢弃空值与零值。
// 约束：空结果不是错误；输出坐标仍处于源投影 opts.Frame。
func Filter(t *table.Table, opts Options, l *slog.Logger) (*Dataset, error) {
	l = logger.OrDiscard(l)
	opts = opts.withDefaults()
	fields, err := ResolveFields(t.Columns, opts.Aliases)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{Columns: t.Columns, Fields: fields, Frame: opts.Frame, Source: t.Source}
	ds.Stages.Loaded = t.Len()
	l.Info("ingest_loaded", "rows", t.Len(), "columns", len(t.Columns), "path", t.Source.Path, "skipped", t.Source.Skipped)

	statusIdx := -1
	if label, ok := fields[FieldEstado]; ok && opts.Status != StatusDisabled {
		statusIdx = t.Index(label)
	} else if opts.Status != StatusDisabled {
		l.Warn("ingest_status_column_missing", "policy", string(opts.Status))
	}
	northIdx := t.Index(fields[FieldNorte])
	eastIdx := t.Index(fields[FieldEste])

	for _, row := range t.Rows {
		if statusIdx >= 0 && !opts.Status.Keep(table.Cell(row, statusIdx)) {
			continue
		}
		ds.Stages.AfterStatus++
		n, okN := ParseCoord(table.Cell(row, northIdx))
		e, okE := ParseCoord(table.Cell(row, eastIdx))
		if !okN || !okE {
			continue
		}
		ds.Stages.WithCoords++
		if n == 0 || e == 0 {
			continue
		}
		f := Facility{
			Row:      row,
			Easting:  e,
			Northing: n,
			Point:    geom.NewPointFlat(geom.XY, []float64{e, n}).SetSRID(int(opts.Frame)),
		}
		if opts.Frame.IsGeographic() {
			f.Lon, f.Lat = e, n
		}
		ds.Facilities = append(ds.Facilities, f)
	}
	ds.Stages.Valid = len(ds.Facilities)
	l.Info("ingest_filtered",
		"policy", string(opts.Status),
		"after_status", ds.Stages.AfterStatus,
		"with_coords", ds.Stages.WithCoords,
		"valid", ds.Stages.Valid,
	)
	if ds.Stages.Valid == 0 {
		l.Warn("ingest_empty", "loaded", ds.Stages.Loaded)
	}
	return ds, nil
}

// LoadAndFilter：从候选路径读入后过滤
func LoadAndFilter(paths []string, opts Options, l *slog.Logger) (*Dataset, error) {
	t, err := table.Open(paths...)
	if err != nil {
		return nil, err
	}
	ds, err := Filter(t, opts, l)
	if err != nil {
		var mc *MissingColumnError
		if errors.As(err, &mc) {
			return nil, fmt.Errorf("%s: %w", t.Source.Path, err)
		}
		return nil, err
	}
	return ds, nil
}

// 文档注释：坐标字符串转数值
// 约束：空串、非数字、NaN/Inf 视为缺失；仅含一个逗号且无小数点时按小数逗号处理，同时含点号时逗号视为千分位。
func ParseCoord(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") {
		if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
