package join

import (
	"fmt"
	"log/slog"
	"sort"

	"ipress-dash/internal/boundary"
	"ipress-dash/internal/ingest"
	"ipress-dash/internal/logger"
)

const (
	ModeName     = "name"
	ModeContains = "contains"
)

// Row：一个区及其机构数，顺序与边界输入一致
type Row struct {
	District *boundary.District
	Key      string
	Count    int
}

// 文档注释：关联结果
// 约束：Rows 与边界一一对应；sum(Count) <= Points；Unmatched 为没有对应边界的机构侧取值，
// 标识为空的机构记为 Value 为空串的一项。
type Result struct {
	Mode      string
	Identity  Identity
	Rows      []Row
	Points    int
	Matched   int
	Unmatched []ingest.Count
	Ambiguous []string
}

func (r *Result) Counts() []int {
	out := make([]int, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.Count
	}
	return out
}

// Max：最大的区计数，用于配色分级
func (r *Result) Max() int {
	m := 0
	for _, row := range r.Rows {
		if row.Count > m {
			m = row.Count
		}
	}
	return m
}

// 文档注释：按名称或编码做左关联计数
// 约束：每个边界恰好出现一次且保持顺序；无机构的区计数为 0；
// 多个边界共享同一标识时计数只归第一个，并记录 join_ambiguous_identity。
func ByName(ds *ingest.Dataset, set *boundary.Set, opts Options, l *slog.Logger) (*Result, error) {
	l = logger.OrDiscard(l)
	id, err := ResolveIdentityField(set.Fields, opts)
	if err != nil {
		return nil, err
	}
	res := &Result{Mode: ModeName, Identity: id, Points: ds.Len()}

	values, err := pointValues(ds, id.PointField)
	if err != nil {
		return nil, fmt.Errorf("join point field: %w", err)
	}
	counts := map[string]int{}
	for _, v := range values {
		counts[id.key(v)]++
	}

	owner := map[string]int{}
	res.Rows = make([]Row, len(set.Districts))
	for i, d := range set.Districts {
		k := id.key(d.Attr(id.BoundaryField))
		res.Rows[i] = Row{District: d, Key: k}
		if k == "" {
			continue
		}
		if _, dup := owner[k]; dup {
			res.Ambiguous = append(res.Ambiguous, k)
			continue
		}
		owner[k] = i
	}
	for k, i := range owner {
		res.Rows[i].Count = counts[k]
		res.Matched += counts[k]
	}
	if len(res.Ambiguous) > 0 {
		l.Warn("join_ambiguous_identity", "field", id.BoundaryField, "count", len(res.Ambiguous), "sample", sample(res.Ambiguous))
	}

	for k, n := range counts {
		if _, ok := owner[k]; !ok {
			res.Unmatched = append(res.Unmatched, ingest.Count{Value: k, N: n})
		}
	}
	sortCounts(res.Unmatched)
	logMismatch(l, res)
	l.Info("join_ok", "mode", res.Mode, "boundary_field", id.BoundaryField, "point_field", id.PointField,
		"districts", len(res.Rows), "points", res.Points, "matched", res.Matched)
	return res, nil
}

// 文档注释：按空间包含关联计数
// 约束：点与边界须处于同一参考系；点落在多个区时取输入顺序第一个；区外的点按其区名记入 Unmatched。
func ByContainment(ds *ingest.Dataset, set *boundary.Set, l *slog.Logger) (*Result, error) {
	l = logger.OrDiscard(l)
	if ds.Frame != set.Frame {
		return nil, fmt.Errorf("containment join needs one frame, points are %s and districts %s", ds.Frame, set.Frame)
	}
	res := &Result{Mode: ModeContains, Points: ds.Len(), Rows: make([]Row, len(set.Districts))}
	for i, d := range set.Districts {
		res.Rows[i] = Row{District: d}
	}
	ix := boundary.NewIndex(set)
	outside := map[string]int{}
	for i := range ds.Facilities {
		f := &ds.Facilities[i]
		if f.Point == nil {
			continue
		}
		if d := ix.Locate(f.Point.X(), f.Point.Y()); d != nil {
			res.Rows[d.Index].Count++
			res.Matched++
			continue
		}
		outside[Normalize(ds.Value(f, ingest.FieldDistrito))]++
	}
	for k, n := range outside {
		res.Unmatched = append(res.Unmatched, ingest.Count{Value: k, N: n})
	}
	sortCounts(res.Unmatched)
	logMismatch(l, res)
	l.Info("join_ok", "mode", res.Mode, "districts", len(res.Rows), "points", res.Points, "matched", res.Matched)
	return res, nil
}

// Blank：标识为空、无法参与关联的机构数
func (r *Result) Blank() int {
	for _, c := range r.Unmatched {
		if c.Value == "" {
			return c.N
		}
	}
	return 0
}

// UnmatchedPoints：未计入任何区的机构数（含标识为空者）
func (r *Result) UnmatchedPoints() int {
	n := 0
	for _, c := range r.Unmatched {
		n += c.N
	}
	return n
}

func logMismatch(l *slog.Logger, res *Result) {
	if len(res.Unmatched) == 0 {
		return
	}
	names := make([]string, 0, len(res.Unmatched))
	for _, c := range res.Unmatched {
		if c.Value != "" {
			names = append(names, c.Value)
		}
	}
	l.Warn("join_mismatch", "mode", res.Mode, "identities", len(res.Unmatched), "points", res.UnmatchedPoints(),
		"blank", res.Blank(), "sample", sample(names))
}

func sortCounts(cs []ingest.Count) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].N != cs[j].N {
			return cs[i].N > cs[j].N
		}
		return cs[i].Value < cs[j].Value
	})
}

func sample(ss []string) []string {
	if len(ss) > 5 {
		return ss[:5]
	}
	return ss
}
