// 包 join：机构点与区边界的关联计数（按名称/编码或按空间包含）
package join

import (
	"errors"
	"fmt"
	"strings"

	"ipress-dash/internal/ingest"
	"ipress-dash/internal/table"
)

// DefaultFragments：边界字段名启发式片段，越具体越靠前
var DefaultFragments = []string{"nombdist", "distrito", "dist", "ubigeo", "codigo"}

var codeFragments = []string{"ubigeo", "codigo", "iddist"}

// ErrNoIdentityField 可用于 errors.Is 判断
var ErrNoIdentityField = errors.New("no district identity field")

type Options struct {
	// DistrictField 显式指定边界标识字段，经列解析器匹配
	DistrictField string
	// PointField 显式指定机构侧字段（逻辑名或实际列名）
	PointField string
	Fragments  []string
}

// Identity：一次关联使用的两侧字段
type Identity struct {
	BoundaryField string `json:"boundary_field"`
	PointField    string `json:"point_field"`
	Code          bool   `json:"code"`
}

// IsCodeField：字段名像行政区编码（UBIGEO/IDDIST 等）
func IsCodeField(name string) bool {
	n := strings.ToLower(name)
	for _, f := range codeFragments {
		if strings.Contains(n, f) {
			return true
		}
	}
	return false
}

// 文档注释：确定边界标识字段
// 约束：显式配置优先且必须能解析，否则返回 *table.ColumnNotFoundError；
// 未配置时按片段顺序取第一个包含该片段的字段（字段按原顺序扫描）。
func ResolveIdentityField(fields []string, opts Options) (Identity, error) {
	var id Identity
	if strings.TrimSpace(opts.DistrictField) != "" {
		label, err := table.Resolve(fields, opts.DistrictField)
		if err != nil {
			return id, err
		}
		id.BoundaryField = label
	} else {
		frags := opts.Fragments
		if len(frags) == 0 {
			frags = DefaultFragments
		}
	search:
		for _, frag := range frags {
			frag = strings.ToLower(strings.TrimSpace(frag))
			if frag == "" {
				continue
			}
			for _, f := range fields {
				if strings.Contains(strings.ToLower(f), frag) {
					id.BoundaryField = f
					break search
				}
			}
		}
		if id.BoundaryField == "" {
			return id, fmt.Errorf("%w among %v", ErrNoIdentityField, fields)
		}
	}
	id.Code = IsCodeField(id.BoundaryField)
	switch {
	case strings.TrimSpace(opts.PointField) != "":
		id.PointField = strings.TrimSpace(opts.PointField)
	case id.Code:
		id.PointField = ingest.FieldUbigeo
	default:
		id.PointField = ingest.FieldDistrito
	}
	return id, nil
}

// Normalize：去首尾空白并转大写
func Normalize(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// NormalizeCode：纯数字编码左补零到 6 位；"150101.0" 这类浮点写法去掉小数部分
func NormalizeCode(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i > 0 && strings.Trim(s[i+1:], "0") == "" {
		s = s[:i]
	}
	if s == "" {
		return ""
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return Normalize(s)
		}
	}
	if len(s) < 6 {
		s = strings.Repeat("0", 6-len(s)) + s
	}
	return s
}

func (id Identity) key(s string) string {
	if id.Code {
		return NormalizeCode(s)
	}
	return Normalize(s)
}

// pointValues：机构侧字段取值，先按逻辑名，再按实际列名解析
func pointValues(ds *ingest.Dataset, field string) ([]string, error) {
	out := make([]string, ds.Len())
	if ds.Has(field) {
		for i := range ds.Facilities {
			out[i] = ds.Value(&ds.Facilities[i], field)
		}
		return out, nil
	}
	label, err := table.Resolve(ds.Columns, field)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, c := range ds.Columns {
		if c == label {
			idx = i
			break
		}
	}
	for i := range ds.Facilities {
		out[i] = table.Cell(ds.Facilities[i].Row, idx)
	}
	return out, nil
}
