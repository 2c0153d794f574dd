// 包 ingest：IPRESS 记录的读入、状态与坐标过滤、投影转换与汇总统计
package ingest

import (
	"strings"

	"ipress-dash/internal/geo"
	"ipress-dash/internal/table"

	"github.com/twpayne/go-geom"
)

// Facility：一条有效的机构记录
// 约束：Easting/Northing 为源参考系坐标；Lon/Lat 在源为地理参考系时直接填充，否则于投影转换后填充。
type Facility struct {
	Row      []string
	Easting  float64
	Northing float64
	Lon      float64
	Lat      float64
	Point    *geom.Point
}

// Stages：各过滤阶段的行数
type Stages struct {
	Loaded      int `json:"loaded"`
	AfterStatus int `json:"after_status"`
	WithCoords  int `json:"with_coords"`
	Valid       int `json:"valid"`
}

// 文档注释：过滤后的数据集
// 约束：构造后只读，可在多个请求间共享；派生操作（Reproject、ByDepartment）返回新值。
type Dataset struct {
	Columns    []string
	Fields     map[string]string
	Facilities []Facility
	Stages     Stages
	Frame      geo.Frame
	Source     table.SourceInfo
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Facilities)
}

// Has：逻辑列是否已解析
func (d *Dataset) Has(logical string) bool {
	if d == nil {
		return false
	}
	_, ok := d.Fields[logical]
	return ok
}

// Value：读取逻辑列的原始值，列缺失时返回空串
func (d *Dataset) Value(f *Facility, logical string) string {
	label, ok := d.Fields[logical]
	if !ok {
		return ""
	}
	for i, c := range d.Columns {
		if c == label {
			return table.Cell(f.Row, i)
		}
	}
	return ""
}

// Text：去首尾空白后的值
func (d *Dataset) Text(f *Facility, logical string) string {
	return strings.TrimSpace(d.Value(f, logical))
}

// Table：把保留的行重新组装为表，用于再次过滤或导出
func (d *Dataset) Table() *table.Table {
	rows := make([][]string, len(d.Facilities))
	for i := range d.Facilities {
		rows[i] = d.Facilities[i].Row
	}
	t := table.New(d.Columns, rows)
	t.Source = d.Source
	return t
}

func (d *Dataset) derive(fs []Facility) *Dataset {
	out := *d
	out.Facilities = fs
	return &out
}
