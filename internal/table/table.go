// 包 table：表格数据的最小内存模型（列名 + 字符串行），承载 CSV/XLSX 读入结果与列解析
package table

import "strings"

// 文档注释：读入来源信息
// 背景：用于诊断日志与接口展示（编码、分隔符、跳过的坏行数）。
type SourceInfo struct {
	Path      string
	Format    string // csv | xlsx
	Encoding  string
	Delimiter string
	Skipped   int
}

// 文档注释：记录表
// 约束：每行长度与 Columns 一致（读入时已补齐/截断）；空白字符串视为缺失值。
type Table struct {
	Columns []string
	Rows    [][]string
	Source  SourceInfo
}

func New(columns []string, rows [][]string) *Table {
	return &Table{Columns: columns, Rows: rows}
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index：按精确列名查找下标，未找到返回 -1
func (t *Table) Index(label string) int {
	for i, c := range t.Columns {
		if c == label {
			return i
		}
	}
	return -1
}

// Cell：越界安全读取
func Cell(row []string, idx int) string {
	if idx >= 0 && idx < len(row) {
		return row[idx]
	}
	return ""
}

// IsNull：空白值视为缺失
func IsNull(v string) bool { return strings.TrimSpace(v) == "" }

// Filter：保留 keep 返回 true 的行，返回新表（行切片共享底层数据，调用方不得原地修改）
func (t *Table) Filter(keep func(row []string) bool) *Table {
	out := &Table{Columns: t.Columns, Source: t.Source, Rows: make([][]string, 0, len(t.Rows))}
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}
