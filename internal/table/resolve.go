package table

import (
	"errors"
	"fmt"
	"strings"
)

// ErrColumnNotFound 可用于 errors.Is 判断
var ErrColumnNotFound = errors.New("column not found")

// 文档注释：列缺失错误
// 背景：上游文件不同版本的表头大小写与空白不一致；解析失败时需要把全部可用列返回给界面提示。
type ColumnNotFoundError struct {
	Name      string
	Available []string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found; available columns: %s", e.Name, strings.Join(quoteAll(e.Available), ", "))
}

func (e *ColumnNotFoundError) Is(target error) bool { return target == ErrColumnNotFound }

// NormalizeLabel：去首尾空白并转小写
func NormalizeLabel(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// 文档注释：逻辑列名解析
// 背景：IPRESS 不同批次表头存在 "Departamento"、"DEPARTAMENTO " 等写法，统一按规范化形式比较。
// 约束：存在多个匹配时按列顺序取第一个；无匹配返回 *ColumnNotFoundError。
func Resolve(columns []string, name string) (string, error) {
	key := NormalizeLabel(name)
	for _, c := range columns {
		if NormalizeLabel(c) == key {
			return c, nil
		}
	}
	return "", &ColumnNotFoundError{Name: name, Available: append([]string(nil), columns...)}
}

// ResolveAny：按别名顺序逐个尝试，返回第一个命中的实际列名
func ResolveAny(columns []string, aliases []string) (string, error) {
	for _, a := range aliases {
		if c, err := Resolve(columns, a); err == nil {
			return c, nil
		}
	}
	name := ""
	if len(aliases) > 0 {
		name = aliases[0]
	}
	return "", &ColumnNotFoundError{Name: name, Available: append([]string(nil), columns...)}
}

// Lookup：容错版本，未命中返回 -1，用于可选列
func (t *Table) Lookup(name string) int {
	c, err := Resolve(t.Columns, name)
	if err != nil {
		return -1
	}
	return t.Index(c)
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
