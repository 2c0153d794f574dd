package table

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrFileNotFound 可用于 errors.Is 判断
var ErrFileNotFound = errors.New("input file not found")

// 文档注释：输入文件缺失错误，携带全部尝试过的路径
type FileNotFoundError struct {
	Paths []string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("input file not found; tried: %s", strings.Join(e.Paths, ", "))
}

func (e *FileNotFoundError) Is(target error) bool { return target == ErrFileNotFound }

// 文档注释：按候选路径顺序打开第一个存在的文件
// 背景：部署目录下数据文件可能是 CSV 或 XLSX，沿用多个候选路径；全部不存在时返回 *FileNotFoundError。
func Open(paths ...string) (*Table, error) {
	var tried []string
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tried = append(tried, p)
		st, err := os.Stat(p)
		if err != nil || st.IsDir() {
			continue
		}
		return ReadFile(p)
	}
	return nil, &FileNotFoundError{Paths: tried}
}

// ReadFile：按扩展名分派到 CSV 或 XLSX 读取
func ReadFile(path string) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &FileNotFoundError{Paths: []string{path}}
		}
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(path)
	case ".xls":
		return nil, fmt.Errorf("%s: legacy .xls is not supported, save the sheet as .xlsx or .csv", path)
	default:
		return ReadCSVFile(path)
	}
}

// makeUniqueColumnNames：空表头补 column_N，重复表头追加 _2、_3 后缀
func makeUniqueColumnNames(columns []string) []string {
	result := make([]string, 0, len(columns))
	seen := map[string]int{}
	for i, raw := range columns {
		base := raw
		if strings.TrimSpace(base) == "" {
			base = fmt.Sprintf("column_%d", i+1)
		}
		seen[base]++
		if seen[base] == 1 {
			result = append(result, base)
		} else {
			result = append(result, fmt.Sprintf("%s_%d", base, seen[base]))
		}
	}
	return result
}

// fitRow：短行补空，长行由调用方决定是否丢弃
func fitRow(fields []string, n int) []string {
	if len(fields) == n {
		return fields
	}
	out := make([]string, n)
	copy(out, fields)
	return out
}
