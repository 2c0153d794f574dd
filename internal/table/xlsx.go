package table

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// 文档注释：读取工作簿第一个工作表
// 背景：IPRESS 官方下载为 Excel；首行作为表头，单元格取原始值避免数值被格式化为科学计数法。
func ReadXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("%s: workbook has no sheets", path)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	t := &Table{Source: SourceInfo{Path: path, Format: "xlsx", Encoding: "utf-8"}}
	if len(rows) == 0 {
		return t, nil
	}
	t.Columns = makeUniqueColumnNames(rows[0])
	n := len(t.Columns)
	for _, r := range rows[1:] {
		if isBlankRecord(r) {
			continue
		}
		if len(r) > n {
			// 表头之外的尾列通常是注释或公式残留
			r = r[:n]
		}
		t.Rows = append(t.Rows, fitRow(r, n))
	}
	return t, nil
}
