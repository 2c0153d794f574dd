package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSVFile：读取磁盘上的分隔文本文件
func ReadCSVFile(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := ReadCSV(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.Source.Path = path
	return t, nil
}

// 文档注释：解析分隔文本
// 背景：IPRESS 导出存在逗号与分号两种分隔；编码通常为 UTF-8，少数批次为 Windows-1252。
// 约束：分隔符按首行出现次数在 ',' 与 ';' 之间选择；字段数多于表头的坏行跳过并计数，少于表头的行补空。
func ReadCSV(raw []byte) (*Table, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	text, enc, err := decodeText(raw)
	if err != nil {
		return nil, err
	}
	delim := DetectDelimiter(firstLine(text))

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false

	t := &Table{Source: SourceInfo{Format: "csv", Encoding: enc, Delimiter: string(delim)}}
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	t.Columns = makeUniqueColumnNames(header)
	n := len(t.Columns)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				t.Source.Skipped++
				continue
			}
			return nil, err
		}
		if len(rec) > n {
			t.Source.Skipped++
			continue
		}
		if isBlankRecord(rec) {
			continue
		}
		t.Rows = append(t.Rows, fitRow(rec, n))
	}
	return t, nil
}

// DetectDelimiter：首行分号多于逗号时取分号，否则取逗号
func DetectDelimiter(line string) rune {
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}

func decodeText(raw []byte) (string, string, error) {
	if utf8.Valid(raw) {
		return string(raw), "utf-8", nil
	}
	s, err := charmap.Windows1252.NewDecoder().String(string(raw))
	if err != nil {
		return "", "", fmt.Errorf("decode csv: %w", err)
	}
	return s, "windows-1252", nil
}

func isBlankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
