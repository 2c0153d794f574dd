package render

import (
	"fmt"
	"io"

	"ipress-dash/internal/ingest"

	"github.com/xuri/excelize/v2"
)

// CountsSheet 区计数表的工作表名
const CountsSheet = "Distritos"

// DistrictCountsXLSX：区计数表导出为 xlsx，第一行为表头
func DistrictCountsXLSX(counts []ingest.DistrictCount, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", CountsSheet); err != nil {
		return err
	}
	header := []interface{}{"DEPARTAMENTO", "PROVINCIA", "DISTRITO", "UBIGEO", "N_HOSPITALES"}
	if err := f.SetSheetRow(CountsSheet, "A1", &header); err != nil {
		return err
	}
	for i, c := range counts {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{c.Departamento, c.Provincia, c.Distrito, c.Ubigeo, c.N}
		if err := f.SetSheetRow(CountsSheet, cell, &row); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	_, err := f.WriteTo(w)
	return err
}
