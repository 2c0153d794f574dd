// 包 render：展示产物（柱状图 / 静态地图 PNG，点位与分级设色 GeoJSON 图层）
package render

import (
	"fmt"
	"image/color"
	"io"

	"ipress-dash/internal/ingest"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// DefaultTop 柱状图默认展示的部门数量
const DefaultTop = 10

// BarColor 柱状图填充色 #2E86AB
var BarColor = color.RGBA{R: 0x2E, G: 0x86, B: 0xAB, A: 0xFF}

// 文档注释：部门机构数横向柱状图
// 约束：counts 需已按数量降序（ingest.CountBy 的输出）；只取前 top 个，最大者位于最上方。
// 空输入仍输出一张带标题的空图。
func DepartmentBar(counts []ingest.Count, top int, w io.Writer, width, height vg.Length) error {
	if top <= 0 {
		top = DefaultTop
	}
	if len(counts) > top {
		counts = counts[:top]
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Top %d Departamentos con más hospitales", top)
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = "Número de hospitales"
	p.X.Min = 0

	if len(counts) == 0 {
		p.Title.Text += " (sin datos)"
		return writePNG(p, w, width, height)
	}

	values := make(plotter.Values, len(counts))
	names := make([]string, len(counts))
	for i, c := range counts {
		j := len(counts) - 1 - i
		values[j] = float64(c.N)
		names[j] = c.Value
	}
	bars, err := plotter.NewBarChart(values, vg.Points(14))
	if err != nil {
		return fmt.Errorf("bar chart: %w", err)
	}
	bars.Horizontal = true
	bars.Color = BarColor
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars, plotter.NewGrid())
	p.NominalY(names...)
	return writePNG(p, w, width, height)
}

func writePNG(p *plot.Plot, w io.Writer, width, height vg.Length) error {
	if width <= 0 {
		width = 8 * vg.Inch
	}
	if height <= 0 {
		height = 5 * vg.Inch
	}
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
