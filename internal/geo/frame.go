// 包 geo：坐标参考系（EPSG 代码）、点构造与投影转换
package geo

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
)

// Frame 以 EPSG 代码标识坐标参考系
type Frame int

const (
	WGS84  Frame = 4326
	UTM18S Frame = 32718
)

func (f Frame) String() string { return "EPSG:" + strconv.Itoa(int(f)) }

func (f Frame) IsGeographic() bool { return f == WGS84 }

// UTMZone：WGS84 UTM 系列（326zz 北半球 / 327zz 南半球）返回带号与半球
func (f Frame) UTMZone() (zone int, north bool, ok bool) {
	n := int(f)
	switch {
	case n >= 32601 && n <= 32660:
		return n - 32600, true, true
	case n >= 32701 && n <= 32760:
		return n - 32700, false, true
	}
	return 0, false, false
}

// Supported：仅支持地理坐标与 UTM
func (f Frame) Supported() bool {
	if f.IsGeographic() {
		return true
	}
	_, _, ok := f.UTMZone()
	return ok
}

// ParseFrame 接受 "32718" 或 "EPSG:32718"
func ParseFrame(s string) (Frame, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	s = strings.TrimPrefix(s, "EPSG:")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid frame %q: %w", s, err)
	}
	f := Frame(n)
	if !f.Supported() {
		return 0, fmt.Errorf("unsupported frame %s", f)
	}
	return f, nil
}

var (
	prjAuthority = regexp.MustCompile(`AUTHORITY\["EPSG",\s*"?(\d+)"?\]\s*\]\s*$`)
	prjZone      = regexp.MustCompile(`(?i)UTM[_ ]ZONE[_ ]?(\d{1,2})\s*([NS])`)
)

// 文档注释：根据 .prj（WKT）文本识别坐标参考系
// 约束：优先使用末尾的 EPSG AUTHORITY；否则识别 "UTM zone 18S" 类名称；无 PROJCS 的 GEOGCS 视为 WGS84。
func DetectPRJ(wkt string) (Frame, bool) {
	wkt = strings.TrimSpace(wkt)
	if wkt == "" {
		return 0, false
	}
	if m := prjAuthority.FindStringSubmatch(wkt); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && Frame(n).Supported() {
			return Frame(n), true
		}
	}
	upper := strings.ToUpper(wkt)
	if strings.HasPrefix(upper, "PROJCS") {
		if m := prjZone.FindStringSubmatch(wkt); m != nil {
			zone, _ := strconv.Atoi(m[1])
			if zone >= 1 && zone <= 60 {
				if strings.EqualFold(m[2], "S") {
					return Frame(32700 + zone), true
				}
				return Frame(32600 + zone), true
			}
		}
		return 0, false
	}
	if strings.HasPrefix(upper, "GEOGCS") {
		return WGS84, true
	}
	return 0, false
}

// PeruBounds：部署区域的经纬度范围，仅用于诊断
var PeruBounds = geom.NewBounds(geom.XY).Set(-81.4, -18.4, -68.6, 0.1)

// InRegion：点（经度, 纬度）是否位于区域范围内
func InRegion(b *geom.Bounds, p *geom.Point) bool {
	if p == nil {
		return false
	}
	return b.OverlapsPoint(geom.XY, p.Coords())
}
