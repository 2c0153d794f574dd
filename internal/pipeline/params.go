// 包 pipeline：一次完整的数据流水线（读入 -> 过滤 -> 投影 -> 边界关联 -> 汇总）及会话级结果缓存
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"ipress-dash/internal/config"
	"ipress-dash/internal/geo"
	"ipress-dash/internal/ingest"
	"ipress-dash/internal/join"
)

// Params：决定一次运行结果的全部输入
type Params struct {
	IpressPaths   []string
	DistrictsPath string
	Status        ingest.StatusPolicy
	Source        geo.Frame
	Target        geo.Frame
	Aliases       ingest.Aliases
	JoinMode      string
	Join          join.Options
}

// Key：稳定的缓存键，参数相同则键相同
func (p Params) Key() string {
	parts := []string{
		strings.Join(p.IpressPaths, ","),
		p.DistrictsPath,
		string(p.Status),
		p.Source.String(),
		p.Target.String(),
		p.Aliases.String(),
		p.JoinMode,
		p.Join.DistrictField,
		p.Join.PointField,
		strings.Join(p.Join.Fragments, ","),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:8])
}

// 文档注释：由配置构造运行参数
// 约束：状态策略、参考系、别名表与关联模式在此一次性校验，非法配置在启动时失败。
func ParamsFromConfig(c config.Config) (Params, error) {
	status, err := ingest.ParseStatusPolicy(c.StatusFilter)
	if err != nil {
		return Params{}, err
	}
	src, err := geo.ParseFrame(fmt.Sprint(c.SourceEPSG))
	if err != nil {
		return Params{}, fmt.Errorf("SOURCE_EPSG: %w", err)
	}
	dst, err := geo.ParseFrame(fmt.Sprint(c.TargetEPSG))
	if err != nil {
		return Params{}, fmt.Errorf("TARGET_EPSG: %w", err)
	}
	aliases, err := ingest.ParseAliases(c.ColumnAliases)
	if err != nil {
		return Params{}, fmt.Errorf("COLUMN_ALIASES: %w", err)
	}
	mode := strings.ToLower(strings.TrimSpace(c.JoinMode))
	switch mode {
	case "", join.ModeName:
		mode = join.ModeName
	case join.ModeContains:
	default:
		return Params{}, fmt.Errorf("JOIN_MODE: unknown mode %q (name|contains)", c.JoinMode)
	}
	return Params{
		IpressPaths:   c.IpressPaths,
		DistrictsPath: c.DistrictsPath,
		Status:        status,
		Source:        src,
		Target:        dst,
		Aliases:       aliases,
		JoinMode:      mode,
		Join: join.Options{
			DistrictField: c.DistrictField,
			PointField:    c.PointField,
			Fragments:     c.JoinFragments,
		},
	}, nil
}
