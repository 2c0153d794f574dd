// 包 config：进程配置。环境变量可来自 .env 与 data/env/.env，解析一次后以结构体向下传递
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Postgres struct {
	Enable   bool
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
	MaxOpen  int
	MaxIdle  int
}

type Redis struct {
	Enable bool
	Host   string
	Port   string
	Pass   string
	DB     int
	TTL    time.Duration
}

// 文档注释：服务与命令行工具共用的配置
// 约束：字段保留原始字符串形式（如 STATUS_FILTER、COLUMN_ALIASES），由各业务包在启动时校验。
type Config struct {
	IpressPaths    []string
	DistrictsPath  string
	StatusFilter   string
	SourceEPSG     int
	TargetEPSG     int
	ColumnAliases  string
	DistrictField  string
	PointField     string
	JoinMode       string
	JoinFragments  []string
	Addr           string
	APIBase        string
	UIDist         string
	AdminToken     string
	ReloadPerMin   int
	ReloadHour     int
	ReloadTZ       string
	CORSOrigins    []string
	TLSEnable      bool
	TLSCertPath    string
	TLSKeyPath     string
	NearbyMaxKm    float64
	NearbyCacheTTL time.Duration
	OutDir         string
	Redis          Redis
	Postgres       Postgres
}

// LoadDotEnv：加载 .env 文件，缺失时忽略
func LoadDotEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
}

// Load：读取环境变量并填充默认值
func Load() Config {
	return Config{
		IpressPaths:    List("IPRESS_PATH", []string{filepath.Join("data", "IPRESS.csv"), filepath.Join("data", "IPRESS.xlsx")}),
		DistrictsPath:  Str("DISTRICTS_PATH", filepath.Join("data", "DISTRITOS.shp")),
		StatusFilter:   Str("STATUS_FILTER", "exact"),
		SourceEPSG:     Int("SOURCE_EPSG", 32718),
		TargetEPSG:     Int("TARGET_EPSG", 4326),
		ColumnAliases:  os.Getenv("COLUMN_ALIASES"),
		DistrictField:  strings.TrimSpace(os.Getenv("DISTRICT_ID_FIELD")),
		PointField:     strings.TrimSpace(os.Getenv("JOIN_POINT_FIELD")),
		JoinMode:       Str("JOIN_MODE", "name"),
		JoinFragments:  List("JOIN_FRAGMENTS", nil),
		Addr:           Str("ADDR", ":8080"),
		APIBase:        Str("API_BASE", "/api"),
		UIDist:         Str("UI_DIST", filepath.Join("ui", "dist")),
		AdminToken:     os.Getenv("ADMIN_TOKEN"),
		ReloadPerMin:   Int("RELOAD_RATE_PER_MIN", 6),
		ReloadHour:     Int("RELOAD_HOUR", -1),
		ReloadTZ:       Str("RELOAD_TZ", "America/Lima"),
		CORSOrigins:    List("CORS_ORIGINS", []string{"*"}),
		TLSEnable:      Bool("TLS_ENABLE", false),
		TLSCertPath:    Str("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt")),
		TLSKeyPath:     Str("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key")),
		NearbyMaxKm:    Float("NEARBY_MAX_KM", 50),
		NearbyCacheTTL: time.Duration(Int("NEARBY_CACHE_TTL_S", 300)) * time.Second,
		OutDir:         Str("OUT_DIR", "out"),
		Redis: Redis{
			Enable: Bool("REDIS_ENABLE", false),
			Host:   Str("REDIS_HOST", "127.0.0.1"),
			Port:   Str("REDIS_PORT", "6379"),
			Pass:   os.Getenv("REDIS_PASS"),
			DB:     Int("REDIS_DB", 0),
			TTL:    time.Duration(Int("REDIS_TTL_S", 600)) * time.Second,
		},
		Postgres: Postgres{
			Enable:   Bool("PG_ENABLE", false),
			Host:     Str("PG_HOST", "localhost"),
			Port:     Str("PG_PORT", "5432"),
			User:     Str("PG_USER", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			DB:       Str("PG_DB", "ipress"),
			SSLMode:  Str("PG_SSLMODE", "disable"),
			MaxOpen:  Int("PG_MAX_OPEN_CONNS", 10),
			MaxIdle:  Int("PG_MAX_IDLE_CONNS", 5),
		},
	}
}

func Str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Int：解析失败回退到默认值
func Int(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func Float(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Bool：仅识别 true/false/1/0
func Bool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	return def
}

// List：逗号分隔，去空白与空项
func List(key string, def []string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
