// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ipress-dash/internal/api"
	"ipress-dash/internal/config"
	"ipress-dash/internal/geo"
	"ipress-dash/internal/logger"
	"ipress-dash/internal/metrics"
	"ipress-dash/internal/middleware"
	"ipress-dash/internal/migrate"
	"ipress-dash/internal/pipeline"
	"ipress-dash/internal/store"
	"ipress-dash/internal/utils"
	"ipress-dash/internal/version"
)

func main() {
	config.LoadDotEnv()
	// 日志初始化
	l := logger.Setup()
	l.Debug("log_init_ok")
	cfg := config.Load()
	l.Debug("config_api_base", "base", cfg.APIBase)
	l.Debug("config_ui_dir", "dir", cfg.UIDist)

	params, err := pipeline.ParamsFromConfig(cfg)
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	l.Info("config_loaded", "ipress_paths", cfg.IpressPaths, "districts", cfg.DistrictsPath,
		"status_policy", string(params.Status), "source", params.Source.String(), "target", params.Target.String(),
		"join_mode", params.JoinMode, "aliases", params.Aliases.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := &pipeline.Runner{
		Reprojector: geo.UTMReprojector{},
		Logger:      l,
		NearbyMaxKm: cfg.NearbyMaxKm,
		NearbyTTL:   cfg.NearbyCacheTTL,
	}
	var ledger api.Ledger
	if cfg.Postgres.Enable {
		db, err := utils.OpenPostgres(cfg.Postgres)
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		l.Info("db_open_ok")
		if err := db.PingContext(ctx); err != nil {
			l.Error("db_ping_error", "err", err)
		} else {
			l.Info("db_ping_ok")
		}
		if err := migrate.EnsureSchema(db, l); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		st := store.AttachDB(db)
		runner.Recorder = st
		ledger = st
	} else {
		l.Info("db_disabled")
	}

	rc := utils.OpenRedisFromConfig(cfg.Redis)
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
	}

	session := pipeline.NewSession(runner, params, l)
	// 背景：启动时预热一次；失败不退出，首个请求会重试并把错误返回给界面
	go func() {
		if _, err := session.Get(ctx); err != nil {
			l.Error("warmup_error", "err", err)
		}
	}()
	loc, err := time.LoadLocation(cfg.ReloadTZ)
	if err != nil {
		l.Warn("reload_tz_invalid", "tz", cfg.ReloadTZ, "err", err)
		loc = time.UTC
	}
	pipeline.StartDaily(ctx, session, loc, cfg.ReloadHour, l)

	mux := http.NewServeMux()
	// 文档注释：构建路由（携带会话、缓存与台账）
	apiMux := api.BuildRoutes(api.Deps{
		Session:    session,
		Redis:      rc,
		CacheTTL:   cfg.Redis.TTL,
		Ledger:     ledger,
		AdminToken: cfg.AdminToken,
		Reload:     middleware.NewTokenBucket(cfg.ReloadPerMin, time.Minute),
		Logger:     l,
	})
	apiBase := cfg.APIBase
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())

	fs := http.FileServer(http.Dir(cfg.UIDist))
	mux.Handle("/", fs)

	// NOTE: 向前端暴露 API 基础路径，避免硬编码；生产环境由后端统一提供
	mux.HandleFunc("/config.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/javascript; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_, _ = w.Write([]byte("window.__API_BASE__='" + apiBase + "'\n"))
		_, _ = w.Write([]byte("window.__MAP_CENTER__=[-9.19,-75.0152]\n"))
		_, _ = w.Write([]byte("window.__DATA_SOURCE__='IPRESS - SUSALUD'\n"))
		_, _ = w.Write([]byte("window.__COMMIT_SHA__='" + version.Commit + "'"))
	})

	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(l, cfg.CORSOrigins, handler)
	s := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	if cfg.TLSEnable {
		if err := utils.EnsureSelfSignedCert(cfg.TLSCertPath, cfg.TLSKeyPath, "ipress-dash.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLSCertPath)
		err = s.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
	} else {
		l.Info("listening", "addr", cfg.Addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
	l.Info("server_stopped")
}
