package main

import (
	"context"
	"os"
	"time"

	"ipress-dash/internal/config"
	"ipress-dash/internal/logger"
	"ipress-dash/internal/store"
	"ipress-dash/internal/utils"
)

// 文档注释：运行台账保留窗口
// 背景：定时重载每天都会写入运行记录；删除早于 RUNS_KEEP_DAYS 天的记录，但始终保留最近 RUNS_KEEP_N 条。
// 约束：仅作用于 _ipress_runs；访问统计表不在此 CLI 处理。
func main() {
	config.LoadDotEnv()
	l := logger.Setup()
	cfg := config.Load()
	days := config.Int("RUNS_KEEP_DAYS", 30)
	keepN := config.Int("RUNS_KEEP_N", 100)
	if days <= 0 {
		l.Error("runs_keep_days_invalid", "days", days)
		os.Exit(1)
	}
	db, err := utils.OpenPostgres(cfg.Postgres)
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	before := time.Now().AddDate(0, 0, -days)
	n, err := store.AttachDB(db).PruneRuns(ctx, before, keepN)
	if err != nil {
		l.Error("runs_prune_error", "err", err)
		os.Exit(1)
	}
	l.Info("runs_prune_done", "deleted", n, "before", before.Format(time.RFC3339), "keep", keepN)
}
