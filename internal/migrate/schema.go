package migrate

import (
	"database/sql"
	"log/slog"

	"ipress-dash/internal/logger"
)

// 背景：首次运行自动创建运行台账与访问统计表
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(db *sql.DB, l *slog.Logger) error {
	l = logger.OrDiscard(l)
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _ipress_runs (
            run_id UUID PRIMARY KEY,
            params_key TEXT NOT NULL,
            source_path TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            error TEXT NOT NULL DEFAULT '',
            loaded INT NOT NULL DEFAULT 0,
            after_status INT NOT NULL DEFAULT 0,
            with_coords INT NOT NULL DEFAULT 0,
            valid INT NOT NULL DEFAULT 0,
            districts INT NOT NULL DEFAULT 0,
            matched INT NOT NULL DEFAULT 0,
            unmatched INT NOT NULL DEFAULT 0,
            duration_ms BIGINT NOT NULL DEFAULT 0,
            started_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_ipress_runs_started ON _ipress_runs(started_at DESC)`,
		`CREATE TABLE IF NOT EXISTS _ipress_stats_daily (
            day DATE PRIMARY KEY,
            requests BIGINT NOT NULL DEFAULT 0
        )`,
	}
	for i, s := range stmts {
		l.Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	l.Debug("schema_done")
	return nil
}
