// 包 store: PostgreSQL 数据访问层，记录流水线运行台账与接口访问统计
package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// Store: 数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Run: 一次流水线运行的诊断数据，不含任何机构记录
type Run struct {
	RunID       string    `json:"run_id"`
	ParamsKey   string    `json:"params_key"`
	SourcePath  string    `json:"source_path"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Loaded      int       `json:"loaded"`
	AfterStatus int       `json:"after_status"`
	WithCoords  int       `json:"with_coords"`
	Valid       int       `json:"valid"`
	Districts   int       `json:"districts"`
	Matched     int       `json:"matched"`
	Unmatched   int       `json:"unmatched"`
	DurationMs  int64     `json:"duration_ms"`
	StartedAt   time.Time `json:"started_at"`
}

// RecordRun: 写入一条运行记录；run_id 重复时覆盖
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO _ipress_runs(run_id, params_key, source_path, status, error,
            loaded, after_status, with_coords, valid, districts, matched, unmatched, duration_ms, started_at)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        ON CONFLICT (run_id) DO UPDATE SET status=EXCLUDED.status, error=EXCLUDED.error, duration_ms=EXCLUDED.duration_ms`,
		r.RunID, r.ParamsKey, r.SourcePath, r.Status, r.Error,
		r.Loaded, r.AfterStatus, r.WithCoords, r.Valid, r.Districts, r.Matched, r.Unmatched, r.DurationMs, r.StartedAt,
	)
	return err
}

// ListRuns: 按开始时间倒序返回最近的运行记录
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, params_key, source_path, status, error,
            loaded, after_status, with_coords, valid, districts, matched, unmatched, duration_ms, started_at
        FROM _ipress_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.ParamsKey, &r.SourcePath, &r.Status, &r.Error,
			&r.Loaded, &r.AfterStatus, &r.WithCoords, &r.Valid, &r.Districts, &r.Matched, &r.Unmatched,
			&r.DurationMs, &r.StartedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// 文档注释：清理旧的运行记录
// 约束：删除早于 before 的记录，但始终保留最近 keep 条。
func (s *Store) PruneRuns(ctx context.Context, before time.Time, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM _ipress_runs
        WHERE started_at < $1
          AND run_id NOT IN (SELECT run_id FROM _ipress_runs ORDER BY started_at DESC LIMIT $2)`, before, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// IncrRequests: 递增当日接口访问计数
func (s *Store) IncrRequests(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO _ipress_stats_daily(day, requests) VALUES(current_date, 1) ON CONFLICT (day) DO UPDATE SET requests=_ipress_stats_daily.requests+1")
	return err
}

// Totals: 累计与当日访问次数
type Totals struct {
	Total int64 `json:"total"`
	Today int64 `json:"today"`
}

// GetTotals: 读取累计与当日访问次数；无记录时为 0
func (s *Store) GetTotals(ctx context.Context) (*Totals, error) {
	var t Totals
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(requests), 0) FROM _ipress_stats_daily").Scan(&t.Total); err != nil {
		return nil, err
	}
	err := s.db.QueryRowContext(ctx, "SELECT requests FROM _ipress_stats_daily WHERE day=current_date").Scan(&t.Today)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	return &t, nil
}
