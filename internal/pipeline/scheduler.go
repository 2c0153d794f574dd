package pipeline

import (
	"context"
	"log/slog"
	"time"

	"ipress-dash/internal/logger"
)

// NextRunAt：计算下一次指定整点的时间（严格晚于 now）
func NextRunAt(now time.Time, loc *time.Location, hour int) time.Time {
	now = now.In(loc)
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, loc)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// 文档注释：每日定时重载
// 背景：IPRESS 数据按日更新，在低峰时段重新运行流水线；失败由日志记录，旧结果保留，任务继续调度。
// 约束：hour 超出 0-23 时不启动；ctx 取消后退出。
func StartDaily(ctx context.Context, s *Session, loc *time.Location, hour int, l *slog.Logger) {
	l = logger.OrDiscard(l)
	if hour < 0 || hour > 23 {
		l.Info("reload_schedule_disabled")
		return
	}
	if loc == nil {
		loc = time.UTC
	}
	go func() {
		for {
			next := NextRunAt(time.Now(), loc, hour)
			l.Info("reload_scheduled", "next", next)
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			if _, err := s.Reload(ctx); err != nil {
				l.Error("reload_scheduled_error", "err", err)
			} else {
				l.Info("reload_scheduled_done")
			}
		}
	}()
}
