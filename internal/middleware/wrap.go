// 包 middleware：入口中间件（异常恢复、跨域、限流）
package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"ipress-dash/internal/logger"

	"github.com/rs/cors"
)

// Recover：处理器 panic 时返回 500 并记录堆栈，进程不退出
func Recover(l *slog.Logger, next http.Handler) http.Handler {
	l = logger.OrDiscard(l)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				l.Error("http_panic", "path", r.URL.Path, "panic", v, "stack", string(debug.Stack()))
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORS：origins 为空或含 "*" 时允许任意来源
func CORS(origins []string, next http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Admin-Token"},
		MaxAge:         600,
	}).Handler(next)
}

// Wrap：服务入口的标准中间件链
func Wrap(l *slog.Logger, origins []string, next http.Handler) http.Handler {
	return Recover(l, CORS(origins, next))
}
