package middleware

import (
	"net/http"
	"strconv"
	"time"

	"ipress-dash/internal/metrics"

	"golang.org/x/time/rate"
)

// 文档注释：令牌桶限流
// 背景：重载会重新读入整份登记表与边界文件，成本高；每个窗口最多 capacity 次，超出直接返回 429。
// 约束：不排队；capacity <= 0 表示不限流。
type TokenBucket struct {
	lim    *rate.Limiter
	window time.Duration
	now    func() time.Time
}

func NewTokenBucket(capacity int, window time.Duration) *TokenBucket {
	if window <= 0 {
		window = time.Minute
	}
	tb := &TokenBucket{window: window, now: time.Now}
	if capacity > 0 {
		tb.lim = rate.NewLimiter(rate.Every(window/time.Duration(capacity)), capacity)
	}
	return tb
}

// Allow：取一个令牌
func (tb *TokenBucket) Allow() bool {
	if tb == nil || tb.lim == nil {
		return true
	}
	return tb.lim.AllowN(tb.now(), 1)
}

func (tb *TokenBucket) retryAfter() string {
	if tb == nil {
		return "1"
	}
	s := int(tb.window / time.Duration(tb.lim.Burst()) / time.Second)
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}

// Limit：超出速率时返回 429 并计数
func Limit(tb *TokenBucket, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tb.Allow() {
			metrics.ReloadRejectedTotal.WithLabelValues("rate_limited").Inc()
			w.Header().Set("Retry-After", tb.retryAfter())
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
