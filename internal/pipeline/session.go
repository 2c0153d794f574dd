package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"ipress-dash/internal/logger"

	"github.com/patrickmn/go-cache"
)

// Loader 执行一次运行；*Runner 即为实现
type Loader interface {
	Run(ctx context.Context, p Params) (*Result, error)
}

// 文档注释：会话级结果缓存
// 背景：界面上的每次交互都读取同一份结果；只有显式重载才重新运行流水线。
// 约束：键为 Params.Key()，永不过期；重载失败保留旧结果；并发重载以最后触发者为准（代数计数）。
type Session struct {
	loader Loader
	params Params
	memo   *cache.Cache
	l      *slog.Logger

	loadMu sync.Mutex // 串行化首次加载
	mu     sync.Mutex // 保护 gen 与 stored
	gen    uint64
	stored uint64
}

func NewSession(loader Loader, p Params, l *slog.Logger) *Session {
	return &Session{loader: loader, params: p, memo: cache.New(cache.NoExpiration, 0), l: logger.OrDiscard(l)}
}

func (s *Session) Params() Params { return s.params }

// Current：已缓存的结果，不触发运行
func (s *Session) Current() (*Result, bool) {
	v, ok := s.memo.Get(s.params.Key())
	if !ok {
		return nil, false
	}
	return v.(*Result), true
}

// Get：有缓存直接返回，否则运行一次；并发的首次调用只运行一次
func (s *Session) Get(ctx context.Context) (*Result, error) {
	if r, ok := s.Current(); ok {
		return r, nil
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if r, ok := s.Current(); ok {
		return r, nil
	}
	return s.runAndStore(ctx, s.next())
}

// Reload：显式重载；失败时返回错误且旧结果不变
func (s *Session) Reload(ctx context.Context) (*Result, error) {
	s.l.Info("session_reload", "key", s.params.Key())
	return s.runAndStore(ctx, s.next())
}

func (s *Session) next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.gen
}

func (s *Session) runAndStore(ctx context.Context, gen uint64) (*Result, error) {
	res, err := s.loader.Run(ctx, s.params)
	if err != nil {
		s.l.Warn("session_load_error", "gen", gen, "err", err)
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen < s.stored {
		// 更晚触发的运行已经写入
		s.l.Info("session_result_superseded", "gen", gen, "stored", s.stored)
		if cur, ok := s.Current(); ok {
			return cur, nil
		}
		return res, nil
	}
	s.stored = gen
	s.memo.Set(s.params.Key(), res, cache.NoExpiration)
	return res, nil
}
