package workspace

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/events"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/metrics"
	"github.com/aisgo/ais-workspace/model"
)

/* ========================================================================
 * Registry - 会话注册表
 * ========================================================================
 * 职责: 每个主体持有一个工作区上下文，首次请求时初始化，空闲后回收
 *       收到成员变更事件时刷新受影响主体的上下文
 * ======================================================================== */

// Registry 会话注册表
type Registry struct {
	dir     Directory
	prefs   PreferenceStore
	opts    []ContextOption
	log     *logger.Logger
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	init     singleflight.Group
}

type session struct {
	wc       *Context
	lastSeen time.Time
}

// NewRegistry 创建注册表；idleTTL <= 0 时使用 30 分钟
func NewRegistry(dir Directory, prefs PreferenceStore, log *logger.Logger, idleTTL time.Duration, opts ...ContextOption) *Registry {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &Registry{
		dir:      dir,
		prefs:    prefs,
		opts:     append([]ContextOption{WithLogger(log)}, opts...),
		log:      log,
		idleTTL:  idleTTL,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Acquire 返回主体的工作区上下文，必要时创建默认工作区并初始化
func (r *Registry) Acquire(ctx context.Context, principal *model.Principal) (*Context, error) {
	if wc, ok := r.Get(principal.ID); ok {
		return wc, nil
	}

	v, err, _ := r.init.Do(principal.ID, func() (any, error) {
		if wc, ok := r.Get(principal.ID); ok {
			return wc, nil
		}
		if _, err := r.dir.EnsureDefault(ctx, principal); err != nil {
			return nil, err
		}
		wc := NewContext(r.dir, r.prefs, r.opts...)
		if err := wc.Initialize(ctx, *principal); err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.sessions[principal.ID] = &session{wc: wc, lastSeen: r.now()}
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
		r.mu.Unlock()
		return wc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Context), nil
}

// Get 返回已存在的上下文并刷新活跃时间
func (r *Registry) Get(principalID string) (*Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[principalID]
	if !ok {
		return nil, false
	}
	s.lastSeen = r.now()
	return s.wc, true
}

// Evict 移除主体的上下文
func (r *Registry) Evict(principalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, principalID)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
}

// Len 当前会话数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep 回收空闲会话，返回回收数量
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.idleTTL)
	n := 0
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return n
}

// Run 周期性回收，直到 ctx 取消
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.log.Debug("evicted idle workspace sessions", zap.Int("count", n))
			}
		}
	}
}

// RefreshPrincipal 刷新主体的上下文；本实例没有该主体的会话时忽略
func (r *Registry) RefreshPrincipal(ctx context.Context, principalID string) error {
	r.mu.Lock()
	s, ok := r.sessions[principalID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	err := s.wc.Refresh(ctx)
	switch {
	case err == nil:
		return nil
	case bizerrors.Is(err, bizerrors.ErrWorkspaceNotReady):
		// 正在初始化或切换，新状态已包含最新成员关系
		return nil
	case bizerrors.Is(err, bizerrors.ErrNoTenantAvailable):
		r.Evict(principalID)
		return nil
	}
	return err
}

// EventHandlers 订阅的成员变更事件
func (r *Registry) EventHandlers() map[events.Type]events.Handler {
	return map[events.Type]events.Handler{
		events.TypeMembershipChanged: func(ctx context.Context, e *events.Event) error {
			return r.RefreshPrincipal(ctx, e.SubjectID)
		},
		events.TypeWorkspaceDeleted: func(ctx context.Context, e *events.Event) error {
			for _, pid := range strings.Split(e.Attributes[AttrMembers], ",") {
				if pid == "" {
					continue
				}
				if err := r.RefreshPrincipal(ctx, pid); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
