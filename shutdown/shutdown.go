package shutdown

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aisgo/ais-workspace/logger"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

/* ========================================================================
 * Shutdown Manager - 优雅关停管理器
 * ========================================================================
 * 职责: 按依赖顺序拆除服务
 *   1. HTTP 停止接收请求
 *   2. 工作区会话与后台清理停止
 *   3. 事件发布清空队列、消息生产 / 消费关闭
 *   4. 缓存与数据库连接关闭
 * 同优先级钩子并行执行，受整体与单钩子超时约束
 * ======================================================================== */

// 关停优先级，数值越小越先执行
const (
	PriorityHTTP      = 0
	PrioritySessions  = 10
	PriorityNormal    = 50
	PriorityMessaging = 80
	PriorityStorage   = 100
)

// ShutdownHook 关停钩子函数类型
type ShutdownHook func(ctx context.Context) error

type hookEntry struct {
	name     string
	hook     ShutdownHook
	priority int
}

// Manager 优雅关停管理器
type Manager struct {
	cfg Config
	log *logger.Logger

	mu    sync.Mutex
	hooks []hookEntry

	once sync.Once
	done chan struct{}
	err  error
}

// ManagerParams 依赖参数
type ManagerParams struct {
	fx.In

	Logger *logger.Logger
	Config *Config `optional:"true"`
}

// NewManager 创建优雅关停管理器
func NewManager(p ManagerParams) *Manager {
	cfg := *DefaultConfig()
	if p.Config != nil {
		if p.Config.Timeout > 0 {
			cfg.Timeout = p.Config.Timeout
		}
		cfg.HookTimeout = p.Config.HookTimeout
	}
	return &Manager{
		cfg:  cfg,
		log:  p.Logger.Named("shutdown"),
		done: make(chan struct{}),
	}
}

// RegisterHook 以 PriorityNormal 注册钩子
func (m *Manager) RegisterHook(name string, hook ShutdownHook) {
	m.RegisterHookWithPriority(name, hook, PriorityNormal)
}

// RegisterHookWithPriority 注册钩子；关停开始后注册的钩子不会执行
func (m *Manager) RegisterHookWithPriority(name string, hook ShutdownHook, priority int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hookEntry{name: name, hook: hook, priority: priority})
	m.log.Debug("shutdown hook registered", zap.String("name", name), zap.Int("priority", priority))
}

// Shutdown 执行全部钩子，只有第一次调用生效；返回各钩子错误的合并
func (m *Manager) Shutdown(ctx context.Context) error {
	m.once.Do(func() {
		m.err = m.run(ctx)
		close(m.done)
	})
	return m.err
}

// Done 关停完成后关闭
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// IsShutdown 是否已完成关停
func (m *Manager) IsShutdown() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *Manager) run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	m.mu.Lock()
	hooks := slices.Clone(m.hooks)
	m.mu.Unlock()
	slices.SortStableFunc(hooks, func(a, b hookEntry) int { return a.priority - b.priority })

	m.log.Info("graceful shutdown started", zap.Int("hooks", len(hooks)), zap.Duration("timeout", m.cfg.Timeout))
	start := time.Now()

	var errs []error
	for len(hooks) > 0 {
		n := 1
		for n < len(hooks) && hooks[n].priority == hooks[0].priority {
			n++
		}
		group := hooks[:n]
		hooks = hooks[n:]

		if ctx.Err() != nil {
			for _, h := range group {
				errs = append(errs, fmt.Errorf("%s: skipped: %w", h.name, ctx.Err()))
			}
			continue
		}
		errs = append(errs, m.runGroup(ctx, group)...)
	}

	err := errors.Join(errs...)
	if err != nil {
		m.log.Warn("graceful shutdown finished with errors", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	} else {
		m.log.Info("graceful shutdown finished", zap.Duration("elapsed", time.Since(start)))
	}
	return err
}

// runGroup 并行执行同优先级钩子；忽略 ctx 的钩子在超时后被放弃
func (m *Manager) runGroup(ctx context.Context, group []hookEntry) []error {
	results := make([]error, len(group))
	var wg sync.WaitGroup
	for i, h := range group {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.runHook(ctx, h)
		}()
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		return []error{fmt.Errorf("priority %d: %w", group[0].priority, ctx.Err())}
	}

	var errs []error
	for _, err := range results {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (m *Manager) runHook(ctx context.Context, h hookEntry) error {
	if m.cfg.HookTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.HookTimeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- h.hook(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	fields := []zap.Field{zap.String("name", h.name), zap.Int("priority", h.priority), zap.Duration("elapsed", time.Since(start))}
	if err != nil {
		m.log.Error("shutdown hook failed", append(fields, zap.Error(err))...)
		return fmt.Errorf("%s: %w", h.name, err)
	}
	m.log.Info("shutdown hook completed", fields...)
	return nil
}
