package workspace

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/aisgo/ais-workspace/audit"
	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/events"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/metrics"
	"github.com/aisgo/ais-workspace/model"
)

/* ========================================================================
 * Workspace Context - 活动工作区
 * ========================================================================
 * 职责: 会话内"当前活动租户"的唯一来源
 * 并发:
 *   - Initialize / SwitchTenant / Refresh 是唯一的写路径，由 writeMu 串行化
 *   - 读者通过 Snapshot 获取一次性快照，一个操作内不重复读取
 *   - 每次活动租户变化 generation 自增，旧 generation 的结果一律丢弃
 *   - 监听者在新租户可读之前同步收到通知
 * ======================================================================== */

// Context 工作区上下文
type Context struct {
	dir       Directory
	prefs     PreferenceStore
	log       *logger.Logger
	publisher events.Publisher
	recorder  audit.Recorder

	writeMu sync.Mutex

	mu         sync.RWMutex
	state      State
	principal  model.Principal
	active     string
	tenants    []model.Workspace
	generation uint64
	switching  bool
	listeners  []listenerEntry
	nextID     int

	refreshGroup singleflight.Group
}

type listenerEntry struct {
	id int
	l  Listener
}

// ContextOption 可选项
type ContextOption func(*Context)

// WithLogger 设置日志
func WithLogger(log *logger.Logger) ContextOption {
	return func(c *Context) { c.log = log }
}

// WithPublisher 设置事件发布器
func WithPublisher(p events.Publisher) ContextOption {
	return func(c *Context) { c.publisher = p }
}

// WithRecorder 设置安全违规记录器
func WithRecorder(r audit.Recorder) ContextOption {
	return func(c *Context) { c.recorder = r }
}

// NewContext 创建未初始化的工作区上下文
func NewContext(dir Directory, prefs PreferenceStore, opts ...ContextOption) *Context {
	c := &Context{
		dir:       dir,
		prefs:     prefs,
		log:       logger.NewNop(),
		publisher: events.NopPublisher{},
		recorder:  audit.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize 载入可访问工作区与偏好，选出活动工作区
// 优先级: 仍可访问的偏好 > 主体的默认工作区 > 最早创建的可访问工作区
func (c *Context) Initialize(ctx context.Context, principal model.Principal) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	prevState := c.state
	c.state = StateLoading
	c.switching = true
	c.mu.Unlock()

	var (
		tenants   []model.Workspace
		preferred string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tenants, err = c.dir.ListAccessible(gctx, principal.ID)
		return err
	})
	g.Go(func() error {
		v, err := c.prefs.Load(gctx, principal.ID)
		if err != nil {
			// 偏好只是提示，读取失败回落到默认工作区
			c.log.Warn("load workspace preference failed", zap.String("principal_id", principal.ID), zap.Error(err))
			return nil
		}
		preferred = v
		return nil
	})
	if err := g.Wait(); err != nil {
		c.mu.Lock()
		c.state = prevState
		c.switching = false
		c.mu.Unlock()
		return err
	}

	if len(tenants) == 0 {
		c.mu.Lock()
		prev := c.active
		c.principal = principal
		c.tenants = nil
		c.active = ""
		c.generation++
		gen := c.generation
		c.state = StateUninitialized
		c.switching = false
		listeners := c.snapshotListeners()
		c.mu.Unlock()
		if prev != "" {
			notify(listeners, Change{Previous: prev, Generation: gen, Reason: ReasonInitialize})
		}
		return bizerrors.ErrNoTenantAvailable
	}

	active := chooseActive(tenants, preferred, principal.ID)

	c.mu.Lock()
	prev := c.active
	c.principal = principal
	c.tenants = tenants
	c.active = active
	c.generation++
	gen := c.generation
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	notify(listeners, Change{Previous: prev, Current: active, Generation: gen, Reason: ReasonInitialize})
	c.markReady()

	if active != preferred {
		if err := c.prefs.Save(ctx, principal.ID, active); err != nil {
			c.log.Warn("save workspace preference failed", zap.String("principal_id", principal.ID), zap.Error(err))
		}
	}
	c.log.Info("workspace context initialized",
		zap.String("principal_id", principal.ID),
		zap.String("tenant_id", active),
		zap.Int("accessible", len(tenants)),
	)
	return nil
}

func chooseActive(tenants []model.Workspace, preferred, principalID string) string {
	if preferred != "" && slices.ContainsFunc(tenants, func(w model.Workspace) bool { return w.ID == preferred }) {
		return preferred
	}
	for _, w := range tenants {
		if w.IsDefault && w.OwnerID == principalID {
			return w.ID
		}
	}
	return tenants[0].ID
}

// SwitchTenant 切换活动工作区
// 返回前所有监听者已丢弃旧租户数据；不可访问的工作区记为安全违规
func (c *Context) SwitchTenant(ctx context.Context, tenantID string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	state, prev, principal := c.state, c.active, c.principal
	accessible := c.hasTenant(tenantID)
	c.mu.RUnlock()

	if state != StateReady {
		return bizerrors.ErrWorkspaceNotReady
	}
	if tenantID == prev {
		return nil
	}
	if !accessible {
		c.recorder.Record(ctx, audit.Violation{
			Kind:           audit.KindUnauthorizedTenantAccess,
			PrincipalID:    principal.ID,
			ActiveTenantID: prev,
			TargetTenantID: tenantID,
			Operation:      "switch",
		})
		return bizerrors.ErrUnauthorizedTenantAccess
	}

	// switching 期间 IsCurrent 恒为 false，在途结果被丢弃
	// generation 在持久化成功后才推进，失败时活动租户与 generation 均不变
	c.mu.Lock()
	c.state = StateLoading
	c.switching = true
	c.mu.Unlock()

	if err := c.prefs.Save(ctx, principal.ID, tenantID); err != nil {
		c.markReady()
		return err
	}

	c.mu.Lock()
	c.active = tenantID
	c.generation++
	gen := c.generation
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	notify(listeners, Change{Previous: prev, Current: tenantID, Generation: gen, Reason: ReasonSwitch})
	c.markReady()
	c.announce(ctx, principal.ID, prev, tenantID, ReasonSwitch)
	return nil
}

// Refresh 重新载入可访问工作区；活动工作区不再可访问时回落到默认工作区
// 并发调用合并为一次
func (c *Context) Refresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	return err
}

func (c *Context) refresh(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return bizerrors.ErrWorkspaceNotReady
	}
	c.state = StateLoading
	principal := c.principal
	c.mu.Unlock()

	tenants, err := c.dir.ListAccessible(ctx, principal.ID)
	if err != nil {
		c.markReady()
		return err
	}

	c.mu.Lock()
	prev := c.active
	c.tenants = tenants
	if c.hasTenant(prev) {
		c.state = StateReady
		c.mu.Unlock()
		return nil
	}

	// 活动工作区已被删除或成员资格被撤销
	c.switching = true
	c.generation++
	gen := c.generation
	next := ""
	if len(tenants) > 0 {
		next = chooseActive(tenants, "", principal.ID)
	}
	c.active = next
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	notify(listeners, Change{Previous: prev, Current: next, Generation: gen, Reason: ReasonRevoked})

	if next == "" {
		c.mu.Lock()
		c.state = StateUninitialized
		c.switching = false
		c.mu.Unlock()
		return bizerrors.ErrNoTenantAvailable
	}

	if err := c.prefs.Save(ctx, principal.ID, next); err != nil {
		c.log.Warn("save workspace preference failed", zap.String("principal_id", principal.ID), zap.Error(err))
	}
	c.markReady()
	c.log.Warn("active workspace no longer accessible, fell back",
		zap.String("principal_id", principal.ID),
		zap.String("previous", prev),
		zap.String("tenant_id", next),
	)
	c.announce(ctx, principal.ID, prev, next, ReasonRevoked)
	return nil
}

func (c *Context) markReady() {
	c.mu.Lock()
	c.state = StateReady
	c.switching = false
	c.mu.Unlock()
}

func (c *Context) announce(ctx context.Context, principalID, prev, next string, reason Reason) {
	metrics.WorkspaceSwitchTotal.WithLabelValues(string(reason)).Inc()
	e := events.New(events.TypeWorkspaceSwitched, next, principalID).
		With("previous", prev).
		With("reason", string(reason))
	if err := c.publisher.Publish(ctx, e); err != nil {
		c.log.Warn("publish workspace switch failed", zap.Error(err))
	}
}

// hasTenant 调用方需持有 mu
func (c *Context) hasTenant(id string) bool {
	if id == "" {
		return false
	}
	return slices.ContainsFunc(c.tenants, func(w model.Workspace) bool { return w.ID == id })
}

// snapshotListeners 调用方需持有 mu
func (c *Context) snapshotListeners() []Listener {
	out := make([]Listener, len(c.listeners))
	for i, e := range c.listeners {
		out[i] = e.l
	}
	return out
}

func notify(listeners []Listener, change Change) {
	for _, l := range listeners {
		l.OnWorkspaceChange(change)
	}
}

// Subscribe 注册监听者，返回取消函数
func (c *Context) Subscribe(l Listener) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listenerEntry{id: id, l: l})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.listeners = slices.DeleteFunc(c.listeners, func(e listenerEntry) bool { return e.id == id })
	}
}

// Snapshot 返回当前活动租户快照；未就绪或切换中返回 ErrWorkspaceNotReady
func (c *Context) Snapshot() (Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.switching || c.active == "" || c.state == StateUninitialized {
		return Snapshot{}, bizerrors.ErrWorkspaceNotReady
	}
	return Snapshot{TenantID: c.active, PrincipalID: c.principal.ID, Generation: c.generation}, nil
}

// IsCurrent 快照是否仍对应当前活动租户
func (c *Context) IsCurrent(s Snapshot) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.switching && s.Generation == c.generation && s.TenantID == c.active
}

// ActiveTenantID 当前活动租户
func (c *Context) ActiveTenantID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// AccessibleTenants 可访问工作区副本
func (c *Context) AccessibleTenants() []model.Workspace {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.tenants)
}

// State 当前状态
func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Principal 当前主体
func (c *Context) Principal() model.Principal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.principal
}

// Generation 当前代数
func (c *Context) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Role 主体在 tenantID 中的角色，不可访问时为 RoleNone
func (c *Context) Role(tenantID string) Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, w := range c.tenants {
		if w.ID == tenantID {
			return RoleFor(c.principal.ID, w)
		}
	}
	return RoleNone
}
