// Package session 视图级缓存：乐观更新、回滚与服务端结果对账
package session

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/guard"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/model"
	"github.com/aisgo/ais-workspace/workspace"
)

/* ========================================================================
 * SessionCache - 视图缓存
 * ========================================================================
 * 职责: 看板拖拽、行内编辑等场景先改本地，再由写操作确认或回滚
 * 约束:
 *   - 缓存只保存一个快照（租户 + generation）下的记录
 *   - 切换租户时先清空，旧租户的数据不会再被读到
 *   - 写失败必须回滚，本地状态不与后端静默分叉
 *
 * 使用示例:
 *   board := session.New[model.Task](session.WithOrder(byPosition))
 *   unsubscribe := wc.Subscribe(board)
 *   list, snap, _ := tasks.ListSnapshot(ctx, nil)
 *   _ = board.Seed(snap, list)
 *   _, err := board.Mutate(ctx, id, map[string]any{"status": "done"}, tasks.Update)
 * ======================================================================== */

// Record 约束 *T 为可隔离的记录
type Record[T any] interface {
	*T
	model.Scoped
}

// Token 乐观更新的回滚凭证
type Token uint64

// WriteFunc 将 patch 写入后端并返回权威记录，通常为 ScopedRepository.Update
type WriteFunc[T any] func(ctx context.Context, id string, patch map[string]any) (*T, error)

type pending[T any] struct {
	id     string
	before *T // nil 表示操作前记录不存在
	seq    Token
}

// Cache 单个视图的记录缓存，并发安全
type Cache[T any, P Record[T]] struct {
	mu      sync.Mutex
	snap    workspace.Snapshot
	seeded  bool
	ids     []string
	records map[string]*T
	pending map[Token]pending[T]
	next    Token

	order func(a, b *T) int
	log   *logger.Logger
}

var _ workspace.Listener = (*Cache[model.Task, *model.Task])(nil)

// Option 缓存选项
type Option[T any] func(*config[T])

type config[T any] struct {
	order func(a, b *T) int
	log   *logger.Logger
}

// WithOrder 设置 List 的排序，如看板按 position 排列
func WithOrder[T any](cmp func(a, b *T) int) Option[T] {
	return func(c *config[T]) { c.order = cmp }
}

func WithLogger[T any](log *logger.Logger) Option[T] {
	return func(c *config[T]) { c.log = log }
}

// New 创建空缓存，Seed 之前所有读写返回 ErrWorkspaceNotReady
func New[T any, P Record[T]](opts ...Option[T]) *Cache[T, P] {
	cfg := config[T]{log: logger.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache[T, P]{
		records: make(map[string]*T),
		pending: make(map[Token]pending[T]),
		order:   cfg.order,
		log:     cfg.log.Named("session"),
	}
}

// OnWorkspaceChange 切换租户时清空缓存，实现 workspace.Listener
func (c *Cache[T, P]) OnWorkspaceChange(change workspace.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	c.snap = workspace.Snapshot{TenantID: change.Current, PrincipalID: c.snap.PrincipalID, Generation: change.Generation}
}

func (c *Cache[T, P]) reset() {
	c.seeded = false
	c.ids = nil
	c.records = make(map[string]*T)
	clear(c.pending)
}

// Seed 用 snap 下取得的记录整体替换缓存
// snap 早于缓存已知的 generation 时返回 ErrStaleGeneration；含其他租户记录时拒绝
func (c *Cache[T, P]) Seed(snap workspace.Snapshot, records []*T) error {
	if err := c.assertTenant(snap, records); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if snap.Generation < c.snap.Generation {
		return bizerrors.ErrStaleGeneration
	}
	c.reset()
	c.snap = snap
	c.replace(records)
	c.seeded = true
	return nil
}

// Reconcile 用服务端结果替换缓存并丢弃所有未决的乐观更新
// snap 与缓存的快照不一致时返回 ErrStaleGeneration，缓存保持不变
func (c *Cache[T, P]) Reconcile(snap workspace.Snapshot, authoritative []*T) error {
	if err := c.assertTenant(snap, authoritative); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seeded {
		return bizerrors.ErrWorkspaceNotReady
	}
	if snap.Generation != c.snap.Generation || snap.TenantID != c.snap.TenantID {
		return bizerrors.ErrStaleGeneration
	}
	if n := len(c.pending); n > 0 {
		c.log.Debug("reconcile dropped pending patches", zap.Int("pending", n))
	}
	clear(c.pending)
	c.replace(authoritative)
	return nil
}

func (c *Cache[T, P]) assertTenant(snap workspace.Snapshot, records []*T) error {
	scoped := make([]model.Scoped, 0, len(records))
	for _, r := range records {
		if r != nil {
			scoped = append(scoped, P(r))
		}
	}
	return guard.AssertSingleTenant(snap.TenantID, scoped...)
}

// replace 调用方需持有 mu
func (c *Cache[T, P]) replace(records []*T) {
	c.ids = c.ids[:0]
	c.records = make(map[string]*T, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		id := P(r).GetID()
		if _, dup := c.records[id]; !dup {
			c.ids = append(c.ids, id)
		}
		c.records[id] = r
	}
}

// ApplyOptimistic 立即在本地应用 patch，返回回滚凭证
// patch 按 json 标签解码；不能修改 id，tenant_id 只能等于活动租户
func (c *Cache[T, P]) ApplyOptimistic(id string, patch map[string]any) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seeded {
		return 0, bizerrors.ErrWorkspaceNotReady
	}
	current, ok := c.records[id]
	if !ok {
		return 0, bizerrors.ErrNotFound
	}

	patch, err := c.sanitize(patch)
	if err != nil {
		return 0, err
	}
	patched, err := clone(current)
	if err != nil {
		return 0, err
	}
	if err := decode(patch, patched); err != nil {
		return 0, bizerrors.Wrap(bizerrors.ErrCodeInvalidArgument, "invalid patch", err)
	}

	c.next++
	c.pending[c.next] = pending[T]{id: id, before: current, seq: c.next}
	c.records[id] = patched
	return c.next, nil
}

// ApplyRemoval 立即从本地移除记录，返回回滚凭证
func (c *Cache[T, P]) ApplyRemoval(id string) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seeded {
		return 0, bizerrors.ErrWorkspaceNotReady
	}
	current, ok := c.records[id]
	if !ok {
		return 0, bizerrors.ErrNotFound
	}
	c.next++
	c.pending[c.next] = pending[T]{id: id, before: current, seq: c.next}
	delete(c.records, id)
	return c.next, nil
}

func (c *Cache[T, P]) sanitize(patch map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(patch))
	for k, v := range patch {
		switch k {
		case "id", "create_time", "update_time":
			return nil, bizerrors.New(bizerrors.ErrCodeInvalidArgument, k+" is read-only")
		case "tenant_id":
			if s, ok := v.(string); !ok || s != c.snap.TenantID {
				return nil, bizerrors.ErrCrossTenantWriteRejected
			}
			continue
		}
		out[k] = v
	}
	return out, nil
}

// Rollback 撤销 token 对应的乐观更新；同一记录上更晚的乐观更新一并撤销
// token 已确认、已对账或缓存已切换租户时无操作
func (c *Cache[T, P]) Rollback(token Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[token]
	if !ok {
		return
	}
	for t, other := range c.pending {
		if other.id == p.id && other.seq >= p.seq {
			delete(c.pending, t)
		}
	}
	if p.before == nil {
		delete(c.records, p.id)
	} else {
		c.records[p.id] = p.before
	}
	c.log.Info("optimistic patch rolled back", zap.String("id", p.id), zap.Uint64("generation", c.snap.Generation))
}

// Confirm 确认乐观更新；authoritative 非空时以其替换本地记录
// 删除类更新传 nil
func (c *Cache[T, P]) Confirm(token Token, authoritative *T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[token]
	if !ok {
		return
	}
	delete(c.pending, token)
	if authoritative == nil {
		return
	}
	// 其他租户的记录不进入缓存
	if tid := model.TenantOf(P(authoritative)); tid != "" && tid != c.snap.TenantID {
		return
	}
	for _, other := range c.pending {
		if other.id == p.id && other.seq > p.seq {
			return // 更晚的乐观更新仍在途
		}
	}
	if _, exists := c.records[p.id]; exists {
		c.records[p.id] = authoritative
	}
}

// Mutate 乐观应用 patch 后调用 write；失败时回滚并返回错误
func (c *Cache[T, P]) Mutate(ctx context.Context, id string, patch map[string]any, write WriteFunc[T]) (*T, error) {
	token, err := c.ApplyOptimistic(id, patch)
	if err != nil {
		return nil, err
	}
	updated, err := write(ctx, id, patch)
	if err != nil {
		c.Rollback(token)
		return nil, err
	}
	c.Confirm(token, updated)
	return updated, nil
}

// Remove 乐观移除后调用 remove；失败时恢复记录
func (c *Cache[T, P]) Remove(ctx context.Context, id string, remove func(ctx context.Context, id string) error) error {
	token, err := c.ApplyRemoval(id)
	if err != nil {
		return err
	}
	if err := remove(ctx, id); err != nil {
		c.Rollback(token)
		return err
	}
	c.Confirm(token, nil)
	return nil
}

// List 返回当前记录；设置了 WithOrder 时按其排序，否则保持 Seed 顺序
func (c *Cache[T, P]) List() []*T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*T, 0, len(c.records))
	for _, id := range c.ids {
		if r, ok := c.records[id]; ok {
			out = append(out, r)
		}
	}
	if c.order != nil {
		slices.SortStableFunc(out, c.order)
	}
	return out
}

// Get 返回缓存中的记录
func (c *Cache[T, P]) Get(id string) (*T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[id]
	return r, ok
}

// Snapshot 缓存内容所属的快照
func (c *Cache[T, P]) Snapshot() workspace.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Pending 未决的乐观更新数
func (c *Cache[T, P]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// clone 深拷贝，避免 patch 写穿共享的指针与 map 字段
func clone[T any](r *T) (*T, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, bizerrors.Wrap(bizerrors.ErrCodeInternal, "copy record", err)
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, bizerrors.Wrap(bizerrors.ErrCodeInternal, "copy record", err)
	}
	return out, nil
}

func decode(patch map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Squash:           true,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(patch)
}
