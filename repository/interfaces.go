package repository

import (
	"context"
)

/* ========================================================================
 * Repository Interfaces - 仓储接口定义
 * ========================================================================
 * 职责: 定义后端实体接口与查询参数
 * 设计: Backend 是对外部 CRUD 服务的抽象，租户约束同时在后端查询与
 *       ScopedRepository 结果校验两处执行
 * ======================================================================== */

// Filter 等值过滤条件，key 为列名
type Filter map[string]any

// Query 列表查询参数
type Query struct {
	Filter  Filter
	IDs     []string
	OrderBy string
	Limit   int
	Offset  int
}

// ListOption 列表选项
type ListOption func(*Query)

// WithSort 设置排序，如 "position ASC, create_time DESC"
func WithSort(orderBy string) ListOption {
	return func(q *Query) { q.OrderBy = orderBy }
}

// WithLimit 限制返回数量
func WithLimit(limit int) ListOption {
	return func(q *Query) { q.Limit = limit }
}

// WithOffset 跳过前 offset 条
func WithOffset(offset int) ListOption {
	return func(q *Query) { q.Offset = offset }
}

// Backend 后端实体接口
// 实现必须读取 ctx 中的 TenantContext 并据此约束所有读写；
// 缺少 TenantContext 时返回 ErrUnauthenticated
type Backend[T any] interface {
	Find(ctx context.Context, q Query) ([]*T, error)
	Count(ctx context.Context, q Query) (int64, error)
	Get(ctx context.Context, id string) (*T, error)
	Create(ctx context.Context, record *T) error
	// Update 更新指定列并返回更新后的记录，记录不存在返回 ErrNotFound
	Update(ctx context.Context, id string, fields map[string]any) (*T, error)
	Delete(ctx context.Context, id string) error
	// DeleteBatch 返回实际删除数量
	DeleteBatch(ctx context.Context, ids []string) (int64, error)
}

// PageResult 分页结果
type PageResult[T any] struct {
	List       []*T   `json:"list"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	Pages      int64  `json:"pages"`
	Generation uint64 `json:"generation,string"`
}
