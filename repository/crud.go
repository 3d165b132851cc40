package repository

import (
	"context"
	"slices"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/aisgo/ais-workspace/database"
	bizerrors "github.com/aisgo/ais-workspace/errors"
)

/* ========================================================================
 * Gorm Backend - 基于 GORM 的后端实体实现
 * ========================================================================
 * 职责: 实现 Backend 接口，所有语句都带租户条件
 *
 * 使用示例:
 *   backend := repository.NewGormBackend[model.Task](db)
 *   ctx = repository.WithTenantContext(ctx, repository.TenantContext{TenantID: "acme"})
 *   tasks, err := backend.Find(ctx, repository.Query{Filter: repository.Filter{"status": "todo"}})
 *
 * 业务代码不直接使用 Backend，而是通过 ScopedRepository 访问
 * ======================================================================== */

const (
	defaultOrder = "id ASC"
	maxLimit     = 1000
)

// GormBackend gorm 后端
type GormBackend[T any] struct {
	db *gorm.DB

	// Schema 缓存（线程安全）
	schemaOnce sync.Once
	schema     *schema.Schema
	schemaErr  error
}

// NewGormBackend 创建后端
func NewGormBackend[T any](db *gorm.DB) *GormBackend[T] {
	return &GormBackend[T]{db: db}
}

func (b *GormBackend[T]) newModelPtr() *T {
	var model T
	return &model
}

// withContext 返回带 context 的 DB (自动识别事务)
func (b *GormBackend[T]) withContext(ctx context.Context) *gorm.DB {
	return dbFor(ctx, b.db)
}

// getSchema 获取缓存的 Schema（线程安全）
func (b *GormBackend[T]) getSchema() (*schema.Schema, error) {
	b.schemaOnce.Do(func() {
		stmt := &gorm.Statement{DB: b.db}
		b.schemaErr = stmt.Parse(b.newModelPtr())
		if b.schemaErr == nil {
			b.schema = stmt.Schema
		}
	})
	return b.schema, b.schemaErr
}

// scoped 返回带租户条件的查询
func (b *GormBackend[T]) scoped(ctx context.Context, write bool) *gorm.DB {
	return b.withContext(ctx).Model(b.newModelPtr()).Scopes(tenantScope(ctx, write))
}

func (b *GormBackend[T]) where(db *gorm.DB, q Query) (*gorm.DB, error) {
	s, err := b.getSchema()
	if err != nil {
		return nil, err
	}
	conds, err := filterColumns(q.Filter, s)
	if err != nil {
		return nil, err
	}

	// 固定顺序，生成的 SQL 可复现
	keys := make([]string, 0, len(conds))
	for k := range conds {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if conds[k] == nil {
			db = db.Where(k + " IS NULL")
			continue
		}
		db = db.Where(k+" = ?", conds[k])
	}
	if len(q.IDs) > 0 {
		db = db.Where("id IN ?", q.IDs)
	}
	return db, nil
}

/* ========================================================================
 * 查询操作
 * ======================================================================== */

func (b *GormBackend[T]) Find(ctx context.Context, q Query) ([]*T, error) {
	db, err := b.where(b.scoped(ctx, false), q)
	if err != nil {
		return nil, err
	}

	s, _ := b.getSchema()
	order, err := ValidateOrderBy(q.OrderBy, s)
	if err != nil {
		return nil, err
	}
	if order == "" {
		order = defaultOrder
	}
	db = db.Order(order)

	if q.Limit > 0 {
		db = db.Limit(min(q.Limit, maxLimit))
	}
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}

	var list []*T
	if err := db.Find(&list).Error; err != nil {
		return nil, database.ClassifyError(err)
	}
	return list, nil
}

func (b *GormBackend[T]) Count(ctx context.Context, q Query) (int64, error) {
	db, err := b.where(b.scoped(ctx, false), q)
	if err != nil {
		return 0, err
	}
	// 空结果也要拒绝非法排序
	s, _ := b.getSchema()
	if _, err := ValidateOrderBy(q.OrderBy, s); err != nil {
		return 0, err
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, database.ClassifyError(err)
	}
	return total, nil
}

func (b *GormBackend[T]) Get(ctx context.Context, id string) (*T, error) {
	model := b.newModelPtr()
	if err := b.scoped(ctx, false).Where("id = ?", id).First(model).Error; err != nil {
		return nil, database.ClassifyError(err)
	}
	return model, nil
}

/* ========================================================================
 * 写操作
 * ======================================================================== */

func (b *GormBackend[T]) Create(ctx context.Context, record *T) error {
	if record == nil {
		return bizerrors.ErrInvalidArgument
	}
	if err := b.stampTenant(ctx, record); err != nil {
		return err
	}
	return database.ClassifyError(b.withContext(ctx).Create(record).Error)
}

func (b *GormBackend[T]) Update(ctx context.Context, id string, fields map[string]any) (*T, error) {
	s, err := b.getSchema()
	if err != nil {
		return nil, err
	}
	filtered, err := filterUpdates(fields, s)
	if err != nil {
		return nil, err
	}
	if len(filtered) == 0 {
		return nil, bizerrors.New(bizerrors.ErrCodeInvalidArgument, "no updatable fields")
	}

	var updated *T
	err = b.Transaction(ctx, func(txCtx context.Context) error {
		res := b.scoped(txCtx, true).Where("id = ?", id).Updates(filtered)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return bizerrors.ErrNotFound
		}
		var err error
		updated, err = b.Get(txCtx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete 软删除记录
func (b *GormBackend[T]) Delete(ctx context.Context, id string) error {
	res := b.scoped(ctx, true).Where("id = ?", id).Delete(b.newModelPtr())
	if res.Error != nil {
		return database.ClassifyError(res.Error)
	}
	if res.RowsAffected == 0 {
		return bizerrors.ErrNotFound
	}
	return nil
}

// DeleteBatch 批量软删除记录
func (b *GormBackend[T]) DeleteBatch(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := b.scoped(ctx, true).Where("id IN ?", ids).Delete(b.newModelPtr())
	if res.Error != nil {
		return 0, database.ClassifyError(res.Error)
	}
	return res.RowsAffected, nil
}
