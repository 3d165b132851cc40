package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/aisgo/ais-workspace/database"
)

type txKey struct{}

// dbFor 返回 ctx 所属事务的 DB，不在事务中时返回 db；两者都绑定 ctx
func dbFor(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// Transaction 在事务中执行 fn；fn 内通过 txCtx 调用的后端方法共享同一事务
// 已在事务中时直接复用外层事务
func (b *GormBackend[T]) Transaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	return database.ClassifyError(err)
}
