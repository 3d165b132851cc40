package postgres

import (
	"context"

	"github.com/aisgo/ais-workspace/logger"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module PostgreSQL 模块，提供 *gorm.DB
var Module = fx.Module("postgres",
	fx.Provide(ProvideDB),
)

// ProvideDB 创建连接并在停止时关闭
func ProvideDB(lc fx.Lifecycle, cfg Config, log *logger.Logger) (*gorm.DB, error) {
	db, err := NewDB(cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db, nil
}
