package sqlite

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/aisgo/ais-workspace/logger"
)

// Module SQLite 模块，提供 *gorm.DB
var Module = fx.Module("sqlite",
	fx.Provide(func(lc fx.Lifecycle, cfg Config, log *logger.Logger) (*gorm.DB, error) {
		db, err := NewDB(cfg, log)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}})
		return db, nil
	}),
)
