package sqlite

import (
	"fmt"

	"github.com/aisgo/ais-workspace/database"
	"github.com/aisgo/ais-workspace/logger"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Config SQLite 配置，用于本地开发与单机部署
type Config struct {
	Path string `yaml:"path" mapstructure:"path"` // 文件路径或 :memory:
}

// NewDB 打开 SQLite 数据库
// SQLite 只允许单写连接，连接池固定为 1
func NewDB(cfg Config, log *logger.Logger) (*gorm.DB, error) {
	path := cfg.Path
	if path == "" {
		path = "file::memory:?cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(path), database.GormConfig(database.NewZapGormLogger(log.Logger)))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := database.ApplyPool(db, database.PoolConfig{MaxIdleConns: 1, MaxOpenConns: 1}); err != nil {
		return nil, err
	}

	log.Info("sqlite opened", zap.String("path", path))
	return db, nil
}
