package commands

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/aisgo/ais-workspace/conf"
	"github.com/aisgo/ais-workspace/database/mysql"
	"github.com/aisgo/ais-workspace/database/postgres"
	"github.com/aisgo/ais-workspace/database/sqlite"
	"github.com/aisgo/ais-workspace/logger"
)

type Globals struct {
	ConfigDir string
	Version   string
}

// load 读取配置并初始化日志
func (g *Globals) load() (*conf.AppConfig, *logger.Logger, error) {
	cfg, err := conf.LoadApp(g.ConfigDir)
	if err != nil {
		return nil, nil, err
	}
	log := logger.NewLogger(cfg.Logger)
	return cfg, log, nil
}

// openDB 按驱动直接打开数据库，供不启动 fx 的命令使用
func openDB(cfg conf.DatabaseConfig, log *logger.Logger) (*gorm.DB, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.NewDB(cfg.Postgres, log)
	case "mysql":
		return mysql.NewDB(cfg.MySQL, log)
	case "sqlite":
		return sqlite.NewDB(cfg.SQLite, log)
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}
