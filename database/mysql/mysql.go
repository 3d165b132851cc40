package mysql

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/aisgo/ais-workspace/database"
	"github.com/aisgo/ais-workspace/logger"

	mysqldriver "github.com/go-sql-driver/mysql"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

/* ========================================================================
 * MySQL - 关系型数据库连接
 * ========================================================================
 * 职责: 提供 MySQL 连接池、GORM 集成
 * 技术: gorm.io/driver/mysql + go-sql-driver DSN 构造
 * ======================================================================== */

// Config MySQL 配置
type Config struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	DBName   string `yaml:"dbname" mapstructure:"dbname"`
	Charset  string `yaml:"charset" mapstructure:"charset"` // 默认 utf8mb4
	Loc      string `yaml:"loc" mapstructure:"loc"`         // 默认 UTC

	database.PoolConfig `yaml:",inline" mapstructure:",squash"`
}

// DSN 使用驱动的 Config 构造连接串，避免手工拼接转义问题
func (c Config) DSN() (string, error) {
	charset := c.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	loc := time.UTC
	if c.Loc != "" {
		l, err := time.LoadLocation(c.Loc)
		if err != nil {
			return "", fmt.Errorf("invalid mysql loc %q: %w", c.Loc, err)
		}
		loc = l
	}
	port := c.Port
	if port == 0 {
		port = 3306
	}

	dc := mysqldriver.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
	dc.DBName = c.DBName
	dc.ParseTime = true
	dc.Loc = loc
	dc.Params = map[string]string{"charset": charset}
	return dc.FormatDSN(), nil
}

// NewDB 初始化 MySQL 连接
func NewDB(cfg Config, log *logger.Logger) (*gorm.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(mysql.Open(dsn), database.GormConfig(database.NewZapGormLogger(log.Logger)))
	if err != nil {
		return nil, fmt.Errorf("open mysql %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.DBName, err)
	}
	if err := database.ApplyPool(db, cfg.PoolConfig); err != nil {
		return nil, err
	}

	log.Info("mysql connected", zap.String("host", cfg.Host), zap.String("db", cfg.DBName))
	return db, nil
}

// Module MySQL 模块，提供 *gorm.DB
var Module = fx.Module("mysql",
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
