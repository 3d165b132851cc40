package postgres

import (
	"fmt"
	"net/url"

	"github.com/aisgo/ais-workspace/database"
	"github.com/aisgo/ais-workspace/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

/* ========================================================================
 * PostgreSQL - 工作区与租户记录存储
 * ========================================================================
 * 职责: 建立 PostgreSQL 连接池并接入 gorm
 * 技术: gorm.io/driver/postgres (pgx)
 * ======================================================================== */

// Config PostgreSQL 配置
type Config struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	DBName   string `yaml:"dbname" mapstructure:"dbname"`
	SSLMode  string `yaml:"sslmode" mapstructure:"sslmode"`
	Schema   string `yaml:"schema" mapstructure:"schema"` // search_path，默认 public

	database.PoolConfig `yaml:",inline" mapstructure:",squash"`
}

// DSN 构造 URL 形式的连接串
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	if c.Schema != "" {
		q.Set("search_path", c.Schema)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, port),
		Path:     "/" + c.DBName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// NewDB 初始化 Postgres 连接
func NewDB(cfg Config, log *logger.Logger) (*gorm.DB, error) {
	dsn := cfg.DSN()

	db, err := gorm.Open(postgres.New(postgres.Config{DSN: dsn}), database.GormConfig(database.NewZapGormLogger(log.Logger)))
	if err != nil {
		return nil, fmt.Errorf("open postgres %s: %w", sanitizeDSN(dsn), err)
	}
	if err := database.ApplyPool(db, cfg.PoolConfig); err != nil {
		return nil, err
	}

	log.Info("postgres connected", zap.String("dsn", sanitizeDSN(dsn)))
	return db, nil
}

// sanitizeDSN 隐藏连接串中的密码，解析失败时原样返回
func sanitizeDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
