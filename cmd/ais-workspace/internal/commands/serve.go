package commands

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"github.com/aisgo/ais-workspace/logger"
)

type ServeCmd struct {
	Migrate bool `help:"Run auto migration before serving." default:"false" env:"WORKSPACE_AUTO_MIGRATE"`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, log, err := globals.load()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opts := appOptions(cfg, log)
	if s.Migrate {
		opts = append([]fx.Option{fx.Invoke(func(db *gorm.DB) error { return migrate(ctx, db) })}, opts...)
	}

	log.Info("starting ais-workspace",
		zap.String("version", globals.Version),
		zap.String("driver", cfg.Database.Driver),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.String("mq", string(cfg.MQ.Type)),
	)
	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

// fxLogger 将 fx 事件降到 debug，避免启动日志刷屏
func fxLogger(log *logger.Logger) fx.Option {
	return fx.WithLogger(func() fxevent.Logger {
		l := &fxevent.ZapLogger{Logger: log.Named("fx").Logger}
		l.UseLogLevel(zapcore.DebugLevel)
		return l
	})
}
