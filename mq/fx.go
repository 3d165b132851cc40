package mq

import (
	"context"

	"github.com/aisgo/ais-workspace/logger"

	"go.uber.org/fx"
)

// Module 提供 Producer 与 Consumer；Consumer 在所有订阅注册完成后随应用启动
var Module = fx.Module("mq",
	fx.Provide(ProvideProducer, ProvideConsumer),
)

// ProvideProducer 提供 Producer（用于 Fx）
func ProvideProducer(lc fx.Lifecycle, cfg *Config, log *logger.Logger) (Producer, error) {
	p, err := NewProducer(cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return p.Close() }})
	return p, nil
}

// ProvideConsumer 提供 Consumer（用于 Fx）
func ProvideConsumer(lc fx.Lifecycle, cfg *Config, log *logger.Logger) (Consumer, error) {
	c, err := NewConsumer(cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return c.Start() },
		OnStop:  func(context.Context) error { return c.Close() },
	})
	return c, nil
}
