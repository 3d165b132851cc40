package repository

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/aisgo/ais-workspace/database"
	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/metrics"
)

// RetryPolicy 后端调用的超时与重试策略
// 只有可重试错误（BackendUnavailable / Unavailable / Timeout）会重试，
// 授权类错误与 NotFound 立即返回
type RetryPolicy struct {
	MaxAttempts         int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Timeout             time.Duration `yaml:"timeout" mapstructure:"timeout"` // 单次调用超时
	InitialInterval     time.Duration `yaml:"initial_interval" mapstructure:"initial_interval"`
	MaxInterval         time.Duration `yaml:"max_interval" mapstructure:"max_interval"`
	Multiplier          float64       `yaml:"multiplier" mapstructure:"multiplier"`
	RandomizationFactor float64       `yaml:"randomization_factor" mapstructure:"randomization_factor"`
}

// DefaultRetryPolicy 默认策略: 最多 4 次，100ms 起步翻倍，上限 2s，±50% 抖动
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         4,
		Timeout:             5 * time.Second,
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         2 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.5,
	}
}

// withDefaults 零值字段取默认值；RandomizationFactor 为 0 表示不抖动
func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Timeout <= 0 {
		p.Timeout = d.Timeout
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.RandomizationFactor < 0 || p.RandomizationFactor >= 1 {
		p.RandomizationFactor = d.RandomizationFactor
	}
	return p
}

// NewBackOff 返回按本策略计算间隔的 BackOff
func (p RetryPolicy) NewBackOff() backoff.BackOff {
	p = p.withDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.RandomizationFactor
	b.Reset()
	return b
}

type operation struct {
	entity string
	name   string
}

// run 执行 fn，每次尝试带独立超时；重试耗尽后返回 BackendUnavailable
func run[R any](ctx context.Context, p RetryPolicy, log *logger.Logger, op operation, fn func(ctx context.Context) (R, error)) (R, error) {
	p = p.withDefaults()
	attempts := 0

	res, err := backoff.Retry(ctx, func() (R, error) {
		attempts++
		actx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()

		v, err := fn(actx)
		if err == nil {
			return v, nil
		}
		err = database.ClassifyError(err)
		if ctx.Err() != nil || !bizerrors.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(p.NewBackOff()),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.RepositoryRetryTotal.WithLabelValues(op.entity, op.name).Inc()
			log.WithContext(ctx).Warn("backend call failed, retrying",
				zap.String("entity", op.entity),
				zap.String("operation", op.name),
				zap.Int("attempt", attempts),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
	if err == nil {
		return res, nil
	}

	err = database.ClassifyError(err)
	if bizerrors.IsRetryable(err) {
		return res, bizerrors.Wrapf(bizerrors.ErrCodeBackendUnavailable, err, "%s %s failed after %d attempts", op.entity, op.name, attempts)
	}
	return res, err
}
