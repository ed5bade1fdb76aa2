// Package ratelimit 提供令牌桶限流，支持单机和分布式两种模式。
//
//   - standalone: 基于 golang.org/x/time/rate 的进程内令牌桶，支持阻塞式 Wait
//   - distributed: 基于 Redis + Lua 的令牌桶，多实例共享同一个桶，不支持 Wait
//
// 履约消费者用单机模式的 Wait 平滑落库速率；秒杀入口用分布式模式按用户限流。
//
//	limiter, _ := ratelimit.New(&ratelimit.Config{Driver: ratelimit.DriverStandalone},
//		ratelimit.WithLogger(logger),
//	)
//	defer limiter.Close()
//	if err := limiter.Wait(ctx, "fulfillment", ratelimit.Limit{Rate: 500, Burst: 50}); err != nil {
//		return err
//	}
package ratelimit

import (
	"context"

	"github.com/ceyewan/seckill/metrics"
)

// Limit 令牌桶规则
type Limit struct {
	Rate  float64 // 每秒生成的令牌数
	Burst int     // 桶容量
}

func (l Limit) valid() bool {
	return l.Rate > 0 && l.Burst > 0
}

// Limiter 限流器
type Limiter interface {
	// Allow 尝试获取 1 个令牌，不阻塞
	Allow(ctx context.Context, key string, limit Limit) (bool, error)

	// AllowN 尝试获取 n 个令牌，不阻塞
	AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error)

	// Wait 阻塞直到获取 1 个令牌或 ctx 结束
	// 分布式模式返回 ErrNotSupported
	Wait(ctx context.Context, key string, limit Limit) error

	// Close 停止后台清理，不关闭连接器
	Close() error
}

// New 按 Config.Driver 创建限流器
func New(cfg *Config, opts ...Option) (Limiter, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := applyOptions(opts)
	rec, err := newRecorder(opt.meter, string(cfg.Driver))
	if err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case DriverDistributed:
		if opt.redisConn == nil {
			return nil, ErrConnectorNil
		}
		return newDistributed(cfg.Distributed, opt.redisConn, opt.logger, rec), nil
	default:
		return newStandalone(cfg.Standalone, opt.logger, rec), nil
	}
}

// recorder 限流结果指标
type recorder struct {
	mode    string
	allowed metrics.Counter
	denied  metrics.Counter
	errors  metrics.Counter
}

func newRecorder(meter metrics.Meter, mode string) (*recorder, error) {
	r := &recorder{mode: mode}
	var err error
	if r.allowed, err = meter.Counter(MetricAllowed, "Number of requests allowed by the rate limiter"); err != nil {
		return nil, err
	}
	if r.denied, err = meter.Counter(MetricDenied, "Number of requests denied by the rate limiter"); err != nil {
		return nil, err
	}
	if r.errors, err = meter.Counter(MetricErrors, "Number of rate limiter backend errors"); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *recorder) observe(ctx context.Context, allowed bool, err error) {
	label := metrics.L(LabelMode, r.mode)
	switch {
	case err != nil:
		r.errors.Inc(ctx, label)
	case allowed:
		r.allowed.Inc(ctx, label)
	default:
		r.denied.Inc(ctx, label)
	}
}
