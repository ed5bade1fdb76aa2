// Package breaker 提供按 key 隔离的熔断器，基于 sony/gobreaker。
//
// 每个 key（如 "catalog.voucher"）独立统计，失败率超过阈值后熔断，
// Timeout 后进入半开状态放行少量探测请求。
//
//	brk, _ := breaker.New(&breaker.Config{FailureRatio: 0.6, MinimumRequests: 10},
//		breaker.WithLogger(logger),
//		breaker.WithSuccessFunc(func(err error) bool {
//			return err == nil || errors.Is(err, gorm.ErrRecordNotFound)
//		}),
//	)
//	voucher, err := breaker.Do(ctx, brk, "catalog.voucher", func() (*Voucher, error) {
//		return repo.GetVoucher(ctx, id)
//	})
package breaker

import (
	"context"

	"github.com/ceyewan/seckill/clog"
)

// Breaker 熔断器
type Breaker interface {
	// Execute 执行受熔断保护的函数，熔断中返回 ErrOpenState 或降级函数的结果
	Execute(ctx context.Context, key string, fn func() (any, error)) (any, error)

	// State 返回 key 当前的状态，从未使用过的 key 视为闭合
	State(key string) (State, error)
}

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// New 创建熔断器
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := applyOptions(opts)
	opt.logger.Info("circuit breaker created",
		clog.Int("max_requests", int(cfg.MaxRequests)),
		clog.Duration("interval", cfg.Interval),
		clog.Duration("timeout", cfg.Timeout),
		clog.Float64("failure_ratio", cfg.FailureRatio),
		clog.Int("minimum_requests", int(cfg.MinimumRequests)),
	)
	return newBreaker(cfg, opt)
}

// Do 是 Execute 的泛型包装
func Do[T any](ctx context.Context, b Breaker, key string, fn func() (T, error)) (T, error) {
	var zero T
	v, err := b.Execute(ctx, key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, nil
	}
	return t, nil
}
