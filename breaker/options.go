package breaker

import (
	"context"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// FallbackFunc 熔断时的降级函数，返回 nil 表示降级成功，Execute 返回 (nil, nil)
type FallbackFunc func(ctx context.Context, key string, err error) error

type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	fallback  FallbackFunc
	isSuccess func(err error) bool
}

// WithLogger 设置 Logger，内部添加 namespace "breaker"
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("breaker")
		}
	}
}

// WithMeter 设置 Meter
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithFallback 设置降级函数
func WithFallback(fn FallbackFunc) Option {
	return func(o *options) {
		o.fallback = fn
	}
}

// WithSuccessFunc 设置成功判定，返回 true 的错误不计入失败
// 默认只有 nil 视为成功；业务上的"不存在"通常不应触发熔断
func WithSuccessFunc(fn func(err error) bool) Option {
	return func(o *options) {
		o.isSuccess = fn
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
