package auth

import (
	"context"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/metrics"
)

// Option 配置选项函数
type Option func(*options)

// ContextFunc 把认证后的身份写入请求上下文，返回错误时请求以 401 结束
type ContextFunc func(ctx context.Context, claims *Claims) (context.Context, error)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	inject ContextFunc
}

// WithLogger 注入日志记录器，自动添加 "auth" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("auth")
		}
	}
}

// WithMeter 注入指标 Meter
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithContextFunc 设置身份注入函数
func WithContextFunc(fn ContextFunc) Option {
	return func(o *options) {
		o.inject = fn
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
