package catalog

import (
	"time"

	"github.com/ceyewan/seckill/breaker"
	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/metrics"
)

// Option 初始化选项
type Option func(*options)

type options struct {
	logger  clog.Logger
	meter   metrics.Meter
	breaker breaker.Breaker
	now     func() time.Time
}

// WithLogger 注入日志记录器，命名空间 "catalog"
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("catalog")
		}
	}
}

// WithMeter 注入指标
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithBreaker 读路径经过熔断器，key 为 "catalog.voucher" 与 "catalog.shop"
func WithBreaker(b breaker.Breaker) Option {
	return func(o *options) {
		o.breaker = b
	}
}

// WithClock 替换时钟，订单创建时间取自该时钟
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: clog.Discard(), meter: metrics.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
