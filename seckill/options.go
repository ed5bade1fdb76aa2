package seckill

import (
	"time"

	"github.com/ceyewan/seckill/bloom"
	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/idgen"
	"github.com/ceyewan/seckill/metrics"
)

// Option 初始化选项
type Option func(*options)

type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	counter   CounterStore
	vouchers  VoucherSource
	ids       idgen.Generator
	publisher Publisher
	bloom     bloom.Filter
	now       func() time.Time
}

// WithLogger 注入日志记录器，命名空间 "seckill"
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("seckill")
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

// WithCounterStore 快路径计数存储，必填
func WithCounterStore(c CounterStore) Option {
	return func(o *options) {
		o.counter = c
	}
}

// WithVoucherSource 秒杀券查询，必填，通常是 *catalog.Catalog
func WithVoucherSource(v VoucherSource) Option {
	return func(o *options) {
		o.vouchers = v
	}
}

// WithIDGenerator 订单号生成器，必填
func WithIDGenerator(g idgen.Generator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithPublisher 下单意图发布者，必填，通常是 mq.MQ
func WithPublisher(p Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithBloom 秒杀券存在性过滤器，未设置时不做拦截
func WithBloom(f bloom.Filter) Option {
	return func(o *options) {
		o.bloom = f
	}
}

// WithClock 替换时钟
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
