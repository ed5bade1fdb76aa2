package fulfillment

import (
	"time"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/metrics"
	"github.com/ceyewan/seckill/mq"
	"github.com/ceyewan/seckill/ratelimit"
	"github.com/ceyewan/seckill/seckill"
)

// Option 初始化选项
type Option func(*options)

type options struct {
	logger  clog.Logger
	meter   metrics.Meter
	queue   mq.MQ
	limiter ratelimit.Limiter
	counter seckill.CounterStore
	orders  OrderStore
	now     func() time.Time
}

// WithLogger 注入日志记录器，命名空间 "fulfillment"
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("fulfillment")
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

// WithMQ 订阅下单意图的消息队列，必填
func WithMQ(q mq.MQ) Option {
	return func(o *options) {
		o.queue = q
	}
}

// WithLimiter 共享令牌桶，必须支持 Wait（单机模式），必填
func WithLimiter(l ratelimit.Limiter) Option {
	return func(o *options) {
		o.limiter = l
	}
}

// WithCounterStore 补偿时归还快路径库存，必填
func WithCounterStore(c seckill.CounterStore) Option {
	return func(o *options) {
		o.counter = c
	}
}

// WithOrderStore 持久化目录，必填，通常是 *catalog.Catalog
func WithOrderStore(s OrderStore) Option {
	return func(o *options) {
		o.orders = s
	}
}

// WithClock 替换时钟，用于复核秒杀时间窗口
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
