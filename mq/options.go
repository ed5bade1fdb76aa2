package mq

import (
	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/connector"
	"github.com/ceyewan/seckill/metrics"
)

// ==================== 组件选项 ====================

// Option MQ 组件选项
type Option func(*options)

type options struct {
	logger         clog.Logger
	meter          metrics.Meter
	natsConnector  connector.NATSConnector
	redisConnector connector.RedisConnector
	kafkaConnector connector.KafkaConnector
}

// WithLogger 设置日志记录器
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("mq")
		}
	}
}

// WithMeter 设置指标收集器
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithNATSConnector jetstream 驱动使用
func WithNATSConnector(conn connector.NATSConnector) Option {
	return func(o *options) {
		if conn != nil {
			o.natsConnector = conn
		}
	}
}

// WithRedisConnector redis_stream 驱动使用
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		if conn != nil {
			o.redisConnector = conn
		}
	}
}

// WithKafkaConnector kafka 驱动使用
func WithKafkaConnector(conn connector.KafkaConnector) Option {
	return func(o *options) {
		if conn != nil {
			o.kafkaConnector = conn
		}
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ==================== 发布选项 ====================

// PublishOption 发布选项
type PublishOption func(*publishOptions)

type publishOptions struct {
	Headers Headers

	// Key 分区路由键，仅 kafka 使用
	Key string
}

// WithHeaders 设置消息头
func WithHeaders(h Headers) PublishOption {
	return func(o *publishOptions) {
		o.Headers = h.Clone()
	}
}

// WithHeader 设置单个消息头
func WithHeader(key, value string) PublishOption {
	return func(o *publishOptions) {
		if o.Headers == nil {
			o.Headers = make(Headers)
		}
		o.Headers[key] = value
	}
}

// WithKey 设置分区路由键
func WithKey(key string) PublishOption {
	return func(o *publishOptions) {
		o.Key = key
	}
}

// ==================== 订阅选项 ====================

// SubscribeOption 订阅选项
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	// QueueGroup 同组消费者竞争消费，不同组各自收到全量
	QueueGroup string

	// AutoAck Handler 返回 nil 自动 Ack，返回 error 自动 Nak
	AutoAck bool

	// DurableName 消费者名称，redis_stream 用作 consumer 名
	DurableName string

	// Concurrency 同时执行的 Handler 数
	Concurrency int

	BatchSize   int
	MaxInflight int
	BufferSize  int
}

func defaultSubscribeOptions() subscribeOptions {
	return subscribeOptions{
		AutoAck:     true,
		Concurrency: 1,
		BatchSize:   10,
		BufferSize:  100,
	}
}

// WithQueueGroup 设置队列组
//
// 对应关系：JetStream durable consumer、Redis Consumer Group、Kafka Consumer Group
func WithQueueGroup(name string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.QueueGroup = name
	}
}

// WithManualAck 关闭自动确认，由 Handler 调用 msg.Ack()/msg.Nak()
func WithManualAck() SubscribeOption {
	return func(o *subscribeOptions) {
		o.AutoAck = false
	}
}

// WithAutoAck 开启自动确认（默认行为）
func WithAutoAck() SubscribeOption {
	return func(o *subscribeOptions) {
		o.AutoAck = true
	}
}

// WithDurable 设置消费者名称
func WithDurable(name string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.DurableName = name
	}
}

// WithConcurrency 设置并发处理数，默认 1
func WithConcurrency(n int) SubscribeOption {
	return func(o *subscribeOptions) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithBatchSize 单次拉取的消息数，默认 10
func WithBatchSize(size int) SubscribeOption {
	return func(o *subscribeOptions) {
		if size > 0 {
			o.BatchSize = size
		}
	}
}

// WithMaxInflight 未确认消息上限，jetstream 的 MaxAckPending
func WithMaxInflight(n int) SubscribeOption {
	return func(o *subscribeOptions) {
		if n > 0 {
			o.MaxInflight = n
		}
	}
}

// WithBufferSize memory 驱动的订阅缓冲，默认 100
func WithBufferSize(size int) SubscribeOption {
	return func(o *subscribeOptions) {
		if size > 0 {
			o.BufferSize = size
		}
	}
}
