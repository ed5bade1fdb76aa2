// Package mq 提供统一的发布订阅抽象，后端可选 NATS JetStream、Redis Stream、
// Kafka 和进程内 memory。
//
// 约定：
//   - Publish 在后端确认持久化后才返回
//   - 链路信息通过消息头传播，消费端 Span 以 Link 关联生产端
//   - Nak 的语义在所有后端一致：消息稍后重新投递，Deliveries 加一
//
//	q, _ := mq.New(&mq.Config{Driver: mq.DriverJetStream},
//		mq.WithNATSConnector(natsConn), mq.WithLogger(logger))
//	_ = q.Publish(ctx, "seckill.orders", payload)
//	sub, _ := q.Subscribe(ctx, "seckill.orders", func(msg mq.Message) error {
//		return handle(msg.Context(), msg.Data())
//	}, mq.WithQueueGroup("fulfillment"), mq.WithConcurrency(5))
package mq

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/metrics"
	"github.com/ceyewan/seckill/trace"
	"github.com/ceyewan/seckill/xerrors"
)

// MQ 消息队列核心接口
type MQ interface {
	// Publish 发布消息到指定主题
	Publish(ctx context.Context, topic string, data []byte, opts ...PublishOption) error

	// Subscribe 订阅主题，ctx 取消时自动停止订阅
	Subscribe(ctx context.Context, topic string, handler Handler, opts ...SubscribeOption) (Subscription, error)

	// Close 释放内部资源，不关闭连接器
	Close() error
}

// New 按 Config.Driver 创建 MQ
func New(cfg *Config, opts ...Option) (MQ, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	transport, err := newTransport(cfg, o)
	if err != nil {
		return nil, err
	}

	m := &mq{transport: transport, logger: o.logger}
	if m.published, err = o.meter.Counter(MetricPublishTotal, "messages published"); err != nil {
		return nil, err
	}
	if m.publishLatency, err = o.meter.Histogram(MetricPublishDuration, "publish latency until broker ack", metrics.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.consumed, err = o.meter.Counter(MetricConsumeTotal, "messages consumed"); err != nil {
		return nil, err
	}
	if m.handleLatency, err = o.meter.Histogram(MetricHandleDuration, "message handler duration", metrics.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

func newTransport(cfg *Config, o *options) (Transport, error) {
	switch cfg.Driver {
	case DriverJetStream:
		if o.natsConnector == nil {
			return nil, xerrors.Wrap(ErrConnectorNil, "jetstream requires WithNATSConnector")
		}
		return newJetStreamTransport(o.natsConnector, cfg.JetStream, o.logger)
	case DriverRedisStream:
		if o.redisConnector == nil {
			return nil, xerrors.Wrap(ErrConnectorNil, "redis_stream requires WithRedisConnector")
		}
		return newRedisStreamTransport(o.redisConnector, cfg.RedisStream, o.logger), nil
	case DriverKafka:
		if o.kafkaConnector == nil {
			return nil, xerrors.Wrap(ErrConnectorNil, "kafka requires WithKafkaConnector")
		}
		return newKafkaTransport(o.kafkaConnector, cfg.Kafka, o.logger), nil
	default:
		return newMemoryTransport(o.logger), nil
	}
}

type mq struct {
	transport Transport
	logger    clog.Logger

	published      metrics.Counter
	publishLatency metrics.Histogram
	consumed       metrics.Counter
	handleLatency  metrics.Histogram
}

func (m *mq) Publish(ctx context.Context, topic string, data []byte, opts ...PublishOption) error {
	var o publishOptions
	for _, opt := range opts {
		opt(&o)
	}

	caps := m.transport.Capabilities()
	ctx, span, traceHeaders := trace.StartProducerSpan(ctx, trace.MessagingMeta{System: caps.System, Destination: topic})
	defer span.End()
	if o.Headers == nil {
		o.Headers = make(Headers, len(traceHeaders))
	}
	for k, v := range traceHeaders {
		o.Headers[k] = v
	}

	start := time.Now()
	err := m.transport.Publish(ctx, topic, data, o)
	m.publishLatency.Record(ctx, time.Since(start).Seconds(), metrics.L(LabelTopic, topic))

	result := "ok"
	if err != nil {
		result = "error"
		trace.MarkSpanError(span, err)
	}
	m.published.Inc(ctx, metrics.L(LabelTopic, topic), metrics.L(metrics.LabelResult, result))
	return xerrors.Wrapf(err, "mq: publish %s", topic)
}

func (m *mq) Subscribe(ctx context.Context, topic string, handler Handler, opts ...SubscribeOption) (Subscription, error) {
	o := defaultSubscribeOptions()
	for _, opt := range opts {
		opt(&o)
	}

	d := &dispatcher{sem: make(chan struct{}, o.Concurrency)}
	wrapped := m.wrapHandler(topic, handler, o)
	sub, err := m.transport.Subscribe(ctx, topic, func(msg Message) error {
		return d.dispatch(msg, wrapped)
	}, o)
	if err != nil {
		return nil, err
	}
	m.logger.Info("subscribed",
		clog.String("topic", topic),
		clog.String("queue_group", o.QueueGroup),
		clog.Int("concurrency", o.Concurrency),
	)
	return newDispatchSubscription(sub, d), nil
}

func (m *mq) Close() error {
	return m.transport.Close()
}

// wrapHandler 统一处理链路、指标和自动确认
func (m *mq) wrapHandler(topic string, handler Handler, o subscribeOptions) Handler {
	system := m.transport.Capabilities().System
	return func(msg Message) error {
		meta := trace.MessagingMeta{System: system, Destination: topic, ConsumerGroup: o.QueueGroup}
		ctx, span := trace.StartConsumerSpan(msg.Context(), msg.Headers(), meta, msg.Deliveries())
		defer span.End()
		msg = ctxMessage{Message: msg, ctx: ctx}

		start := time.Now()
		err := handler(msg)
		m.handleLatency.Record(ctx, time.Since(start).Seconds(), metrics.L(LabelTopic, topic))
		trace.MarkSpanError(span, err)

		result := "handled"
		if o.AutoAck {
			result = "ack"
			ackErr := msg.Ack
			if err != nil {
				result = "nak"
				ackErr = msg.Nak
			}
			if e := ackErr(); e != nil {
				m.logger.ErrorContext(ctx, "auto "+result+" failed",
					clog.String("topic", topic),
					clog.String("msg_id", msg.ID()),
					clog.Error(e),
				)
			}
		} else if err != nil {
			result = "error"
		}
		m.consumed.Inc(ctx, metrics.L(LabelTopic, topic), metrics.L(metrics.LabelResult, result))
		return err
	}
}

// dispatcher 以信号量限制并发执行的 Handler 数
type dispatcher struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func (d *dispatcher) dispatch(msg Message, h Handler) error {
	if cap(d.sem) == 1 {
		return h(msg)
	}
	select {
	case d.sem <- struct{}{}:
	case <-msg.Context().Done():
		return msg.Context().Err()
	}
	d.wg.Add(1)
	go func() {
		defer func() {
			<-d.sem
			d.wg.Done()
		}()
		_ = h(msg)
	}()
	return nil
}

// dispatchSubscription 底层订阅结束且在途 Handler 完成后才算 Done
type dispatchSubscription struct {
	inner Subscription
	done  chan struct{}
}

func newDispatchSubscription(inner Subscription, d *dispatcher) *dispatchSubscription {
	s := &dispatchSubscription{inner: inner, done: make(chan struct{})}
	go func() {
		<-inner.Done()
		d.wg.Wait()
		close(s.done)
	}()
	return s
}

func (s *dispatchSubscription) Unsubscribe() error {
	return s.inner.Unsubscribe()
}

func (s *dispatchSubscription) Done() <-chan struct{} {
	return s.done
}
