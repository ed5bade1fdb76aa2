package mq

import (
	"context"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/connector"
	"github.com/ceyewan/seckill/xerrors"
)

// kafkaTransport 生产使用连接器的共享客户端，每个订阅新建一个消费客户端
type kafkaTransport struct {
	conn   connector.KafkaConnector
	cfg    *KafkaConfig
	logger clog.Logger
}

func newKafkaTransport(conn connector.KafkaConnector, cfg *KafkaConfig, logger clog.Logger) *kafkaTransport {
	return &kafkaTransport{conn: conn, cfg: cfg, logger: logger}
}

func (t *kafkaTransport) Publish(ctx context.Context, topic string, data []byte, opts publishOptions) error {
	record := &kgo.Record{Topic: topic, Value: data, Headers: headersToKafka(opts.Headers)}
	if opts.Key != "" {
		record.Key = []byte(opts.Key)
	}
	return t.produce(ctx, record)
}

func (t *kafkaTransport) produce(ctx context.Context, record *kgo.Record) error {
	client := t.conn.GetClient()
	if client == nil {
		return connector.ErrNotConnected
	}
	return client.ProduceSync(ctx, record).FirstErr()
}

func (t *kafkaTransport) Subscribe(ctx context.Context, topic string, handler Handler, opts subscribeOptions) (Subscription, error) {
	kopts := []kgo.Opt{
		kgo.SeedBrokers(t.cfg.Seed...),
		kgo.ConsumeTopics(topic),
		kgo.AllowAutoTopicCreation(),
	}
	if opts.QueueGroup != "" {
		kopts = append(kopts, kgo.ConsumerGroup(opts.QueueGroup), kgo.DisableAutoCommit())
	} else {
		// 无消费组时直接分配全部分区，每个订阅各自收到全量
		kopts = append(kopts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	}
	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, xerrors.Wrap(err, "mq: create kafka consumer")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer sub.once.Do(func() { close(sub.done) })
		defer client.Close()
		for {
			fetches := client.PollRecords(subCtx, opts.BatchSize)
			if fetches.IsClientClosed() || subCtx.Err() != nil {
				return
			}
			fetches.EachError(func(topic string, partition int32, err error) {
				t.logger.Error("kafka fetch failed", clog.String("topic", topic), clog.Int("partition", int(partition)), clog.Error(err))
			})
			fetches.EachRecord(func(r *kgo.Record) {
				_ = handler(&kafkaMessage{
					record:    r,
					ctx:       subCtx,
					headers:   headersFromKafka(r.Headers),
					group:     opts.QueueGroup,
					consumer:  client,
					transport: t,
				})
			})
		}
	}()
	return sub, nil
}

func (t *kafkaTransport) Close() error {
	return nil
}

func (t *kafkaTransport) Capabilities() Capabilities {
	return CapabilitiesKafka
}

func headersToKafka(h Headers) []kgo.RecordHeader {
	if len(h) == 0 {
		return nil
	}
	out := make([]kgo.RecordHeader, 0, len(h))
	for k, v := range h {
		out = append(out, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return out
}

func headersFromKafka(h []kgo.RecordHeader) Headers {
	if len(h) == 0 {
		return nil
	}
	out := make(Headers, len(h))
	for _, rh := range h {
		out[rh.Key] = string(rh.Value)
	}
	return out
}

type kafkaMessage struct {
	record    *kgo.Record
	ctx       context.Context
	headers   Headers
	group     string
	consumer  *kgo.Client
	transport *kafkaTransport
}

func (m *kafkaMessage) Context() context.Context {
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

func (m *kafkaMessage) Topic() string    { return m.record.Topic }
func (m *kafkaMessage) Data() []byte     { return m.record.Value }
func (m *kafkaMessage) Headers() Headers { return m.headers.Clone() }
func (m *kafkaMessage) Deliveries() int  { return m.headers.deliveries() }

func (m *kafkaMessage) ID() string {
	return fmt.Sprintf("%s/%d/%d", m.record.Topic, m.record.Partition, m.record.Offset)
}

// Ack 提交 offset，无消费组时为空操作
func (m *kafkaMessage) Ack() error {
	if m.group == "" {
		return nil
	}
	return m.consumer.CommitRecords(context.WithoutCancel(m.Context()), m.record)
}

// Nak 带上新的投递次数重新生产到同一 topic，再提交原 offset
func (m *kafkaMessage) Nak() error {
	if m.group == "" {
		return nil
	}
	again := &kgo.Record{
		Topic:   m.record.Topic,
		Key:     m.record.Key,
		Value:   m.record.Value,
		Headers: headersToKafka(requeueHeaders(m.headers, m.Deliveries())),
	}
	ctx := context.WithoutCancel(m.Context())
	if err := m.transport.produce(ctx, again); err != nil {
		return xerrors.Wrap(err, "mq: requeue kafka record")
	}
	return m.consumer.CommitRecords(ctx, m.record)
}

type kafkaSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *kafkaSubscription) Unsubscribe() error {
	s.cancel()
	return nil
}

func (s *kafkaSubscription) Done() <-chan struct{} {
	return s.done
}
