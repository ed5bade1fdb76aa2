package mq

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/connector"
	"github.com/ceyewan/seckill/xerrors"
)

// jetStreamTransport NATS JetStream 传输层
type jetStreamTransport struct {
	js      jetstream.JetStream
	cfg     *JetStreamConfig
	logger  clog.Logger
	ensured sync.Map
}

func newJetStreamTransport(conn connector.NATSConnector, cfg *JetStreamConfig, logger clog.Logger) (*jetStreamTransport, error) {
	js, err := jetstream.New(conn.GetClient())
	if err != nil {
		return nil, xerrors.Wrap(err, "mq: create jetstream context")
	}
	return &jetStreamTransport{js: js, cfg: cfg, logger: logger}, nil
}

// Publish 等待 PubAck 后返回
func (t *jetStreamTransport) Publish(ctx context.Context, topic string, data []byte, opts publishOptions) error {
	if t.cfg.AutoCreateStream {
		if err := t.ensureStream(ctx, topic); err != nil {
			return err
		}
	}
	msg := &nats.Msg{Subject: topic, Data: data, Header: headersToNATS(opts.Headers)}
	_, err := t.js.PublishMsg(ctx, msg)
	return err
}

func (t *jetStreamTransport) Subscribe(ctx context.Context, topic string, handler Handler, opts subscribeOptions) (Subscription, error) {
	if t.cfg.AutoCreateStream {
		if err := t.ensureStream(ctx, topic); err != nil {
			return nil, xerrors.Wrapf(err, "mq: ensure stream for %s", topic)
		}
	}

	// pull consumer：同一 Durable 的多个实例竞争消费
	consumerCfg := jetstream.ConsumerConfig{
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       t.cfg.AckWait,
		FilterSubject: topic,
	}
	if opts.QueueGroup != "" {
		consumerCfg.Durable = sanitizeName(opts.QueueGroup)
	} else if opts.DurableName != "" {
		consumerCfg.Durable = sanitizeName(opts.DurableName)
	}
	if opts.MaxInflight > 0 {
		consumerCfg.MaxAckPending = opts.MaxInflight
	}

	consumer, err := t.js.CreateOrUpdateConsumer(ctx, t.streamName(topic), consumerCfg)
	if err != nil {
		return nil, xerrors.Wrapf(err, "mq: create consumer for %s", topic)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		_ = handler(&jetStreamMessage{msg: msg, ctx: ctx, headers: headersFromNATS(msg.Headers())})
	}, jetstream.PullMaxMessages(opts.BatchSize))
	if err != nil {
		return nil, xerrors.Wrap(err, "mq: start consuming")
	}
	return newJetStreamSubscription(ctx, cons), nil
}

func (t *jetStreamTransport) Capabilities() Capabilities {
	return CapabilitiesJetStream
}

func (t *jetStreamTransport) Close() error {
	return nil
}

// streamName 取 topic 第一段作为 Stream 名，如 seckill.orders -> S-seckill
func (t *jetStreamTransport) streamName(topic string) string {
	return t.cfg.StreamPrefix + sanitizeName(strings.Split(topic, ".")[0])
}

// ensureStream 确保 Stream 存在且包含 topic；已有 Stream 只追加 subject，其余配置不动
func (t *jetStreamTransport) ensureStream(ctx context.Context, topic string) error {
	if _, ok := t.ensured.Load(topic); ok {
		return nil
	}
	if err := t.createOrExtendStream(ctx, topic); err != nil {
		return err
	}
	t.ensured.Store(topic, struct{}{})
	return nil
}

func (t *jetStreamTransport) createOrExtendStream(ctx context.Context, topic string) error {
	name := t.streamName(topic)

	stream, err := t.js.Stream(ctx, name)
	if err == nil {
		info, err := stream.Info(ctx)
		if err != nil {
			return xerrors.Wrap(err, "mq: stream info")
		}
		for _, sub := range info.Config.Subjects {
			if matchesWildcard(sub, topic) {
				return nil
			}
		}
		updated := info.Config
		updated.Subjects = append(updated.Subjects, topic)
		if _, err := t.js.UpdateStream(ctx, updated); err != nil {
			return xerrors.Wrapf(err, "mq: add subject %s to stream %s", topic, name)
		}
		t.logger.Info("added subject to existing stream", clog.String("stream", name), clog.String("subject", topic))
		return nil
	}

	_, err = t.js.CreateStream(ctx, jetstream.StreamConfig{Name: name, Subjects: []string{topic}})
	if err != nil && !xerrors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		return xerrors.Wrapf(err, "mq: create stream %s", name)
	}
	return nil
}

// matchesWildcard 处理 * 与 > 通配符，如 "orders.*" 匹配 "orders.created"
func matchesWildcard(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	patternParts := strings.Split(pattern, ".")
	topicParts := strings.Split(topic, ".")
	for i, p := range patternParts {
		if p == ">" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if p != "*" && p != topicParts[i] {
			return false
		}
	}
	return len(patternParts) == len(topicParts)
}

var invalidChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func sanitizeName(name string) string {
	return invalidChars.ReplaceAllString(name, "_")
}

func headersToNATS(h Headers) nats.Header {
	if len(h) == 0 {
		return nil
	}
	out := nats.Header{}
	for k, v := range h {
		out.Set(k, v)
	}
	return out
}

func headersFromNATS(h nats.Header) Headers {
	if len(h) == 0 {
		return nil
	}
	out := make(Headers, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

type jetStreamMessage struct {
	msg     jetstream.Msg
	ctx     context.Context
	headers Headers
}

func (m *jetStreamMessage) Context() context.Context {
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

func (m *jetStreamMessage) Topic() string    { return m.msg.Subject() }
func (m *jetStreamMessage) Data() []byte     { return m.msg.Data() }
func (m *jetStreamMessage) Headers() Headers { return m.headers.Clone() }
func (m *jetStreamMessage) Ack() error       { return m.msg.Ack() }
func (m *jetStreamMessage) Nak() error       { return m.msg.Nak() }

func (m *jetStreamMessage) ID() string {
	meta, err := m.msg.Metadata()
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s:%d", meta.Stream, meta.Sequence.Stream)
}

// Deliveries 服务端记录的投递次数
func (m *jetStreamMessage) Deliveries() int {
	meta, err := m.msg.Metadata()
	if err != nil || meta.NumDelivered == 0 {
		return 1
	}
	return int(meta.NumDelivered)
}

type jetStreamSubscription struct {
	cons   jetstream.ConsumeContext
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newJetStreamSubscription(parent context.Context, cons jetstream.ConsumeContext) *jetStreamSubscription {
	ctx, cancel := context.WithCancel(parent)
	s := &jetStreamSubscription{cons: cons, cancel: cancel, done: make(chan struct{})}
	go func() {
		<-ctx.Done()
		s.cons.Stop()
		<-s.cons.Closed()
		s.once.Do(func() { close(s.done) })
	}()
	return s
}

func (s *jetStreamSubscription) Unsubscribe() error {
	s.cancel()
	return nil
}

func (s *jetStreamSubscription) Done() <-chan struct{} {
	return s.done
}
