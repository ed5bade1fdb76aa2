package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/connector"
	"github.com/ceyewan/seckill/xerrors"
)

const (
	redisFieldPayload = "payload"
	redisFieldHeaders = "headers"
)

// redisStreamTransport Redis Stream 传输层
type redisStreamTransport struct {
	client *redis.Client
	cfg    *RedisStreamConfig
	logger clog.Logger
}

func newRedisStreamTransport(conn connector.RedisConnector, cfg *RedisStreamConfig, logger clog.Logger) *redisStreamTransport {
	return &redisStreamTransport{client: conn.GetClient(), cfg: cfg, logger: logger}
}

func (t *redisStreamTransport) Publish(ctx context.Context, topic string, data []byte, opts publishOptions) error {
	args, err := t.addArgs(topic, data, opts.Headers)
	if err != nil {
		return err
	}
	return t.client.XAdd(ctx, args).Err()
}

func (t *redisStreamTransport) addArgs(topic string, data []byte, headers Headers) (*redis.XAddArgs, error) {
	values := map[string]any{redisFieldPayload: data}
	if len(headers) > 0 {
		b, err := json.Marshal(headers)
		if err != nil {
			return nil, xerrors.Wrap(err, "mq: marshal headers")
		}
		values[redisFieldHeaders] = b
	}
	return &redis.XAddArgs{
		Stream: topic,
		MaxLen: t.cfg.MaxLen,
		Approx: t.cfg.Approximate,
		Values: values,
	}, nil
}

func (t *redisStreamTransport) Subscribe(ctx context.Context, topic string, handler Handler, opts subscribeOptions) (Subscription, error) {
	if opts.QueueGroup != "" {
		err := t.client.XGroupCreateMkStream(ctx, topic, opts.QueueGroup, "$").Err()
		if err != nil && !isBusyGroup(err) {
			return nil, xerrors.Wrapf(err, "mq: create group %s", opts.QueueGroup)
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisStreamSubscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer sub.once.Do(func() { close(sub.done) })
		if opts.QueueGroup != "" {
			t.consumeWithGroup(subCtx, topic, opts, handler)
		} else {
			t.consumeBroadcast(subCtx, topic, opts, handler)
		}
	}()
	return sub, nil
}

// consumeWithGroup 先定期认领超时的 Pending 消息，再读取新消息
func (t *redisStreamTransport) consumeWithGroup(ctx context.Context, topic string, opts subscribeOptions, handler Handler) {
	group := opts.QueueGroup
	consumer := opts.DurableName
	if consumer == "" {
		consumer = fmt.Sprintf("%s-%d", group, time.Now().UnixNano())
	}

	const claimEvery = 5
	cursor := "0-0"
	for loop := 1; ; loop++ {
		if ctx.Err() != nil {
			return
		}
		if loop%claimEvery == 0 {
			cursor = t.claimPending(ctx, topic, group, consumer, cursor, opts, handler)
		}

		streams, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{topic, ">"},
			Count:    int64(opts.BatchSize),
			Block:    t.cfg.Block,
		}).Result()
		if err != nil {
			t.backoff(ctx, "xreadgroup failed", topic, err)
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				t.process(ctx, topic, group, msg, handler)
			}
		}
	}
}

// claimPending 用 XAUTOCLAIM 接管空闲超过 ClaimIdle 的消息，返回下一次的游标
func (t *redisStreamTransport) claimPending(ctx context.Context, topic, group, consumer, cursor string, opts subscribeOptions, handler Handler) string {
	messages, next, err := t.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   topic,
		Group:    group,
		Consumer: consumer,
		MinIdle:  t.cfg.ClaimIdle,
		Start:    cursor,
		Count:    int64(opts.BatchSize),
	}).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			t.logger.Warn("xautoclaim failed", clog.String("topic", topic), clog.Error(err))
		}
		return "0-0"
	}
	if len(messages) > 0 {
		t.logger.Info("claimed pending messages", clog.String("topic", topic), clog.String("group", group), clog.Int("count", len(messages)))
	}
	for _, msg := range messages {
		t.process(ctx, topic, group, msg, handler)
	}
	return next
}

func (t *redisStreamTransport) consumeBroadcast(ctx context.Context, topic string, opts subscribeOptions, handler Handler) {
	lastID := "$"
	for ctx.Err() == nil {
		streams, err := t.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{topic, lastID},
			Count:   int64(opts.BatchSize),
			Block:   t.cfg.Block,
		}).Result()
		if err != nil {
			t.backoff(ctx, "xread failed", topic, err)
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				t.process(ctx, topic, "", msg, handler)
				lastID = msg.ID
			}
		}
	}
}

// backoff redis.Nil 为阻塞读超时，直接进入下一轮；其他错误等待一秒避免忙轮询
func (t *redisStreamTransport) backoff(ctx context.Context, msg, topic string, err error) {
	if err == redis.Nil || ctx.Err() != nil {
		return
	}
	t.logger.Error(msg, clog.String("topic", topic), clog.Error(err))
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
	}
}

func (t *redisStreamTransport) process(ctx context.Context, topic, group string, rMsg redis.XMessage, handler Handler) {
	headers := t.decodeHeaders(rMsg.Values[redisFieldHeaders])
	_ = handler(&redisStreamMessage{
		id:        rMsg.ID,
		topic:     topic,
		data:      valueBytes(rMsg.Values[redisFieldPayload]),
		headers:   headers,
		group:     group,
		ctx:       ctx,
		transport: t,
	})
}

func (t *redisStreamTransport) decodeHeaders(v any) Headers {
	raw := valueBytes(v)
	if len(raw) == 0 {
		return nil
	}
	var h Headers
	if err := json.Unmarshal(raw, &h); err != nil {
		t.logger.Warn("decode headers failed", clog.Error(err))
		return nil
	}
	return h
}

func valueBytes(v any) []byte {
	switch val := v.(type) {
	case string:
		return []byte(val)
	case []byte:
		return val
	default:
		return nil
	}
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (t *redisStreamTransport) Close() error {
	return nil
}

func (t *redisStreamTransport) Capabilities() Capabilities {
	return CapabilitiesRedisStream
}

type redisStreamMessage struct {
	id        string
	topic     string
	data      []byte
	headers   Headers
	group     string
	ctx       context.Context
	transport *redisStreamTransport
}

func (m *redisStreamMessage) Context() context.Context {
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

func (m *redisStreamMessage) Topic() string    { return m.topic }
func (m *redisStreamMessage) Data() []byte     { return m.data }
func (m *redisStreamMessage) Headers() Headers { return m.headers.Clone() }
func (m *redisStreamMessage) ID() string       { return m.id }
func (m *redisStreamMessage) Deliveries() int  { return m.headers.deliveries() }

// Ack 广播模式没有 Pending 列表，无需确认
func (m *redisStreamMessage) Ack() error {
	if m.group == "" {
		return nil
	}
	return m.transport.client.XAck(context.WithoutCancel(m.Context()), m.topic, m.group, m.id).Err()
}

// Nak 在同一事务中重新追加消息并确认原消息；广播模式为空操作
func (m *redisStreamMessage) Nak() error {
	if m.group == "" {
		return nil
	}
	args, err := m.transport.addArgs(m.topic, m.data, requeueHeaders(m.headers, m.Deliveries()))
	if err != nil {
		return err
	}
	ctx := context.WithoutCancel(m.Context())
	_, err = m.transport.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, args)
		pipe.XAck(ctx, m.topic, m.group, m.id)
		return nil
	})
	return err
}

type redisStreamSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *redisStreamSubscription) Unsubscribe() error {
	s.cancel()
	return nil
}

func (s *redisStreamSubscription) Done() <-chan struct{} {
	return s.done
}
