package mq

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ceyewan/seckill/clog"
)

// memoryTransport 进程内实现
//
// 每个队列组（广播订阅各自成组）收到一份消息，组内轮询分配给成员。
// Nak 把消息带上新的投递次数重新分配给同一个组。
type memoryTransport struct {
	mu     sync.RWMutex
	topics map[string]map[string]*memoryGroup
	seq    atomic.Uint64
	subSeq atomic.Uint64
	closed bool
	logger clog.Logger
}

type memoryGroup struct {
	members []*memorySubscription
	next    atomic.Uint64
}

func newMemoryTransport(logger clog.Logger) *memoryTransport {
	return &memoryTransport{
		topics: make(map[string]map[string]*memoryGroup),
		logger: logger,
	}
}

func (t *memoryTransport) Publish(ctx context.Context, topic string, data []byte, opts publishOptions) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrClosed
	}
	groups := make([]string, 0, len(t.topics[topic]))
	for name := range t.topics[topic] {
		groups = append(groups, name)
	}
	t.mu.RUnlock()

	id := strconv.FormatUint(t.seq.Add(1), 10)
	for _, group := range groups {
		msg := &memoryMessage{
			id:         id,
			topic:      topic,
			data:       append([]byte(nil), data...),
			headers:    opts.Headers.Clone(),
			deliveries: opts.Headers.deliveries(),
			group:      group,
			transport:  t,
		}
		if err := t.deliver(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// deliver 把消息交给组内下一个成员
func (t *memoryTransport) deliver(ctx context.Context, msg *memoryMessage) error {
	t.mu.RLock()
	g := t.topics[msg.topic][msg.group]
	var sub *memorySubscription
	if g != nil && len(g.members) > 0 {
		sub = g.members[g.next.Add(1)%uint64(len(g.members))]
	}
	t.mu.RUnlock()
	if sub == nil {
		return nil
	}

	select {
	case sub.ch <- msg:
		return nil
	case <-sub.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *memoryTransport) Subscribe(ctx context.Context, topic string, handler Handler, opts subscribeOptions) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &memorySubscription{
		ch:     make(chan *memoryMessage, opts.BufferSize),
		ctx:    subCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	group := opts.QueueGroup
	if group == "" {
		group = "_broadcast_" + strconv.FormatUint(t.subSeq.Add(1), 10)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	if t.topics[topic] == nil {
		t.topics[topic] = make(map[string]*memoryGroup)
	}
	g := t.topics[topic][group]
	if g == nil {
		g = &memoryGroup{}
		t.topics[topic][group] = g
	}
	g.members = append(g.members, sub)
	t.mu.Unlock()

	go func() {
		defer close(sub.done)
		defer t.remove(topic, group, sub)
		for {
			select {
			case <-subCtx.Done():
				return
			case msg := <-sub.ch:
				msg.ctx = subCtx
				_ = handler(msg)
			}
		}
	}()
	return sub, nil
}

func (t *memoryTransport) remove(topic, group string, sub *memorySubscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g := t.topics[topic][group]
	if g == nil {
		return
	}
	for i, m := range g.members {
		if m == sub {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}
	if len(g.members) == 0 {
		delete(t.topics[topic], group)
	}
}

func (t *memoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for _, groups := range t.topics {
		for _, g := range groups {
			for _, sub := range g.members {
				sub.cancel()
			}
		}
	}
	return nil
}

func (t *memoryTransport) Capabilities() Capabilities {
	return CapabilitiesMemory
}

type memoryMessage struct {
	id         string
	topic      string
	data       []byte
	headers    Headers
	deliveries int
	group      string
	ctx        context.Context
	transport  *memoryTransport
	settled    atomic.Bool
}

func (m *memoryMessage) Context() context.Context {
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

func (m *memoryMessage) Topic() string    { return m.topic }
func (m *memoryMessage) Data() []byte     { return m.data }
func (m *memoryMessage) Headers() Headers { return m.headers.Clone() }
func (m *memoryMessage) ID() string       { return m.id }
func (m *memoryMessage) Deliveries() int  { return m.deliveries }

func (m *memoryMessage) Ack() error {
	m.settled.Store(true)
	return nil
}

// Nak 异步重新分配，避免 Handler 在自己的缓冲已满时阻塞
func (m *memoryMessage) Nak() error {
	if !m.settled.CompareAndSwap(false, true) {
		return nil
	}
	again := &memoryMessage{
		id:         m.id,
		topic:      m.topic,
		data:       m.data,
		headers:    requeueHeaders(m.headers, m.deliveries),
		deliveries: m.deliveries + 1,
		group:      m.group,
		transport:  m.transport,
	}
	go func() {
		if err := m.transport.deliver(context.Background(), again); err != nil {
			m.transport.logger.Warn("memory requeue failed", clog.String("topic", m.topic), clog.Error(err))
		}
	}()
	return nil
}

type memorySubscription struct {
	ch     chan *memoryMessage
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *memorySubscription) Unsubscribe() error {
	s.cancel()
	return nil
}

func (s *memorySubscription) Done() <-chan struct{} {
	return s.done
}
