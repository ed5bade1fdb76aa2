package mq

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/seckill/testkit"
	"github.com/ceyewan/seckill/trace"
)

func newMemoryMQ(t *testing.T) MQ {
	t.Helper()
	q, err := New(&Config{Driver: DriverMemory}, WithLogger(testkit.NewLogger()), WithMeter(testkit.NewMeter()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

type received struct {
	data       string
	headers    Headers
	deliveries int
}

func collect(ch chan<- received, result error) Handler {
	return func(msg Message) error {
		ch <- received{data: string(msg.Data()), headers: msg.Headers(), deliveries: msg.Deliveries()}
		return result
	}
}

func waitFor(t *testing.T, ch <-chan received) received {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
		return received{}
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(&Config{Driver: "rabbitmq"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&Config{Driver: DriverKafka})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&Config{Driver: DriverJetStream})
	assert.ErrorIs(t, err, ErrConnectorNil)

	_, err = New(&Config{Driver: DriverRedisStream})
	assert.ErrorIs(t, err, ErrConnectorNil)

	cfg := &Config{}
	cfg.setDefaults()
	assert.Equal(t, DriverJetStream, cfg.Driver)
	assert.Equal(t, "S-", cfg.JetStream.StreamPrefix)
	assert.Equal(t, 30*time.Second, cfg.JetStream.AckWait)
}

func TestMemoryPublishSubscribeWithTrace(t *testing.T) {
	shutdown, err := trace.Discard("mq-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	q := newMemoryMQ(t)
	ctx := testkit.NewContext(t, 5*time.Second)

	ch := make(chan received, 1)
	_, err = q.Subscribe(ctx, "seckill.orders", collect(ch, nil))
	require.NoError(t, err)

	require.NoError(t, q.Publish(ctx, "seckill.orders", []byte(`{"orderId":1}`), WithHeader("source", "gate")))
	r := waitFor(t, ch)
	assert.Equal(t, `{"orderId":1}`, r.data)
	assert.Equal(t, "gate", r.headers.Get("source"))
	assert.NotEmpty(t, r.headers.Get("traceparent"))
	assert.Equal(t, 1, r.deliveries)
}

func TestMemoryQueueGroupAndBroadcast(t *testing.T) {
	q := newMemoryMQ(t)
	ctx := testkit.NewContext(t, 5*time.Second)

	var a, b, all atomic.Int32
	count := func(n *atomic.Int32) Handler {
		return func(Message) error { n.Add(1); return nil }
	}
	_, err := q.Subscribe(ctx, "seckill.orders", count(&a), WithQueueGroup("fulfillment"))
	require.NoError(t, err)
	_, err = q.Subscribe(ctx, "seckill.orders", count(&b), WithQueueGroup("fulfillment"))
	require.NoError(t, err)
	_, err = q.Subscribe(ctx, "seckill.orders", count(&all))
	require.NoError(t, err)

	for range 10 {
		require.NoError(t, q.Publish(ctx, "seckill.orders", []byte("x")))
	}

	assert.Eventually(t, func() bool {
		return a.Load()+b.Load() == 10 && all.Load() == 10
	}, 2*time.Second, 10*time.Millisecond)
	assert.Positive(t, a.Load())
	assert.Positive(t, b.Load())
}

func TestMemoryAutoNakRedelivers(t *testing.T) {
	q := newMemoryMQ(t)
	ctx := testkit.NewContext(t, 5*time.Second)

	ch := make(chan received, 2)
	_, err := q.Subscribe(ctx, "seckill.orders", func(msg Message) error {
		ch <- received{deliveries: msg.Deliveries()}
		if msg.Deliveries() == 1 {
			return assert.AnError
		}
		return nil
	}, WithQueueGroup("fulfillment"))
	require.NoError(t, err)

	require.NoError(t, q.Publish(ctx, "seckill.orders", []byte("x")))
	assert.Equal(t, 1, waitFor(t, ch).deliveries)
	assert.Equal(t, 2, waitFor(t, ch).deliveries)

	select {
	case r := <-ch:
		t.Fatalf("unexpected redelivery %d", r.deliveries)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryManualAck(t *testing.T) {
	q := newMemoryMQ(t)
	ctx := testkit.NewContext(t, 5*time.Second)

	ch := make(chan received, 2)
	_, err := q.Subscribe(ctx, "seckill.orders", func(msg Message) error {
		ch <- received{deliveries: msg.Deliveries()}
		if msg.Deliveries() == 1 {
			assert.NoError(t, msg.Nak())
			// 已经 Nak 的消息再次 Nak 不会重复入队
			assert.NoError(t, msg.Nak())
			return assert.AnError
		}
		return msg.Ack()
	}, WithManualAck())
	require.NoError(t, err)

	require.NoError(t, q.Publish(ctx, "seckill.orders", []byte("x")))
	assert.Equal(t, 1, waitFor(t, ch).deliveries)
	assert.Equal(t, 2, waitFor(t, ch).deliveries)
	select {
	case <-ch:
		t.Fatal("message delivered more than twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryConcurrency(t *testing.T) {
	q := newMemoryMQ(t)
	ctx := testkit.NewContext(t, 5*time.Second)

	var inflight, peak atomic.Int32
	release := make(chan struct{})
	var handled sync.WaitGroup
	handled.Add(6)
	sub, err := q.Subscribe(ctx, "seckill.orders", func(Message) error {
		defer handled.Done()
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inflight.Add(-1)
		return nil
	}, WithConcurrency(3), WithQueueGroup("fulfillment"))
	require.NoError(t, err)

	for range 6 {
		require.NoError(t, q.Publish(ctx, "seckill.orders", []byte("x")))
	}
	assert.Eventually(t, func() bool { return inflight.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	close(release)
	handled.Wait()
	assert.EqualValues(t, 3, peak.Load())

	require.NoError(t, sub.Unsubscribe())
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not done")
	}
}

func TestMemoryClosed(t *testing.T) {
	q, err := New(&Config{Driver: DriverMemory})
	require.NoError(t, err)
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Publish(context.Background(), "t", nil), ErrClosed)
	_, err = q.Subscribe(context.Background(), "t", func(Message) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHeadersDeliveries(t *testing.T) {
	assert.Equal(t, 1, Headers(nil).deliveries())
	assert.Equal(t, 1, Headers{HeaderDeliveries: "zero"}.deliveries())

	h := requeueHeaders(Headers{"k": "v"}, 1)
	assert.Equal(t, 2, h.deliveries())
	assert.Equal(t, "v", h.Get("k"))
}

func TestMatchesWildcard(t *testing.T) {
	assert.True(t, matchesWildcard("seckill.orders", "seckill.orders"))
	assert.True(t, matchesWildcard("seckill.*", "seckill.orders"))
	assert.True(t, matchesWildcard("seckill.>", "seckill.orders.retry"))
	assert.False(t, matchesWildcard("seckill.*", "seckill.orders.retry"))
	assert.False(t, matchesWildcard("shop.*", "seckill.orders"))
	assert.Equal(t, "fulfillment_v1", sanitizeName("fulfillment.v1"))
}
