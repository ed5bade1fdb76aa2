package mq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/seckill/testkit"
)

// runRedeliveryScenario 第一次投递 Nak，第二次投递 Ack，各后端表现一致
func runRedeliveryScenario(t *testing.T, q MQ, topic string, wait time.Duration) {
	t.Helper()
	ctx := testkit.NewContext(t, wait+10*time.Second)

	ch := make(chan received, 4)
	sub, err := q.Subscribe(ctx, topic, func(msg Message) error {
		ch <- received{data: string(msg.Data()), headers: msg.Headers(), deliveries: msg.Deliveries()}
		if msg.Deliveries() == 1 {
			return assert.AnError
		}
		return nil
	}, WithQueueGroup("fulfillment"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	require.NoError(t, q.Publish(ctx, topic, []byte(`{"orderId":42}`), WithHeader("source", "gate"), WithKey("7")))

	next := func() received {
		select {
		case r := <-ch:
			return r
		case <-time.After(wait):
			t.Fatalf("no delivery on %s", topic)
			return received{}
		}
	}
	first := next()
	assert.Equal(t, 1, first.deliveries)
	assert.Equal(t, `{"orderId":42}`, first.data)
	assert.Equal(t, "gate", first.headers.Get("source"))

	second := next()
	assert.Equal(t, 2, second.deliveries)
	assert.Equal(t, first.data, second.data)
}

func TestJetStreamIntegration(t *testing.T) {
	conn := testkit.NewNATSContainerConnector(t)
	q, err := New(&Config{Driver: DriverJetStream, JetStream: &JetStreamConfig{AutoCreateStream: true, AckWait: 5 * time.Second}},
		WithNATSConnector(conn), WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	runRedeliveryScenario(t, q, "seckill.orders", 15*time.Second)
}

func TestRedisStreamIntegration(t *testing.T) {
	conn := testkit.NewRedisContainerConnector(t)
	q, err := New(&Config{Driver: DriverRedisStream, RedisStream: &RedisStreamConfig{Block: 200 * time.Millisecond}},
		WithRedisConnector(conn), WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	runRedeliveryScenario(t, q, "seckill.orders", 10*time.Second)
}

func TestKafkaIntegration(t *testing.T) {
	cfg := testkit.NewKafkaContainerConfig(t)
	conn := testkit.NewKafkaConnector(t, cfg)
	q, err := New(&Config{Driver: DriverKafka, Kafka: &KafkaConfig{Seed: cfg.Seed}},
		WithKafkaConnector(conn), WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	runRedeliveryScenario(t, q, "seckill-orders", 60*time.Second)
}
