package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/ceyewan/seckill/connector"
)

// NewKafkaContainerConfig 使用 testcontainers 启动 Kafka 并返回生产者配置
// 生命周期由 t.Cleanup 管理
func NewKafkaContainerConfig(t *testing.T) *connector.KafkaConfig {
	t.Helper()
	RequireDocker(t)
	ctx := context.Background()

	container, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkacontainer.WithClusterID("seckill-test-cluster"),
	)
	require.NoError(t, err, "failed to start kafka container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	return &connector.KafkaConfig{Name: "testcontainer-kafka", Seed: brokers}
}

// NewKafkaConnector 按配置创建并连接 Kafka 连接器
func NewKafkaConnector(t *testing.T, cfg *connector.KafkaConfig) connector.KafkaConnector {
	t.Helper()
	conn, err := connector.NewKafka(cfg, connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create kafka connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to kafka")
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
