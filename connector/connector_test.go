package connector

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisConnectorLifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	conn, err := NewRedis(&RedisConfig{Name: "counter", Addr: mr.Addr()})
	require.NoError(t, err)
	assert.False(t, conn.IsHealthy())

	require.NoError(t, conn.Connect(ctx))
	require.NoError(t, conn.Connect(ctx))
	assert.True(t, conn.IsHealthy())
	assert.Equal(t, "counter", conn.Name())

	require.NoError(t, conn.GetClient().Set(ctx, "seckill:stock:1", 10, 0).Err())
	v, err := mr.Get("seckill:stock:1")
	require.NoError(t, err)
	assert.Equal(t, "10", v)

	mr.Close()
	assert.ErrorIs(t, conn.HealthCheck(ctx), ErrHealthCheck)
	assert.False(t, conn.IsHealthy())
	assert.NoError(t, conn.Close())
}

func TestRedisConnectFailure(t *testing.T) {
	conn, err := NewRedis(&RedisConfig{Addr: "127.0.0.1:1"})
	require.NoError(t, err)
	assert.ErrorIs(t, conn.Connect(context.Background()), ErrConnection)
}

func TestSQLiteConnector(t *testing.T) {
	ctx := context.Background()
	conn, err := NewSQLite(&SQLiteConfig{Path: "file::memory:"})
	require.NoError(t, err)
	assert.ErrorIs(t, conn.HealthCheck(ctx), ErrNotConnected)

	require.NoError(t, conn.Connect(ctx))
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.HealthCheck(ctx))

	var one int
	require.NoError(t, conn.GetClient().Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestConfigValidation(t *testing.T) {
	cases := map[string]func() error{
		"redis nil":        func() error { _, err := NewRedis(nil); return err },
		"redis addr":       func() error { _, err := NewRedis(&RedisConfig{}); return err },
		"mysql host":       func() error { _, err := NewMySQL(&MySQLConfig{Username: "u", Database: "d"}); return err },
		"sqlite path":      func() error { _, err := NewSQLite(&SQLiteConfig{}); return err },
		"etcd endpoints":   func() error { _, err := NewEtcd(&EtcdConfig{}); return err },
		"nats url":         func() error { _, err := NewNATS(&NATSConfig{}); return err },
		"kafka seed":       func() error { _, err := NewKafka(&KafkaConfig{}); return err },
		"kafka group only": func() error { _, err := NewKafka(&KafkaConfig{Seed: []string{"x:9092"}, ConsumerGroup: "g"}); return err },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, fn(), ErrConfig)
		})
	}
}

func TestDefaults(t *testing.T) {
	mysql := &MySQLConfig{DSN: "user:pw@tcp(db:3306)/seckill"}
	mysql.setDefaults()
	assert.Equal(t, 3306, mysql.Port)
	assert.Equal(t, "utf8mb4", mysql.Charset)
	assert.NoError(t, mysql.validate())

	kafka := &KafkaConfig{Seed: []string{"k:9092"}}
	kafka.setDefaults()
	assert.Equal(t, "seckill", kafka.ClientID)
}
