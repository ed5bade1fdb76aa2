package testkit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/ceyewan/seckill/connector"
)

// NewMiniRedis 启动一个进程内 Redis（支持 Lua、Hash、Bitmap、Stream）
// 生命周期由 t.Cleanup 管理
func NewMiniRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	return miniredis.RunT(t)
}

// NewMiniRedisConnector 返回连接到进程内 Redis 的连接器
func NewMiniRedisConnector(t *testing.T) (connector.RedisConnector, *miniredis.Miniredis) {
	t.Helper()
	mr := NewMiniRedis(t)
	conn := connectRedis(t, &connector.RedisConfig{Name: "miniredis", Addr: mr.Addr()})
	return conn, mr
}

// NewRedisContainerConnector 使用 testcontainers 启动 Redis 并返回连接器
func NewRedisContainerConnector(t *testing.T) connector.RedisConnector {
	t.Helper()
	RequireDocker(t)
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7.2-alpine")
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opt, err := redis.ParseURL(uri)
	require.NoError(t, err)

	return connectRedis(t, &connector.RedisConfig{Name: "testcontainer-redis", Addr: opt.Addr})
}

func connectRedis(t *testing.T, cfg *connector.RedisConfig) connector.RedisConnector {
	t.Helper()
	conn, err := connector.NewRedis(cfg, connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create redis connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to redis")
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
