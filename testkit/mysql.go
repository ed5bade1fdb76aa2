package testkit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/ceyewan/seckill/connector"
)

// NewMySQLContainerConfig 启动 MySQL 8 容器，返回指向它的连接配置
func NewMySQLContainerConfig(t *testing.T) *connector.MySQLConfig {
	t.Helper()
	RequireDocker(t)
	ctx := context.Background()

	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("seckill"),
		mysql.WithUsername("seckill"),
		mysql.WithPassword("seckill"),
	)
	require.NoError(t, err, "failed to start mysql container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)
	port, err := strconv.Atoi(mapped.Port())
	require.NoError(t, err)

	return &connector.MySQLConfig{
		Name:         "testcontainer-mysql",
		Host:         host,
		Port:         port,
		Username:     "seckill",
		Password:     "seckill",
		Database:     "seckill",
		MaxIdleConns: 4,
		MaxOpenConns: 16,
	}
}

// NewMySQLConnector 连接容器中的 MySQL。
// 容器端口就绪后 mysqld 仍可能在初始化，连接失败时重试到 60s。
func NewMySQLConnector(t *testing.T) connector.MySQLConnector {
	t.Helper()
	conn, err := connector.NewMySQL(NewMySQLContainerConfig(t), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create mysql connector")
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return conn.Connect(ctx) == nil
	}, 60*time.Second, 2*time.Second, "mysql did not become ready")
	return conn
}
