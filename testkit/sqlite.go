package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/seckill/connector"
)

// NewSQLiteConfig 返回 SQLite 内存数据库配置
// 每次调用使用独立的库名，测试之间互不可见
func NewSQLiteConfig() *connector.SQLiteConfig {
	return &connector.SQLiteConfig{
		Name: "test-sqlite",
		Path: "file:seckill_" + NewID() + "?mode=memory&cache=shared",
	}
}

// NewSQLiteConnector 获取 SQLite 连接器（内存数据库）
// 生命周期由 t.Cleanup 管理
func NewSQLiteConnector(t *testing.T) connector.SQLiteConnector {
	t.Helper()
	conn, err := connector.NewSQLite(NewSQLiteConfig(), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create sqlite connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to sqlite")
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
