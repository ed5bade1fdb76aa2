package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	tcetcd "github.com/testcontainers/testcontainers-go/modules/etcd"

	"github.com/ceyewan/seckill/connector"
)

// NewEtcdContainerConnector 使用 testcontainers 启动 Etcd 并返回连接器
// 生命周期由 t.Cleanup 管理
func NewEtcdContainerConnector(t *testing.T) connector.EtcdConnector {
	t.Helper()
	RequireDocker(t)
	ctx := context.Background()

	container, err := tcetcd.Run(ctx, "quay.io/coreos/etcd:v3.5.9")
	require.NoError(t, err, "failed to start etcd container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "2379")
	require.NoError(t, err)

	conn, err := connector.NewEtcd(&connector.EtcdConfig{
		Name:      "testcontainer-etcd",
		Endpoints: []string{host + ":" + mappedPort.Port()},
	}, connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create etcd connector")
	require.NoError(t, conn.Connect(ctx), "failed to connect to etcd")
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}
