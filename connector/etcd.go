package connector

import (
	"context"
	"sync"
	"sync/atomic"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/xerrors"
)

type etcdConnector struct {
	cfg      *EtcdConfig
	client   *clientv3.Client
	logger   clog.Logger
	recorder *connectRecorder
	healthy  atomic.Bool
	mu       sync.Mutex
}

// NewEtcd 创建 Etcd 连接器
func NewEtcd(cfg *EtcdConfig, opts ...Option) (EtcdConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "etcd config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	return &etcdConnector{
		cfg:      cfg,
		logger:   o.logger.With(clog.String("connector", "etcd"), clog.String("name", cfg.Name)),
		recorder: newConnectRecorder(o.meter, "etcd", cfg.Name),
	}, nil
}

func (c *etcdConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}

	c.logger.Info("attempting to connect to etcd", clog.Any("endpoints", c.cfg.Endpoints))
	client, err := clientv3.New(clientv3.Config{
		Endpoints:            c.cfg.Endpoints,
		Username:             c.cfg.Username,
		Password:             c.cfg.Password,
		DialTimeout:          c.cfg.DialTimeout,
		DialKeepAliveTime:    c.cfg.KeepAliveTime,
		DialKeepAliveTimeout: c.cfg.KeepAliveTimeout,
		Context:              context.Background(),
	})
	if err == nil {
		err = c.probe(ctx, client)
		if err != nil {
			_ = client.Close()
		}
	}
	c.recorder.record(ctx, err)
	if err != nil {
		c.logger.Error("failed to connect to etcd", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "etcd connector[%s]: %v", c.cfg.Name, err)
	}

	c.client = client
	c.healthy.Store(true)
	c.logger.Info("successfully connected to etcd")
	return nil
}

func (c *etcdConnector) probe(ctx context.Context, client *clientv3.Client) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	_, err := client.Status(ctx, c.cfg.Endpoints[0])
	return err
}

func (c *etcdConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy.Store(false)
	if c.client == nil {
		return nil
	}
	c.logger.Info("closing etcd connection")
	err := c.client.Close()
	c.client = nil
	return err
}

func (c *etcdConnector) HealthCheck(ctx context.Context) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		c.healthy.Store(false)
		return ErrNotConnected
	}
	if err := c.probe(ctx, client); err != nil {
		c.healthy.Store(false)
		c.logger.Warn("etcd health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "etcd connector[%s]: %v", c.cfg.Name, err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *etcdConnector) IsHealthy() bool { return c.healthy.Load() }

func (c *etcdConnector) Name() string { return c.cfg.Name }

func (c *etcdConnector) GetClient() *clientv3.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}
