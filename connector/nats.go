package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/xerrors"
)

type natsConnector struct {
	cfg      *NATSConfig
	conn     *nats.Conn
	logger   clog.Logger
	recorder *connectRecorder
	healthy  atomic.Bool
	mu       sync.Mutex
}

// NewNATS 创建 NATS 连接器
func NewNATS(cfg *NATSConfig, opts ...Option) (NATSConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "nats config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	return &natsConnector{
		cfg:      cfg,
		logger:   o.logger.With(clog.String("connector", "nats"), clog.String("name", cfg.Name)),
		recorder: newConnectRecorder(o.meter, "nats", cfg.Name),
	}, nil
}

func (c *natsConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	natsOpts := []nats.Option{
		nats.Name(c.cfg.Name),
		nats.Timeout(c.cfg.Timeout),
		nats.MaxReconnects(c.cfg.MaxReconnects),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.healthy.Store(false)
			c.logger.Warn("nats disconnected", clog.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.healthy.Store(true)
			c.logger.Info("nats reconnected", clog.String("url", nc.ConnectedUrl()))
		}),
	}
	if c.cfg.Username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(c.cfg.Username, c.cfg.Password))
	}
	if c.cfg.Token != "" {
		natsOpts = append(natsOpts, nats.Token(c.cfg.Token))
	}

	c.logger.Info("attempting to connect to nats", clog.String("url", c.cfg.URL))
	conn, err := nats.Connect(c.cfg.URL, natsOpts...)
	c.recorder.record(ctx, err)
	if err != nil {
		c.logger.Error("failed to connect to nats", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "nats connector[%s]: %v", c.cfg.Name, err)
	}

	c.conn = conn
	c.healthy.Store(true)
	c.logger.Info("successfully connected to nats", clog.String("url", conn.ConnectedUrl()))
	return nil
}

func (c *natsConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy.Store(false)
	if c.conn == nil {
		return nil
	}
	c.logger.Info("closing nats connection")
	err := c.conn.Drain()
	c.conn = nil
	return err
}

func (c *natsConnector) HealthCheck(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.healthy.Store(false)
		return ErrNotConnected
	}
	if !conn.IsConnected() {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrHealthCheck, "nats connector[%s]: status %s", c.cfg.Name, conn.Status())
	}
	if err := conn.FlushWithContext(ctx); err != nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrHealthCheck, "nats connector[%s]: %v", c.cfg.Name, err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *natsConnector) IsHealthy() bool { return c.healthy.Load() }

func (c *natsConnector) Name() string { return c.cfg.Name }

func (c *natsConnector) GetClient() *nats.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}
