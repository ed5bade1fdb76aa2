package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/xerrors"
)

type redisConnector struct {
	cfg      *RedisConfig
	client   *redis.Client
	logger   clog.Logger
	recorder *connectRecorder
	healthy  atomic.Bool

	mu        sync.Mutex
	connected bool
}

// NewRedis 创建 Redis 连接器
func NewRedis(cfg *RedisConfig, opts ...Option) (RedisConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "redis config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	c := &redisConnector{
		cfg:      cfg,
		logger:   o.logger.With(clog.String("connector", "redis"), clog.String("name", cfg.Name)),
		recorder: newConnectRecorder(o.meter, "redis", cfg.Name),
	}

	c.client = redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})

	if o.tracing {
		if err := redisotel.InstrumentTracing(c.client); err != nil {
			return nil, xerrors.Wrapf(err, "redis connector[%s]: instrument tracing", cfg.Name)
		}
		if err := redisotel.InstrumentMetrics(c.client); err != nil {
			return nil, xerrors.Wrapf(err, "redis connector[%s]: instrument metrics", cfg.Name)
		}
	}
	return c, nil
}

func (c *redisConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	c.logger.Info("attempting to connect to redis", clog.String("addr", c.cfg.Addr))
	err := c.client.Ping(ctx).Err()
	c.recorder.record(ctx, err)
	if err != nil {
		c.logger.Error("failed to connect to redis", clog.Error(err), clog.String("addr", c.cfg.Addr))
		return xerrors.Wrapf(ErrConnection, "redis connector[%s]: %v", c.cfg.Name, err)
	}

	c.connected = true
	c.healthy.Store(true)
	c.logger.Info("successfully connected to redis", clog.String("addr", c.cfg.Addr))
	return nil
}

func (c *redisConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy.Store(false)
	if !c.connected {
		return nil
	}
	c.connected = false
	c.logger.Info("closing redis connection")
	return c.client.Close()
}

func (c *redisConnector) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.healthy.Store(false)
		c.logger.Warn("redis health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "redis connector[%s]: %v", c.cfg.Name, err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *redisConnector) IsHealthy() bool { return c.healthy.Load() }

func (c *redisConnector) Name() string { return c.cfg.Name }

func (c *redisConnector) GetClient() *redis.Client { return c.client }
