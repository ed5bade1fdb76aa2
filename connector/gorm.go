package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/xerrors"
)

// gormConnector MySQL 和 SQLite 共用的连接器实现，差异只在 Dialector
type gormConnector struct {
	kind      string
	name      string
	dialector func() gorm.Dialector
	pool      func(db *gorm.DB) error

	db       *gorm.DB
	logger   clog.Logger
	recorder *connectRecorder
	healthy  atomic.Bool
	mu       sync.Mutex
}

func newGormConnector(kind, name string, dialector func() gorm.Dialector, pool func(*gorm.DB) error, o *options) *gormConnector {
	return &gormConnector{
		kind:      kind,
		name:      name,
		dialector: dialector,
		pool:      pool,
		logger:    o.logger.With(clog.String("connector", kind), clog.String("name", name)),
		recorder:  newConnectRecorder(o.meter, kind, name),
	}
}

func (c *gormConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return nil
	}

	c.logger.Info("attempting to connect to " + c.kind)
	db, err := gorm.Open(c.dialector(), &gorm.Config{Logger: logger.Discard})
	if err == nil && c.pool != nil {
		err = c.pool(db)
	}
	if err == nil {
		err = ping(ctx, db)
	}
	c.recorder.record(ctx, err)
	if err != nil {
		c.logger.Error("failed to connect to "+c.kind, clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: %v", c.kind, c.name, err)
	}

	c.db = db
	c.healthy.Store(true)
	c.logger.Info("successfully connected to " + c.kind)
	return nil
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *gormConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy.Store(false)
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	c.db = nil
	if err != nil {
		return err
	}
	c.logger.Info("closing " + c.kind + " connection")
	return sqlDB.Close()
}

func (c *gormConnector) HealthCheck(ctx context.Context) error {
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()
	if db == nil {
		c.healthy.Store(false)
		return ErrNotConnected
	}
	if err := ping(ctx, db); err != nil {
		c.healthy.Store(false)
		c.logger.Warn(c.kind+" health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "%s connector[%s]: %v", c.kind, c.name, err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *gormConnector) IsHealthy() bool { return c.healthy.Load() }

func (c *gormConnector) Name() string { return c.name }

func (c *gormConnector) GetClient() *gorm.DB {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db
}
