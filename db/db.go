// Package db 提供基于 GORM 的数据库组件，支持分表功能。
//
// db 在 MySQL/SQLite 连接器之上提供：
//   - GORM 会话封装，SQL 日志输出到 clog
//   - 事务管理
//   - 分表能力（基于 gorm.io/sharding），订单表可按 user_id 分片
//   - OpenTelemetry 链路追踪（otelgorm）
//
// 基本使用：
//
//	database, _ := db.New(&db.Config{Driver: "mysql"},
//		db.WithMySQLConnector(mysqlConn),
//		db.WithLogger(logger),
//	)
//
//	err := database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
//		return tx.Create(&order).Error
//	})
//
// db 借用连接器的连接，不负责连接的生命周期。
package db

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/gorm"
	"gorm.io/sharding"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/metrics"
	"github.com/ceyewan/seckill/xerrors"
)

// DB 定义了数据库组件的核心能力
type DB interface {
	// DB 获取绑定了 ctx 的 *gorm.DB
	DB(ctx context.Context) *gorm.DB

	// Transaction 执行事务，fn 返回错误时回滚
	// fn 中只能使用 tx，不能再使用 DB(ctx)，SQLite 下连接数为 1
	Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error

	// Close 关闭组件，连接由连接器负责
	Close() error
}

type database struct {
	client *gorm.DB
	logger clog.Logger
	txDur  metrics.Histogram
}

// New 创建数据库组件
func New(cfg *Config, opts ...Option) (DB, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, err.Error())
	}

	opt := options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, o := range opts {
		o(&opt)
	}

	var gormDB *gorm.DB
	switch cfg.Driver {
	case DriverMySQL:
		if opt.mysqlConnector == nil {
			return nil, ErrMySQLConnectorRequired
		}
		gormDB = opt.mysqlConnector.GetClient()
	case DriverSQLite:
		if opt.sqliteConnector == nil {
			return nil, ErrSQLiteConnectorRequired
		}
		gormDB = opt.sqliteConnector.GetClient()
	}
	if gormDB == nil {
		return nil, ErrNotConnected
	}

	if cfg.EnableSharding {
		for _, rule := range cfg.ShardingRules {
			tables := make([]any, len(rule.Tables))
			for i, v := range rule.Tables {
				tables[i] = v
			}
			middleware := sharding.Register(sharding.Config{
				ShardingKey:         rule.ShardingKey,
				NumberOfShards:      rule.NumberOfShards,
				PrimaryKeyGenerator: sharding.PKSnowflake,
			}, tables...)
			if err := use(gormDB, middleware); err != nil {
				return nil, xerrors.Wrapf(err, "register sharding for tables %v", rule.Tables)
			}
		}
	}

	if opt.tracing {
		if err := use(gormDB, otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Driver))); err != nil {
			return nil, xerrors.Wrap(err, "register otelgorm plugin")
		}
	}

	session := gormDB.Session(&gorm.Session{
		Logger: newGormLogger(opt.logger, opt.silentMode, cfg.SlowThreshold),
	})

	txDur, err := opt.meter.Histogram(MetricTransactionDuration, "database transaction duration",
		metrics.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	opt.logger.Info("db component initialized",
		clog.String("driver", cfg.Driver),
		clog.Bool("sharding", cfg.EnableSharding))

	return &database{client: session, logger: opt.logger, txDur: txDur}, nil
}

// use 注册插件，同一个连接上重复注册视为成功
func use(db *gorm.DB, plugin gorm.Plugin) error {
	if err := db.Use(plugin); err != nil && !xerrors.Is(err, gorm.ErrRegistered) {
		return err
	}
	return nil
}

func (d *database) DB(ctx context.Context) *gorm.DB {
	return d.client.WithContext(ctx)
}

func (d *database) Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	start := time.Now()
	err := d.client.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx)
	})
	result := "commit"
	if err != nil {
		result = "rollback"
	}
	d.txDur.Record(ctx, time.Since(start).Seconds(), metrics.L(metrics.LabelResult, result))
	return err
}

func (d *database) Close() error {
	return nil
}
