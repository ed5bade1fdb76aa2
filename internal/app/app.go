// Package app 组装秒杀服务：按配置创建连接器与各组件，
// 运行 HTTP 服务和落库消费者，退出时按 LIFO 释放资源。
package app

import (
	"context"
	"time"

	"github.com/ceyewan/seckill/auth"
	"github.com/ceyewan/seckill/bloom"
	"github.com/ceyewan/seckill/breaker"
	"github.com/ceyewan/seckill/cache"
	"github.com/ceyewan/seckill/catalog"
	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/connector"
	"github.com/ceyewan/seckill/db"
	"github.com/ceyewan/seckill/dlock"
	"github.com/ceyewan/seckill/fulfillment"
	"github.com/ceyewan/seckill/idem"
	"github.com/ceyewan/seckill/idgen"
	"github.com/ceyewan/seckill/internal/server"
	"github.com/ceyewan/seckill/metrics"
	"github.com/ceyewan/seckill/mq"
	"github.com/ceyewan/seckill/ratelimit"
	"github.com/ceyewan/seckill/seckill"
	"github.com/ceyewan/seckill/shop"
	"github.com/ceyewan/seckill/trace"
	"github.com/ceyewan/seckill/xerrors"
)

// ServiceName 日志、指标与链路中的服务名
const ServiceName = "seckill"

var ErrConfigNil = xerrors.New("app: config is nil")

// App 已组装好的服务
type App struct {
	cfg    *Config
	logger clog.Logger
	meter  metrics.Meter

	catalog  *catalog.Catalog
	bloom    *bloom.Registry
	shops    *shop.Service
	gate     *seckill.Gate
	consumer *fulfillment.Consumer
	server   *server.Server

	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// New 按配置创建全部组件，失败时释放已创建的资源
func New(ctx context.Context, cfg *Config) (_ *App, err error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	a := &App{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	if err = a.initObservability(); err != nil {
		return nil, err
	}
	if err = a.build(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) initObservability() error {
	logger, err := clog.New(&a.cfg.Log, clog.WithNamespace(ServiceName))
	if err != nil {
		return xerrors.Wrap(err, "app: create logger")
	}
	a.logger = logger
	a.onClose("logger", func(context.Context) error {
		logger.Flush()
		return nil
	})

	if a.cfg.Trace.ServiceName == "" {
		a.cfg.Trace.ServiceName = ServiceName
	}
	var shutdown trace.ShutdownFunc
	if a.cfg.Trace.Enabled {
		shutdown, err = trace.Init(&a.cfg.Trace)
	} else {
		shutdown, err = trace.Discard(ServiceName)
	}
	if err != nil {
		return xerrors.Wrap(err, "app: init trace")
	}
	a.onClose("trace", shutdown)

	if a.cfg.Metrics.ServiceName == "" {
		a.cfg.Metrics.ServiceName = ServiceName
	}
	meter, err := metrics.New(&a.cfg.Metrics)
	if err != nil {
		return xerrors.Wrap(err, "app: create meter")
	}
	a.meter = meter
	a.onClose("metrics", meter.Shutdown)
	return nil
}

func connect[C connector.Connector](ctx context.Context, a *App, conn C, err error) (C, error) {
	if err != nil {
		return conn, err
	}
	a.onClose("connector "+conn.Name(), func(context.Context) error { return conn.Close() })
	if err := conn.Connect(ctx); err != nil {
		return conn, err
	}
	return conn, nil
}

func (a *App) connOpts() []connector.Option {
	return []connector.Option{
		connector.WithLogger(a.logger),
		connector.WithMeter(a.meter),
		connector.WithTracing(),
	}
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg
	var health []connector.Connector

	redisConn, err := connector.NewRedis(&cfg.Redis, a.connOpts()...)
	if redisConn, err = connect(ctx, a, redisConn, err); err != nil {
		return err
	}
	health = append(health, redisConn)

	database, dbConn, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	health = append(health, dbConn)

	cb, err := breaker.New(&cfg.Breaker, breaker.WithLogger(a.logger), breaker.WithMeter(a.meter))
	if err != nil {
		return err
	}
	a.catalog, err = catalog.New(database,
		catalog.WithLogger(a.logger), catalog.WithMeter(a.meter), catalog.WithBreaker(cb))
	if err != nil {
		return err
	}

	a.bloom, err = bloom.NewRegistry(&cfg.Bloom,
		bloom.WithRedisConnector(redisConn), bloom.WithLogger(a.logger), bloom.WithMeter(a.meter))
	if err != nil {
		return err
	}

	cacheOpts := []cache.Option{
		cache.WithRedisConnector(redisConn), cache.WithLogger(a.logger), cache.WithMeter(a.meter),
	}
	if cfg.Lock.Driver == dlock.DriverEtcd {
		locker, err := a.etcdLocker(ctx)
		if err != nil {
			return err
		}
		cacheOpts = append(cacheOpts, cache.WithLocker(locker))
	}
	engine, err := cache.New(&cfg.Cache, cacheOpts...)
	if err != nil {
		return err
	}
	a.onClose("cache", func(context.Context) error { return engine.Close() })

	a.shops, err = shop.New(&cfg.Shop, a.catalog, engine,
		shop.WithLogger(a.logger), shop.WithBloom(a.bloom.Filter(bloom.KindShop)))
	if err != nil {
		return err
	}

	ids, err := idgen.New(&cfg.IDGen,
		idgen.WithRedisConnector(redisConn), idgen.WithLogger(a.logger), idgen.WithMeter(a.meter))
	if err != nil {
		return err
	}
	queue, brokers, err := a.openMQ(ctx, redisConn)
	if err != nil {
		return err
	}
	health = append(health, brokers...)

	counter, err := seckill.NewRedisCounter(redisConn)
	if err != nil {
		return err
	}
	a.gate, err = seckill.New(&cfg.Seckill,
		seckill.WithLogger(a.logger),
		seckill.WithMeter(a.meter),
		seckill.WithCounterStore(counter),
		seckill.WithVoucherSource(a.catalog),
		seckill.WithIDGenerator(ids),
		seckill.WithPublisher(queue),
		seckill.WithBloom(a.bloom.Filter(bloom.KindVoucher)),
	)
	if err != nil {
		return err
	}

	// 落库限速只需进程内令牌桶，分布式限流器不支持 Wait
	local, err := ratelimit.New(&ratelimit.Config{Driver: ratelimit.DriverStandalone},
		ratelimit.WithLogger(a.logger), ratelimit.WithMeter(a.meter))
	if err != nil {
		return err
	}
	a.onClose("fulfillment limiter", func(context.Context) error { return local.Close() })

	if cfg.Fulfillment.Topic == "" {
		cfg.Fulfillment.Topic = a.gate.Topic()
	}
	a.consumer, err = fulfillment.New(&cfg.Fulfillment,
		fulfillment.WithLogger(a.logger),
		fulfillment.WithMeter(a.meter),
		fulfillment.WithMQ(queue),
		fulfillment.WithLimiter(local),
		fulfillment.WithCounterStore(counter),
		fulfillment.WithOrderStore(a.catalog),
	)
	if err != nil {
		return err
	}

	limiter, err := ratelimit.New(&cfg.RateLimit,
		ratelimit.WithRedisConnector(redisConn), ratelimit.WithLogger(a.logger), ratelimit.WithMeter(a.meter))
	if err != nil {
		return err
	}
	a.onClose("http limiter", func(context.Context) error { return limiter.Close() })

	authn, err := auth.New(&cfg.Auth,
		auth.WithLogger(a.logger), auth.WithMeter(a.meter), auth.WithContextFunc(server.UserContext))
	if err != nil {
		return err
	}

	guard, err := idem.New(&cfg.Idem,
		idem.WithRedisConnector(redisConn), idem.WithLogger(a.logger), idem.WithMeter(a.meter))
	if err != nil {
		return err
	}

	if cfg.HTTP.ServiceName == "" {
		cfg.HTTP.ServiceName = ServiceName
	}
	a.server, err = server.New(&cfg.HTTP,
		server.WithLogger(a.logger),
		server.WithMeter(a.meter),
		server.WithAdmitter(a.gate),
		server.WithShopService(a.shops),
		server.WithVoucherStore(a.catalog),
		server.WithAuthenticator(authn),
		server.WithLimiter(limiter),
		server.WithIdempotency(guard),
		server.WithHealthChecks(health...),
	)
	return err
}

func (a *App) openDB(ctx context.Context) (db.DB, connector.Connector, error) {
	cfg := a.cfg
	opts := []db.Option{db.WithLogger(a.logger), db.WithMeter(a.meter), db.WithTracing()}

	var conn connector.Connector
	switch cfg.DB.Driver {
	case db.DriverSQLite:
		if cfg.SQLite == nil {
			return nil, nil, xerrors.Wrap(xerrors.ErrInvalidInput, "app: db.driver=sqlite requires sqlite config")
		}
		c, err := connector.NewSQLite(cfg.SQLite, a.connOpts()...)
		if c, err = connect(ctx, a, c, err); err != nil {
			return nil, nil, err
		}
		opts, conn = append(opts, db.WithSQLiteConnector(c)), c
	default:
		if cfg.MySQL == nil {
			return nil, nil, xerrors.Wrap(xerrors.ErrInvalidInput, "app: db.driver=mysql requires mysql config")
		}
		c, err := connector.NewMySQL(cfg.MySQL, a.connOpts()...)
		if c, err = connect(ctx, a, c, err); err != nil {
			return nil, nil, err
		}
		opts, conn = append(opts, db.WithMySQLConnector(c)), c
	}

	database, err := db.New(&cfg.DB, opts...)
	if err != nil {
		return nil, nil, err
	}
	a.onClose("db", func(context.Context) error { return database.Close() })
	return database, conn, nil
}

// openMQ 按 mq.driver 创建消息队列，返回需要探活的连接器
func (a *App) openMQ(ctx context.Context, redisConn connector.RedisConnector) (mq.MQ, []connector.Connector, error) {
	cfg := a.cfg
	opts := []mq.Option{mq.WithLogger(a.logger), mq.WithMeter(a.meter)}
	var brokers []connector.Connector

	switch cfg.MQ.Driver {
	case mq.DriverRedisStream:
		opts = append(opts, mq.WithRedisConnector(redisConn))
	case mq.DriverKafka:
		if cfg.Kafka == nil {
			return nil, nil, xerrors.Wrap(xerrors.ErrInvalidInput, "app: mq.driver=kafka requires kafka config")
		}
		c, err := connector.NewKafka(cfg.Kafka, a.connOpts()...)
		if c, err = connect(ctx, a, c, err); err != nil {
			return nil, nil, err
		}
		opts, brokers = append(opts, mq.WithKafkaConnector(c)), append(brokers, c)
	case mq.DriverMemory:
	default:
		if cfg.NATS == nil {
			return nil, nil, xerrors.Wrap(xerrors.ErrInvalidInput, "app: mq.driver=jetstream requires nats config")
		}
		c, err := connector.NewNATS(cfg.NATS, a.connOpts()...)
		if c, err = connect(ctx, a, c, err); err != nil {
			return nil, nil, err
		}
		opts, brokers = append(opts, mq.WithNATSConnector(c)), append(brokers, c)
	}

	queue, err := mq.New(&cfg.MQ, opts...)
	if err != nil {
		return nil, nil, err
	}
	a.onClose("mq", func(context.Context) error { return queue.Close() })
	return queue, brokers, nil
}

func (a *App) etcdLocker(ctx context.Context) (dlock.Locker, error) {
	if a.cfg.Etcd == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "app: lock.driver=etcd requires etcd config")
	}
	conn, err := connector.NewEtcd(a.cfg.Etcd, a.connOpts()...)
	if conn, err = connect(ctx, a, conn, err); err != nil {
		return nil, err
	}
	locker, err := dlock.New(&a.cfg.Lock,
		dlock.WithEtcdConnector(conn), dlock.WithLogger(a.logger), dlock.WithMeter(a.meter))
	if err != nil {
		return nil, err
	}
	a.onClose("locker", func(context.Context) error { return locker.Close() })
	return locker, nil
}

// Prepare 执行 startup 配置的数据准备
func (a *App) Prepare(ctx context.Context) error {
	st := a.cfg.Startup
	if st.Migrate {
		if err := a.catalog.Migrate(ctx); err != nil {
			return err
		}
	}
	if st.BloomBootstrap {
		err := a.bloom.Bootstrap(ctx, map[string]bloom.IDSource{
			bloom.KindShop:    a.catalog.ListShopIDs,
			bloom.KindVoucher: a.catalog.ListVoucherIDs,
			bloom.KindUser:    a.catalog.ListUserIDs,
		})
		if err != nil {
			return err
		}
	}
	if st.PreloadStock {
		if err := a.preloadStock(ctx); err != nil {
			return err
		}
	}
	if st.WarmupShops {
		ids, err := a.catalog.ListShopIDs(ctx)
		if err != nil {
			return err
		}
		if err := a.shops.Warmup(ctx, ids, 0); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) preloadStock(ctx context.Context) error {
	ids, err := a.catalog.ListStockedVoucherIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		v, err := a.catalog.GetVoucher(ctx, id)
		if err != nil {
			return err
		}
		if err := a.gate.Preload(ctx, id, v.Stock); err != nil {
			return err
		}
	}
	return nil
}

// Server HTTP 服务
func (a *App) Server() *server.Server {
	return a.server
}

// Run 启动消费者与 HTTP 服务，阻塞到 ctx 取消
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	return a.Serve(ctx)
}

// Start 订阅下单意图，返回时订阅已生效
func (a *App) Start(ctx context.Context) error {
	return a.consumer.Start(ctx)
}

// Serve 运行 HTTP 服务，ctx 取消后停止服务并等待消费者退出
func (a *App) Serve(ctx context.Context) error {
	runErr := a.server.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return xerrors.Combine(runErr, a.consumer.Stop(stopCtx))
}

// Close 按创建的逆序释放资源
func (a *App) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			errs = append(errs, xerrors.Wrapf(err, "close %s", c.name))
		}
	}
	a.closers = nil
	return xerrors.Combine(errs...)
}
