package cache

import (
	"time"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/connector"
	"github.com/ceyewan/seckill/dlock"
	"github.com/ceyewan/seckill/metrics"
)

// Option 缓存引擎选项
type Option func(*options)

type options struct {
	logger         clog.Logger
	meter          metrics.Meter
	redisConnector connector.RedisConnector
	store          Store
	locker         dlock.Locker
	clock          func() time.Time
}

// WithLogger 设置日志记录器
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("cache")
		}
	}
}

// WithMeter 设置指标收集器
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithRedisConnector 使用 Redis 作为远端存储，未注入 Locker 时也用它创建 Redis 锁
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		if conn != nil {
			o.redisConnector = conn
		}
	}
}

// WithStore 直接指定远端存储
func WithStore(s Store) Option {
	return func(o *options) {
		if s != nil {
			o.store = s
		}
	}
}

// WithLocker 指定重建使用的分布式锁
func WithLocker(l dlock.Locker) Option {
	return func(o *options) {
		if l != nil {
			o.locker = l
		}
	}
}

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

func applyOptions(opts []Option) *options {
	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
