package idem

import (
	"github.com/gin-gonic/gin"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/connector"
	"github.com/ceyewan/seckill/metrics"
)

// Option 初始化选项
type Option func(*options)

type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	redisConn connector.RedisConnector
	store     Store
}

// WithLogger 注入日志记录器，命名空间 "idem"
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("idem")
		}
	}
}

func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithRedisConnector redis 驱动使用的连接器
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		o.redisConn = conn
	}
}

// WithStore 直接指定存储，忽略 Driver
func WithStore(s Store) Option {
	return func(o *options) {
		o.store = s
	}
}

func applyOptions(opts []Option) *options {
	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MiddlewareOption Gin 中间件选项
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	scope func(*gin.Context) string
}

// WithScope 按调用方隔离幂等键，例如返回登录用户 ID，避免不同用户的键互相命中
func WithScope(fn func(*gin.Context) string) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.scope = fn
	}
}
