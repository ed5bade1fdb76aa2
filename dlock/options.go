package dlock

import (
	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/connector"
	"github.com/ceyewan/seckill/metrics"
)

// Option DLock 组件初始化选项函数
type Option func(*options)

type options struct {
	logger         clog.Logger
	meter          metrics.Meter
	redisConnector connector.RedisConnector
	etcdConnector  connector.EtcdConnector
}

// WithLogger 注入日志记录器
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("dlock")
		}
	}
}

// WithMeter 注入指标收集器
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithRedisConnector 注入 Redis 连接器
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		if conn != nil {
			o.redisConnector = conn
		}
	}
}

// WithEtcdConnector 注入 Etcd 连接器
func WithEtcdConnector(conn connector.EtcdConnector) Option {
	return func(o *options) {
		if conn != nil {
			o.etcdConnector = conn
		}
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
