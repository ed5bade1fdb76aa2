package server

import (
	"github.com/ceyewan/seckill/auth"
	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/connector"
	"github.com/ceyewan/seckill/idem"
	"github.com/ceyewan/seckill/metrics"
	"github.com/ceyewan/seckill/ratelimit"
)

// Option 初始化选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter

	gate     Admitter
	shops    ShopService
	vouchers VoucherStore
	auth     auth.Authenticator
	limiter  ratelimit.Limiter
	guard    *idem.Idempotency
	health   []connector.Connector
}

// WithLogger 注入日志记录器，命名空间 "http"
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("http")
		}
	}
}

// WithMeter 注入指标，同时提供 /metrics
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

func WithAdmitter(g Admitter) Option {
	return func(o *options) { o.gate = g }
}

func WithShopService(s ShopService) Option {
	return func(o *options) { o.shops = s }
}

func WithVoucherStore(v VoucherStore) Option {
	return func(o *options) { o.vouchers = v }
}

func WithAuthenticator(a auth.Authenticator) Option {
	return func(o *options) { o.auth = a }
}

// WithLimiter 抢购接口的单用户限流器，未设置时不限流
func WithLimiter(l ratelimit.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithIdempotency 管理端写接口按 Idempotency-Key 去重
func WithIdempotency(g *idem.Idempotency) Option {
	return func(o *options) { o.guard = g }
}

// WithHealthChecks /healthz 探测的连接器
func WithHealthChecks(conns ...connector.Connector) Option {
	return func(o *options) {
		o.health = append(o.health, conns...)
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
