package connector

import (
	"context"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/metrics"
)

type options struct {
	logger  clog.Logger
	meter   metrics.Meter
	tracing bool
}

// Option 连接器选项
type Option func(*options)

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

// WithMeter 设置指标收集器
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithTracing 为客户端挂载 OpenTelemetry 插桩（redisotel / otelgorm）
func WithTracing() Option {
	return func(o *options) {
		o.tracing = true
	}
}

func applyOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.meter == nil {
		o.meter = metrics.Discard()
	}
	return o
}

// connectRecorder 记录连接尝试结果
type connectRecorder struct {
	kind    string
	name    string
	counter metrics.Counter
}

func newConnectRecorder(meter metrics.Meter, kind, name string) *connectRecorder {
	c, err := meter.Counter("connector_connect_total", "connection attempts by connector and result")
	if err != nil {
		c, _ = metrics.Discard().Counter("", "")
	}
	return &connectRecorder{kind: kind, name: name, counter: c}
}

func (r *connectRecorder) record(ctx context.Context, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	r.counter.Inc(ctx,
		metrics.L("connector", r.kind),
		metrics.L("name", r.name),
		metrics.L(metrics.LabelResult, result),
	)
}
