// Package metrics 提供基于 OpenTelemetry 的指标组件，通过 Prometheus 暴露。
//
// 组件只依赖 Meter 接口，通过 WithMeter 注入；未注入时使用 Discard()。
//
//	meter, _ := metrics.New(&metrics.Config{Enabled: true, ServiceName: "seckill"})
//	defer meter.Shutdown(ctx)
//	admitted, _ := meter.Counter("seckill_admission_total", "admission decisions")
//	admitted.Inc(ctx, metrics.L("result", "ok"))
//	router.GET("/metrics", gin.WrapH(meter.Handler()))
package metrics

import (
	"context"
	"net/http"
	"sync"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/ceyewan/seckill/xerrors"
)

// Meter 指标工厂
type Meter interface {
	Counter(name, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name, desc string, opts ...MetricOption) (Histogram, error)

	// Handler 返回 Prometheus 抓取端点
	Handler() http.Handler

	Shutdown(ctx context.Context) error
}

// Counter 单调递增计数器
type Counter interface {
	Inc(ctx context.Context, labels ...Label)
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 可增可减的瞬时值
type Gauge interface {
	Set(ctx context.Context, val float64, labels ...Label)
	Inc(ctx context.Context, labels ...Label)
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 分布
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// MetricOption 指标创建选项
type MetricOption func(*metricOptions)

type metricOptions struct {
	unit    string
	buckets []float64
}

// WithUnit 设置单位，如 "s"、"ms"
func WithUnit(unit string) MetricOption {
	return func(o *metricOptions) { o.unit = unit }
}

// WithBuckets 自定义直方图桶边界
func WithBuckets(buckets ...float64) MetricOption {
	return func(o *metricOptions) { o.buckets = buckets }
}

// New 创建 Meter；cfg.Enabled 为 false 时返回 noop 实现
func New(cfg *Config) (Meter, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "metrics: config is nil")
	}
	if !cfg.Enabled {
		return Discard(), nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
		),
	)
	if err != nil {
		return nil, xerrors.Wrap(err, "metrics: create resource")
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, xerrors.Wrap(err, "metrics: create prometheus exporter")
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	if cfg.Runtime {
		if err := runtime.Start(runtime.WithMeterProvider(mp)); err != nil {
			return nil, xerrors.Wrap(err, "metrics: start runtime instrumentation")
		}
	}

	return &meterImpl{
		meter:    mp.Meter("seckill"),
		provider: mp,
		registry: registry,
	}, nil
}

type meterImpl struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	registry *promclient.Registry
}

func (m *meterImpl) Counter(name, desc string, opts ...MetricOption) (Counter, error) {
	o := applyMetricOptions(opts)
	copts := []metric.Float64CounterOption{metric.WithDescription(desc)}
	if o.unit != "" {
		copts = append(copts, metric.WithUnit(o.unit))
	}
	c, err := m.meter.Float64Counter(name, copts...)
	if err != nil {
		return nil, err
	}
	return &counterImpl{c: c}, nil
}

func (m *meterImpl) Gauge(name, desc string, opts ...MetricOption) (Gauge, error) {
	o := applyMetricOptions(opts)
	gopts := []metric.Float64GaugeOption{metric.WithDescription(desc)}
	if o.unit != "" {
		gopts = append(gopts, metric.WithUnit(o.unit))
	}
	g, err := m.meter.Float64Gauge(name, gopts...)
	if err != nil {
		return nil, err
	}
	return &gaugeImpl{g: g, values: make(map[string]float64)}, nil
}

func (m *meterImpl) Histogram(name, desc string, opts ...MetricOption) (Histogram, error) {
	o := applyMetricOptions(opts)
	hopts := []metric.Float64HistogramOption{metric.WithDescription(desc)}
	if o.unit != "" {
		hopts = append(hopts, metric.WithUnit(o.unit))
	}
	if len(o.buckets) > 0 {
		hopts = append(hopts, metric.WithExplicitBucketBoundaries(o.buckets...))
	}
	h, err := m.meter.Float64Histogram(name, hopts...)
	if err != nil {
		return nil, err
	}
	return &histogramImpl{h: h}, nil
}

func (m *meterImpl) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *meterImpl) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

func applyMetricOptions(opts []MetricOption) *metricOptions {
	o := &metricOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type counterImpl struct {
	c metric.Float64Counter
}

func (c *counterImpl) Inc(ctx context.Context, labels ...Label) {
	c.c.Add(ctx, 1, metric.WithAttributes(toAttributes(labels)...))
}

func (c *counterImpl) Add(ctx context.Context, val float64, labels ...Label) {
	c.c.Add(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}

type gaugeImpl struct {
	g      metric.Float64Gauge
	mu     sync.Mutex
	values map[string]float64
}

func (g *gaugeImpl) Set(ctx context.Context, val float64, labels ...Label) {
	g.mu.Lock()
	g.values[labelKey(labels)] = val
	g.mu.Unlock()
	g.g.Record(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}

func (g *gaugeImpl) Inc(ctx context.Context, labels ...Label) {
	g.add(ctx, 1, labels)
}

func (g *gaugeImpl) Dec(ctx context.Context, labels ...Label) {
	g.add(ctx, -1, labels)
}

func (g *gaugeImpl) add(ctx context.Context, delta float64, labels []Label) {
	key := labelKey(labels)
	g.mu.Lock()
	g.values[key] += delta
	val := g.values[key]
	g.mu.Unlock()
	g.g.Record(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}

type histogramImpl struct {
	h metric.Float64Histogram
}

func (h *histogramImpl) Record(ctx context.Context, val float64, labels ...Label) {
	h.h.Record(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}
