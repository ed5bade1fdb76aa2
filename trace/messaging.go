package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Messaging 语义属性键
const (
	AttrMessagingSystem        = "messaging.system"
	AttrMessagingDestination   = "messaging.destination"
	AttrMessagingOperation     = "messaging.operation"
	AttrMessagingConsumerGroup = "messaging.consumer.group"
	AttrMessagingDeliveryCount = "messaging.delivery_count"
)

const tracerName = "github.com/ceyewan/seckill/trace"

// MessagingMeta 标准化的消息属性
type MessagingMeta struct {
	System        string
	Destination   string
	ConsumerGroup string
}

func (m MessagingMeta) attributes(op string, extra ...attribute.KeyValue) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrMessagingOperation, op)}
	if m.System != "" {
		attrs = append(attrs, attribute.String(AttrMessagingSystem, m.System))
	}
	if m.Destination != "" {
		attrs = append(attrs, attribute.String(AttrMessagingDestination, m.Destination))
	}
	if m.ConsumerGroup != "" {
		attrs = append(attrs, attribute.String(AttrMessagingConsumerGroup, m.ConsumerGroup))
	}
	return append(attrs, extra...)
}

// Inject 把 ctx 中的链路信息写入 headers
func Inject(ctx context.Context, headers map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
}

// Extract 从 headers 恢复链路信息
func Extract(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}

// StartProducerSpan 启动生产者 Span 并返回需要随消息发送的 headers
func StartProducerSpan(ctx context.Context, meta MessagingMeta) (context.Context, oteltrace.Span, map[string]string) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "mq.publish "+meta.Destination,
		oteltrace.WithSpanKind(oteltrace.SpanKindProducer),
		oteltrace.WithAttributes(meta.attributes("publish")...),
	)
	headers := map[string]string{}
	Inject(ctx, headers)
	return ctx, span, headers
}

// StartConsumerSpan 启动消费者 Span，上游 Span 以 Link 关联而不是父子关系，
// 重投的消息因此各自成链。
func StartConsumerSpan(ctx context.Context, headers map[string]string, meta MessagingMeta, deliveries int) (context.Context, oteltrace.Span) {
	opts := []oteltrace.SpanStartOption{
		oteltrace.WithSpanKind(oteltrace.SpanKindConsumer),
		oteltrace.WithAttributes(meta.attributes("process", attribute.Int(AttrMessagingDeliveryCount, deliveries))...),
	}
	if len(headers) > 0 {
		if remote := oteltrace.SpanContextFromContext(Extract(ctx, headers)); remote.IsValid() {
			opts = append(opts, oteltrace.WithLinks(oteltrace.Link{SpanContext: remote}))
		}
	}
	return otel.Tracer(tracerName).Start(ctx, "mq.process "+meta.Destination, opts...)
}

// MarkSpanError err 非 nil 时记录到 Span
func MarkSpanError(span oteltrace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
