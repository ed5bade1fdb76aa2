package mq

import "context"

// Transport 底层传输层接口
//
// 底层连接由 Connector 管理，Transport 只持有订阅相关的资源。
type Transport interface {
	// Publish 发布消息，返回时消息已被后端确认持久化（memory 除外）
	Publish(ctx context.Context, topic string, data []byte, opts publishOptions) error

	// Subscribe 订阅消息；handler 同步调用，并发由上层控制
	Subscribe(ctx context.Context, topic string, handler Handler, opts subscribeOptions) (Subscription, error)

	Close() error

	Capabilities() Capabilities
}

// Capabilities 描述 Transport 支持的能力
type Capabilities struct {
	// System trace 中的 messaging.system
	System string

	// Persistence 是否持久化
	Persistence bool

	// NativeNak Nak 是否由后端原生支持（否则为重新发布）
	NativeNak bool

	// QueueGroup 是否支持队列组
	QueueGroup bool
}

var (
	CapabilitiesJetStream   = Capabilities{System: "nats", Persistence: true, NativeNak: true, QueueGroup: true}
	CapabilitiesRedisStream = Capabilities{System: "redis", Persistence: true, QueueGroup: true}
	CapabilitiesKafka       = Capabilities{System: "kafka", Persistence: true, QueueGroup: true}
	CapabilitiesMemory      = Capabilities{System: "memory", QueueGroup: true}
)
