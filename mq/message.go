package mq

import (
	"context"
	"maps"
	"strconv"
)

// HeaderDeliveries 由 Nak 重新入队的消息携带的投递次数
const HeaderDeliveries = "x-mq-deliveries"

// Headers 消息元数据（键值对），trace 上下文也放在这里
type Headers map[string]string

// Clone 返回 Headers 的深拷贝
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	return maps.Clone(h)
}

// Get 获取指定 key 的值，不存在返回空字符串
func (h Headers) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[key]
}

// Set 设置键值对
func (h Headers) Set(key, value string) {
	if h != nil {
		h[key] = value
	}
}

// deliveries 从消息头读取投递次数，缺省为 1
func (h Headers) deliveries() int {
	n, err := strconv.Atoi(h.Get(HeaderDeliveries))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// requeueHeaders 重新入队时的消息头，投递次数加一
func requeueHeaders(h Headers, deliveries int) Headers {
	out := h.Clone()
	if out == nil {
		out = Headers{}
	}
	out[HeaderDeliveries] = strconv.Itoa(deliveries + 1)
	return out
}

// Message 消息接口
//
// 不同后端的 Nak 实现不同，但语义一致：消息稍后会再次投递，Deliveries 加一。
//   - jetstream: 原生 Nak，Deliveries 为服务端记录的 NumDelivered
//   - redis_stream / kafka / memory: 带上新的投递次数重新发布，然后确认原消息
type Message interface {
	// Context 消息处理上下文，继承自 Subscribe 的 ctx，携带上游链路信息
	Context() context.Context

	Topic() string

	Data() []byte

	// Headers 返回副本
	Headers() Headers

	// ID 后端内的消息标识，jetstream 为 "stream:seq"，redis_stream 为条目 ID
	ID() string

	// Deliveries 第几次投递，首次投递为 1
	Deliveries() int

	// Ack 确认处理完成
	Ack() error

	// Nak 请求重新投递
	Nak() error
}

// Handler 消息处理函数，通过 msg.Context() 获取上下文
//
// 自动确认模式下返回 nil 触发 Ack，返回 error 触发 Nak。
// 不可恢复的错误应在 Handler 内记录后返回 nil，或使用 WithManualAck 自行决定。
type Handler func(msg Message) error

// Subscription 订阅句柄
type Subscription interface {
	// Unsubscribe 停止接收新消息
	Unsubscribe() error

	// Done 订阅完全停止且在途消息处理完毕后关闭
	Done() <-chan struct{}
}

// ctxMessage 替换消息的 Context
type ctxMessage struct {
	Message
	ctx context.Context
}

func (m ctxMessage) Context() context.Context { return m.ctx }
