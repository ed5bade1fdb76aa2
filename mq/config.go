package mq

import (
	"time"

	"github.com/ceyewan/seckill/xerrors"
)

// Driver 驱动类型
type Driver string

const (
	// DriverJetStream NATS JetStream，持久化、原生 Nak，默认驱动
	DriverJetStream Driver = "jetstream"

	// DriverRedisStream Redis Stream + Consumer Group
	DriverRedisStream Driver = "redis_stream"

	// DriverKafka Kafka（franz-go）
	DriverKafka Driver = "kafka"

	// DriverMemory 进程内实现，不持久化，用于测试和单机运行
	DriverMemory Driver = "memory"
)

// Config MQ 配置
//
//	mq:
//	  driver: jetstream
//	  jetstream:
//	    auto_create_stream: true
//	    stream_prefix: "S-"
//	    ack_wait: 30s
type Config struct {
	// Driver 底层驱动，默认 jetstream
	Driver Driver `json:"driver" yaml:"driver" mapstructure:"driver"`

	JetStream   *JetStreamConfig   `json:"jetstream,omitempty" yaml:"jetstream,omitempty" mapstructure:"jetstream"`
	RedisStream *RedisStreamConfig `json:"redis_stream,omitempty" yaml:"redis_stream,omitempty" mapstructure:"redis_stream"`
	Kafka       *KafkaConfig       `json:"kafka,omitempty" yaml:"kafka,omitempty" mapstructure:"kafka"`
}

// JetStreamConfig JetStream 特有配置
type JetStreamConfig struct {
	// AutoCreateStream 订阅时自动创建 Stream，生产环境建议由运维创建
	AutoCreateStream bool `json:"auto_create_stream" yaml:"auto_create_stream" mapstructure:"auto_create_stream"`

	// StreamPrefix Stream 名称前缀，默认 "S-"
	StreamPrefix string `json:"stream_prefix" yaml:"stream_prefix" mapstructure:"stream_prefix"`

	// AckWait 未确认消息的重投等待，默认 30s
	AckWait time.Duration `json:"ack_wait" yaml:"ack_wait" mapstructure:"ack_wait"`
}

// RedisStreamConfig Redis Stream 特有配置
type RedisStreamConfig struct {
	// MaxLen Stream 最大长度，0 表示不裁剪
	MaxLen int64 `json:"max_len" yaml:"max_len" mapstructure:"max_len"`

	// Approximate 使用 MAXLEN ~ 近似裁剪
	Approximate bool `json:"approximate" yaml:"approximate" mapstructure:"approximate"`

	// ClaimIdle Pending 消息空闲超过该时长后被其他消费者认领，默认 30s
	ClaimIdle time.Duration `json:"claim_idle" yaml:"claim_idle" mapstructure:"claim_idle"`

	// Block XREADGROUP 的阻塞时长，默认 2s
	Block time.Duration `json:"block" yaml:"block" mapstructure:"block"`
}

// KafkaConfig Kafka 消费端配置，生产端使用连接器的客户端
type KafkaConfig struct {
	// Seed 订阅时新建消费客户端使用的 broker 地址
	Seed []string `json:"seed" yaml:"seed" mapstructure:"seed"`
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverJetStream
	}
	if c.JetStream == nil {
		c.JetStream = &JetStreamConfig{}
	}
	if c.JetStream.StreamPrefix == "" {
		c.JetStream.StreamPrefix = "S-"
	}
	if c.JetStream.AckWait == 0 {
		c.JetStream.AckWait = 30 * time.Second
	}
	if c.RedisStream == nil {
		c.RedisStream = &RedisStreamConfig{}
	}
	if c.RedisStream.ClaimIdle == 0 {
		c.RedisStream.ClaimIdle = 30 * time.Second
	}
	if c.RedisStream.Block == 0 {
		c.RedisStream.Block = 2 * time.Second
	}
	if c.Kafka == nil {
		c.Kafka = &KafkaConfig{}
	}
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverJetStream, DriverRedisStream, DriverMemory:
		return nil
	case DriverKafka:
		if len(c.Kafka.Seed) == 0 {
			return xerrors.Wrap(ErrInvalidConfig, "kafka.seed is required")
		}
		return nil
	default:
		return xerrors.Wrapf(ErrInvalidConfig, "unsupported driver: %s", c.Driver)
	}
}
