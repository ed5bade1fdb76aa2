package seckill

import (
	"time"

	"github.com/ceyewan/seckill/xerrors"
)

// Config 准入配置
type Config struct {
	// Topic 下单意图的主题，默认 "seckill.orders"
	Topic string `json:"topic" yaml:"topic" mapstructure:"topic"`

	// IDSequence 订单号使用的 idgen 序列，默认 "order"
	IDSequence string `json:"id_sequence" yaml:"id_sequence" mapstructure:"id_sequence"`

	// PublishTimeout 等待 broker 确认的最长时间，默认 3s
	PublishTimeout time.Duration `json:"publish_timeout" yaml:"publish_timeout" mapstructure:"publish_timeout"`
}

func (c *Config) setDefaults() {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.IDSequence == "" {
		c.IDSequence = "order"
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = 3 * time.Second
	}
}

func (c *Config) validate() error {
	if c.PublishTimeout < 0 {
		return xerrors.Wrap(ErrInvalidConfig, "publish_timeout must not be negative")
	}
	return nil
}
