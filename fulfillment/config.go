package fulfillment

import (
	"time"

	"github.com/ceyewan/seckill/seckill"
	"github.com/ceyewan/seckill/xerrors"
)

// Config 履约消费者配置
//
//	fulfillment:
//	  workers: 5
//	  rate: 100
//	  burst: 10
//	  max_attempts: 3
//	  base_backoff: 1s
type Config struct {
	// Topic 订阅的主题，默认 "seckill.orders"
	Topic string `json:"topic" yaml:"topic" mapstructure:"topic"`

	// QueueGroup 消费组，多实例共享，默认 "fulfillment"
	QueueGroup string `json:"queue_group" yaml:"queue_group" mapstructure:"queue_group"`

	// Workers 并发处理数，默认 5
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// Rate / Burst 落库速率，所有 worker 共享一个令牌桶，默认 100/s、10
	Rate  float64 `json:"rate" yaml:"rate" mapstructure:"rate"`
	Burst int     `json:"burst" yaml:"burst" mapstructure:"burst"`

	// MaxAttempts 落库最多尝试次数，默认 3
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// BaseBackoff 第 i 次失败后等待 BaseBackoff*i，默认 1s
	BaseBackoff time.Duration `json:"base_backoff" yaml:"base_backoff" mapstructure:"base_backoff"`

	// CompensationTTL 补偿标记有效期，默认 24h
	CompensationTTL time.Duration `json:"compensation_ttl" yaml:"compensation_ttl" mapstructure:"compensation_ttl"`
}

func (c *Config) setDefaults() {
	if c.Topic == "" {
		c.Topic = seckill.DefaultTopic
	}
	if c.QueueGroup == "" {
		c.QueueGroup = "fulfillment"
	}
	if c.Workers == 0 {
		c.Workers = 5
	}
	if c.Rate == 0 {
		c.Rate = 100
	}
	if c.Burst == 0 {
		c.Burst = 10
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = time.Second
	}
	if c.CompensationTTL == 0 {
		c.CompensationTTL = seckill.DefaultCompensationTTL
	}
}

func (c *Config) validate() error {
	switch {
	case c.Workers < 1:
		return xerrors.Wrap(ErrInvalidConfig, "workers must be positive")
	case c.Rate < 0 || c.Burst < 0:
		return xerrors.Wrap(ErrInvalidConfig, "rate and burst must not be negative")
	case c.MaxAttempts < 1:
		return xerrors.Wrap(ErrInvalidConfig, "max_attempts must be positive")
	case c.BaseBackoff < 0 || c.CompensationTTL < 0:
		return xerrors.Wrap(ErrInvalidConfig, "durations must not be negative")
	}
	return nil
}
