package idem

import (
	"time"

	"github.com/ceyewan/seckill/xerrors"
)

// DriverType 存储后端
type DriverType string

const (
	DriverRedis  DriverType = "redis"
	DriverMemory DriverType = "memory" // 仅单机
)

// Config 幂等组件配置
//
//	idem:
//	  driver: redis
//	  prefix: "seckill:idem:"
//	  ttl: 24h
type Config struct {
	// Driver 默认 redis
	Driver DriverType `json:"driver" yaml:"driver" mapstructure:"driver"`

	// Prefix 键前缀，默认 "seckill:idem:"
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// TTL 结果保留时长，过期后同一个键会重新执行，默认 24h
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`

	// LockTTL 执行中标记的有效期，进程崩溃后到期自动释放，默认 30s
	LockTTL time.Duration `json:"lock_ttl" yaml:"lock_ttl" mapstructure:"lock_ttl"`

	// Header 携带幂等键的请求头，默认 Idempotency-Key
	Header string `json:"header" yaml:"header" mapstructure:"header"`
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverRedis
	}
	if c.Prefix == "" {
		c.Prefix = "seckill:idem:"
	}
	if c.TTL == 0 {
		c.TTL = 24 * time.Hour
	}
	if c.LockTTL == 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.Header == "" {
		c.Header = "Idempotency-Key"
	}
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverRedis, DriverMemory:
	default:
		return xerrors.Wrapf(ErrInvalidConfig, "unsupported driver: %s", c.Driver)
	}
	if c.TTL < 0 || c.LockTTL < 0 {
		return xerrors.Wrap(ErrInvalidConfig, "ttl and lock_ttl must not be negative")
	}
	return nil
}
