package idgen

import (
	"time"

	"github.com/ceyewan/seckill/xerrors"
)

// 支持的计数后端
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// DefaultEpoch 起始时间 2025-09-25 00:00:00 UTC
const DefaultEpoch int64 = 1758758400

// Config ID 生成器配置
//
//	idgen:
//	  driver: redis
//	  key_prefix: "icr:"
//	  day_key_ttl: 48h
type Config struct {
	// Driver 计数后端: "redis" | "memory"，默认 "redis"
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// KeyPrefix 计数键前缀，默认 "icr:"
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`

	// Epoch 起始秒级时间戳，默认 DefaultEpoch
	Epoch int64 `json:"epoch" yaml:"epoch" mapstructure:"epoch"`

	// Location 计算日期所用时区，默认 "UTC"
	Location string `json:"location" yaml:"location" mapstructure:"location"`

	// DayKeyTTL 每日计数键的过期时间，0 表示不过期
	DayKeyTTL time.Duration `json:"day_key_ttl" yaml:"day_key_ttl" mapstructure:"day_key_ttl"`
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverRedis
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "icr:"
	}
	if c.Epoch == 0 {
		c.Epoch = DefaultEpoch
	}
	if c.Location == "" {
		c.Location = "UTC"
	}
}

func (c *Config) validate() error {
	if c.Driver != DriverRedis && c.Driver != DriverMemory {
		return xerrors.Wrapf(ErrInvalidConfig, "unsupported driver: %s", c.Driver)
	}
	if c.Epoch < 0 {
		return xerrors.Wrap(ErrInvalidConfig, "epoch cannot be negative")
	}
	if c.DayKeyTTL < 0 {
		return xerrors.Wrap(ErrInvalidConfig, "day_key_ttl cannot be negative")
	}
	return nil
}
