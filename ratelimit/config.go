package ratelimit

import (
	"time"

	"github.com/ceyewan/seckill/xerrors"
)

// DriverType 限流模式
type DriverType string

const (
	DriverStandalone  DriverType = "standalone"
	DriverDistributed DriverType = "distributed"
)

// Config 组件静态配置
//
//	ratelimit:
//	  driver: distributed
//	  distributed:
//	    prefix: "seckill:ratelimit:"
type Config struct {
	// Driver 限流模式，默认 standalone
	Driver DriverType `json:"driver" yaml:"driver" mapstructure:"driver"`

	Standalone  *StandaloneConfig  `json:"standalone,omitempty" yaml:"standalone,omitempty" mapstructure:"standalone"`
	Distributed *DistributedConfig `json:"distributed,omitempty" yaml:"distributed,omitempty" mapstructure:"distributed"`
}

// StandaloneConfig 单机限流配置
type StandaloneConfig struct {
	// CleanupInterval 清理空闲桶的间隔，默认 1m
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" mapstructure:"cleanup_interval"`

	// IdleTimeout 桶空闲超过该时长后被清理，默认 5m
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// DistributedConfig 分布式限流配置
type DistributedConfig struct {
	// Prefix Redis Key 前缀，默认 "ratelimit:"
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverStandalone
	}
	if c.Standalone == nil {
		c.Standalone = &StandaloneConfig{}
	}
	if c.Standalone.CleanupInterval <= 0 {
		c.Standalone.CleanupInterval = time.Minute
	}
	if c.Standalone.IdleTimeout <= 0 {
		c.Standalone.IdleTimeout = 5 * time.Minute
	}
	if c.Distributed == nil {
		c.Distributed = &DistributedConfig{}
	}
	if c.Distributed.Prefix == "" {
		c.Distributed.Prefix = "ratelimit:"
	}
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverStandalone, DriverDistributed:
		return nil
	default:
		return xerrors.Wrapf(ErrInvalidConfig, "unsupported driver: %s", c.Driver)
	}
}
