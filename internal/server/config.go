package server

import (
	"time"

	"github.com/ceyewan/seckill/xerrors"
)

// Config HTTP 服务配置
//
//	http:
//	  addr: ":8081"
//	  service_name: seckill
//	  seckill_rate: 5
//	  seckill_burst: 5
type Config struct {
	Addr        string `json:"addr" yaml:"addr" mapstructure:"addr"`
	ServiceName string `json:"service_name" yaml:"service_name" mapstructure:"service_name"`

	// ReadHeaderTimeout 默认 5s
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" yaml:"read_header_timeout" mapstructure:"read_header_timeout"`
	// ShutdownTimeout 优雅退出的最长等待，默认 10s
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// SeckillRate/SeckillBurst 单用户抢购限流，Rate 为 0 时不限流
	SeckillRate  float64 `json:"seckill_rate" yaml:"seckill_rate" mapstructure:"seckill_rate"`
	SeckillBurst int     `json:"seckill_burst" yaml:"seckill_burst" mapstructure:"seckill_burst"`

	// AdminRole 写店铺、发券需要的角色，默认 admin
	AdminRole string `json:"admin_role" yaml:"admin_role" mapstructure:"admin_role"`
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8081"
	}
	if c.ServiceName == "" {
		c.ServiceName = "seckill"
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.SeckillRate > 0 && c.SeckillBurst == 0 {
		c.SeckillBurst = int(c.SeckillRate)
		if c.SeckillBurst < 1 {
			c.SeckillBurst = 1
		}
	}
	if c.AdminRole == "" {
		c.AdminRole = "admin"
	}
}

func (c *Config) validate() error {
	if c.SeckillRate < 0 || c.SeckillBurst < 0 {
		return xerrors.Wrap(ErrInvalidConfig, "seckill_rate and seckill_burst must not be negative")
	}
	if c.ReadHeaderTimeout < 0 || c.ShutdownTimeout < 0 {
		return xerrors.Wrap(ErrInvalidConfig, "timeouts must not be negative")
	}
	return nil
}
