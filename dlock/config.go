package dlock

import (
	"time"

	"github.com/ceyewan/seckill/xerrors"
)

// DriverType 支持的后端类型
type DriverType string

const (
	DriverRedis DriverType = "redis"
	DriverEtcd  DriverType = "etcd"
)

// Config 组件静态配置
//
//	dlock:
//	  driver: redis
//	  prefix: "lock:"
//	  default_ttl: 10s
//	  retry_interval: 50ms
//	  max_wait: 5s
type Config struct {
	// Driver 后端 (redis | etcd)，默认 redis
	Driver DriverType `json:"driver" yaml:"driver" mapstructure:"driver"`

	// Prefix 锁 Key 的全局前缀，默认 "lock:"
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// DefaultTTL 默认锁超时时间，默认 10s
	// redis 到期即释放；etcd 为租约 TTL，会话存活期间自动续约
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl" mapstructure:"default_ttl"`

	// RetryInterval Lock 模式的重试间隔，默认 50ms
	RetryInterval time.Duration `json:"retry_interval" yaml:"retry_interval" mapstructure:"retry_interval"`

	// MaxWait Lock 模式的默认最长等待，默认 5s
	MaxWait time.Duration `json:"max_wait" yaml:"max_wait" mapstructure:"max_wait"`
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverRedis
	}
	if c.Prefix == "" {
		c.Prefix = "lock:"
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 10 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 50 * time.Millisecond
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 5 * time.Second
	}
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverRedis, DriverEtcd:
		return nil
	default:
		return xerrors.Wrapf(ErrInvalidConfig, "unsupported driver: %s", c.Driver)
	}
}
