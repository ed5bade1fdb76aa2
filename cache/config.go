package cache

import (
	"time"

	"github.com/ceyewan/seckill/cache/serializer"
	"github.com/ceyewan/seckill/xerrors"
)

// Config 缓存引擎配置
//
//	cache:
//	  serializer: json
//	  null_ttl: 2m
//	  lock_ttl: 10s
//	  retry_interval: 50ms
//	  max_retries: 20
//	  rebuild_workers: 10
//	  rebuild_queue: 1024
//	  local_ttl: 0s
//	  location: UTC
type Config struct {
	// Serializer 普通 String 值的编码 "json" | "msgpack"，默认 json
	Serializer string `json:"serializer" yaml:"serializer" mapstructure:"serializer"`

	// NullTTL 空值标记的基础 TTL，默认 2m，写入时同样加随机抖动
	NullTTL time.Duration `json:"null_ttl" yaml:"null_ttl" mapstructure:"null_ttl"`

	// LockTTL 互斥重建锁的 TTL，默认 10s
	LockTTL time.Duration `json:"lock_ttl" yaml:"lock_ttl" mapstructure:"lock_ttl"`

	// RetryInterval 未抢到锁时重新读取缓存的间隔，默认 50ms
	RetryInterval time.Duration `json:"retry_interval" yaml:"retry_interval" mapstructure:"retry_interval"`

	// MaxRetries 未抢到锁时的最大重试次数，默认 20，超过返回 ErrLockTimeout
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// RebuildWorkers 逻辑过期异步重建的协程数，默认 10
	RebuildWorkers int `json:"rebuild_workers" yaml:"rebuild_workers" mapstructure:"rebuild_workers"`

	// RebuildQueue 重建任务队列长度，默认 1024，队列满时丢弃任务
	RebuildQueue int `json:"rebuild_queue" yaml:"rebuild_queue" mapstructure:"rebuild_queue"`

	// LocalTTL 进程内 L1 缓存的存活时间，0 表示关闭 L1
	LocalTTL time.Duration `json:"local_ttl" yaml:"local_ttl" mapstructure:"local_ttl"`

	// LocalMaxSize L1 最大条目数，默认 10000
	LocalMaxSize int `json:"local_max_size" yaml:"local_max_size" mapstructure:"local_max_size"`

	// Location envelope 中 expireTime 的时区，默认 UTC
	Location string `json:"location" yaml:"location" mapstructure:"location"`
}

func (c *Config) setDefaults() {
	if c.Serializer == "" {
		c.Serializer = serializer.JSON
	}
	if c.NullTTL == 0 {
		c.NullTTL = 2 * time.Minute
	}
	if c.LockTTL == 0 {
		c.LockTTL = 10 * time.Second
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 50 * time.Millisecond
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 20
	}
	if c.RebuildWorkers == 0 {
		c.RebuildWorkers = 10
	}
	if c.RebuildQueue == 0 {
		c.RebuildQueue = 1024
	}
	if c.LocalMaxSize == 0 {
		c.LocalMaxSize = 10000
	}
	if c.Location == "" {
		c.Location = "UTC"
	}
}

func (c *Config) validate() error {
	if c.NullTTL < 0 || c.LockTTL < 0 || c.RetryInterval < 0 || c.LocalTTL < 0 {
		return xerrors.Wrap(ErrInvalidConfig, "durations must not be negative")
	}
	if c.MaxRetries < 0 || c.RebuildWorkers < 0 || c.RebuildQueue < 0 {
		return xerrors.Wrap(ErrInvalidConfig, "counts must not be negative")
	}
	return nil
}
