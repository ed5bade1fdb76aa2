package shop

import (
	"time"

	"github.com/ceyewan/seckill/cache"
	"github.com/ceyewan/seckill/xerrors"
)

// Config 店铺读路径配置
//
//	shop:
//	  strategy: logical_expire
//	  encoding: hash
//	  ttl: 30m
type Config struct {
	// Strategy "pass_through" | "mutex" | "logical_expire"，默认 logical_expire
	Strategy string `json:"strategy" yaml:"strategy" mapstructure:"strategy"`

	// Encoding "string" | "hash" | "auto"，默认 hash
	Encoding string `json:"encoding" yaml:"encoding" mapstructure:"encoding"`

	// TTL 物理 TTL 基准或逻辑有效期，默认 30m
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`

	// WarmupConcurrency 预热并发数，默认 8
	WarmupConcurrency int `json:"warmup_concurrency" yaml:"warmup_concurrency" mapstructure:"warmup_concurrency"`
}

func (c *Config) setDefaults() {
	if c.Strategy == "" {
		c.Strategy = "logical_expire"
	}
	if c.Encoding == "" {
		c.Encoding = "hash"
	}
	if c.TTL == 0 {
		c.TTL = 30 * time.Minute
	}
	if c.WarmupConcurrency == 0 {
		c.WarmupConcurrency = 8
	}
}

func (c *Config) strategy() (cache.Strategy, error) {
	switch c.Strategy {
	case "pass_through":
		return cache.PassThrough, nil
	case "mutex":
		return cache.Mutex, nil
	case "logical_expire":
		return cache.LogicalExpire, nil
	}
	return 0, xerrors.Wrapf(ErrInvalidConfig, "unknown strategy %q", c.Strategy)
}

func (c *Config) encoding() (cache.Encoding, error) {
	switch c.Encoding {
	case "string":
		return cache.EncodingString, nil
	case "hash":
		return cache.EncodingHash, nil
	case "auto":
		return cache.EncodingAuto, nil
	}
	return 0, xerrors.Wrapf(ErrInvalidConfig, "unknown encoding %q", c.Encoding)
}
