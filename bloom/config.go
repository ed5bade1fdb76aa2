package bloom

import "github.com/ceyewan/seckill/xerrors"

// 支持的存储
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Config 布隆过滤器配置，所有类型共用同一组容量参数
//
//	bloom:
//	  driver: redis
//	  key_prefix: "bloom:"
//	  expected_items: 1000000
//	  false_positive_rate: 0.01
type Config struct {
	// Driver "redis" | "memory"，默认 redis
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// KeyPrefix Redis 键前缀，默认 "bloom:"
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`

	// ExpectedItems 期望元素数，默认 1,000,000
	ExpectedItems uint64 `json:"expected_items" yaml:"expected_items" mapstructure:"expected_items"`

	// FalsePositiveRate 误判率，默认 0.01
	FalsePositiveRate float64 `json:"false_positive_rate" yaml:"false_positive_rate" mapstructure:"false_positive_rate"`
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverRedis
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "bloom:"
	}
	if c.ExpectedItems == 0 {
		c.ExpectedItems = 1_000_000
	}
	if c.FalsePositiveRate == 0 {
		c.FalsePositiveRate = 0.01
	}
}

func (c *Config) validate() error {
	if c.Driver != DriverRedis && c.Driver != DriverMemory {
		return xerrors.Wrapf(ErrInvalidConfig, "unsupported driver: %s", c.Driver)
	}
	if c.FalsePositiveRate <= 0 || c.FalsePositiveRate >= 1 {
		return xerrors.Wrap(ErrInvalidConfig, "false_positive_rate must be in (0, 1)")
	}
	return nil
}
