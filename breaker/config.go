package breaker

import (
	"time"

	"github.com/ceyewan/seckill/xerrors"
)

// Config 熔断器配置
//
//	breaker:
//	  max_requests: 1
//	  interval: 60s
//	  timeout: 30s
//	  failure_ratio: 0.6
//	  minimum_requests: 10
type Config struct {
	// MaxRequests 半开状态下允许通过的探测请求数，默认 1
	MaxRequests uint32 `json:"max_requests" yaml:"max_requests" mapstructure:"max_requests"`

	// Interval 闭合状态下清空计数的周期，0 表示不清空
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`

	// Timeout 打开状态持续时间，默认 60s
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// FailureRatio 触发熔断的失败率，默认 0.6
	FailureRatio float64 `json:"failure_ratio" yaml:"failure_ratio" mapstructure:"failure_ratio"`

	// MinimumRequests 统计周期内少于该请求数时不熔断，默认 10
	MinimumRequests uint32 `json:"minimum_requests" yaml:"minimum_requests" mapstructure:"minimum_requests"`
}

func (c *Config) setDefaults() {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = 0.6
	}
	if c.MinimumRequests == 0 {
		c.MinimumRequests = 10
	}
}

func (c *Config) validate() error {
	if c.FailureRatio < 0 || c.FailureRatio > 1 {
		return xerrors.Wrapf(ErrInvalidConfig, "failure_ratio must be in (0, 1], got %v", c.FailureRatio)
	}
	if c.Interval < 0 || c.Timeout < 0 {
		return xerrors.Wrap(ErrInvalidConfig, "interval and timeout must not be negative")
	}
	return nil
}
