package trace

import "github.com/ceyewan/seckill/xerrors"

// Config 链路追踪配置
type Config struct {
	// Enabled 为 false 时只在进程内生成 TraceID，不导出
	Enabled     bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"` // OTLP gRPC 地址
	Sampler     float64 `json:"sampler" yaml:"sampler" mapstructure:"sampler"`    // 采样率 0~1
	Batcher     string  `json:"batcher" yaml:"batcher" mapstructure:"batcher"`    // batch | simple
	Insecure    bool    `json:"insecure" yaml:"insecure" mapstructure:"insecure"`
}

func (c *Config) setDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
	}
	if c.Sampler == 0 {
		c.Sampler = 1.0
	}
	if c.Batcher == "" {
		c.Batcher = "batch"
	}
}

func (c *Config) validate() error {
	if c.ServiceName == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "trace: service_name is required")
	}
	if c.Sampler < 0 || c.Sampler > 1 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "trace: sampler must be between 0 and 1, got %v", c.Sampler)
	}
	if c.Batcher != "batch" && c.Batcher != "simple" {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "trace: batcher must be \"batch\" or \"simple\", got %q", c.Batcher)
	}
	return nil
}
