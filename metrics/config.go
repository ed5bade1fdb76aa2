package metrics

// Config 指标配置
//
//	metrics:
//	  enabled: true
//	  service_name: "seckill"
//	  version: "v1.0.0"
//	  runtime: true
type Config struct {
	// Enabled 为 false 时 New 返回 noop Meter
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	ServiceName string `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
	Version     string `json:"version" yaml:"version" mapstructure:"version"`

	// Runtime 是否采集 Go 运行时指标（goroutine、GC、内存）
	Runtime bool `json:"runtime" yaml:"runtime" mapstructure:"runtime"`
}

// NewDevDefaultConfig 开发环境默认配置
func NewDevDefaultConfig(serviceName string) *Config {
	return &Config{Enabled: true, ServiceName: serviceName, Version: "dev"}
}
