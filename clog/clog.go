// Package clog 提供基于 slog 的结构化日志组件。
//
// 特性：
//   - 抽象接口，不暴露底层实现（slog）
//   - 层级命名空间，每个组件通过 WithNamespace 派生自己的子 Logger
//   - 运行时调整级别（基于 slog.LevelVar）
//   - 从 Context 中自动提取 OpenTelemetry trace_id / span_id
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{
//	    Level:  "info",
//	    Format: "console",
//	    Output: "stdout",
//	}, clog.WithNamespace("seckill"))
//	logger.Info("voucher admitted", clog.Int64("voucher_id", 7))
package clog

import "fmt"

// New 创建一个新的 Logger 实例
//
// config 为 nil 时使用开发环境默认配置。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig("seckill")
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := &options{namespaceJoiner: "."}
	for _, opt := range opts {
		opt(o)
	}

	return newLogger(config, o)
}

// Default 返回一个 info 级别、输出到 stdout 的 console Logger
func Default() Logger {
	logger, err := New(&Config{Level: "info", Format: "console", Output: "stdout"})
	if err != nil {
		return Discard()
	}
	return logger
}
