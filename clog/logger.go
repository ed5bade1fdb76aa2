package clog

import "context"

// Logger 日志接口
//
// 每个级别都有带 Context 和不带 Context 的版本，带 Context 的版本会
// 附加当前 Span 的 trace_id 和 span_id。
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// With 创建一个带有预设字段的子 Logger
	With(fields ...Field) Logger

	// WithNamespace 追加命名空间，如 "seckill" + "gate" => "seckill.gate"
	WithNamespace(parts ...string) Logger

	// SetLevel 动态调整级别，对所有派生出的子 Logger 同时生效
	SetLevel(level Level) error

	// Flush 同步输出缓冲
	Flush()
}

// Option 创建 Logger 时的选项
type Option func(*options)

type options struct {
	namespaceParts  []string
	namespaceJoiner string
}

// WithNamespace 设置根命名空间
func WithNamespace(parts ...string) Option {
	return func(o *options) {
		o.namespaceParts = append(o.namespaceParts, parts...)
	}
}

// WithNamespaceJoiner 设置命名空间连接符，默认 "."
func WithNamespaceJoiner(joiner string) Option {
	return func(o *options) {
		o.namespaceJoiner = joiner
	}
}
