package clog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// NamespaceKey 是日志中命名空间的字段名
const NamespaceKey = "namespace"

type loggerImpl struct {
	handler   slog.Handler
	level     *slog.LevelVar
	out       io.Writer
	options   *options
	namespace string
	attrs     []slog.Attr
}

func newLogger(config *Config, o *options) (Logger, error) {
	out, err := openOutput(config.Output)
	if err != nil {
		return nil, err
	}

	lvl, _ := ParseLevel(config.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.Level(lvl))

	hopts := &slog.HandlerOptions{
		AddSource: config.AddSource,
		Level:     levelVar,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				if l, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(Level(l).String())
				}
			case slog.SourceKey:
				if src, ok := a.Value.Any().(*slog.Source); ok {
					a.Value = slog.StringValue(trimSource(src, config.SourceRoot))
				}
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02T15:04:05.000Z07:00"))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "json" {
		handler = slog.NewJSONHandler(out, hopts)
	} else {
		handler = slog.NewTextHandler(out, hopts)
	}

	return &loggerImpl{
		handler:   handler,
		level:     levelVar,
		out:       out,
		options:   o,
		namespace: strings.Join(o.namespaceParts, o.namespaceJoiner),
	}, nil
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func trimSource(src *slog.Source, root string) string {
	file := src.File
	if root != "" {
		if idx := strings.LastIndex(file, root); idx >= 0 {
			file = file[idx:]
		}
	}
	return file + ":" + strconv.Itoa(src.Line)
}

func (l *loggerImpl) Debug(msg string, fields ...Field) {
	l.log(context.Background(), DebugLevel, msg, fields)
}

func (l *loggerImpl) Info(msg string, fields ...Field) {
	l.log(context.Background(), InfoLevel, msg, fields)
}

func (l *loggerImpl) Warn(msg string, fields ...Field) {
	l.log(context.Background(), WarnLevel, msg, fields)
}

func (l *loggerImpl) Error(msg string, fields ...Field) {
	l.log(context.Background(), ErrorLevel, msg, fields)
}

func (l *loggerImpl) Fatal(msg string, fields ...Field) {
	l.log(context.Background(), FatalLevel, msg, fields)
}

func (l *loggerImpl) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, DebugLevel, msg, fields)
}

func (l *loggerImpl) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, InfoLevel, msg, fields)
}

func (l *loggerImpl) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, WarnLevel, msg, fields)
}

func (l *loggerImpl) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, ErrorLevel, msg, fields)
}

func (l *loggerImpl) FatalContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, FatalLevel, msg, fields)
}

func (l *loggerImpl) With(fields ...Field) Logger {
	child := *l
	child.attrs = append(append([]slog.Attr{}, l.attrs...), fields...)
	return &child
}

func (l *loggerImpl) WithNamespace(parts ...string) Logger {
	if len(parts) == 0 {
		return l
	}
	child := *l
	ns := strings.Join(parts, l.options.namespaceJoiner)
	if l.namespace != "" {
		ns = l.namespace + l.options.namespaceJoiner + ns
	}
	child.namespace = ns
	return &child
}

func (l *loggerImpl) SetLevel(level Level) error {
	l.level.Set(slog.Level(level))
	return nil
}

func (l *loggerImpl) Flush() {
	if f, ok := l.out.(*os.File); ok {
		_ = f.Sync()
	}
}

func (l *loggerImpl) log(ctx context.Context, level Level, msg string, fields []Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.handler.Enabled(ctx, slog.Level(level)) {
		return
	}

	// skip: runtime.Callers, log, Info/Error 等
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	record := slog.NewRecord(time.Now(), slog.Level(level), msg, pcs[0])

	if l.namespace != "" {
		record.AddAttrs(slog.String(NamespaceKey, l.namespace))
	}
	record.AddAttrs(l.attrs...)
	record.AddAttrs(fields...)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	_ = l.handler.Handle(ctx, record)

	if level == FatalLevel {
		l.Flush()
		os.Exit(1)
	}
}
