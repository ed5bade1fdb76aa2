package clog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/seckill/xerrors"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m := map[string]any{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func newFileLogger(t *testing.T, level string) (Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := New(&Config{Level: level, Format: "json", Output: path}, WithNamespace("seckill"))
	require.NoError(t, err)
	return logger, path
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(&Config{Format: "xml"})
	assert.Error(t, err)
}

func TestNamespaceAndFields(t *testing.T) {
	logger, path := newFileLogger(t, "info")

	logger.WithNamespace("gate").With(String("component", "admission")).
		Info("voucher admitted", Int64("voucher_id", 7))
	logger.Debug("dropped by level")
	logger.Flush()

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "seckill.gate", lines[0][NamespaceKey])
	assert.Equal(t, "admission", lines[0]["component"])
	assert.Equal(t, float64(7), lines[0]["voucher_id"])
	assert.Equal(t, "info", lines[0]["level"])
}

func TestSetLevelAffectsChildren(t *testing.T) {
	logger, path := newFileLogger(t, "warn")
	child := logger.WithNamespace("cache")

	child.Info("before")
	require.NoError(t, logger.SetLevel(DebugLevel))
	child.Debug("after")
	logger.Flush()

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "after", lines[0]["msg"])
}

func TestErrorFieldCarriesCode(t *testing.T) {
	logger, path := newFileLogger(t, "info")

	logger.Error("plain", Error(errors.New("boom")))
	logger.Error("coded", Error(xerrors.WithCode(errors.New("库存不足"), "STOCK_EXHAUSTED")))
	logger.Error("nil", Error(nil))
	logger.Flush()

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	assert.Equal(t, "boom", lines[0]["err_msg"])
	group, ok := lines[1]["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "STOCK_EXHAUSTED", group["code"])
	assert.NotContains(t, lines[2], "err_msg")
}

func TestContextTraceIDs(t *testing.T) {
	logger, path := newFileLogger(t, "info")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.InfoContext(ctx, "with span")
	logger.Flush()

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, traceID.String(), lines[0]["trace_id"])
	assert.Equal(t, spanID.String(), lines[0]["span_id"])
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"DEBUG": DebugLevel, "warning": WarnLevel, "fatal": FatalLevel} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, "error", ErrorLevel.String())
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.NotPanics(t, func() {
		logger.With(String("k", "v")).WithNamespace("x").Info("ignored")
		_ = logger.SetLevel(DebugLevel)
		logger.Flush()
	})
}
