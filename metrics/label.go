package metrics

import (
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Label 指标标签
type Label struct {
	Key   string
	Value string
}

// L 构造标签
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}

// 常用标签键
const (
	LabelResult    = "result"
	LabelOperation = "operation"
	LabelTopic     = "topic"
	LabelStrategy  = "strategy"
)

func toAttributes(labels []Label) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, len(labels))
	for i, l := range labels {
		attrs[i] = attribute.String(l.Key, l.Value)
	}
	return attrs
}

func labelKey(labels []Label) string {
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = l.Key + "=" + l.Value
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
