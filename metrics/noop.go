package metrics

import (
	"context"
	"net/http"
)

type noopMeter struct{}

// Discard 返回所有操作均为空的 Meter
func Discard() Meter { return noopMeter{} }

func (noopMeter) Counter(string, string, ...MetricOption) (Counter, error)     { return noopInstrument{}, nil }
func (noopMeter) Gauge(string, string, ...MetricOption) (Gauge, error)         { return noopInstrument{}, nil }
func (noopMeter) Histogram(string, string, ...MetricOption) (Histogram, error) { return noopInstrument{}, nil }
func (noopMeter) Shutdown(context.Context) error                               { return nil }

func (noopMeter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

type noopInstrument struct{}

func (noopInstrument) Inc(context.Context, ...Label)             {}
func (noopInstrument) Dec(context.Context, ...Label)             {}
func (noopInstrument) Add(context.Context, float64, ...Label)    {}
func (noopInstrument) Set(context.Context, float64, ...Label)    {}
func (noopInstrument) Record(context.Context, float64, ...Label) {}
