package breaker

import (
	"context"
	"sync"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/metrics"
	"github.com/ceyewan/seckill/xerrors"
)

// circuitBreaker 按 key 懒创建 gobreaker 实例
type circuitBreaker struct {
	cfg       *Config
	logger    clog.Logger
	fallback  FallbackFunc
	isSuccess func(err error) bool

	requests     metrics.Counter
	stateChanges metrics.Counter

	breakers sync.Map // map[string]*gobreaker.CircuitBreaker[any]
}

func newBreaker(cfg *Config, opt *options) (*circuitBreaker, error) {
	requests, err := opt.meter.Counter(MetricRequestsTotal, "Number of requests through the circuit breaker")
	if err != nil {
		return nil, err
	}
	stateChanges, err := opt.meter.Counter(MetricStateChanges, "Number of circuit breaker state transitions")
	if err != nil {
		return nil, err
	}
	return &circuitBreaker{
		cfg:          cfg,
		logger:       opt.logger,
		fallback:     opt.fallback,
		isSuccess:    opt.isSuccess,
		requests:     requests,
		stateChanges: stateChanges,
	}, nil
}

func (cb *circuitBreaker) Execute(ctx context.Context, key string, fn func() (any, error)) (any, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}

	result, err := cb.get(key).Execute(fn)
	if err == nil {
		cb.requests.Inc(ctx, metrics.L(LabelKey, key), metrics.L(metrics.LabelResult, "success"))
		return result, nil
	}

	if !xerrors.Is(err, gobreaker.ErrOpenState) && !xerrors.Is(err, gobreaker.ErrTooManyRequests) {
		outcome := "failure"
		if cb.isSuccess != nil && cb.isSuccess(err) {
			outcome = "success"
		}
		cb.requests.Inc(ctx, metrics.L(LabelKey, key), metrics.L(metrics.LabelResult, outcome))
		return result, err
	}

	cb.requests.Inc(ctx, metrics.L(LabelKey, key), metrics.L(metrics.LabelResult, "rejected"))
	cb.logger.WarnContext(ctx, "circuit breaker rejected request", clog.String("key", key), clog.Error(err))
	if cb.fallback != nil {
		if fbErr := cb.fallback(ctx, key, err); fbErr != nil {
			return nil, fbErr
		}
		return nil, nil
	}
	return nil, xerrors.Wrapf(ErrOpenState, "key %s", key)
}

func (cb *circuitBreaker) State(key string) (State, error) {
	if key == "" {
		return StateClosed, ErrKeyEmpty
	}
	val, ok := cb.breakers.Load(key)
	if !ok {
		return StateClosed, nil
	}
	return fromGobreaker(val.(*gobreaker.CircuitBreaker[any]).State()), nil
}

func (cb *circuitBreaker) get(key string) *gobreaker.CircuitBreaker[any] {
	if val, ok := cb.breakers.Load(key); ok {
		return val.(*gobreaker.CircuitBreaker[any])
	}

	settings := gobreaker.Settings{
		Name:          key,
		MaxRequests:   cb.cfg.MaxRequests,
		Interval:      cb.cfg.Interval,
		Timeout:       cb.cfg.Timeout,
		ReadyToTrip:   cb.readyToTrip,
		OnStateChange: cb.onStateChange,
	}
	if cb.isSuccess != nil {
		settings.IsSuccessful = cb.isSuccess
	}

	actual, _ := cb.breakers.LoadOrStore(key, gobreaker.NewCircuitBreaker[any](settings))
	return actual.(*gobreaker.CircuitBreaker[any])
}

func (cb *circuitBreaker) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < cb.cfg.MinimumRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= cb.cfg.FailureRatio
}

func (cb *circuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	cb.logger.Warn("circuit breaker state changed",
		clog.String("key", name),
		clog.String("from", fromGobreaker(from).String()),
		clog.String("to", fromGobreaker(to).String()),
	)
	cb.stateChanges.Inc(context.Background(),
		metrics.L(LabelKey, name),
		metrics.L(LabelFromState, fromGobreaker(from).String()),
		metrics.L(LabelToState, fromGobreaker(to).String()),
	)
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
