// Package idem 为写接口提供幂等保护：同一幂等键只执行一次，
// 重复请求直接得到第一次的结果，执行中的重复请求返回 ErrInProgress。
//
// 秒杀准入本身按 (用户, 券) 去重，不需要这里的保护；
// 管理端的发券、建店铺接口在网络重试时依赖它避免重复写入。
//
//	guard, _ := idem.New(&idem.Config{}, idem.WithRedisConnector(redisConn))
//	r.POST("/voucher/seckill", guard.GinMiddleware(), handler)
package idem

import (
	"context"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/metrics"
	"github.com/ceyewan/seckill/xerrors"
)

// Idempotency 幂等执行器
type Idempotency struct {
	cfg      *Config
	store    Store
	logger   clog.Logger
	requests metrics.Counter
}

// New 创建幂等执行器
func New(cfg *Config, opts ...Option) (*Idempotency, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	store := o.store
	if store == nil {
		switch cfg.Driver {
		case DriverMemory:
			store = NewMemoryStore()
		default:
			if o.redisConn == nil {
				return nil, ErrConnectorNil
			}
			store = NewRedisStore(o.redisConn, cfg.Prefix)
		}
	}

	requests, err := o.meter.Counter(MetricRequestsTotal, "idempotent requests by result")
	if err != nil {
		return nil, err
	}
	return &Idempotency{cfg: cfg, store: store, logger: o.logger, requests: requests}, nil
}

// Execute 以 key 幂等地执行 fn。
// 已有结果时不调用 fn，返回缓存结果且 replayed 为 true；
// fn 出错时释放执行中标记，下次相同的键会重新执行。
func (i *Idempotency) Execute(ctx context.Context, key string, fn func(ctx context.Context) ([]byte, error)) (result []byte, replayed bool, err error) {
	if key == "" {
		return nil, false, ErrKeyEmpty
	}
	outcome := "error"
	defer func() {
		i.requests.Inc(ctx, metrics.L(metrics.LabelResult, outcome))
	}()

	cached, err := i.store.GetResult(ctx, key)
	switch {
	case err == nil:
		outcome = "replayed"
		return cached, true, nil
	case !xerrors.Is(err, ErrResultNotFound):
		return nil, false, err
	}

	token, locked, err := i.store.Lock(ctx, key, i.cfg.LockTTL)
	if err != nil {
		return nil, false, err
	}
	if !locked {
		outcome = "in_progress"
		return nil, false, ErrInProgress
	}

	result, err = fn(ctx)
	if err != nil {
		if uerr := i.store.Unlock(context.WithoutCancel(ctx), key, token); uerr != nil {
			i.logger.WarnContext(ctx, "release idempotency lock failed", clog.String("key", key), clog.Error(uerr))
		}
		return nil, false, err
	}
	outcome = "executed"
	if err := i.store.SetResult(context.WithoutCancel(ctx), key, result, i.cfg.TTL, token); err != nil {
		// 结果已经产生，只是没能记下来
		i.logger.ErrorContext(ctx, "save idempotent result failed", clog.String("key", key), clog.Error(err))
	}
	return result, false, nil
}

// Header 携带幂等键的请求头
func (i *Idempotency) Header() string {
	return i.cfg.Header
}
