package bloom

import (
	"context"
	"slices"
	"sync"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/metrics"
	"github.com/ceyewan/seckill/xerrors"
)

// Registry 按类型持有过滤器，首次访问时创建
type Registry struct {
	cfg    *Config
	opt    *options
	params params
	checks metrics.Counter

	mu      sync.Mutex
	filters map[string]Filter
}

// NewRegistry 创建过滤器注册表
func NewRegistry(cfg *Config, opts ...Option) (*Registry, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	opt := applyOptions(opts)
	if cfg.Driver == DriverRedis && opt.redisConn == nil {
		return nil, ErrConnectorNil
	}

	checks, err := opt.meter.Counter(MetricCheckTotal, "bloom membership checks by kind and result")
	if err != nil {
		return nil, xerrors.Wrap(err, "bloom: create counter")
	}

	p := optimalParams(cfg.ExpectedItems, cfg.FalsePositiveRate)
	opt.logger.Info("bloom registry initialized",
		clog.String("driver", cfg.Driver),
		clog.Uint64("bits", p.m),
		clog.Uint64("hashes", p.k))

	return &Registry{
		cfg:     cfg,
		opt:     opt,
		params:  p,
		checks:  checks,
		filters: make(map[string]Filter),
	}, nil
}

// Filter 返回指定类型的过滤器
func (r *Registry) Filter(kind string) Filter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.filters[kind]; ok {
		return f
	}

	var bits bitset
	switch r.cfg.Driver {
	case DriverRedis:
		bits = &redisBits{conn: r.opt.redisConn, key: r.cfg.KeyPrefix + kind}
	default:
		bits = newMemoryBits(r.params.m)
	}
	f := &filter{
		kind:   kind,
		params: r.params,
		bits:   bits,
		logger: r.opt.logger,
		checks: r.checks,
	}
	r.filters[kind] = f
	return f
}

// IDSource 列出某类业务的全部 ID，启动时用于填充过滤器
type IDSource func(ctx context.Context) ([]int64, error)

// Bootstrap 把 sources 中每类 ID 分批加入对应过滤器
func (r *Registry) Bootstrap(ctx context.Context, sources map[string]IDSource) error {
	const batch = 500
	for kind, source := range sources {
		ids, err := source(ctx)
		if err != nil {
			return xerrors.Wrapf(err, "bloom: list %s ids", kind)
		}
		f := r.Filter(kind)
		for chunk := range slices.Chunk(ids, batch) {
			items := make([]string, len(chunk))
			for i, id := range chunk {
				items[i] = ID(id)
			}
			if err := f.Add(ctx, items...); err != nil {
				return xerrors.Wrapf(err, "bloom: bootstrap %s", kind)
			}
		}
		r.opt.logger.InfoContext(ctx, "bloom filter bootstrapped", clog.String("kind", kind), clog.Int("items", len(ids)))
	}
	return nil
}
