// Package idgen 提供全局唯一的订单 ID 生成器。
//
// ID 结构（64 位）：
//
//	| 1 bit 符号 | 31 bit 秒级时间戳（相对 Epoch） | 32 bit 当日序号 |
//
// 当日序号来自对 "<KeyPrefix><sequence>:<yyyy:MM:dd>" 的原子自增，
// 每个业务序列（如 "order"）每天一个计数键。不同节点时钟存在偏差时
// ID 仍然唯一，但不保证全局严格递增。
//
//	gen, _ := idgen.New(&idgen.Config{Driver: "redis"},
//		idgen.WithRedisConnector(redisConn),
//		idgen.WithLogger(logger),
//	)
//	id, err := gen.Next(ctx, "order")
package idgen

import (
	"context"
	"math"
	"time"

	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/metrics"
	"github.com/ceyewan/seckill/xerrors"
)

// CountBits 序号占用的位数
const CountBits = 32

// Generator ID 生成器
type Generator interface {
	// Next 为指定业务序列生成下一个 ID
	Next(ctx context.Context, sequence string) (int64, error)
}

// counter 计数后端，对 key 做原子自增并返回自增后的值
type counter interface {
	incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type generator struct {
	cfg       *Config
	counter   counter
	loc       *time.Location
	now       func() time.Time
	logger    clog.Logger
	generated metrics.Counter
}

// New 创建 ID 生成器
func New(cfg *Config, opts ...Option) (Generator, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := applyOptions(opts)

	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		return nil, xerrors.Wrapf(ErrInvalidConfig, "location %q: %v", cfg.Location, err)
	}

	var c counter
	switch cfg.Driver {
	case DriverRedis:
		if opt.redisConn == nil {
			return nil, ErrConnectorNil
		}
		c = &redisCounter{conn: opt.redisConn, logger: opt.logger}
	case DriverMemory:
		c = newMemoryCounter()
	}

	generated, err := opt.meter.Counter(MetricGenerated, "ids generated by sequence and result")
	if err != nil {
		return nil, err
	}

	return &generator{
		cfg:       cfg,
		counter:   c,
		loc:       loc,
		now:       opt.clock,
		logger:    opt.logger,
		generated: generated,
	}, nil
}

func (g *generator) Next(ctx context.Context, sequence string) (int64, error) {
	if sequence == "" {
		return 0, ErrInvalidSequence
	}

	now := g.now().In(g.loc)
	ts := now.Unix() - g.cfg.Epoch
	if ts < 0 {
		return 0, xerrors.Wrapf(ErrClockBeforeEpoch, "now=%d epoch=%d", now.Unix(), g.cfg.Epoch)
	}

	key := g.cfg.KeyPrefix + sequence + ":" + now.Format("2006:01:02")
	serial, err := g.counter.incr(ctx, key, g.cfg.DayKeyTTL)
	if err != nil {
		g.generated.Inc(ctx, metrics.L("sequence", sequence), metrics.L(metrics.LabelResult, "error"))
		g.logger.ErrorContext(ctx, "failed to increment id counter",
			clog.String("key", key), clog.Error(err))
		return 0, xerrors.Wrap(err, "idgen: increment counter")
	}
	if serial > math.MaxUint32 {
		g.generated.Inc(ctx, metrics.L("sequence", sequence), metrics.L(metrics.LabelResult, "overflow"))
		return 0, xerrors.Wrapf(ErrSequenceOverflow, "key=%s serial=%d", key, serial)
	}

	g.generated.Inc(ctx, metrics.L("sequence", sequence), metrics.L(metrics.LabelResult, "success"))
	return ts<<CountBits | serial, nil
}

// Decompose 拆分 ID，返回生成时刻（秒）和当日序号
func Decompose(id int64, epoch int64) (time.Time, int64) {
	return time.Unix(id>>CountBits+epoch, 0), id & math.MaxUint32
}
