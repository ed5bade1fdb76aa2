// Package seckill 是秒杀的准入控制。
//
// 一次抢购在一个往返内终结：
//
//	布隆过滤器 -> 券是否存在 -> 是否在秒杀时间内 -> Lua 脚本原子判定库存与一人一单
//
// 脚本返回 0 时扣减快路径库存、记录用户，然后把下单意图发布到 broker，
// 由 fulfillment 异步落库。防超卖与防重复下单完全依赖脚本的原子性，
// 不使用任何应用层锁。
//
//	gate, _ := seckill.New(&seckill.Config{},
//		seckill.WithCounterStore(counter),
//		seckill.WithVoucherSource(cat),
//		seckill.WithIDGenerator(ids),
//		seckill.WithPublisher(queue),
//	)
//	adm, err := gate.Admit(seckill.WithUserID(ctx, userID), voucherID)
package seckill

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/ceyewan/seckill/bloom"
	"github.com/ceyewan/seckill/catalog"
	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/metrics"
	"github.com/ceyewan/seckill/mq"
	"github.com/ceyewan/seckill/xerrors"
)

// VoucherSource 查询秒杀券，不存在时返回的错误需满足 errors.Is(err, xerrors.ErrNotFound)
type VoucherSource interface {
	GetVoucher(ctx context.Context, voucherID int64) (*catalog.SeckillVoucher, error)
}

// Publisher 发布下单意图，返回时 broker 已确认
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte, opts ...mq.PublishOption) error
}

// Admission 准入成功的结果，订单尚未落库
type Admission struct {
	OrderID   int64 `json:"orderId"`
	UserID    int64 `json:"userId"`
	VoucherID int64 `json:"voucherId"`

	// Published 意图是否已被 broker 确认
	Published bool `json:"-"`
}

// Gate 准入控制器
type Gate struct {
	cfg    *Config
	opt    *options
	logger clog.Logger

	admissions      metrics.Counter
	publishFailures metrics.Counter
	latency         metrics.Histogram
}

// New 创建准入控制器
func New(cfg *Config, opts ...Option) (*Gate, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	switch {
	case o.counter == nil:
		return nil, xerrors.Wrap(ErrDependencyNil, "counter store")
	case o.vouchers == nil:
		return nil, xerrors.Wrap(ErrDependencyNil, "voucher source")
	case o.ids == nil:
		return nil, xerrors.Wrap(ErrDependencyNil, "id generator")
	case o.publisher == nil:
		return nil, xerrors.Wrap(ErrDependencyNil, "publisher")
	}

	g := &Gate{cfg: cfg, opt: o, logger: o.logger}
	var err error
	if g.admissions, err = o.meter.Counter(MetricAdmissionsTotal, "seckill admissions by result"); err != nil {
		return nil, err
	}
	if g.publishFailures, err = o.meter.Counter(MetricPublishFailuresTotal, "admitted intents the broker did not confirm"); err != nil {
		return nil, err
	}
	if g.latency, err = o.meter.Histogram(MetricAdmitDuration, "seckill admission latency", metrics.WithUnit("s")); err != nil {
		return nil, err
	}
	return g, nil
}

// Admit 处理一次抢购。用户 ID 从 ctx 读取（WithUserID）。
// 被拒绝时返回带错误码的哨兵错误，Message(err) 给出面向用户的文案。
func (g *Gate) Admit(ctx context.Context, voucherID int64) (*Admission, error) {
	start := time.Now()
	adm, err := g.admit(ctx, voucherID)

	result := "ok"
	if err != nil {
		result = "error"
		if code := xerrors.GetCode(err); code != "" {
			result = strings.ToLower(code)
		}
	}
	g.admissions.Inc(ctx, metrics.L(metrics.LabelResult, result))
	g.latency.Record(ctx, time.Since(start).Seconds(), metrics.L(metrics.LabelResult, result))
	return adm, err
}

func (g *Gate) admit(ctx context.Context, voucherID int64) (*Admission, error) {
	userID, err := UserID(ctx)
	if err != nil {
		return nil, err
	}
	if voucherID <= 0 {
		return nil, ErrVoucherNotFound
	}

	if g.opt.bloom != nil {
		ok, err := g.opt.bloom.MightContain(ctx, bloom.ID(voucherID))
		switch {
		case err != nil:
			g.logger.WarnContext(ctx, "bloom check failed, falling through", clog.Int64("voucher_id", voucherID), clog.Error(err))
		case !ok:
			return nil, ErrVoucherNotFound
		}
	}

	v, err := g.opt.vouchers.GetVoucher(ctx, voucherID)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, ErrVoucherNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "seckill: load voucher")
	}

	now := g.opt.now()
	if !v.Started(now) {
		return nil, ErrNotStarted
	}
	if v.Ended(now) {
		return nil, ErrEnded
	}

	// 先取号再扣减，取号失败时计数存储保持不变
	orderID, err := g.opt.ids.Next(ctx, g.cfg.IDSequence)
	if err != nil {
		return nil, xerrors.Wrap(err, "seckill: generate order id")
	}

	res, err := g.opt.counter.Admit(ctx, voucherID, userID)
	if err != nil {
		return nil, err
	}
	switch res {
	case ResultStockExhausted:
		return nil, ErrStockExhausted
	case ResultDuplicate:
		return nil, ErrDuplicateOrder
	}

	adm := &Admission{OrderID: orderID, UserID: userID, VoucherID: voucherID}
	adm.Published = g.publish(ctx, OrderIntent{
		OrderID:   orderID,
		UserID:    userID,
		VoucherID: voucherID,
		CreatedAt: now,
	})
	g.logger.DebugContext(ctx, "voucher admitted",
		clog.Int64("order_id", orderID),
		clog.Int64("user_id", userID),
		clog.Int64("voucher_id", voucherID),
		clog.Bool("published", adm.Published),
	)
	return adm, nil
}

// publish 发布失败只记录日志和指标，已扣减的快路径库存不回滚
func (g *Gate) publish(ctx context.Context, intent OrderIntent) bool {
	data, err := intent.Marshal()
	if err == nil {
		pctx, cancel := context.WithTimeout(ctx, g.cfg.PublishTimeout)
		err = g.opt.publisher.Publish(pctx, g.cfg.Topic, data, mq.WithKey(strconv.FormatInt(intent.VoucherID, 10)))
		cancel()
	}
	if err != nil {
		g.publishFailures.Inc(ctx)
		g.logger.ErrorContext(ctx, "order intent not confirmed by broker",
			clog.Int64("order_id", intent.OrderID),
			clog.Int64("user_id", intent.UserID),
			clog.Int64("voucher_id", intent.VoucherID),
			clog.Error(err),
		)
		return false
	}
	return true
}

// Preload 写入快路径库存并登记券 ID，秒杀券创建后调用
func (g *Gate) Preload(ctx context.Context, voucherID int64, stock int) error {
	if voucherID <= 0 || stock < 0 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "seckill: preload voucher %d stock %d", voucherID, stock)
	}
	if err := g.opt.counter.SetStock(ctx, voucherID, stock); err != nil {
		return err
	}
	if g.opt.bloom != nil {
		if err := g.opt.bloom.Add(ctx, bloom.ID(voucherID)); err != nil {
			return xerrors.Wrap(err, "seckill: add voucher to bloom")
		}
	}
	g.logger.InfoContext(ctx, "voucher preloaded", clog.Int64("voucher_id", voucherID), clog.Int("stock", stock))
	return nil
}

// Topic 下单意图主题
func (g *Gate) Topic() string {
	return g.cfg.Topic
}
