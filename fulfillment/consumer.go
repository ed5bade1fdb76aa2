// Package fulfillment 消费下单意图，把准入结果异步落库。
//
// 每条意图：
//  1. 从共享令牌桶取令牌
//  2. 重新投递且已补偿过的意图直接确认丢弃
//  3. 复核券存在、时间窗口与持久化库存，不通过则确认并丢弃
//  4. 调用 OrderStore.CreateOrder 落库，订单已存在视为成功
//  5. 复核查询失败与可重试的落库失败合计最多尝试 MaxAttempts 次，
//     第 i 次失败后等待 BaseBackoff*i
//  6. 仍失败则补偿快路径库存（每个订单至多一次），首次投递 Nak 重新入队，
//     再次投递直接确认，消息最多重新入队一次
package fulfillment

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/seckill/catalog"
	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/metrics"
	"github.com/ceyewan/seckill/mq"
	"github.com/ceyewan/seckill/ratelimit"
	"github.com/ceyewan/seckill/seckill"
	"github.com/ceyewan/seckill/xerrors"
)

// limiterKey 所有 worker 共享的令牌桶
const limiterKey = "fulfillment"

// OrderStore 履约所需的持久化能力
type OrderStore interface {
	GetVoucher(ctx context.Context, voucherID int64) (*catalog.SeckillVoucher, error)

	// CreateOrder 事务性落库，created=false 表示订单已存在
	CreateOrder(ctx context.Context, order *catalog.VoucherOrder) (created bool, err error)
}

// outcome 单条意图的处理结果
type outcome string

const (
	outcomeCreated     outcome = "created"
	outcomeDuplicate   outcome = "duplicate"
	outcomeDropped     outcome = "dropped"
	outcomeCompensated outcome = "compensated"
	outcomeRequeued    outcome = "requeued"
	outcomeAbandoned   outcome = "abandoned"
)

// Consumer 下单意图消费者
type Consumer struct {
	cfg    *Config
	opt    *options
	logger clog.Logger
	limit  ratelimit.Limit

	intents  metrics.Counter
	attempts metrics.Counter
	latency  metrics.Histogram

	mu  sync.Mutex
	sub mq.Subscription
}

// New 创建消费者
func New(cfg *Config, opts ...Option) (*Consumer, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	switch {
	case o.queue == nil:
		return nil, xerrors.Wrap(ErrDependencyNil, "mq")
	case o.limiter == nil:
		return nil, xerrors.Wrap(ErrDependencyNil, "limiter")
	case o.counter == nil:
		return nil, xerrors.Wrap(ErrDependencyNil, "counter store")
	case o.orders == nil:
		return nil, xerrors.Wrap(ErrDependencyNil, "order store")
	}

	c := &Consumer{
		cfg:    cfg,
		opt:    o,
		logger: o.logger,
		limit:  ratelimit.Limit{Rate: cfg.Rate, Burst: cfg.Burst},
	}
	var err error
	if c.intents, err = o.meter.Counter(MetricIntentsTotal, "order intents by outcome"); err != nil {
		return nil, err
	}
	if c.attempts, err = o.meter.Counter(MetricAttemptsTotal, "order persistence attempts"); err != nil {
		return nil, err
	}
	if c.latency, err = o.meter.Histogram(MetricHandleDuration, "order intent handling duration", metrics.WithUnit("s")); err != nil {
		return nil, err
	}
	return c, nil
}

// Start 开始消费，ctx 取消时订阅随之结束
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return ErrAlreadyStarted
	}
	sub, err := c.opt.queue.Subscribe(ctx, c.cfg.Topic, c.handle,
		mq.WithQueueGroup(c.cfg.QueueGroup),
		mq.WithDurable(c.cfg.QueueGroup),
		mq.WithConcurrency(c.cfg.Workers),
		mq.WithManualAck(),
	)
	if err != nil {
		return xerrors.Wrap(err, "fulfillment: subscribe")
	}
	c.sub = sub
	c.logger.Info("fulfillment consumer started",
		clog.String("topic", c.cfg.Topic),
		clog.Int("workers", c.cfg.Workers),
		clog.Float64("rate", c.cfg.Rate),
		clog.Int("max_attempts", c.cfg.MaxAttempts),
	)
	return nil
}

// Stop 停止接收新消息，等待在途意图处理完毕或 ctx 结束
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub == nil {
		return ErrNotStarted
	}
	if err := sub.Unsubscribe(); err != nil {
		return xerrors.Wrap(err, "fulfillment: unsubscribe")
	}
	select {
	case <-sub.Done():
		c.logger.Info("fulfillment consumer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) handle(msg mq.Message) error {
	ctx := msg.Context()
	start := time.Now()

	if err := c.opt.limiter.Wait(ctx, limiterKey, c.limit); err != nil {
		// 未确认的消息由 broker 在确认超时后重新投递
		c.logger.WarnContext(ctx, "rate limiter wait aborted", clog.String("msg_id", msg.ID()), clog.Error(err))
		return err
	}

	out := c.process(ctx, msg)
	c.intents.Inc(ctx, metrics.L(metrics.LabelResult, string(out)))
	c.latency.Record(ctx, time.Since(start).Seconds(), metrics.L(metrics.LabelResult, string(out)))

	settle, op := msg.Ack, "ack"
	if out == outcomeRequeued {
		settle, op = msg.Nak, "nak"
	}
	if err := settle(); err != nil {
		c.logger.ErrorContext(ctx, "settle message failed",
			clog.String("op", op),
			clog.String("msg_id", msg.ID()),
			clog.Error(err),
		)
		return err
	}
	return nil
}

func (c *Consumer) process(ctx context.Context, msg mq.Message) outcome {
	intent, err := seckill.ParseIntent(msg.Data())
	if err != nil {
		c.logger.ErrorContext(ctx, "drop malformed order intent", clog.String("msg_id", msg.ID()), clog.Error(err))
		return outcomeDropped
	}
	fields := []clog.Field{
		clog.Int64("order_id", intent.OrderID),
		clog.Int64("user_id", intent.UserID),
		clog.Int64("voucher_id", intent.VoucherID),
		clog.Int("deliveries", msg.Deliveries()),
	}

	// 补偿发生在 Nak 之前，只有重新投递的意图可能已被补偿
	if msg.Deliveries() > 1 {
		done, err := c.opt.counter.Compensated(ctx, intent.OrderID)
		if err != nil {
			// 消息已重新入队过一次，不再 Nak
			c.logger.ErrorContext(ctx, "check compensation marker failed, abandoning intent", append(fields, clog.Error(err))...)
			return outcomeAbandoned
		}
		if done {
			c.logger.InfoContext(ctx, "intent already compensated, dropping redelivery", fields...)
			return outcomeAbandoned
		}
	}

	created, err := c.persist(ctx, intent, fields)
	switch {
	case err == nil && created:
		c.logger.InfoContext(ctx, "order persisted", fields...)
		return outcomeCreated
	case err == nil:
		c.logger.InfoContext(ctx, "order already persisted", fields...)
		return outcomeDuplicate
	case xerrors.Is(err, errDropIntent):
		return outcomeDropped
	case xerrors.Is(err, catalog.ErrStockExhausted):
		c.logger.WarnContext(ctx, "durable stock exhausted, dropping intent", fields...)
		return outcomeDropped
	}

	c.logger.ErrorContext(ctx, "order persistence failed after retries", append(fields, clog.Error(err))...)
	return c.compensate(ctx, intent, msg.Deliveries(), fields)
}

// errDropIntent 复核不通过，意图确认后丢弃
var errDropIntent = xerrors.New("fulfillment: intent dropped by revalidation")

// revalidate 复核持久化目录中的券。
// 不通过返回 errDropIntent；查询失败原样返回，由 persist 按可重试错误处理
func (c *Consumer) revalidate(ctx context.Context, intent seckill.OrderIntent, fields []clog.Field) error {
	v, err := c.opt.orders.GetVoucher(ctx, intent.VoucherID)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		c.logger.WarnContext(ctx, "voucher no longer exists, dropping intent", fields...)
		return errDropIntent
	}
	if err != nil {
		return xerrors.Wrap(err, "fulfillment: revalidate voucher")
	}

	now := c.opt.now()
	switch {
	case !v.Started(now):
		c.logger.WarnContext(ctx, "voucher not started, dropping intent", fields...)
		return errDropIntent
	case v.Ended(now):
		c.logger.WarnContext(ctx, "voucher ended, dropping intent", fields...)
		return errDropIntent
	case v.Stock <= 0:
		c.logger.WarnContext(ctx, "voucher out of durable stock, dropping intent", fields...)
		return errDropIntent
	}
	return nil
}

// persist 有界重试：每次尝试先复核再落库。
// 复核查询失败与 TRANSIENT_PERSISTENCE 都计为一次失败的尝试
func (c *Consumer) persist(ctx context.Context, intent seckill.OrderIntent, fields []clog.Field) (bool, error) {
	order := &catalog.VoucherOrder{
		ID:         intent.OrderID,
		UserID:     intent.UserID,
		VoucherID:  intent.VoucherID,
		CreateTime: intent.CreatedAt,
	}

	var err error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		retryable := true
		if err = c.revalidate(ctx, intent, fields); err == nil {
			var created bool
			created, err = c.opt.orders.CreateOrder(ctx, order)
			if err == nil {
				c.attempts.Inc(ctx, metrics.L(metrics.LabelResult, "ok"))
				return created, nil
			}
			retryable = xerrors.Is(err, catalog.ErrTransientPersistence)
		} else if xerrors.Is(err, errDropIntent) {
			return false, err
		}
		c.attempts.Inc(ctx, metrics.L(metrics.LabelResult, "error"))
		if !retryable || attempt == c.cfg.MaxAttempts {
			break
		}

		backoff := c.cfg.BaseBackoff * time.Duration(attempt)
		c.logger.WarnContext(ctx, "order persistence failed, retrying",
			clog.Int64("order_id", intent.OrderID),
			clog.Int("attempt", attempt),
			clog.Duration("backoff", backoff),
			clog.Error(err),
		)
		select {
		case <-ctx.Done():
			return false, xerrors.Combine(err, ctx.Err())
		case <-time.After(backoff):
		}
	}
	return false, err
}

// compensate 归还快路径库存，再决定重新入队还是放弃
func (c *Consumer) compensate(ctx context.Context, intent seckill.OrderIntent, deliveries int, fields []clog.Field) outcome {
	// 脱离消息上下文，关停过程中补偿也要执行完
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	done, err := c.opt.counter.Compensate(cctx, intent.OrderID, intent.VoucherID, intent.UserID, c.cfg.CompensationTTL)
	switch {
	case err != nil:
		c.logger.ErrorContext(ctx, "restore fast-path stock failed", append(fields, clog.Error(err))...)
	case done:
		c.logger.WarnContext(ctx, "fast-path stock restored", fields...)
	default:
		c.logger.InfoContext(ctx, "intent already compensated", fields...)
	}

	if deliveries <= 1 {
		return outcomeRequeued
	}
	if done {
		return outcomeCompensated
	}
	return outcomeAbandoned
}
