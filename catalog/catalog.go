// Package catalog 是秒杀券、订单与店铺的持久化目录，基于 db（GORM）。
//
// 订单落库是一个事务单元：先条件扣减持久化库存（stock = stock - 1 WHERE stock > 0），
// 再检查 (user_id, voucher_id) 是否已有订单，最后插入订单。
// 已有订单视为成功（幂等，扣减随事务回滚）；库存已为 0 返回 ErrStockExhausted；
// 其他失败带 TRANSIENT_PERSISTENCE 错误码，由调用方有限次重试。
package catalog

import (
	"context"

	"gorm.io/gorm"

	"github.com/ceyewan/seckill/breaker"
	"github.com/ceyewan/seckill/clog"
	"github.com/ceyewan/seckill/db"
	"github.com/ceyewan/seckill/metrics"
	"github.com/ceyewan/seckill/xerrors"
)

// 熔断键
const (
	BreakerKeyVoucher = "catalog.voucher"
	BreakerKeyShop    = "catalog.shop"
)

// Catalog 持久化目录
type Catalog struct {
	db      db.DB
	opt     *options
	logger  clog.Logger
	orders  metrics.Counter
	breaker breaker.Breaker
}

// New 创建 Catalog
func New(database db.DB, opts ...Option) (*Catalog, error) {
	if database == nil {
		return nil, ErrDBNil
	}
	o := applyOptions(opts)
	orders, err := o.meter.Counter(MetricOrdersTotal, "Voucher order transactions by result")
	if err != nil {
		return nil, err
	}
	return &Catalog{db: database, opt: o, logger: o.logger, orders: orders, breaker: o.breaker}, nil
}

// Migrate 建表
func (c *Catalog) Migrate(ctx context.Context) error {
	return xerrors.Wrap(c.db.DB(ctx).AutoMigrate(Models()...), "catalog: migrate")
}

// guard 经过熔断器执行读操作；不存在以 nil 结果表示，不计入失败
func guard[T any](ctx context.Context, c *Catalog, key string, fn func() (*T, error)) (*T, error) {
	var (
		v   *T
		err error
	)
	if c.breaker == nil {
		v, err = fn()
	} else {
		v, err = breaker.Do(ctx, c.breaker, key, fn)
	}
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

// first 查询单行，不存在返回 nil, nil
func first[T any](tx *gorm.DB, conds ...any) (*T, error) {
	var v T
	err := tx.Take(&v, conds...).Error
	if xerrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVoucher 查询秒杀券，不存在返回 ErrNotFound
func (c *Catalog) GetVoucher(ctx context.Context, voucherID int64) (*SeckillVoucher, error) {
	v, err := guard(ctx, c, BreakerKeyVoucher, func() (*SeckillVoucher, error) {
		return first[SeckillVoucher](c.db.DB(ctx), "voucher_id = ?", voucherID)
	})
	return v, xerrors.Wrapf(err, "catalog: get voucher %d", voucherID)
}

// ConditionalDecrementStock 在 tx 中条件扣减库存，返回是否扣减成功
func (c *Catalog) ConditionalDecrementStock(ctx context.Context, tx *gorm.DB, voucherID int64) (bool, error) {
	res := tx.WithContext(ctx).Model(&SeckillVoucher{}).
		Where("voucher_id = ? AND stock > 0", voucherID).
		Update("stock", gorm.Expr("stock - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// OrderExists 判断用户是否已有该券的订单
func (c *Catalog) OrderExists(ctx context.Context, tx *gorm.DB, userID, voucherID int64) (bool, error) {
	var n int64
	err := tx.WithContext(ctx).Model(&VoucherOrder{}).
		Where("user_id = ? AND voucher_id = ?", userID, voucherID).
		Count(&n).Error
	return n > 0, err
}

// InsertOrder 在 tx 中插入订单
func (c *Catalog) InsertOrder(ctx context.Context, tx *gorm.DB, order *VoucherOrder) error {
	if order.Status == 0 {
		order.Status = OrderStatusUnpaid
	}
	if order.CreateTime.IsZero() {
		order.CreateTime = c.opt.now()
	}
	return tx.WithContext(ctx).Create(order).Error
}

// CreateOrder 订单落库事务，返回 created=false 表示订单已存在
func (c *Catalog) CreateOrder(ctx context.Context, order *VoucherOrder) (created bool, err error) {
	if order == nil || order.ID == 0 || order.UserID == 0 || order.VoucherID == 0 {
		return false, xerrors.Wrap(ErrInvalidArgument, "order id, user id and voucher id are required")
	}

	result := "created"
	defer func() {
		c.orders.Inc(ctx, metrics.L(metrics.LabelResult, result))
	}()

	err = c.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		ok, err := c.ConditionalDecrementStock(ctx, tx, order.VoucherID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrStockExhausted
		}
		exists, err := c.OrderExists(ctx, tx, order.UserID, order.VoucherID)
		if err != nil {
			return err
		}
		if exists {
			return errDuplicate
		}
		return c.InsertOrder(ctx, tx, order)
	})

	switch {
	case err == nil:
		c.logger.InfoContext(ctx, "voucher order created",
			clog.Int64("order_id", order.ID),
			clog.Int64("user_id", order.UserID),
			clog.Int64("voucher_id", order.VoucherID),
		)
		return true, nil
	case xerrors.Is(err, errDuplicate):
		result = "duplicate"
		return false, nil
	case xerrors.Is(err, ErrStockExhausted):
		result = "exhausted"
		return false, xerrors.Wrapf(err, "voucher %d", order.VoucherID)
	}

	// 并发插入撞上唯一索引时，事务外再确认一次
	if exists, e := c.OrderExists(ctx, c.db.DB(ctx), order.UserID, order.VoucherID); e == nil && exists {
		result = "duplicate"
		return false, nil
	}
	result = "error"
	return false, xerrors.WithCode(xerrors.Wrapf(err, "catalog: create order %d", order.ID), CodeTransientPersistence)
}

// FindOrder 查询用户在某张券上的订单
func (c *Catalog) FindOrder(ctx context.Context, userID, voucherID int64) (*VoucherOrder, error) {
	o, err := first[VoucherOrder](c.db.DB(ctx), "user_id = ? AND voucher_id = ?", userID, voucherID)
	if err != nil {
		return nil, xerrors.Wrap(err, "catalog: find order")
	}
	if o == nil {
		return nil, ErrNotFound
	}
	return o, nil
}

// CreateSeckillVoucher 在一个事务中写入券及其秒杀信息，sv.VoucherID 由 v.ID 回填
func (c *Catalog) CreateSeckillVoucher(ctx context.Context, v *Voucher, sv *SeckillVoucher) error {
	if v == nil || sv == nil {
		return xerrors.Wrap(ErrInvalidArgument, "voucher and seckill voucher are required")
	}
	if sv.Stock < 0 || !sv.EndTime.After(sv.BeginTime) {
		return xerrors.Wrap(ErrInvalidArgument, "stock must not be negative and end time must be after begin time")
	}
	v.Type = VoucherTypeSeckill
	return c.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Create(v).Error; err != nil {
			return xerrors.Wrap(err, "catalog: create voucher")
		}
		sv.VoucherID = v.ID
		return xerrors.Wrap(tx.Create(sv).Error, "catalog: create seckill voucher")
	})
}

// GetShop 查询店铺，不存在返回 ErrNotFound
func (c *Catalog) GetShop(ctx context.Context, id int64) (*Shop, error) {
	s, err := guard(ctx, c, BreakerKeyShop, func() (*Shop, error) {
		return first[Shop](c.db.DB(ctx), "id = ?", id)
	})
	return s, xerrors.Wrapf(err, "catalog: get shop %d", id)
}

// CreateShop 新增店铺，ID 由数据库生成
func (c *Catalog) CreateShop(ctx context.Context, shop *Shop) error {
	return xerrors.Wrap(c.db.DB(ctx).Create(shop).Error, "catalog: create shop")
}

// UpdateShop 按 ID 更新非零字段
func (c *Catalog) UpdateShop(ctx context.Context, shop *Shop) error {
	if shop == nil || shop.ID == 0 {
		return xerrors.Wrap(ErrInvalidArgument, "shop id is required")
	}
	res := c.db.DB(ctx).Model(&Shop{ID: shop.ID}).Updates(shop)
	if res.Error != nil {
		return xerrors.Wrapf(res.Error, "catalog: update shop %d", shop.ID)
	}
	if res.RowsAffected == 0 {
		return xerrors.Wrapf(ErrNotFound, "shop %d", shop.ID)
	}
	return nil
}

func (c *Catalog) pluck(ctx context.Context, model any, column string, conds ...any) ([]int64, error) {
	var ids []int64
	q := c.db.DB(ctx).Model(model)
	if len(conds) > 0 {
		q = q.Where(conds[0], conds[1:]...)
	}
	err := q.Order(column).Pluck(column, &ids).Error
	return ids, xerrors.Wrapf(err, "catalog: list %s", column)
}

// ListShopIDs 全部店铺 ID
func (c *Catalog) ListShopIDs(ctx context.Context) ([]int64, error) {
	return c.pluck(ctx, &Shop{}, "id")
}

// ListVoucherIDs 全部秒杀券 ID
func (c *Catalog) ListVoucherIDs(ctx context.Context) ([]int64, error) {
	return c.pluck(ctx, &SeckillVoucher{}, "voucher_id")
}

// ListStockedVoucherIDs 持久化库存大于 0 的秒杀券 ID
func (c *Catalog) ListStockedVoucherIDs(ctx context.Context) ([]int64, error) {
	return c.pluck(ctx, &SeckillVoucher{}, "voucher_id", "stock > 0")
}

// ListUserIDs 全部用户 ID
func (c *Catalog) ListUserIDs(ctx context.Context) ([]int64, error) {
	return c.pluck(ctx, &User{}, "id")
}
