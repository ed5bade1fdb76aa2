package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/seckill/breaker"
	"github.com/ceyewan/seckill/db"
	"github.com/ceyewan/seckill/testkit"
	"github.com/ceyewan/seckill/xerrors"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newCatalog(t *testing.T, opts ...Option) *Catalog {
	t.Helper()
	database, err := db.New(&db.Config{Driver: db.DriverSQLite},
		db.WithSQLiteConnector(testkit.NewSQLiteConnector(t)),
		db.WithLogger(testkit.NewLogger()),
	)
	require.NoError(t, err)

	opts = append([]Option{
		WithLogger(testkit.NewLogger()),
		WithMeter(testkit.NewMeter()),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	c, err := New(database, opts...)
	require.NoError(t, err)
	require.NoError(t, c.Migrate(context.Background()))
	return c
}

func seedVoucher(t *testing.T, c *Catalog, stock int) int64 {
	t.Helper()
	v := &Voucher{ShopID: 1, Title: "100 元代金券", PayValue: 8000, ActualValue: 10000}
	sv := &SeckillVoucher{Stock: stock, BeginTime: fixedNow.Add(-time.Hour), EndTime: fixedNow.Add(time.Hour)}
	require.NoError(t, c.CreateSeckillVoucher(context.Background(), v, sv))
	require.Equal(t, v.ID, sv.VoucherID)
	return v.ID
}

func stockOf(t *testing.T, c *Catalog, voucherID int64) int {
	t.Helper()
	v, err := c.GetVoucher(context.Background(), voucherID)
	require.NoError(t, err)
	return v.Stock
}

func TestNewRequiresDB(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrDBNil)
}

func TestCreateSeckillVoucher(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	id := seedVoucher(t, c, 3)

	v, err := c.GetVoucher(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Stock)
	assert.True(t, v.Started(fixedNow))
	assert.False(t, v.Ended(fixedNow))

	bad := &SeckillVoucher{Stock: 1, BeginTime: fixedNow, EndTime: fixedNow}
	assert.ErrorIs(t, c.CreateSeckillVoucher(ctx, &Voucher{}, bad), xerrors.ErrInvalidInput)
}

func TestGetVoucherNotFound(t *testing.T) {
	c := newCatalog(t)
	_, err := c.GetVoucher(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestCreateOrder(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	vid := seedVoucher(t, c, 2)

	created, err := c.CreateOrder(ctx, &VoucherOrder{ID: 1001, UserID: 1, VoucherID: vid})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, stockOf(t, c, vid))

	order, err := c.FindOrder(ctx, 1, vid)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), order.ID)
	assert.Equal(t, OrderStatusUnpaid, order.Status)
	assert.True(t, order.CreateTime.Equal(fixedNow))
}

func TestCreateOrderDuplicateIsIdempotent(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	vid := seedVoucher(t, c, 5)

	created, err := c.CreateOrder(ctx, &VoucherOrder{ID: 1, UserID: 9, VoucherID: vid})
	require.NoError(t, err)
	require.True(t, created)

	created, err = c.CreateOrder(ctx, &VoucherOrder{ID: 2, UserID: 9, VoucherID: vid})
	require.NoError(t, err)
	assert.False(t, created)
	// 第二次的扣减随事务回滚
	assert.Equal(t, 4, stockOf(t, c, vid))

	order, err := c.FindOrder(ctx, 9, vid)
	require.NoError(t, err)
	assert.Equal(t, int64(1), order.ID)
}

func TestCreateOrderStockExhausted(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	vid := seedVoucher(t, c, 1)

	_, err := c.CreateOrder(ctx, &VoucherOrder{ID: 1, UserID: 1, VoucherID: vid})
	require.NoError(t, err)

	created, err := c.CreateOrder(ctx, &VoucherOrder{ID: 2, UserID: 2, VoucherID: vid})
	assert.False(t, created)
	assert.ErrorIs(t, err, ErrStockExhausted)
	assert.False(t, xerrors.HasCode(err, CodeTransientPersistence))
	assert.Equal(t, 0, stockOf(t, c, vid))

	_, err = c.FindOrder(ctx, 2, vid)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateOrderUnknownVoucher(t *testing.T) {
	c := newCatalog(t)
	_, err := c.CreateOrder(context.Background(), &VoucherOrder{ID: 1, UserID: 1, VoucherID: 77})
	assert.ErrorIs(t, err, ErrStockExhausted)
}

func TestCreateOrderInvalid(t *testing.T) {
	c := newCatalog(t)
	_, err := c.CreateOrder(context.Background(), &VoucherOrder{UserID: 1, VoucherID: 1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateOrderTransientFailure(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	vid := seedVoucher(t, c, 1)
	require.NoError(t, c.db.DB(ctx).Migrator().DropTable(&VoucherOrder{}))

	_, err := c.CreateOrder(ctx, &VoucherOrder{ID: 1, UserID: 1, VoucherID: vid})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransientPersistence)
	assert.Equal(t, 1, stockOf(t, c, vid))
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	vid := seedVoucher(t, c, 3)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.CreateOrder(ctx, &VoucherOrder{ID: int64(100 + i), UserID: int64(i + 1), VoucherID: vid})
			if err != nil {
				assert.ErrorIs(t, err, ErrStockExhausted)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, created)
	assert.Equal(t, 0, stockOf(t, c, vid))
}

func TestShopCRUD(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	shop := &Shop{Name: "103 茶餐厅", TypeID: 1, Area: "大关", AvgPrice: 80}
	require.NoError(t, c.CreateShop(ctx, shop))
	require.NotZero(t, shop.ID)

	require.NoError(t, c.UpdateShop(ctx, &Shop{ID: shop.ID, Name: "102 茶餐厅"}))
	got, err := c.GetShop(ctx, shop.ID)
	require.NoError(t, err)
	assert.Equal(t, "102 茶餐厅", got.Name)
	assert.Equal(t, "大关", got.Area)

	assert.ErrorIs(t, c.UpdateShop(ctx, &Shop{ID: 999, Name: "x"}), ErrNotFound)
	assert.ErrorIs(t, c.UpdateShop(ctx, &Shop{Name: "x"}), ErrInvalidArgument)

	_, err = c.GetShop(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListIDs(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	full := seedVoucher(t, c, 2)
	empty := seedVoucher(t, c, 0)
	for _, name := range []string{"a", "b"} {
		require.NoError(t, c.CreateShop(ctx, &Shop{Name: name}))
	}
	require.NoError(t, c.db.DB(ctx).Create(&User{Phone: "13800000000", NickName: "u1"}).Error)

	ids, err := c.ListVoucherIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{full, empty}, ids)

	stocked, err := c.ListStockedVoucherIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{full}, stocked)

	shops, err := c.ListShopIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, shops, 2)

	users, err := c.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, users)
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	b, err := breaker.New(&breaker.Config{MinimumRequests: 2, FailureRatio: 0.5})
	require.NoError(t, err)
	c := newCatalog(t, WithBreaker(b))
	ctx := context.Background()

	for range 5 {
		_, err := c.GetVoucher(ctx, 404)
		assert.ErrorIs(t, err, ErrNotFound)
	}
	state, err := b.State(BreakerKeyVoucher)
	require.NoError(t, err)
	assert.Equal(t, breaker.StateClosed, state)
}
