package fulfillment

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/seckill/breaker"
	"github.com/ceyewan/seckill/catalog"
	"github.com/ceyewan/seckill/db"
	"github.com/ceyewan/seckill/mq"
	"github.com/ceyewan/seckill/ratelimit"
	"github.com/ceyewan/seckill/seckill"
	"github.com/ceyewan/seckill/testkit"
	"github.com/ceyewan/seckill/xerrors"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// flakyStore 在 *catalog.Catalog 之上统计调用次数并注入查询、落库失败
type flakyStore struct {
	*catalog.Catalog
	failures       atomic.Int32 // 剩余落库失败次数，<0 表示一直失败
	lookupFailures atomic.Int32 // 剩余查询失败次数
	lookups        atomic.Int32
	creates        atomic.Int32
}

func (s *flakyStore) GetVoucher(ctx context.Context, id int64) (*catalog.SeckillVoucher, error) {
	s.lookups.Add(1)
	if s.lookupFailures.Load() > 0 {
		s.lookupFailures.Add(-1)
		return nil, xerrors.Wrap(breaker.ErrOpenState, "catalog.voucher")
	}
	return s.Catalog.GetVoucher(ctx, id)
}

func (s *flakyStore) CreateOrder(ctx context.Context, order *catalog.VoucherOrder) (bool, error) {
	s.creates.Add(1)
	if n := s.failures.Load(); n != 0 {
		if n > 0 {
			s.failures.Add(-1)
		}
		return false, xerrors.WithCode(xerrors.New("database is locked"), catalog.CodeTransientPersistence)
	}
	return s.Catalog.CreateOrder(ctx, order)
}

// spyCounter 统计重新投递时对补偿标记的检查次数
type spyCounter struct {
	*seckill.MemoryCounter
	checks atomic.Int32
}

func (c *spyCounter) Compensated(ctx context.Context, orderID int64) (bool, error) {
	c.checks.Add(1)
	return c.MemoryCounter.Compensated(ctx, orderID)
}

type env struct {
	ctx      context.Context
	queue    mq.MQ
	store    *flakyStore
	counter  *spyCounter
	consumer *Consumer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := testkit.NewContext(t, 30*time.Second)
	logger := testkit.NewLogger()

	database, err := db.New(&db.Config{Driver: db.DriverSQLite}, db.WithSQLiteConnector(testkit.NewSQLiteConnector(t)))
	require.NoError(t, err)
	cat, err := catalog.New(database, catalog.WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, cat.Migrate(ctx))

	queue, err := mq.New(&mq.Config{Driver: mq.DriverMemory}, mq.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })

	limiter, err := ratelimit.New(&ratelimit.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	e := &env{ctx: ctx, queue: queue, store: &flakyStore{Catalog: cat}, counter: &spyCounter{MemoryCounter: seckill.NewMemoryCounter()}}
	e.consumer, err = New(&Config{Rate: 1000, Burst: 100, BaseBackoff: time.Millisecond},
		WithLogger(logger),
		WithMeter(testkit.NewMeter()),
		WithMQ(queue),
		WithLimiter(limiter),
		WithCounterStore(e.counter),
		WithOrderStore(e.store),
		WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)
	require.NoError(t, e.consumer.Start(ctx))
	t.Cleanup(func() { _ = e.consumer.Stop(context.Background()) })
	return e
}

// seed 创建券并模拟一次成功的准入
func (e *env) seed(t *testing.T, stock int, begin, end time.Time, userID int64) int64 {
	t.Helper()
	sv := &catalog.SeckillVoucher{Stock: stock, BeginTime: begin, EndTime: end}
	require.NoError(t, e.store.CreateSeckillVoucher(e.ctx, &catalog.Voucher{Title: "秒杀券"}, sv))
	require.NoError(t, e.counter.SetStock(e.ctx, sv.VoucherID, stock))
	r, err := e.counter.Admit(e.ctx, sv.VoucherID, userID)
	require.NoError(t, err)
	require.Equal(t, seckill.ResultOK, r)
	return sv.VoucherID
}

func (e *env) publish(t *testing.T, intent seckill.OrderIntent) {
	t.Helper()
	data, err := intent.Marshal()
	require.NoError(t, err)
	require.NoError(t, e.queue.Publish(e.ctx, seckill.DefaultTopic, data))
}

func (e *env) durableStock(t *testing.T, voucherID int64) int {
	t.Helper()
	v, err := e.store.Catalog.GetVoucher(e.ctx, voucherID)
	require.NoError(t, err)
	return v.Stock
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(&Config{})
	assert.ErrorIs(t, err, ErrDependencyNil)

	_, err = New(&Config{Workers: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := &Config{}
	cfg.setDefaults()
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.BaseBackoff)
	assert.Equal(t, "seckill.orders", cfg.Topic)
}

func TestStartStop(t *testing.T) {
	e := newEnv(t)
	assert.ErrorIs(t, e.consumer.Start(e.ctx), ErrAlreadyStarted)
	require.NoError(t, e.consumer.Stop(e.ctx))
	assert.ErrorIs(t, e.consumer.Stop(e.ctx), ErrNotStarted)
}

func TestIntentPersisted(t *testing.T) {
	e := newEnv(t)
	vid := e.seed(t, 5, now.Add(-time.Hour), now.Add(time.Hour), 7)

	e.publish(t, seckill.OrderIntent{OrderID: 1001, UserID: 7, VoucherID: vid, CreatedAt: now})

	require.Eventually(t, func() bool {
		_, err := e.store.FindOrder(e.ctx, 7, vid)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 4, e.durableStock(t, vid))
}

func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	e := newEnv(t)
	vid := e.seed(t, 5, now.Add(-time.Hour), now.Add(time.Hour), 7)
	intent := seckill.OrderIntent{OrderID: 1001, UserID: 7, VoucherID: vid, CreatedAt: now}

	e.publish(t, intent)
	e.publish(t, intent)

	require.Eventually(t, func() bool { return e.store.creates.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
	order, err := e.store.FindOrder(e.ctx, 7, vid)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), order.ID)
	assert.Equal(t, 4, e.durableStock(t, vid))
}

func TestRevalidationDropsIntent(t *testing.T) {
	e := newEnv(t)
	ended := e.seed(t, 5, now.Add(-2*time.Hour), now.Add(-time.Hour), 7)
	empty := e.seed(t, 1, now.Add(-time.Hour), now.Add(time.Hour), 7)
	_, err := e.store.Catalog.CreateOrder(e.ctx, &catalog.VoucherOrder{ID: 1, UserID: 8, VoucherID: empty})
	require.NoError(t, err)

	e.publish(t, seckill.OrderIntent{OrderID: 2, UserID: 7, VoucherID: ended, CreatedAt: now})
	e.publish(t, seckill.OrderIntent{OrderID: 3, UserID: 7, VoucherID: empty, CreatedAt: now})
	e.publish(t, seckill.OrderIntent{OrderID: 4, UserID: 7, VoucherID: 999, CreatedAt: now})
	e.publish(t, seckill.OrderIntent{})

	require.Eventually(t, func() bool { return e.store.lookups.Load() == 3 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(3), e.store.lookups.Load(), "dropped intents are acked, not redelivered")
	assert.Zero(t, e.store.creates.Load())

	stock, err := e.counter.Stock(e.ctx, ended)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stock, "dropping does not compensate")
}

func TestTransientFailureRetriedThenPersisted(t *testing.T) {
	e := newEnv(t)
	vid := e.seed(t, 5, now.Add(-time.Hour), now.Add(time.Hour), 7)
	e.store.failures.Store(2)

	e.publish(t, seckill.OrderIntent{OrderID: 1001, UserID: 7, VoucherID: vid, CreatedAt: now})

	require.Eventually(t, func() bool {
		_, err := e.store.FindOrder(e.ctx, 7, vid)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(3), e.store.creates.Load())

	stock, err := e.counter.Stock(e.ctx, vid)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stock, "no compensation on eventual success")
}

func TestExhaustedRetriesCompensateOnceAndRequeueOnce(t *testing.T) {
	e := newEnv(t)
	vid := e.seed(t, 1, now.Add(-time.Hour), now.Add(time.Hour), 7)
	e.store.failures.Store(-1)

	e.publish(t, seckill.OrderIntent{OrderID: 1001, UserID: 7, VoucherID: vid, CreatedAt: now})

	// 首次投递 3 次尝试后补偿并 Nak，再次投递发现补偿标记后直接确认
	require.Eventually(t, func() bool { return e.counter.checks.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(3), e.store.creates.Load())
	assert.Equal(t, int32(1), e.counter.checks.Load())

	stock, err := e.counter.Stock(e.ctx, vid)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stock, "fast-path stock restored exactly once")

	_, err = e.store.FindOrder(e.ctx, 7, vid)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Equal(t, 1, e.durableStock(t, vid))

	r, err := e.counter.Admit(e.ctx, vid, 7)
	require.NoError(t, err)
	assert.Equal(t, seckill.ResultOK, r, "buyer may try again after compensation")
}

func TestRedeliveryAfterCompensationDoesNotPersist(t *testing.T) {
	e := newEnv(t)
	vid := e.seed(t, 1, now.Add(-time.Hour), now.Add(time.Hour), 7)
	// 只有首次投递的 3 次尝试失败，重新投递时数据库已恢复
	e.store.failures.Store(3)

	e.publish(t, seckill.OrderIntent{OrderID: 1001, UserID: 7, VoucherID: vid, CreatedAt: now})

	require.Eventually(t, func() bool { return e.counter.checks.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(3), e.store.creates.Load())

	_, err := e.store.FindOrder(e.ctx, 7, vid)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	stock, err := e.counter.Stock(e.ctx, vid)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stock)
	assert.Equal(t, 1, e.durableStock(t, vid))
}

func TestRepeatPurchaseCompensatedPerOrder(t *testing.T) {
	e := newEnv(t)
	vid := e.seed(t, 1, now.Add(-time.Hour), now.Add(time.Hour), 7)
	e.store.failures.Store(-1)

	e.publish(t, seckill.OrderIntent{OrderID: 1001, UserID: 7, VoucherID: vid, CreatedAt: now})
	require.Eventually(t, func() bool { return e.counter.checks.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	r, err := e.counter.Admit(e.ctx, vid, 7)
	require.NoError(t, err)
	require.Equal(t, seckill.ResultOK, r)
	stock, err := e.counter.Stock(e.ctx, vid)
	require.NoError(t, err)
	require.Zero(t, stock)

	e.publish(t, seckill.OrderIntent{OrderID: 1002, UserID: 7, VoucherID: vid, CreatedAt: now})
	require.Eventually(t, func() bool { return e.counter.checks.Load() == 2 }, 5*time.Second, 10*time.Millisecond)

	stock, err = e.counter.Stock(e.ctx, vid)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stock, "the second order's unit is restored too")
	assert.Equal(t, 1, e.durableStock(t, vid))
}

func TestRevalidationErrorIsRetried(t *testing.T) {
	e := newEnv(t)
	vid := e.seed(t, 1, now.Add(-time.Hour), now.Add(time.Hour), 7)
	e.store.lookupFailures.Store(1)

	e.publish(t, seckill.OrderIntent{OrderID: 1001, UserID: 7, VoucherID: vid, CreatedAt: now})

	require.Eventually(t, func() bool {
		_, err := e.store.FindOrder(e.ctx, 7, vid)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), e.store.lookups.Load())
	assert.Equal(t, int32(1), e.store.creates.Load())
	assert.Zero(t, e.durableStock(t, vid))

	stock, err := e.counter.Stock(e.ctx, vid)
	require.NoError(t, err)
	assert.Zero(t, stock, "a failed lookup does not compensate")
	assert.Zero(t, e.counter.checks.Load())
}
