package seckill

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/seckill/bloom"
	"github.com/ceyewan/seckill/catalog"
	"github.com/ceyewan/seckill/idgen"
	"github.com/ceyewan/seckill/mq"
	"github.com/ceyewan/seckill/testkit"
	"github.com/ceyewan/seckill/xerrors"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type stubVouchers map[int64]*catalog.SeckillVoucher

func (s stubVouchers) GetVoucher(_ context.Context, id int64) (*catalog.SeckillVoucher, error) {
	if v, ok := s[id]; ok {
		return v, nil
	}
	return nil, catalog.ErrNotFound
}

type recordingPublisher struct {
	mu      sync.Mutex
	fail    error
	topics  []string
	intents []OrderIntent
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, data []byte, _ ...mq.PublishOption) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	intent, err := ParseIntent(data)
	if err != nil {
		return err
	}
	p.topics = append(p.topics, topic)
	p.intents = append(p.intents, intent)
	return nil
}

func (p *recordingPublisher) published() []OrderIntent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]OrderIntent(nil), p.intents...)
}

type fixture struct {
	gate    *Gate
	counter CounterStore
	pub     *recordingPublisher
}

func vouchers() stubVouchers {
	return stubVouchers{
		1: {VoucherID: 1, Stock: 100, BeginTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour)},
		2: {VoucherID: 2, Stock: 100, BeginTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour)},
		3: {VoucherID: 3, Stock: 100, BeginTime: now.Add(-2 * time.Hour), EndTime: now.Add(-time.Hour)},
	}
}

func newFixture(t *testing.T, counter CounterStore, opts ...Option) *fixture {
	t.Helper()
	ids, err := idgen.New(&idgen.Config{Driver: idgen.DriverMemory})
	require.NoError(t, err)

	pub := &recordingPublisher{}
	opts = append([]Option{
		WithLogger(testkit.NewLogger()),
		WithMeter(testkit.NewMeter()),
		WithCounterStore(counter),
		WithVoucherSource(vouchers()),
		WithIDGenerator(ids),
		WithPublisher(pub),
		WithClock(func() time.Time { return now }),
	}, opts...)
	gate, err := New(&Config{}, opts...)
	require.NoError(t, err)
	return &fixture{gate: gate, counter: counter, pub: pub}
}

func asUser(id int64) context.Context {
	return WithUserID(context.Background(), id)
}

func TestUserIDFromContext(t *testing.T) {
	_, err := UserID(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = UserID(WithUserID(context.Background(), 0))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	id, err := UserID(asUser(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(&Config{})
	assert.ErrorIs(t, err, ErrDependencyNil)

	_, err = New(&Config{PublishTimeout: -time.Second}, WithCounterStore(NewMemoryCounter()))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := &Config{}
	cfg.setDefaults()
	assert.Equal(t, "seckill.orders", cfg.Topic)
	assert.Equal(t, "order", cfg.IDSequence)
}

func TestAdmitPublishesIntent(t *testing.T) {
	f := newFixture(t, NewMemoryCounter())
	ctx := asUser(7)
	require.NoError(t, f.gate.Preload(ctx, 1, 10))

	adm, err := f.gate.Admit(ctx, 1)
	require.NoError(t, err)
	assert.True(t, adm.Published)
	assert.Positive(t, adm.OrderID)

	intents := f.pub.published()
	require.Len(t, intents, 1)
	assert.Equal(t, OrderIntent{OrderID: adm.OrderID, UserID: 7, VoucherID: 1, CreatedAt: now}, intents[0])
	assert.Equal(t, []string{DefaultTopic}, f.pub.topics)

	stock, err := f.counter.Stock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(9), stock)
}

func TestAdmitRejections(t *testing.T) {
	f := newFixture(t, NewMemoryCounter())
	ctx := asUser(7)
	require.NoError(t, f.gate.Preload(ctx, 1, 1))

	cases := []struct {
		name      string
		ctx       context.Context
		voucherID int64
		want      error
		message   string
	}{
		{"missing voucher", ctx, 99, ErrVoucherNotFound, "优惠券不存在"},
		{"invalid id", ctx, 0, ErrVoucherNotFound, "优惠券不存在"},
		{"not started", ctx, 2, ErrNotStarted, "还没到秒杀时间哟！"},
		{"ended", ctx, 3, ErrEnded, "来晚啦秒杀时间已结束！"},
		{"anonymous", context.Background(), 1, ErrUnauthenticated, "请先登录"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.gate.Admit(tc.ctx, tc.voucherID)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.message, Message(err))
		})
	}
	assert.Empty(t, f.pub.published())
}

func TestAdmitDuplicateDoesNotTouchStock(t *testing.T) {
	f := newFixture(t, NewMemoryCounter())
	ctx := asUser(7)
	require.NoError(t, f.gate.Preload(ctx, 1, 5))

	_, err := f.gate.Admit(ctx, 1)
	require.NoError(t, err)

	_, err = f.gate.Admit(ctx, 1)
	assert.ErrorIs(t, err, ErrDuplicateOrder)
	assert.Equal(t, "不能重复下单", Message(err))

	stock, err := f.counter.Stock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stock)
	assert.Len(t, f.pub.published(), 1)
}

func TestAdmitLastUnitRace(t *testing.T) {
	f := newFixture(t, NewMemoryCounter())
	require.NoError(t, f.gate.Preload(context.Background(), 1, 1))

	_, err := f.gate.Admit(asUser(1), 1)
	require.NoError(t, err)
	_, err = f.gate.Admit(asUser(2), 1)
	assert.ErrorIs(t, err, ErrStockExhausted)
	assert.Equal(t, "库存不足", Message(err))
}

func TestAdmitPublishFailureStillAccepted(t *testing.T) {
	f := newFixture(t, NewMemoryCounter())
	f.pub.fail = xerrors.New("broker unavailable")
	ctx := asUser(7)
	require.NoError(t, f.gate.Preload(ctx, 1, 2))

	adm, err := f.gate.Admit(ctx, 1)
	require.NoError(t, err)
	assert.False(t, adm.Published)

	stock, err := f.counter.Stock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stock)
}

func TestAdmitBloomRejectsUnknownVoucher(t *testing.T) {
	reg, err := bloom.NewRegistry(&bloom.Config{Driver: bloom.DriverMemory})
	require.NoError(t, err)
	filter := reg.Filter(bloom.KindVoucher)

	var lookups atomic.Int32
	src := countingSource{inner: vouchers(), calls: &lookups}
	f := newFixture(t, NewMemoryCounter(), WithBloom(filter), WithVoucherSource(src))

	_, err = f.gate.Admit(asUser(7), 1)
	assert.ErrorIs(t, err, ErrVoucherNotFound)
	assert.Zero(t, lookups.Load())

	require.NoError(t, f.gate.Preload(context.Background(), 1, 1))
	_, err = f.gate.Admit(asUser(7), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), lookups.Load())
}

type countingSource struct {
	inner stubVouchers
	calls *atomic.Int32
}

func (s countingSource) GetVoucher(ctx context.Context, id int64) (*catalog.SeckillVoucher, error) {
	s.calls.Add(1)
	return s.inner.GetVoucher(ctx, id)
}

func TestPreloadValidation(t *testing.T) {
	f := newFixture(t, NewMemoryCounter())
	assert.ErrorIs(t, f.gate.Preload(context.Background(), 0, 1), xerrors.ErrInvalidInput)
	assert.ErrorIs(t, f.gate.Preload(context.Background(), 1, -1), xerrors.ErrInvalidInput)
}

func TestParseIntent(t *testing.T) {
	_, err := ParseIntent([]byte("{"))
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = ParseIntent([]byte(`{"orderId":1,"userId":0,"voucherId":2}`))
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	in := OrderIntent{OrderID: 1, UserID: 2, VoucherID: 3, CreatedAt: now}
	data, err := in.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"orderId":1,"userId":2,"voucherId":3,"createdAt":"2026-05-01T12:00:00Z"}`, string(data))
}
