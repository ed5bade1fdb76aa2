package seckill

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/seckill/testkit"
)

func counterStores(t *testing.T) map[string]CounterStore {
	conn, _ := testkit.NewMiniRedisConnector(t)
	redisCounter, err := NewRedisCounter(conn)
	require.NoError(t, err)
	return map[string]CounterStore{
		"memory": NewMemoryCounter(),
		"redis":  redisCounter,
	}
}

func TestCounterAdmitSemantics(t *testing.T) {
	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			r, err := store.Admit(ctx, 1, 1)
			require.NoError(t, err)
			assert.Equal(t, ResultStockExhausted, r, "missing stock key counts as exhausted")

			require.NoError(t, store.SetStock(ctx, 1, 2))
			r, err = store.Admit(ctx, 1, 1)
			require.NoError(t, err)
			assert.Equal(t, ResultOK, r)

			r, err = store.Admit(ctx, 1, 1)
			require.NoError(t, err)
			assert.Equal(t, ResultDuplicate, r)

			r, err = store.Admit(ctx, 1, 2)
			require.NoError(t, err)
			assert.Equal(t, ResultOK, r)

			r, err = store.Admit(ctx, 1, 3)
			require.NoError(t, err)
			assert.Equal(t, ResultStockExhausted, r)

			stock, err := store.Stock(ctx, 1)
			require.NoError(t, err)
			assert.Zero(t, stock)
		})
	}
}

func TestCounterNoOversell(t *testing.T) {
	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.SetStock(ctx, 5, 10))

			var (
				wg sync.WaitGroup
				ok atomic.Int32
			)
			for i := range 50 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					r, err := store.Admit(ctx, 5, int64(i+1))
					if assert.NoError(t, err) && r == ResultOK {
						ok.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(10), ok.Load())
			stock, err := store.Stock(ctx, 5)
			require.NoError(t, err)
			assert.Zero(t, stock)
		})
	}
}

func TestCounterCompensateOnce(t *testing.T) {
	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.SetStock(ctx, 1, 1))
			r, err := store.Admit(ctx, 1, 9)
			require.NoError(t, err)
			require.Equal(t, ResultOK, r)

			done, err := store.Compensate(ctx, 1001, 1, 9, time.Hour)
			require.NoError(t, err)
			assert.True(t, done)
			marked, err := store.Compensated(ctx, 1001)
			require.NoError(t, err)
			assert.True(t, marked)

			done, err = store.Compensate(ctx, 1001, 1, 9, time.Hour)
			require.NoError(t, err)
			assert.False(t, done, "second compensation for the same intent is a no-op")

			stock, err := store.Stock(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(1), stock)

			// 用户标记已移除，可以再次抢购
			r, err = store.Admit(ctx, 1, 9)
			require.NoError(t, err)
			assert.Equal(t, ResultOK, r)
		})
	}
}

func TestCounterCompensatesEachOrderOfSameBuyer(t *testing.T) {
	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.SetStock(ctx, 2, 1))

			for _, orderID := range []int64{2001, 2002} {
				r, err := store.Admit(ctx, 2, 9)
				require.NoError(t, err)
				require.Equal(t, ResultOK, r)

				done, err := store.Compensate(ctx, orderID, 2, 9, time.Hour)
				require.NoError(t, err)
				assert.True(t, done, "order %d", orderID)

				stock, err := store.Stock(ctx, 2)
				require.NoError(t, err)
				assert.Equal(t, int64(1), stock, "order %d", orderID)
			}

			marked, err := store.Compensated(ctx, 2003)
			require.NoError(t, err)
			assert.False(t, marked)
		})
	}
}

func TestRedisCounterKeys(t *testing.T) {
	conn, mr := testkit.NewMiniRedisConnector(t)
	store, err := NewRedisCounter(conn)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.SetStock(ctx, 3, 1))
	_, err = store.Admit(ctx, 3, 11)
	require.NoError(t, err)
	_, err = store.Compensate(ctx, 3001, 3, 11, time.Minute)
	require.NoError(t, err)

	v, err := mr.Get("seckill:stock:3")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	assert.True(t, mr.Exists("seckill:compensated:3001"))
	assert.Equal(t, time.Minute, mr.TTL("seckill:compensated:3001"))
	ok, _ := mr.SIsMember("seckill:order:3", "11")
	assert.False(t, ok)

	_, err = NewRedisCounter(nil)
	assert.ErrorIs(t, err, ErrDependencyNil)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "ok", ResultOK.String())
	assert.Equal(t, "duplicate", ResultDuplicate.String())
	assert.Equal(t, "unknown", Result(9).String())
}
