package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/seckill/testkit"
)

var errNotFound = errors.New("record not found")

func newTestBreaker(t *testing.T, opts ...Option) Breaker {
	t.Helper()
	opts = append([]Option{WithLogger(testkit.NewLogger()), WithMeter(testkit.NewMeter())}, opts...)
	b, err := New(&Config{MinimumRequests: 3, FailureRatio: 0.5, Timeout: 50 * time.Millisecond}, opts...)
	require.NoError(t, err)
	return b
}

func fail(err error) func() (any, error) {
	return func() (any, error) { return nil, err }
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(&Config{FailureRatio: 1.5})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTripAndRecover(t *testing.T) {
	b := newTestBreaker(t)
	ctx := context.Background()

	for range 3 {
		_, err := b.Execute(ctx, "catalog.voucher", fail(assert.AnError))
		assert.ErrorIs(t, err, assert.AnError)
	}
	state, err := b.State("catalog.voucher")
	require.NoError(t, err)
	assert.Equal(t, StateOpen, state)

	_, err = b.Execute(ctx, "catalog.voucher", func() (any, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrOpenState)

	// 其他 key 不受影响
	v, err := b.Execute(ctx, "catalog.shop", func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	time.Sleep(80 * time.Millisecond)
	state, err = b.State("catalog.voucher")
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, state)

	_, err = b.Execute(ctx, "catalog.voucher", func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	state, _ = b.State("catalog.voucher")
	assert.Equal(t, StateClosed, state)
}

func TestSuccessFuncKeepsClosed(t *testing.T) {
	b := newTestBreaker(t, WithSuccessFunc(func(err error) bool {
		return err == nil || errors.Is(err, errNotFound)
	}))
	ctx := context.Background()

	for range 5 {
		_, err := b.Execute(ctx, "catalog.voucher", fail(errNotFound))
		assert.ErrorIs(t, err, errNotFound)
	}
	state, err := b.State("catalog.voucher")
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)
}

func TestFallback(t *testing.T) {
	var fallbackKey string
	b := newTestBreaker(t, WithFallback(func(_ context.Context, key string, _ error) error {
		fallbackKey = key
		return nil
	}))
	ctx := context.Background()

	for range 3 {
		_, _ = b.Execute(ctx, "catalog.shop", fail(assert.AnError))
	}
	v, err := b.Execute(ctx, "catalog.shop", func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, "catalog.shop", fallbackKey)
}

func TestDoTyped(t *testing.T) {
	b := newTestBreaker(t)
	n, err := Do(context.Background(), b, "k", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = b.Execute(context.Background(), "", fail(nil))
	assert.ErrorIs(t, err, ErrKeyEmpty)

	state, err := b.State("never-used")
	require.NoError(t, err)
	assert.Equal(t, "closed", state.String())
}
