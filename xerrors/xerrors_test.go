package xerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))

	base := errors.New("base error")
	wrapped := Wrap(base, "context")
	require.NotNil(t, wrapped)
	assert.Equal(t, "context: base error", wrapped.Error())
	assert.ErrorIs(t, wrapped, base)
}

func TestWrapf(t *testing.T) {
	assert.Nil(t, Wrapf(nil, "user %d", 123))

	wrapped := Wrapf(ErrNotFound, "voucher %d", 7)
	assert.Equal(t, "voucher 7: not found", wrapped.Error())
	assert.ErrorIs(t, wrapped, ErrNotFound)
}

func TestWithCode(t *testing.T) {
	assert.Nil(t, WithCode(nil, "CODE"))

	coded := WithCode(errors.New("库存不足"), "STOCK_EXHAUSTED")
	assert.Equal(t, "[STOCK_EXHAUSTED] 库存不足", coded.Error())
	assert.Equal(t, "STOCK_EXHAUSTED", GetCode(coded))
	assert.Equal(t, "STOCK_EXHAUSTED", GetCode(Wrap(coded, "admit")))
	assert.Empty(t, GetCode(errors.New("plain")))
}

func TestCodedErrorIs(t *testing.T) {
	sentinel := WithCode(errors.New("不能重复下单"), "DUPLICATE_ORDER")
	other := WithCode(errors.New("different text"), "DUPLICATE_ORDER")

	assert.ErrorIs(t, Wrapf(other, "voucher %d", 1), sentinel)
	assert.NotErrorIs(t, WithCode(errors.New("x"), "ENDED"), sentinel)
}

func TestHasCode(t *testing.T) {
	inner := WithCode(ErrUnavailable, "TRANSIENT_PERSISTENCE")
	outer := WithCode(Wrap(inner, "create order"), "FULFILLMENT")

	assert.True(t, HasCode(outer, "FULFILLMENT"))
	assert.True(t, HasCode(outer, "TRANSIENT_PERSISTENCE"))
	assert.False(t, HasCode(outer, "NOT_FOUND"))
	assert.True(t, HasCode(Combine(errors.New("a"), inner), "TRANSIENT_PERSISTENCE"))
	assert.False(t, HasCode(nil, "X"))
}

func TestMust(t *testing.T) {
	assert.Equal(t, 42, Must(42, nil))
	assert.Panics(t, func() { Must(0, errors.New("boom")) })
}

func TestCollector(t *testing.T) {
	var c Collector
	assert.NoError(t, c.Err())

	first := errors.New("first")
	c.Collect(nil)
	c.Collect(first)
	c.Collect(errors.New("second"))
	assert.Same(t, first, c.Err())
}

func TestCombine(t *testing.T) {
	assert.NoError(t, Combine(nil, nil))

	a := errors.New("a")
	assert.Same(t, a, Combine(nil, a))

	b := errors.New("b")
	err := Combine(a, nil, b)
	var multi *MultiError
	require.ErrorAs(t, err, &multi)
	assert.Len(t, multi.Errors, 2)
	assert.Equal(t, "a (and 1 more errors)", err.Error())
	assert.ErrorIs(t, err, b)
}

func TestSentinelErrors(t *testing.T) {
	for _, err := range []error{ErrNotFound, ErrInvalidInput, ErrUnavailable, ErrTimeout, ErrConflict} {
		assert.ErrorIs(t, fmt.Errorf("ctx: %w", err), err)
	}
}
