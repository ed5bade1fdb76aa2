package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/seckill/cache/serializer"
)

func newTestCodec() codec {
	return codec{values: serializer.JSONSerializer{}, loc: time.UTC}
}

func TestParseStringEnvelope(t *testing.T) {
	c := newTestCodec()

	ent, err := c.parse(Raw{Type: typeString, String: []byte(`{"data":{"id":1},"expireTime":"2025-10-01 12:00:00"}`)}, true)
	require.NoError(t, err)
	assert.Equal(t, entryValue, ent.state)
	assert.False(t, ent.legacy)
	assert.Equal(t, time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC), ent.expireAt)
	assert.JSONEq(t, `{"id":1}`, string(ent.data))

	ent, err = c.parse(Raw{Type: typeString, String: []byte(`{"id":1}`)}, true)
	require.NoError(t, err)
	assert.True(t, ent.legacy)

	ent, err = c.parse(Raw{Type: typeString, String: []byte(`{"id":1}`)}, false)
	require.NoError(t, err)
	assert.False(t, ent.legacy)
	assert.True(t, ent.expireAt.IsZero())

	_, err = c.parse(Raw{Type: typeString, String: []byte(`{"data":1,"expireTime":"yesterday"}`)}, true)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestParseHashVariants(t *testing.T) {
	c := newTestCodec()

	ent, err := c.parse(Raw{Type: typeHash, Fields: map[string]string{NullMarker: "1"}}, true)
	require.NoError(t, err)
	assert.Equal(t, entryNull, ent.state)

	ent, err = c.parse(Raw{Type: typeHash, Fields: map[string]string{"data": `{"id":2}`, "expireTime": "2025-10-01 12:00:00"}}, true)
	require.NoError(t, err)
	assert.False(t, ent.legacy)
	assert.False(t, ent.expireAt.IsZero())

	// 只有 data 没有 expireTime 的 Hash 按展开字段处理
	ent, err = c.parse(Raw{Type: typeHash, Fields: map[string]string{"data": "x"}}, true)
	require.NoError(t, err)
	assert.True(t, ent.legacy)
	assert.JSONEq(t, `{"data":"x"}`, string(ent.data))

	ent, err = c.parse(Raw{Type: typeNone}, true)
	require.NoError(t, err)
	assert.Equal(t, entryMiss, ent.state)
}

func TestFlattenRoundTrip(t *testing.T) {
	fields, data, err := flatten(map[string]any{"id": 1, "name": "true", "tags": []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, `"true"`, fields["name"])
	assert.Equal(t, `["a"]`, fields["tags"])
	assert.JSONEq(t, string(data), string(unflatten(fields)))

	_, _, err = flatten([]int{1})
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestExpiredUsesSecondPrecision(t *testing.T) {
	c := newTestCodec()
	at := time.Date(2025, 10, 1, 12, 0, 0, 900_000_000, time.UTC)
	out, err := c.encodeLogical(map[string]int{"id": 1}, at, EncodingString)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC), out.ent.expireAt)
	assert.False(t, out.ent.expired(at.Add(-time.Second)))
	assert.True(t, out.ent.expired(at.Add(time.Second)))
}
