package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shop struct {
	ID   int64  `json:"id" msgpack:"id"`
	Name string `json:"name" msgpack:"name"`
}

func TestSerializers(t *testing.T) {
	for _, name := range []string{JSON, MsgPack} {
		t.Run(name, func(t *testing.T) {
			s, err := New(name)
			require.NoError(t, err)
			assert.Equal(t, name, s.Name())

			b, err := s.Marshal(shop{ID: 1, Name: "103茶餐厅"})
			require.NoError(t, err)

			var got shop
			require.NoError(t, s.Unmarshal(b, &got))
			assert.Equal(t, shop{ID: 1, Name: "103茶餐厅"}, got)
		})
	}
}

func TestNewDefaultsAndRejects(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	assert.Equal(t, JSON, s.Name())

	_, err = New("gob")
	assert.ErrorIs(t, err, ErrUnsupportedSerializer)
}
