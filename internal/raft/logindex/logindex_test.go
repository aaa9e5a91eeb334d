package logindex

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	values := []Index{0, 1, 7, 42, 255, 256, 1 << 32, math.MaxInt64, None, math.MinInt64}

	for _, v := range values {
		t.Run(v.String(), func(t *testing.T) {
			encoded := Encode(v)
			assert.Len(t, encoded, HeaderSize)

			decoded, err := Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, v, decoded)
		})
	}
}

func TestEncode(t *testing.T) {
	t.Run("is big-endian", func(t *testing.T) {
		assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0x01, 0x02}, Encode(258))
	})

	t.Run("is two's complement", func(t *testing.T) {
		assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, Encode(-1))
	})

	t.Run("encoded zero is not an absent header", func(t *testing.T) {
		encoded := Encode(0)
		assert.NotEmpty(t, encoded)

		decoded, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, Index(0), decoded)
	})
}

func TestDecode_Errors(t *testing.T) {
	t.Run("nil header", func(t *testing.T) {
		_, err := Decode(nil)
		assert.ErrorIs(t, err, ErrMissingHeader)
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})

	t.Run("empty header", func(t *testing.T) {
		_, err := Decode([]byte{})
		assert.ErrorIs(t, err, ErrMissingHeader)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := Decode([]byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrInvalidHeader)
		assert.NotErrorIs(t, err, ErrMissingHeader)
	})

	t.Run("too long", func(t *testing.T) {
		_, err := Decode(make([]byte, HeaderSize+1))
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})
}

func TestIndex_String(t *testing.T) {
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "0", Index(0).String())
	assert.Equal(t, "42", Index(42).String())
}
