package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{1, 2, 3},
		{0, 0, 0},
		{1, 0, 2, 0, 3},
		bytes.Repeat([]byte{1}, 300),
		bytes.Repeat([]byte{0}, 10),
		append(bytes.Repeat([]byte{7}, 253), 0, 9),
	}
	for _, c := range cases {
		encoded := Encode(c)
		assert.NotContains(t, encoded[:len(encoded)-1], byte(0), "no interior zero bytes")
		assert.Equal(t, byte(0), encoded[len(encoded)-1], "terminating delimiter")

		decoded := Decode(append([]byte(nil), encoded...))
		if len(c) == 0 {
			assert.Empty(t, decoded)
		} else {
			assert.Equal(t, c, decoded)
		}
	}
}

func TestMaxEncodedLenBoundsEncode(t *testing.T) {
	for _, n := range []int{0, 1, 253, 254, 255, 1000, 4096} {
		buf := bytes.Repeat([]byte{1}, n)
		encoded := Encode(buf)
		require.LessOrEqual(t, len(encoded), MaxEncodedLen(n))
	}
}

func TestDecodeAliasesInput(t *testing.T) {
	encoded := Encode([]byte{1, 2, 3})
	decoded := Decode(encoded)
	assert.Equal(t, []byte{1, 2, 3}, decoded)

	// Decode must reuse encoded's backing array rather than allocate a
	// fresh one: mutating decoded must be visible through encoded.
	decoded[0] = 99
	assert.Equal(t, byte(99), encoded[0])
}

func TestDecodeTruncatedFrameRecoversPrefix(t *testing.T) {
	encoded := Encode([]byte{1, 2, 3, 4, 5})
	truncated := encoded[:len(encoded)-2] // drop trailing bytes and delimiter
	decoded := Decode(truncated)
	assert.True(t, bytes.HasPrefix([]byte{1, 2, 3, 4, 5}, decoded))
}
