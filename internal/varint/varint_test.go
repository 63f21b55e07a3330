package varint

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUvarintRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cases := []uint64{0, 1, 127, 128, 300, 1 << 32, ^uint64(0)}
	for i := 0; i < 1000; i++ {
		cases = append(cases, rng.Uint64())
	}

	for _, v := range cases {
		buf := make([]byte, MaxBytes)
		n := PutUvarint(buf, v)
		require.LessOrEqual(t, n, MaxBytes)
		require.Equal(t, Size(v), n)

		got, consumed := Uvarint(buf[:n])
		require.Equal(t, n, consumed)
		require.Equal(t, v, got)

		got2, consumed2, err := SafeUvarint(buf, 0, n)
		require.NoError(t, err)
		require.Equal(t, n, consumed2)
		require.Equal(t, v, got2)
	}
}

func TestSafeUvarintTruncated(t *testing.T) {
	buf := []byte{0x80, 0x80, 0x80} // never terminates within buffer
	_, _, err := SafeUvarint(buf, 0, len(buf))
	require.Error(t, err)
}

func TestSafeUvarintOverlong(t *testing.T) {
	buf := make([]byte, 11)
	for i := range buf {
		buf[i] = 0x80
	}
	buf[10] = 0x01
	_, _, err := SafeUvarint(buf, 0, len(buf))
	require.Error(t, err)
}

func TestSignedVarintRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	cases := []int64{0, -1, 1, -2, 2, 1<<62 - 1, -(1 << 62)}
	for i := 0; i < 1000; i++ {
		cases = append(cases, int64(rng.Uint64()))
	}

	for _, v := range cases {
		buf := make([]byte, MaxBytes)
		n := PutVarint(buf, v)
		require.Equal(t, SizeSigned(v), n)

		got, consumed := Varint(buf[:n])
		require.Equal(t, n, consumed)
		require.Equal(t, v, got)
	}
}

func TestZigZagOrderingPreservesSign(t *testing.T) {
	require.Equal(t, uint64(0), ZigZagEncode(0))
	require.Equal(t, uint64(1), ZigZagEncode(-1))
	require.Equal(t, uint64(2), ZigZagEncode(1))
	require.Equal(t, uint64(3), ZigZagEncode(-2))
	require.Equal(t, uint64(4), ZigZagEncode(2))
}
