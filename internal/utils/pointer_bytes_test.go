package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type pair struct {
	A int64
	B int64
}

func TestPointerBytesRoundTrip(t *testing.T) {
	p := pair{A: 1, B: 2}
	b := PointerToBytes(&p, 16)
	require.Len(t, b, 16)

	q := BytesToPointer[pair](b)
	require.Equal(t, p, *q)

	q.B = 42
	require.Equal(t, int64(42), p.B, "pointer must alias the original memory")
}

func TestSliceBytes(t *testing.T) {
	s := []float64{1.5, -2, 3}
	b := SliceToBytes(s)
	require.Len(t, b, 24)

	back := BytesToSlice[float64](b)
	require.Equal(t, s, back)

	require.Nil(t, SliceToBytes[float64](nil))
	require.Nil(t, BytesToSlice[float64](make([]byte, 7)))
}
