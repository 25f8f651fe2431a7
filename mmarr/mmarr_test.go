package mmarr

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type dims struct {
	Rows int64
	Cols int64
}

func TestNewRequiresCapacity(t *testing.T) {
	_, err := NewWithHeader[float64, dims](filepath.Join(t.TempDir(), "arr.bin"))
	require.ErrorIs(t, err, ErrCapacityMandatory)
}

func TestItemsHeadReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arr.bin")
	arr, err := NewWithHeader[float64, dims](path, 6)
	require.NoError(t, err)
	require.Equal(t, 6, arr.Cap())

	*arr.Head() = dims{Rows: 2, Cols: 3}

	for i := range arr.Items() {
		arr.Items()[i] = float64(i) * 1.5
	}

	require.NoError(t, arr.Close())

	ro, err := OpenROWithHeader[float64, dims](path)
	require.NoError(t, err)
	t.Cleanup(func() { ro.Close() })

	require.Equal(t, dims{Rows: 2, Cols: 3}, *ro.Head())
	require.Equal(t, 6, ro.Len())
	require.Equal(t, 8, ro.ItemSize())
	require.Equal(t, []float64{0, 1.5, 3, 4.5, 6, 7.5}, ro.Items())
	require.NoError(t, ro.Flush())
}

func TestReopenKeepsStoredHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arr.bin")
	arr, err := NewWithHeader[int64, dims](path, 2, 4)
	require.NoError(t, err)
	require.NoError(t, arr.Close())

	arr, err = NewWithHeader[int64, dims](path, 9)
	require.NoError(t, err)
	t.Cleanup(func() { arr.Close() })

	require.Equal(t, 2, arr.Len())
	require.Equal(t, 4, arr.Cap())
}

func TestOpenRejectsOtherItemType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arr.bin")
	arr, err := NewWithHeader[int32, dims](path, 4)
	require.NoError(t, err)
	require.NoError(t, arr.Close())

	_, err = OpenROWithHeader[float64, dims](path)
	require.ErrorIs(t, err, ErrInvalidItemSize)
}
