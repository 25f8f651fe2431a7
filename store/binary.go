package store

import (
	"errors"
	"fmt"

	"github.com/webbmaffian/go-matmul/matrix"
	"github.com/webbmaffian/go-matmul/mmarr"
)

// BinaryExt marks files holding a matrix as a memory-mapped array of float64
// values instead of text.
const BinaryExt = ".mmat"

const binaryMagic = 0x74616d6d6d6d6174

type shape struct {
	Magic uint64
	Rows  int64
	Cols  int64
}

// LoadBinary reads a matrix written by SaveBinary.
func LoadBinary(path string) (m *matrix.Dense, err error) {
	arr, err := mmarr.OpenROWithHeader[float64, shape](path)

	if err != nil {
		if errors.Is(err, mmarr.ErrInvalidHeader) || errors.Is(err, mmarr.ErrInvalidItemSize) {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, path, err)
		}

		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	defer arr.Close()

	head := arr.Head()

	if head.Magic != binaryMagic {
		return nil, fmt.Errorf("%w: %s is not a matrix file", ErrMalformed, path)
	}

	if head.Rows <= 0 || head.Cols <= 0 || head.Rows*head.Cols != int64(arr.Len()) {
		return nil, fmt.Errorf("%w: %dx%d matrix with %d values", ErrMalformed, head.Rows, head.Cols, arr.Len())
	}

	data := make([]float64, arr.Len())
	copy(data, arr.Items())

	return matrix.FromData(int(head.Rows), int(head.Cols), data)
}

// SaveBinary writes m to path, which must not exist yet.
func SaveBinary(path string, m *matrix.Dense) (err error) {
	rows, cols := m.Dims()
	arr, err := mmarr.NewWithHeader[float64, shape](path, rows*cols)

	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	*arr.Head() = shape{
		Magic: binaryMagic,
		Rows:  int64(rows),
		Cols:  int64(cols),
	}

	copy(arr.Items(), m.Raw())

	if err = arr.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	return
}
