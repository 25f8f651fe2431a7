package comm

import (
	"fmt"
	"unsafe"

	"github.com/webbmaffian/go-matmul/internal/utils"
	"github.com/webbmaffian/go-matmul/matrix"
)

type kind uint16

const (
	kindData kind = iota + 1
	kindBarrierAck
	kindBarrierRelease
)

func (k kind) String() string {
	switch k {
	case kindData:
		return "data"
	case kindBarrierAck:
		return "barrier-ack"
	case kindBarrierRelease:
		return "barrier-release"
	}

	return fmt.Sprintf("kind(%d)", uint16(k))
}

// frameHead starts every item on a link. A message larger than one item is
// split over consecutive frames sharing tag, kind and total.
type frameHead struct {
	tag    uint32 // sequence number of the collective
	kind   kind
	final  uint16 // 1 on the last frame of a message
	total  uint32 // payload bytes of the whole message
	length uint32 // payload bytes in this frame
}

const frameHeadSize = int(unsafe.Sizeof(frameHead{}))

// matrixHead precedes the values of an encoded matrix.
type matrixHead struct {
	rows uint64
	cols uint64
}

const matrixHeadSize = int(unsafe.Sizeof(matrixHead{}))

func encodeMatrix(m *matrix.Dense) []byte {
	rows, cols := m.Dims()
	b := make([]byte, matrixHeadSize+8*rows*cols)

	head := utils.BytesToPointer[matrixHead](b)
	head.rows = uint64(rows)
	head.cols = uint64(cols)

	copy(b[matrixHeadSize:], utils.SliceToBytes(m.Raw()))
	return b
}

func decodeMatrix(b []byte) (m *matrix.Dense, err error) {
	if len(b) < matrixHeadSize {
		return nil, fmt.Errorf("%w: matrix message of %d bytes", ErrCommFailure, len(b))
	}

	head := *utils.BytesToPointer[matrixHead](b)
	values := b[matrixHeadSize:]

	// Bound each dimension by the payload first so the product can't wrap.
	n := uint64(len(values)) / 8

	if head.cols == 0 || head.rows > n || head.cols > n || uint64(len(values))%8 != 0 || head.rows*head.cols != n {
		return nil, fmt.Errorf("%w: %d value bytes for a %dx%d matrix", ErrCommFailure, len(values), head.rows, head.cols)
	}

	data := make([]float64, head.rows*head.cols)
	copy(utils.SliceToBytes(data), values)

	if m, err = matrix.FromData(int(head.rows), int(head.cols), data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCommFailure, err)
	}

	return
}
