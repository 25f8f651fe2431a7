package matrix

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var _ mat.Matrix = (*Dense)(nil)

// New returns a zeroed rows×cols matrix. Both dimensions must be positive.
func New(rows, cols int) (m *Dense, err error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadShape, rows, cols)
	}

	return newDense(rows, cols, nil), nil
}

// NewBlock returns a zeroed row block. Unlike New it accepts zero rows, which
// is what a rank owning no rows of the problem holds.
func NewBlock(rows, cols int) (m *Dense, err error) {
	if rows < 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadShape, rows, cols)
	}

	return newDense(rows, cols, nil), nil
}

// FromRows copies a slice of equally long rows into a new matrix.
func FromRows(rows [][]float64) (m *Dense, err error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrBadShape)
	}

	cols := len(rows[0])

	if cols == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrBadShape)
	}

	data := make([]float64, 0, len(rows)*cols)

	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d", ErrBadShape, i, len(row), cols)
		}

		data = append(data, row...)
	}

	return newDense(len(rows), cols, data), nil
}

// FromData wraps data, which is used directly as row-major backing storage.
func FromData(rows, cols int, data []float64) (m *Dense, err error) {
	if rows < 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadShape, rows, cols)
	}

	if len(data) != rows*cols {
		return nil, fmt.Errorf("%w: %d values for %dx%d", ErrBadShape, len(data), rows, cols)
	}

	return newDense(rows, cols, data), nil
}

func newDense(rows, cols int, data []float64) *Dense {
	if data == nil {
		data = make([]float64, rows*cols)
	}

	return &Dense{
		rows: rows,
		cols: cols,
		data: data,
	}
}

// Dense is a row-major matrix of float64 values.
type Dense struct {
	rows    int
	cols    int
	data    []float64
	written []bool // rows placed by SetRows
}

// Dims returns the dimensions (rows + columns) of a Matrix.
func (m *Dense) Dims() (r, c int) {
	return m.rows, m.cols
}

// At returns the value of a matrix element at row i, column j. It panics on
// out of range indices, like gonum matrices do.
func (m *Dense) At(i, j int) float64 {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(ErrOutOfRange)
	}

	return m.data[i*m.cols+j]
}

// T returns the transpose of the Matrix. No data is copied.
func (m *Dense) T() mat.Matrix {
	return mat.Transpose{Matrix: m}
}

func (m *Dense) Rows() int {
	return m.rows
}

func (m *Dense) Cols() int {
	return m.cols
}

func (m *Dense) IsSquare() bool {
	return m.rows == m.cols
}

// Set alters the matrix element at row i, column j to v.
func (m *Dense) Set(i, j int, v float64) error {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		return fmt.Errorf("%w: (%d,%d) in %dx%d", ErrOutOfRange, i, j, m.rows, m.cols)
	}

	m.data[i*m.cols+j] = v
	return nil
}

// Row returns row i. The slice aliases the matrix.
func (m *Dense) Row(i int) []float64 {
	return m.data[i*m.cols : (i+1)*m.cols]
}

// Raw returns the row-major backing slice.
func (m *Dense) Raw() []float64 {
	return m.data
}

func (m *Dense) Clone() *Dense {
	data := make([]float64, len(m.data))
	copy(data, m.data)
	return newDense(m.rows, m.cols, data)
}

// Slice copies rows [start, end) into a new block. An empty range gives a
// block with zero rows.
func (m *Dense) Slice(start, end int) (block *Dense, err error) {
	if start < 0 || end < start || end > m.rows {
		return nil, fmt.Errorf("%w: rows [%d,%d) of %d", ErrOutOfRange, start, end, m.rows)
	}

	data := make([]float64, (end-start)*m.cols)
	copy(data, m.data[start*m.cols:end*m.cols])
	return newDense(end-start, m.cols, data), nil
}

// SetRows copies block into m starting at row offset. Every row of m can be
// placed only once.
func (m *Dense) SetRows(offset int, block *Dense) error {
	if block.cols != m.cols {
		return fmt.Errorf("%w: block has %d columns, expected %d", ErrDimensionMismatch, block.cols, m.cols)
	}

	if offset < 0 || offset+block.rows > m.rows {
		return fmt.Errorf("%w: rows [%d,%d) of %d", ErrOutOfRange, offset, offset+block.rows, m.rows)
	}

	if m.written == nil {
		m.written = make([]bool, m.rows)
	}

	for i := offset; i < offset+block.rows; i++ {
		if m.written[i] {
			return fmt.Errorf("%w: row %d", ErrRowWritten, i)
		}
	}

	for i := offset; i < offset+block.rows; i++ {
		m.written[i] = true
	}

	copy(m.data[offset*m.cols:], block.data)
	return nil
}

// Complete reports whether every row has been placed by SetRows.
func (m *Dense) Complete() bool {
	if m.written == nil {
		return m.rows == 0
	}

	for _, ok := range m.written {
		if !ok {
			return false
		}
	}

	return true
}

func (m *Dense) Equal(other *Dense) bool {
	return m.EqualApprox(other, 0)
}

// EqualApprox reports whether both matrices have the same shape and all
// elements differ by at most tol.
func (m *Dense) EqualApprox(other *Dense, tol float64) bool {
	if other == nil || m.rows != other.rows || m.cols != other.cols {
		return false
	}

	for i, v := range m.data {
		if d := math.Abs(v - other.data[i]); d > tol || math.IsNaN(d) {
			return false
		}
	}

	return true
}

func (m *Dense) String() string {
	var sb strings.Builder

	for i := 0; i < m.rows; i++ {
		sb.WriteByte('[')

		for j, v := range m.Row(i) {
			if j > 0 {
				sb.WriteString(", ")
			}

			fmt.Fprintf(&sb, "%g", v)
		}

		sb.WriteString("]\n")
	}

	return sb.String()
}
