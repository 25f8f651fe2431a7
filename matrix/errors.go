package matrix

type matrixError string

var _ error = matrixError("")

func (err matrixError) Error() string {
	return string(err)
}

const (
	ErrBadShape          = matrixError("matrix: invalid shape")
	ErrOutOfRange        = matrixError("matrix: index out of range")
	ErrDimensionMismatch = matrixError("matrix: dimension mismatch")
	ErrNonSquare         = matrixError("matrix: matrix is not square")
	ErrRowWritten        = matrixError("matrix: row already written")
	ErrUnknownKernel     = matrixError("matrix: unknown kernel")
)
