package matrix

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Kernel computes the product of a row block of A with the full matrix B.
type Kernel uint8

const (
	// Naive is the textbook triple loop. Every C[i][j] is accumulated in k
	// order, so results are reproducible bit for bit.
	Naive Kernel = iota

	// Gonum hands the product to gonum's BLAS backed Dense.Mul. Results match
	// Naive within floating point reassociation.
	Gonum
)

func (k Kernel) String() string {
	switch k {
	case Naive:
		return "naive"
	case Gonum:
		return "gonum"
	}

	return fmt.Sprintf("kernel(%d)", uint8(k))
}

func ParseKernel(name string) (Kernel, error) {
	switch name {
	case "", "naive":
		return Naive, nil
	case "gonum":
		return Gonum, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
}

// Set makes *Kernel usable as a flag.Value.
func (k *Kernel) Set(name string) (err error) {
	*k, err = ParseKernel(name)
	return
}

// Mul multiplies a (m×K) with b (K×N). A block with zero rows gives a zero
// row result without doing any work.
func (k Kernel) Mul(a, b *Dense) (c *Dense, err error) {
	if a.cols != b.rows {
		return nil, fmt.Errorf("%w: %dx%d times %dx%d", ErrDimensionMismatch, a.rows, a.cols, b.rows, b.cols)
	}

	c = newDense(a.rows, b.cols, nil)

	if a.rows == 0 {
		return
	}

	switch k {
	case Naive:
		mulNaive(c, a, b)
	case Gonum:
		mulGonum(c, a, b)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownKernel, k)
	}

	return
}

// MulBlock multiplies with the Naive kernel.
func MulBlock(a, b *Dense) (*Dense, error) {
	return Naive.Mul(a, b)
}

// i-k-j order: the inner loop streams over contiguous rows of b and c while
// each c[i][j] still sums its terms in increasing k.
func mulNaive(c, a, b *Dense) {
	n := b.cols

	for i := 0; i < a.rows; i++ {
		ci := c.data[i*n : (i+1)*n]
		ai := a.data[i*a.cols : (i+1)*a.cols]

		for k, aik := range ai {
			bk := b.data[k*n : (k+1)*n]

			for j, bkj := range bk {
				ci[j] += aik * bkj
			}
		}
	}
}

func mulGonum(c, a, b *Dense) {
	ga := mat.NewDense(a.rows, a.cols, a.data)
	gb := mat.NewDense(b.rows, b.cols, b.data)
	gc := mat.NewDense(c.rows, c.cols, c.data)
	gc.Mul(ga, gb)
}
