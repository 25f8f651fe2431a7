package partition

import (
	"fmt"
	"sort"
	"strings"
)

type partitionError string

var _ error = partitionError("")

func (err partitionError) Error() string {
	return string(err)
}

const (
	ErrInvalidWorkers = partitionError("partition: worker count must be positive")
	ErrInvalidRows    = partitionError("partition: row count must be positive")
)

// Range is a half-open range of rows [Start, End).
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) Empty() bool {
	return r.End <= r.Start
}

func (r Range) Contains(row int) bool {
	return row >= r.Start && row < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Partition assigns contiguous row ranges of an n-row matrix to p ranks. The
// first n%p ranks get one row more than the rest; with more ranks than rows,
// trailing ranks get empty ranges.
type Partition struct {
	rows   int
	ranges []Range
}

func New(rows, workers int) (p Partition, err error) {
	if workers <= 0 {
		return p, fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}

	if rows <= 0 {
		return p, fmt.Errorf("%w: %d", ErrInvalidRows, rows)
	}

	base, rem := rows/workers, rows%workers
	p = Partition{
		rows:   rows,
		ranges: make([]Range, workers),
	}

	var start int

	for r := range p.ranges {
		size := base

		if r < rem {
			size++
		}

		p.ranges[r] = Range{Start: start, End: start + size}
		start += size
	}

	return
}

// Rows returns the number of rows that are partitioned.
func (p Partition) Rows() int {
	return p.rows
}

// Workers returns the number of ranks.
func (p Partition) Workers() int {
	return len(p.ranges)
}

// Range returns the rows owned by rank. It panics if rank is out of range.
func (p Partition) Range(rank int) Range {
	return p.ranges[rank]
}

// Ranges returns a copy of all ranges, indexed by rank.
func (p Partition) Ranges() []Range {
	ranges := make([]Range, len(p.ranges))
	copy(ranges, p.ranges)
	return ranges
}

// Owner returns the rank owning row, or -1 if row is out of range.
func (p Partition) Owner(row int) int {
	if row < 0 || row >= p.rows {
		return -1
	}

	// Ranges are sorted by End; the first range ending after row owns it.
	// Empty ranges never satisfy this before their non-empty predecessor.
	return sort.Search(len(p.ranges), func(i int) bool {
		return p.ranges[i].End > row
	})
}

func (p Partition) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d rows over %d ranks:", p.rows, len(p.ranges))

	for r, rg := range p.ranges {
		fmt.Fprintf(&sb, " %d=%v", r, rg)
	}

	return sb.String()
}
