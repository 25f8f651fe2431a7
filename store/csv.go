package store

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/webbmaffian/go-matmul/matrix"
)

// ReadCSV parses one matrix row per line, comma separated, without header.
// Blank and whitespace-only lines are skipped and the last line needs no
// newline. Every row must have as many fields as the first one.
func ReadCSV(r io.Reader) (m *matrix.Dense, err error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	var rows, cols int
	var data []float64

	for {
		record, err := cr.Read()

		if err == io.EOF {
			break
		}

		if err != nil {
			var perr *csv.ParseError

			if errors.As(err, &perr) {
				return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
			}

			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}

		// Lines holding nothing but spaces count as blank.
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}

		if rows == 0 {
			cols = len(record)
		} else if len(record) != cols {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d has %d fields, expected %d", ErrMalformed, line, len(record), cols)
		}

		for col, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)

			if err != nil {
				return nil, fmt.Errorf("%w: row %d, column %d: %q is not a number", ErrMalformed, rows+1, col+1, field)
			}

			data = append(data, v)
		}

		rows++
	}

	if rows == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrMalformed)
	}

	if m, err = matrix.FromData(rows, cols, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return
}

// WriteCSV writes m in the format ReadCSV reads. A precision of -1 writes the
// shortest representation that reads back exactly; other values give that
// many decimals.
func WriteCSV(w io.Writer, m *matrix.Dense, precision int) (err error) {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 32)
	format := byte('f')

	if precision < 0 {
		format, precision = 'g', -1
	}

	for i := 0; i < m.Rows(); i++ {
		for j, v := range m.Row(i) {
			if j > 0 {
				bw.WriteByte(',')
			}

			buf = strconv.AppendFloat(buf[:0], v, format, precision, 64)
			bw.Write(buf)
		}

		bw.WriteByte('\n')
	}

	if err = bw.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	return
}
