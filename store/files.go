package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/webbmaffian/go-matmul/matrix"
)

// Load reads a matrix from path. Files ending in BinaryExt are read as binary,
// anything else as CSV.
func Load(path string) (m *matrix.Dense, err error) {
	if isBinary(path) {
		return LoadBinary(path)
	}

	f, err := os.Open(path)

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	defer f.Close()

	if m, err = ReadCSV(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return
}

// Save writes m to path in the format its extension asks for. The data goes
// to a temporary file first, so path only appears once it is complete.
func Save(path string, m *matrix.Dense, precision int) (err error) {
	dir, base := filepath.Split(path)

	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")

	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	tmpPath := tmp.Name()

	if err = tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	if isBinary(path) {
		// mmarr creates the file itself.
		tmp.Close()

		if err = os.Remove(tmpPath); err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}

		if err = SaveBinary(tmpPath, m); err != nil {
			return
		}
	} else {
		if err = WriteCSV(tmp, m, precision); err != nil {
			tmp.Close()
			return
		}

		if err = tmp.Sync(); err != nil {
			tmp.Close()
			return fmt.Errorf("%w: %w", ErrIO, err)
		}

		if err = tmp.Close(); err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	return
}

func isBinary(path string) bool {
	return strings.EqualFold(filepath.Ext(path), BinaryExt)
}

// Files is the file based transport of the engine: it loads A and B and
// persists the product.
type Files struct {
	A         string
	B         string
	Out       string
	Precision int
}

func (f Files) Load() (a, b *matrix.Dense, err error) {
	if a, err = Load(f.A); err != nil {
		return nil, nil, err
	}

	if b, err = Load(f.B); err != nil {
		return nil, nil, err
	}

	return
}

func (f Files) Persist(c *matrix.Dense) error {
	return Save(f.Out, c, f.Precision)
}
