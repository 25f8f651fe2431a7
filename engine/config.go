package engine

import (
	"fmt"
	"time"

	"github.com/webbmaffian/go-matmul/comm"
	"github.com/webbmaffian/go-matmul/matrix"
	"github.com/webbmaffian/go-matmul/store"
	"k8s.io/klog/v2"
)

// Config describes one invocation of the engine as a whole.
type Config struct {
	Size      int           // Number of ranks.
	Dimension int           // Expected N, or 0 to take whatever is loaded.
	A         string        // Path of the left operand.
	B         string        // Path of the right operand.
	Out       string        // Path of the product.
	Precision int           // Decimals written to CSV, -1 for shortest exact.
	Kernel    matrix.Kernel // Kernel every rank multiplies with.
	Timeout   time.Duration // Bound on the whole run, 0 to wait forever.
	Mailbox   string        // Directory of the link files, empty for a temporary one.
	Capacity  int           // Frames buffered per link.
	ItemSize  int           // Bytes per frame.
	Poll      time.Duration // Longest sleep of a rank waiting on a link.
	Local     bool          // Run every rank as a goroutine of one process.
}

func DefaultConfig() Config {
	return Config{
		Size:      4,
		A:         "data/matrix_a.csv",
		B:         "data/matrix_b.csv",
		Out:       "data/matrix_result.csv",
		Precision: -1,
		Kernel:    matrix.Naive,
		Capacity:  comm.DefaultCapacity,
		ItemSize:  comm.DefaultItemSize,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Size <= 0:
		return fmt.Errorf("%w: %d ranks", ErrInvalidConfig, c.Size)
	case c.Dimension < 0:
		return fmt.Errorf("%w: dimension %d", ErrInvalidConfig, c.Dimension)
	case c.A == "" || c.B == "" || c.Out == "":
		return fmt.Errorf("%w: input and output paths are required", ErrInvalidConfig)
	case c.Precision < -1:
		return fmt.Errorf("%w: precision %d", ErrInvalidConfig, c.Precision)
	case c.Timeout < 0:
		return fmt.Errorf("%w: timeout %v", ErrInvalidConfig, c.Timeout)
	case c.Poll < 0:
		return fmt.Errorf("%w: poll interval %v", ErrInvalidConfig, c.Poll)
	case c.Capacity <= 0:
		return fmt.Errorf("%w: link capacity %d", ErrInvalidConfig, c.Capacity)
	case c.ItemSize <= 0 || c.ItemSize%8 != 0:
		return fmt.Errorf("%w: frame size %d must be a positive multiple of 8", ErrInvalidConfig, c.ItemSize)
	case c.Kernel != matrix.Naive && c.Kernel != matrix.Gonum:
		return fmt.Errorf("%w: %w: %v", ErrInvalidConfig, matrix.ErrUnknownKernel, c.Kernel)
	}

	return nil
}

// Files is where the coordinator loads from and persists to.
func (c Config) Files() store.Files {
	return store.Files{
		A:         c.A,
		B:         c.B,
		Out:       c.Out,
		Precision: c.Precision,
	}
}

// CommOptions are the link settings every rank of the run must agree on.
func (c Config) CommOptions(logger klog.Logger) []comm.Option {
	return []comm.Option{
		comm.WithCapacity(c.Capacity),
		comm.WithItemSize(c.ItemSize),
		comm.WithPollInterval(c.Poll),
		comm.WithLogger(logger),
	}
}
