package engine

import (
	"fmt"

	"github.com/webbmaffian/go-matmul/comm"
	"github.com/webbmaffian/go-matmul/matrix"
	"k8s.io/klog/v2"
)

// Root is the rank of the coordinator.
const Root = 0

// ExecutionContext is everything one rank knows about the run it takes part
// in.
type ExecutionContext struct {
	Rank   int
	Size   int
	Comm   comm.Collective
	Kernel matrix.Kernel
	Logger klog.Logger
}

func (e ExecutionContext) Validate() error {
	if e.Size <= 0 {
		return fmt.Errorf("%w: world size %d", ErrInvalidConfig, e.Size)
	}

	if e.Rank < 0 || e.Rank >= e.Size {
		return fmt.Errorf("%w: rank %d outside world of %d", ErrInvalidConfig, e.Rank, e.Size)
	}

	if e.Comm == nil {
		return fmt.Errorf("%w: rank %d has no communicator", ErrInvalidConfig, e.Rank)
	}

	if e.Kernel != matrix.Naive && e.Kernel != matrix.Gonum {
		return fmt.Errorf("%w: %w: %v", ErrInvalidConfig, matrix.ErrUnknownKernel, e.Kernel)
	}

	return nil
}

func (e ExecutionContext) logger() klog.Logger {
	if e.Logger.GetSink() == nil {
		return klog.LoggerWithValues(klog.Background(), "rank", e.Rank)
	}

	return e.Logger
}
