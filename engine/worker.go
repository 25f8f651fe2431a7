package engine

import (
	"context"
	"fmt"

	"github.com/webbmaffian/go-matmul/partition"
)

// Worker is any rank but the root. It makes the same collective calls as the
// coordinator, in the same order, even when it owns no rows.
type Worker struct {
	Exec ExecutionContext
}

func (w Worker) Run(ctx context.Context) (err error) {
	logger := w.Exec.logger()

	if err = w.Exec.Validate(); err != nil {
		return
	}

	if w.Exec.Rank == Root {
		return fmt.Errorf("%w: rank %d is the coordinator", ErrInvalidConfig, Root)
	}

	b, err := w.Exec.Comm.Broadcast(ctx, nil, Root)

	if err != nil {
		return
	}

	// Every rank derives the same partition from B's dimension.
	part, err := partition.New(b.Rows(), w.Exec.Size)

	if err != nil {
		return fmt.Errorf("%w: %w", ErrCommFailure, err)
	}

	block, err := w.Exec.Comm.Scatter(ctx, nil, part, Root)

	if err != nil {
		return
	}

	if block, err = w.Exec.Kernel.Mul(block, b); err != nil {
		return fmt.Errorf("%w: scattered block doesn't fit B: %w", ErrCommFailure, err)
	}

	if _, err = w.Exec.Comm.Gather(ctx, block, part, Root); err != nil {
		return
	}

	logger.V(1).Info("Block computed", "rows", part.Range(w.Exec.Rank))
	return
}

// Run takes part in a run as the rank exec names: the root coordinates, every
// other rank works.
func Run(ctx context.Context, exec ExecutionContext, src Source, sink Sink) error {
	if exec.Rank == Root {
		c := Coordinator{Exec: exec, Source: src, Sink: sink}
		return c.Run(ctx)
	}

	return Worker{Exec: exec}.Run(ctx)
}
