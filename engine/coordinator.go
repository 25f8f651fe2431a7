package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/webbmaffian/go-matmul/matrix"
	"github.com/webbmaffian/go-matmul/partition"
	"github.com/webbmaffian/go-matmul/store"
	"k8s.io/klog/v2"
)

var (
	_ Source = store.Files{}
	_ Sink   = store.Files{}
)

// Source provides the two operands.
type Source interface {
	Load() (a, b *matrix.Dense, err error)
}

// Sink receives the product.
type Sink interface {
	Persist(c *matrix.Dense) error
}

// Coordinator is the root rank. It loads the operands, hands out the work,
// takes its own share of it and persists the assembled product.
type Coordinator struct {
	Exec   ExecutionContext
	Source Source
	Sink   Sink

	// Dimension, if positive, is the N both operands must have.
	Dimension int

	state       State
	transitions []State
	elapsed     time.Duration
	result      *matrix.Dense
	logger      klog.Logger
}

// Run drives the coordinator from Idle to Persisted. On error the coordinator
// ends up Failed and nothing is persisted. Invalid configuration and input
// are detected before any collective is called.
func (c *Coordinator) Run(ctx context.Context) (err error) {
	if len(c.transitions) != 0 {
		return fmt.Errorf("%w: coordinator already ran", ErrInvalidConfig)
	}

	c.transitions = append(c.transitions, Idle)
	c.logger = c.Exec.logger()

	defer func() {
		if err != nil {
			c.enter(Failed)
			c.logger.Error(err, "Run failed", "class", Classify(err))
		}
	}()

	if err = c.Exec.Validate(); err != nil {
		return
	}

	if c.Exec.Rank != Root {
		return fmt.Errorf("%w: coordinator must be rank %d, not %d", ErrInvalidConfig, Root, c.Exec.Rank)
	}

	if c.Source == nil || c.Sink == nil {
		return fmt.Errorf("%w: coordinator needs a source and a sink", ErrInvalidConfig)
	}

	a, b, err := c.load()

	if err != nil {
		return
	}

	c.enter(InputsLoaded)

	part, err := partition.New(a.Rows(), c.Exec.Size)

	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	c.logger.V(1).Info("Partitioned rows", "partition", part)
	start := time.Now()

	c.enter(Broadcasting)

	if b, err = c.Exec.Comm.Broadcast(ctx, b, Root); err != nil {
		return
	}

	c.enter(Scattering)
	block, err := c.Exec.Comm.Scatter(ctx, a, part, Root)

	if err != nil {
		return
	}

	c.enter(Computing)

	if block, err = c.Exec.Kernel.Mul(block, b); err != nil {
		return
	}

	c.enter(Gathering)
	product, err := c.Exec.Comm.Gather(ctx, block, part, Root)

	if err != nil {
		return
	}

	if product == nil {
		return fmt.Errorf("%w: gather returned no product on the root", ErrCommFailure)
	}

	if rows, cols := product.Dims(); rows != a.Rows() || cols != b.Cols() {
		return fmt.Errorf("%w: gathered a %dx%d product, expected %dx%d", ErrCommFailure, rows, cols, a.Rows(), b.Cols())
	}

	c.elapsed = time.Since(start)
	c.result = product
	c.enter(Assembled)

	if err = c.Sink.Persist(product); err != nil {
		if !errors.Is(err, ErrIOFailure) {
			err = fmt.Errorf("%w: persisting product: %w", ErrIOFailure, err)
		}

		return
	}

	c.enter(Persisted)
	c.logger.Info("Product persisted", "n", product.Rows(), "workers", c.Exec.Size, "elapsed", c.elapsed)
	return
}

func (c *Coordinator) load() (a, b *matrix.Dense, err error) {
	if a, b, err = c.Source.Load(); err != nil {
		if errors.Is(err, store.ErrIO) {
			return nil, nil, fmt.Errorf("%w: %w: %w", ErrInvalidInput, ErrIOFailure, err)
		}

		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if a == nil || b == nil {
		return nil, nil, fmt.Errorf("%w: missing operand", ErrInvalidInput)
	}

	if !a.IsSquare() || !b.IsSquare() {
		return nil, nil, fmt.Errorf("%w: %w: A is %dx%d, B is %dx%d", ErrInvalidInput, matrix.ErrNonSquare, a.Rows(), a.Cols(), b.Rows(), b.Cols())
	}

	if a.Cols() != b.Rows() {
		return nil, nil, fmt.Errorf("%w: %w: A has %d columns, B has %d rows", ErrInvalidInput, matrix.ErrDimensionMismatch, a.Cols(), b.Rows())
	}

	if c.Dimension > 0 && a.Rows() != c.Dimension {
		return nil, nil, fmt.Errorf("%w: %w: operands are %dx%d, expected %dx%d", ErrInvalidInput, matrix.ErrDimensionMismatch, a.Rows(), a.Cols(), c.Dimension, c.Dimension)
	}

	return
}

func (c *Coordinator) enter(s State) {
	if c.state.Terminal() {
		return
	}

	c.logger.V(2).Info("State changed", "from", c.state, "to", s)
	c.state = s
	c.transitions = append(c.transitions, s)
}

// State returns the state the coordinator is in.
func (c *Coordinator) State() State {
	return c.state
}

// Transitions returns every state the coordinator has been in, in order.
func (c *Coordinator) Transitions() []State {
	return append([]State(nil), c.transitions...)
}

// Elapsed is the time from the start of the broadcast until the product was
// assembled.
func (c *Coordinator) Elapsed() time.Duration {
	return c.elapsed
}

// Result returns the assembled product, or nil before Assembled.
func (c *Coordinator) Result() *matrix.Dense {
	return c.result
}
