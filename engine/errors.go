package engine

import (
	"errors"

	"github.com/webbmaffian/go-matmul/comm"
	"github.com/webbmaffian/go-matmul/matrix"
	"github.com/webbmaffian/go-matmul/partition"
	"github.com/webbmaffian/go-matmul/store"
)

type engineError string

var _ error = engineError("")

func (err engineError) Error() string {
	return string(err)
}

const (
	// ErrInvalidConfig means the run was set up wrong: worker count, rank,
	// timeouts, missing paths.
	ErrInvalidConfig = engineError("engine: invalid configuration")

	// ErrInvalidInput means A or B can't be multiplied: unreadable, ragged,
	// not square, or of different dimensions.
	ErrInvalidInput = engineError("engine: invalid input")

	// ErrIOFailure means an input or output artifact couldn't be read or
	// written.
	ErrIOFailure = engineError("engine: i/o failure")

	// ErrCommFailure means a collective couldn't complete.
	ErrCommFailure = comm.ErrCommFailure
)

// Exit statuses of a run, by error class.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitInvalidConfig = 2
	ExitInvalidInput  = 3
	ExitCommFailure   = 4
	ExitIOFailure     = 5
)

// Classify returns the error class of err: one of ErrInvalidConfig,
// ErrInvalidInput, ErrCommFailure or ErrIOFailure, or nil if err is nil or
// belongs to none of them. An input that couldn't be read is classified as
// invalid input.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case isAny(err, ErrInvalidConfig, comm.ErrInvalidArgument, partition.ErrInvalidWorkers, matrix.ErrUnknownKernel):
		return ErrInvalidConfig
	case isAny(err, ErrInvalidInput, store.ErrMalformed, matrix.ErrNonSquare, matrix.ErrDimensionMismatch):
		return ErrInvalidInput
	case errors.Is(err, ErrCommFailure):
		return ErrCommFailure
	case isAny(err, ErrIOFailure, store.ErrIO):
		return ErrIOFailure
	}

	return nil
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	switch Classify(err) {
	case ErrInvalidConfig:
		return ExitInvalidConfig
	case ErrInvalidInput:
		return ExitInvalidInput
	case ErrCommFailure:
		return ExitCommFailure
	case ErrIOFailure:
		return ExitIOFailure
	}

	return ExitFailure
}

func isAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
