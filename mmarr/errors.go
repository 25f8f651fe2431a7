package mmarr

type arrayError string

var _ error = arrayError("")

func (err arrayError) Error() string {
	return string(err)
}

const (
	ErrCapacityMandatory = arrayError("capacity is mandatory")
	ErrInvalidItemSize   = arrayError("invalid item size")
	ErrInvalidHeader     = arrayError("invalid header")
)
