package comm

type commError string

var _ error = commError("")

func (err commError) Error() string {
	return string(err)
}

const (
	// ErrCommFailure means a collective could not complete: a peer went away,
	// timed out, or sent something that doesn't fit the protocol.
	ErrCommFailure = commError("comm: communication failure")

	// ErrInvalidArgument means a collective was called with arguments that
	// can't be right on this rank, e.g. a partition for another world size.
	ErrInvalidArgument = commError("comm: invalid argument")
)
