package channel

type channelError string

var _ error = channelError("")

func (err channelError) Error() string {
	return string(err)
}

const (
	ErrEmpty            = channelError("channel is empty")
	ErrFull             = channelError("channel is full")
	ErrClosed           = channelError("channel is closed")
	ErrMismatch         = channelError("capacity and/or item size mismatch")
	ErrInvalidItemSize  = channelError("item size must be a positive multiple of 8")
	ErrCapacityRequired = channelError("capacity is mandatory")
	ErrInvalidHeader    = channelError("invalid channel header")
)
