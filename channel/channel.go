package channel

import "context"

var (
	_ Channel = (*ByteChannel)(nil)
	_ Channel = (*MemoryByteChannel)(nil)
)

// Channel is one direction of a point-to-point link: a single writer sends
// fixed-size items to a single reader, in order.
type Channel interface {
	// WriteOrBlock waits for a free slot and lets cb fill it.
	WriteOrBlock(ctx context.Context, cb func([]byte)) error

	// ReadOrBlock waits for the next item and passes it to cb.
	ReadOrBlock(ctx context.Context, cb func([]byte) error) error

	ItemSize() int
	CloseWriting()
	CloseReading()
	Close() error
}
