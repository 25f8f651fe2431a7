package channel

import (
	"sync/atomic"
	"unsafe"
)

func newHeader(capacity int, itemSize int) *header {
	h := &header{
		capacity: int64(capacity),
		itemSize: int64(itemSize),
	}
	h.headSize = int64(unsafe.Sizeof(*h))

	return h
}

// header lives at the start of the mapped file and is shared by the writing
// and the reading process. The counters only ever grow: written is owned by
// the writer, read by the reader, and both are accessed atomically.
type header struct {
	headSize      int64
	itemSize      int64
	capacity      int64
	written       uint64
	read          uint64
	closedWriting uint32
	closedReading uint32
}

func (h *header) fileSize() int64 {
	return h.headSize + h.capacity*h.itemSize
}

func (h *header) itemsWritten() uint64 {
	return atomic.LoadUint64(&h.written)
}

func (h *header) itemsRead() uint64 {
	return atomic.LoadUint64(&h.read)
}

func (h *header) len() int64 {
	return int64(h.itemsWritten() - h.itemsRead())
}

func (h *header) isClosedWriting() bool {
	return atomic.LoadUint32(&h.closedWriting) != 0
}

func (h *header) isClosedReading() bool {
	return atomic.LoadUint32(&h.closedReading) != 0
}
