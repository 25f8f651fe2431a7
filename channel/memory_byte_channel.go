package channel

import (
	"context"
	"sync"
)

// MemoryByteChannel is the in-process twin of ByteChannel. It keeps the same
// ever-growing counters, but waiters sleep on condition variables instead of
// polling.
type MemoryByteChannel struct {
	mu       sync.Mutex
	readable sync.Cond // An item was published, or writing closed.
	writable sync.Cond // A slot was freed, or reading closed.
	data     []byte
	itemSize int64
	capacity int64
	written  uint64
	read     uint64
	wClosed  bool
	rClosed  bool
}

func NewMemoryByteChannel(capacity int, itemSize int) *MemoryByteChannel {
	ch := &MemoryByteChannel{
		data:     make([]byte, itemSize*capacity),
		itemSize: int64(itemSize),
		capacity: int64(capacity),
	}

	ch.readable.L = &ch.mu
	ch.writable.L = &ch.mu

	return ch
}

func (ch *MemoryByteChannel) WriteOrBlock(ctx context.Context, cb func([]byte)) (err error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	defer ch.wakeOnDone(ctx, &ch.writable)()

	for {
		if err = ch.write(cb); err != ErrFull {
			return
		}

		if err = ctx.Err(); err != nil {
			return
		}

		ch.writable.Wait()
	}
}

func (ch *MemoryByteChannel) write(cb func([]byte)) error {
	if ch.wClosed || ch.rClosed {
		return ErrClosed
	}

	if ch.written-ch.read >= uint64(ch.capacity) {
		return ErrFull
	}

	cb(ch.slot(ch.written))
	ch.written++
	ch.readable.Broadcast()
	return nil
}

// ReadOrBlock waits for an item and passes it to cb. Like on ByteChannel, the
// item is consumed even if cb fails.
func (ch *MemoryByteChannel) ReadOrBlock(ctx context.Context, cb func([]byte) error) (err error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	defer ch.wakeOnDone(ctx, &ch.readable)()

	for {
		if err = ch.consume(cb); err != ErrEmpty {
			return
		}

		if err = ctx.Err(); err != nil {
			return
		}

		ch.readable.Wait()
	}
}

func (ch *MemoryByteChannel) consume(cb func([]byte) error) (err error) {
	if ch.read == ch.written {
		if ch.wClosed {
			return ErrClosed
		}

		return ErrEmpty
	}

	err = cb(ch.slot(ch.read))
	ch.read++
	ch.writable.Broadcast()
	return
}

// wakeOnDone broadcasts cond once ctx is done, so that waiters get to notice.
// The returned func stops it.
func (ch *MemoryByteChannel) wakeOnDone(ctx context.Context, cond *sync.Cond) func() bool {
	return context.AfterFunc(ctx, func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()

		cond.Broadcast()
	})
}

func (ch *MemoryByteChannel) slot(counter uint64) []byte {
	start := int64(counter%uint64(ch.capacity)) * ch.itemSize
	return ch.data[start : start+ch.itemSize]
}

// CloseWriting tells the reader that nothing more will be written.
func (ch *MemoryByteChannel) CloseWriting() {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.wClosed = true
	ch.readable.Broadcast()
}

// CloseReading makes any further write fail.
func (ch *MemoryByteChannel) CloseReading() {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.rClosed = true
	ch.writable.Broadcast()
}

// Close shuts both directions. Unread items can still be read.
func (ch *MemoryByteChannel) Close() error {
	ch.CloseWriting()
	ch.CloseReading()
	return nil
}

func (ch *MemoryByteChannel) Len() int64 {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return int64(ch.written - ch.read)
}

func (ch *MemoryByteChannel) Cap() int64 {
	return ch.capacity
}

func (ch *MemoryByteChannel) ItemSize() int {
	return int(ch.itemSize)
}

func (ch *MemoryByteChannel) ItemsWritten() uint64 {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.written
}

func (ch *MemoryByteChannel) ItemsRead() uint64 {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.read
}
