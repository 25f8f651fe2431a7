package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/webbmaffian/go-matmul/internal/utils"
)

const (
	DefaultPollInterval = time.Millisecond
	minPollInterval     = 20 * time.Microsecond
)

// ByteChannel is a ring buffer of fixed-size items in a memory-mapped file.
// It has exactly one writer and one reader, which may live in different
// processes. As there is no way to signal across processes, blocking calls
// poll the shared header with an exponential backoff capped at the poll
// interval.
type ByteChannel struct {
	data    mmap.MMap
	file    *os.File
	head    *header
	writeMu sync.Mutex // Serializes writers within this process.
	readMu  sync.Mutex // Serializes readers within this process.
	poll    time.Duration
}

// NewByteChannel opens the channel at filepath, or creates it with the given
// capacity and item size if it doesn't exist. An existing file must have been
// created with the same capacity and item size.
func NewByteChannel(filepath string, capacity int, itemSize int) (ch *ByteChannel, err error) {
	if itemSize <= 0 || itemSize%8 != 0 {
		return nil, ErrInvalidItemSize
	}

	ch = &ByteChannel{
		head: newHeader(capacity, itemSize),
		poll: DefaultPollInterval,
	}

	var created bool
	ch.file, err = os.OpenFile(filepath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)

	if err == nil {
		if ch.head.capacity <= 0 {
			ch.file.Close()
			os.Remove(filepath)
			return nil, ErrCapacityRequired
		}

		if err = ch.file.Truncate(ch.head.fileSize()); err != nil {
			ch.file.Close()
			return nil, err
		}

		created = true
	} else if os.IsExist(err) {
		var info os.FileInfo

		if info, err = os.Stat(filepath); err != nil {
			return
		}

		if ch.file, err = os.OpenFile(filepath, os.O_RDWR, 0); err != nil {
			return
		}

		if err = ch.validateHead(info.Size()); err != nil {
			ch.file.Close()
			return nil, err
		}
	} else {
		return nil, err
	}

	if ch.data, err = mmap.Map(ch.file, mmap.RDWR, 0); err != nil {
		ch.file.Close()
		return nil, err
	}

	if created {
		if s := int(ch.head.headSize); copy(ch.data[:s], utils.PointerToBytes(ch.head, s)) != s {
			ch.Close()
			return nil, errors.New("failed to write header")
		}

		if err = ch.Flush(); err != nil {
			ch.Close()
			return nil, err
		}
	}

	ch.head = utils.BytesToPointer[header](ch.data[:ch.head.headSize])

	return
}

func (ch *ByteChannel) validateHead(fileSize int64) (err error) {
	head, err := readHead(ch.file, fileSize)

	if err != nil {
		return
	}

	if head.capacity != ch.head.capacity && ch.head.capacity != 0 {
		return fmt.Errorf("%w: capacity %d, expected %d", ErrMismatch, head.capacity, ch.head.capacity)
	}

	if head.itemSize != ch.head.itemSize {
		return fmt.Errorf("%w: item size %d, expected %d", ErrMismatch, head.itemSize, ch.head.itemSize)
	}

	return
}

// readHead reads and sanity checks the header of an existing channel file.
func readHead(file *os.File, fileSize int64) (head *header, err error) {
	expected := newHeader(0, 0)

	if fileSize < expected.headSize {
		return nil, fmt.Errorf("%w: file too small", ErrInvalidHeader)
	}

	if _, err = file.Seek(0, io.SeekStart); err != nil {
		return
	}

	b := make([]byte, expected.headSize)

	if _, err = io.ReadFull(file, b); err != nil {
		return
	}

	head = utils.BytesToPointer[header](b)

	if head.headSize != expected.headSize {
		return nil, fmt.Errorf("%w: header size %d", ErrInvalidHeader, head.headSize)
	}

	if head.itemSize < 1 {
		return nil, fmt.Errorf("%w: invalid item size", ErrInvalidHeader)
	}

	if head.capacity < 1 {
		return nil, fmt.Errorf("%w: invalid capacity", ErrInvalidHeader)
	}

	// The reader can never be ahead of the writer, nor the writer more than
	// a full buffer ahead of the reader.
	if head.read > head.written || head.written-head.read > uint64(head.capacity) {
		return nil, fmt.Errorf("%w: invalid counters", ErrInvalidHeader)
	}

	if fileSize != head.fileSize() {
		return nil, fmt.Errorf("%w: invalid file size", ErrInvalidHeader)
	}

	return
}

// SetPollInterval caps how long a blocked call sleeps between two looks at
// the shared header.
func (ch *ByteChannel) SetPollInterval(d time.Duration) {
	if d < minPollInterval {
		d = minPollInterval
	}

	ch.poll = d
}

func (ch *ByteChannel) WriteOrBlock(ctx context.Context, cb func([]byte)) (err error) {
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()

	delay := minPollInterval

	for {
		if err = ch.write(cb); err != ErrFull {
			return
		}

		// Wait until there is space in the buffer
		if err = ch.sleep(ctx, &delay); err != nil {
			return
		}
	}
}

func (ch *ByteChannel) write(cb func([]byte)) error {
	if ch.head.isClosedWriting() || ch.head.isClosedReading() {
		return ErrClosed
	}

	w := atomic.LoadUint64(&ch.head.written)

	if w-ch.head.itemsRead() >= uint64(ch.head.capacity) {
		return ErrFull
	}

	cb(ch.slice(w))

	// Publish the item only after it is completely written.
	atomic.StoreUint64(&ch.head.written, w+1)
	return nil
}

// ReadOrBlock waits for an item and passes it to cb. The item is consumed
// even if cb fails. Once the writer has closed and everything is read,
// ErrClosed is returned.
func (ch *ByteChannel) ReadOrBlock(ctx context.Context, cb func([]byte) error) (err error) {
	ch.readMu.Lock()
	defer ch.readMu.Unlock()

	delay := minPollInterval

	for {
		if err = ch.read(cb); err != ErrEmpty {
			return
		}

		// Wait until there is data in the buffer to read
		if err = ch.sleep(ctx, &delay); err != nil {
			return
		}
	}
}

func (ch *ByteChannel) read(cb func([]byte) error) (err error) {
	r := atomic.LoadUint64(&ch.head.read)

	if r == ch.head.itemsWritten() {
		// If writing is closed, there will never be any more to read
		if ch.head.isClosedWriting() {
			return ErrClosed
		}

		return ErrEmpty
	}

	err = cb(ch.slice(r))
	atomic.StoreUint64(&ch.head.read, r+1)
	return
}

func (ch *ByteChannel) sleep(ctx context.Context, delay *time.Duration) error {
	t := time.NewTimer(*delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	if *delay *= 2; *delay > ch.poll {
		*delay = ch.poll
	}

	return nil
}

func (ch *ByteChannel) Flush() error {
	return ch.data.Flush()
}

// CloseWriting tells the reader that nothing more will be written. Items
// already in the channel can still be read.
func (ch *ByteChannel) CloseWriting() {
	atomic.StoreUint32(&ch.head.closedWriting, 1)
}

// CloseReading tells the writer that nothing more will be read, which makes
// any further write fail.
func (ch *ByteChannel) CloseReading() {
	atomic.StoreUint32(&ch.head.closedReading, 1)
}

// Close unmaps the file. It does not change the shared state; use
// CloseWriting or CloseReading for that.
func (ch *ByteChannel) Close() (err error) {
	if err = ch.Flush(); err != nil {
		return
	}

	if err = ch.data.Unmap(); err != nil {
		return
	}

	return ch.file.Close()
}

func (ch *ByteChannel) Len() int64 {
	return ch.head.len()
}

func (ch *ByteChannel) Cap() int64 {
	return ch.head.capacity
}

func (ch *ByteChannel) ItemSize() int {
	return int(ch.head.itemSize)
}

func (ch *ByteChannel) ItemsWritten() uint64 {
	return ch.head.itemsWritten()
}

func (ch *ByteChannel) ItemsRead() uint64 {
	return ch.head.itemsRead()
}

func (ch *ByteChannel) slice(counter uint64) []byte {
	index := int64(counter%uint64(ch.head.capacity))*ch.head.itemSize + ch.head.headSize
	return ch.data[index : index+ch.head.itemSize]
}
