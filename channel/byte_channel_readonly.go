package channel

import (
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/webbmaffian/go-matmul/internal/utils"
)

// ByteChannelReadonly observes a channel file without taking part in it.
type ByteChannelReadonly struct {
	data mmap.MMap
	file *os.File
	head *header
}

func OpenByteChannelReadonly(filepath string) (ch *ByteChannelReadonly, err error) {
	ch = &ByteChannelReadonly{}

	info, err := os.Stat(filepath)

	if err != nil {
		return
	}

	if ch.file, err = os.OpenFile(filepath, os.O_RDONLY, 0); err != nil {
		return
	}

	head, err := readHead(ch.file, info.Size())

	if err != nil {
		ch.file.Close()
		return nil, err
	}

	if ch.data, err = mmap.Map(ch.file, mmap.RDONLY, 0); err != nil {
		ch.file.Close()
		return nil, err
	}

	ch.head = utils.BytesToPointer[header](ch.data[:head.headSize])

	return
}

func (ch *ByteChannelReadonly) Cap() int64 {
	return ch.head.capacity
}

func (ch *ByteChannelReadonly) ItemSize() int64 {
	return ch.head.itemSize
}

// Peek returns the unread item at the given offset from the read cursor, or
// false if there is no such item. The returned bytes may be overwritten by
// the writer at any time.
func (ch *ByteChannelReadonly) Peek(offset int64) ([]byte, bool) {
	if offset < 0 || offset >= ch.head.len() {
		return nil, false
	}

	counter := ch.head.itemsRead() + uint64(offset)
	index := int64(counter%uint64(ch.head.capacity))*ch.head.itemSize + ch.head.headSize
	return ch.data[index : index+ch.head.itemSize], true
}

func (ch *ByteChannelReadonly) Close() (err error) {
	if err = ch.data.Unmap(); err != nil {
		return
	}

	return ch.file.Close()
}

func (ch *ByteChannelReadonly) Len() int64 {
	return ch.head.len()
}

func (ch *ByteChannelReadonly) ItemsWritten() uint64 {
	return ch.head.itemsWritten()
}

func (ch *ByteChannelReadonly) ItemsRead() uint64 {
	return ch.head.itemsRead()
}

func (ch *ByteChannelReadonly) ClosedWriting() bool {
	return ch.head.isClosedWriting()
}

func (ch *ByteChannelReadonly) ClosedReading() bool {
	return ch.head.isClosedReading()
}
