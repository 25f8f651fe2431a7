package mmarr

import (
	"errors"
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/edsrzf/mmap-go"
	"github.com/webbmaffian/go-matmul/internal/utils"
)

// NewWithHeader opens the memory-mapped array at filepath, or creates it with
// the given length and capacity. If capacity is left out it equals the length;
// creating a file without either fails. For an existing file the stored header
// wins and lenCap is ignored. Next to the items, a custom header `H` is
// persisted. Neither `T` nor `H` may contain pointers or slices.
func NewWithHeader[T any, H any](filepath string, lenCap ...int) (arr *Array[T, H], err error) {
	arr = &Array[T, H]{
		head: newHeader[T, H](lenCap...),
	}

	if arr.head.itemSize <= 0 {
		return nil, ErrInvalidItemSize
	}

	var created bool
	info, err := os.Stat(filepath)

	if err == nil {
		if arr.file, err = os.OpenFile(filepath, os.O_RDWR, 0); err != nil {
			return
		}

		if err = arr.validateHead(info.Size()); err != nil {
			arr.file.Close()
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if arr.head.capacity <= 0 {
			return nil, ErrCapacityMandatory
		}

		if arr.file, err = os.Create(filepath); err != nil {
			return
		}

		if err = arr.file.Truncate(arr.head.fileSize()); err != nil {
			arr.file.Close()
			return nil, err
		}

		created = true
	} else {
		return
	}

	if arr.data, err = mmap.Map(arr.file, mmap.RDWR, 0); err != nil {
		arr.file.Close()
		return nil, err
	}

	if created {
		if s := int(arr.head.headSize); copy(arr.data[:s], utils.PointerToBytes(arr.head, s)) != s {
			arr.Close()
			return nil, errors.New("failed to write header")
		}

		if err = arr.Flush(); err != nil {
			return
		}
	}

	arr.head = utils.BytesToPointer[header[H]](arr.data[:arr.head.headSize])

	return
}

// OpenROWithHeader maps an existing array read-only.
func OpenROWithHeader[T any, H any](filepath string) (arr *Array[T, H], err error) {
	arr = &Array[T, H]{
		head:     newHeader[T, H](),
		readOnly: true,
	}

	if arr.head.itemSize <= 0 {
		return nil, ErrInvalidItemSize
	}

	info, err := os.Stat(filepath)

	if err != nil {
		return
	}

	if arr.file, err = os.OpenFile(filepath, os.O_RDONLY, 0); err != nil {
		return
	}

	if err = arr.validateHead(info.Size()); err != nil {
		arr.file.Close()
		return nil, err
	}

	if arr.data, err = mmap.Map(arr.file, mmap.RDONLY, 0); err != nil {
		arr.file.Close()
		return nil, err
	}

	arr.head = utils.BytesToPointer[header[H]](arr.data[:arr.head.headSize])

	return
}

// Memory-mapped array
type Array[T any, H any] struct {
	data     mmap.MMap
	file     *os.File
	head     *header[H]
	readOnly bool
}

func (arr *Array[T, H]) validateHead(fileSize int64) (err error) {
	if fileSize < arr.head.headSize {
		return fmt.Errorf("%w: file too small", ErrInvalidHeader)
	}

	if arr.file == nil {
		return errors.New("file is not open")
	}

	if _, err = arr.file.Seek(0, io.SeekStart); err != nil {
		return
	}

	b := make([]byte, arr.head.headSize)

	if _, err = io.ReadFull(arr.file, b); err != nil {
		return
	}

	head := utils.BytesToPointer[header[H]](b)

	if head.headSize != arr.head.headSize {
		return fmt.Errorf("%w: header size %d, expected %d", ErrInvalidHeader, head.headSize, arr.head.headSize)
	}

	if head.itemSize != arr.head.itemSize {
		return ErrInvalidItemSize
	}

	// A capacity can never be less than the length
	if head.capacity < head.length || head.length < 0 {
		return fmt.Errorf("%w: invalid capacity", ErrInvalidHeader)
	}

	if fileSize != head.fileSize() {
		return fmt.Errorf("%w: invalid file size", ErrInvalidHeader)
	}

	return
}

func (arr *Array[T, H]) Flush() error {
	if arr.readOnly {
		return nil
	}

	return arr.data.Flush()
}

func (arr *Array[T, H]) Close() (err error) {
	if err = arr.Flush(); err != nil {
		return
	}

	if err = arr.data.Unmap(); err != nil {
		return
	}

	return arr.file.Close()
}

func (arr *Array[T, H]) Cap() int {
	return int(arr.head.capacity)
}

func (arr *Array[T, H]) Len() int {
	return int(arr.head.length)
}

func (arr *Array[T, H]) ItemSize() int {
	return int(arr.head.itemSize)
}

// Items returns all items in the array. The slice aliases the mapped memory
// and is only valid until the array is closed.
func (arr *Array[T, H]) Items() []T {
	if arr.head.length == 0 {
		return nil
	}

	start := arr.head.headSize
	return unsafe.Slice(utils.BytesToPointer[T](arr.data[start:start+arr.head.itemSize]), arr.head.length)
}

// Head returns the custom header. Changes are persisted on Flush, unless the
// array was opened read-only.
func (arr *Array[T, H]) Head() *H {
	return &arr.head.custom
}
