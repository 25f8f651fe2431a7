package mmarr

import (
	"unsafe"
)

func newHeader[T any, H any](lenCap ...int) *header[H] {
	var item T

	h := new(header[H])
	h.headSize = int64(unsafe.Sizeof(*h))
	h.itemSize = int64(unsafe.Sizeof(item))

	if lenCap != nil {
		h.length = int64(lenCap[0])

		if len(lenCap) > 1 {
			h.capacity = int64(lenCap[1])
		} else {
			h.capacity = h.length
		}

		if h.capacity < h.length {
			h.capacity = h.length
		}
	}

	return h
}

type header[H any] struct {
	headSize int64
	itemSize int64
	length   int64
	capacity int64
	custom   H
}

func (h header[H]) fileSize() int64 {
	return h.headSize + h.itemSize*h.capacity
}
