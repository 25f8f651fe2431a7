package utils

import (
	"unsafe"
)

// PointerToBytes returns the memory behind val as a byte slice of the given
// length. The slice aliases val.
func PointerToBytes[T any](val *T, length int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(val)), length)
}

// BytesToPointer reinterprets the start of b as a *T. The caller must make sure
// that b is at least unsafe.Sizeof(T) bytes and suitably aligned.
func BytesToPointer[T any](b []byte) *T {
	return (*T)(unsafe.Pointer(unsafe.SliceData(b)))
}

// SliceToBytes returns the backing memory of s as bytes, without copying.
func SliceToBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}

	var v T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(v)))
}

// BytesToSlice reinterprets b as a slice of T. Trailing bytes that don't fill
// a whole item are ignored.
func BytesToSlice[T any](b []byte) []T {
	var v T
	n := len(b) / int(unsafe.Sizeof(v))

	if n == 0 {
		return nil
	}

	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}
