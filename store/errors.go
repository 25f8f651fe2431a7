package store

type storeError string

var _ error = storeError("")

func (err storeError) Error() string {
	return string(err)
}

const (
	// ErrMalformed means the data isn't a rectangular matrix of numbers.
	ErrMalformed = storeError("store: malformed matrix")

	// ErrIO means the artifact couldn't be read or written.
	ErrIO = storeError("store: i/o failure")
)
