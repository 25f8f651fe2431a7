package comm

import (
	"time"

	"github.com/webbmaffian/go-matmul/channel"
	"k8s.io/klog/v2"
)

const (
	DefaultCapacity = 64
	DefaultItemSize = 4096
)

type Options struct {
	capacity int
	itemSize int
	poll     time.Duration
	logger   klog.Logger
}

// Option configures the links of a world.
type Option func(*Options)

// WithCapacity sets how many frames a link buffers before the sender blocks.
func WithCapacity(items int) Option {
	return func(o *Options) {
		o.capacity = items
	}
}

// WithItemSize sets the frame size in bytes, header included. It must be a
// multiple of 8 and leave room for payload.
func WithItemSize(bytes int) Option {
	return func(o *Options) {
		o.itemSize = bytes
	}
}

// WithPollInterval caps how long a blocked rank sleeps between two looks at a
// mailbox file. It has no effect on in-process worlds.
func WithPollInterval(d time.Duration) Option {
	return func(o *Options) {
		o.poll = d
	}
}

func WithLogger(logger klog.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}

func gatherOptions(opts []Option) (o Options, err error) {
	o = Options{
		capacity: DefaultCapacity,
		itemSize: DefaultItemSize,
		poll:     channel.DefaultPollInterval,
		logger:   klog.Background(),
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.logger.GetSink() == nil {
		o.logger = klog.Background()
	}

	if o.poll <= 0 {
		o.poll = channel.DefaultPollInterval
	}

	if o.capacity <= 0 {
		return o, commErrorf(ErrInvalidArgument, "capacity %d", o.capacity)
	}

	if o.itemSize%8 != 0 || o.itemSize <= frameHeadSize {
		return o, commErrorf(ErrInvalidArgument, "item size %d must be a multiple of 8 above %d", o.itemSize, frameHeadSize)
	}

	return
}
