package comm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/webbmaffian/go-matmul/channel"
)

// worldFile records the world size a mailbox directory was prepared for. It
// is written last, so its presence means every link file exists.
const worldFile = "world"

// NewLocalWorld connects size nodes through in-memory links. Each node must
// be driven by its own goroutine.
func NewLocalWorld(size int, opts ...Option) (nodes []*Node, err error) {
	if size <= 0 {
		return nil, commErrorf(ErrInvalidArgument, "world size %d", size)
	}

	o, err := gatherOptions(opts)

	if err != nil {
		return
	}

	nodes = make([]*Node, size)

	for rank := range nodes {
		nodes[rank] = newNode(rank, size, o)
	}

	for src := 0; src < size; src++ {
		for dst := 0; dst < size; dst++ {
			if src == dst {
				continue
			}

			ch := channel.NewMemoryByteChannel(o.capacity, o.itemSize)
			nodes[src].out[dst] = ch
			nodes[dst].in[src] = ch
		}
	}

	return
}

// Prepare creates a mailbox directory for a world of size ranks: one channel
// file per ordered pair of ranks. Link files left over from an earlier run
// are replaced.
func Prepare(dir string, size int, opts ...Option) (err error) {
	if size <= 0 {
		return commErrorf(ErrInvalidArgument, "world size %d", size)
	}

	o, err := gatherOptions(opts)

	if err != nil {
		return
	}

	if err = os.MkdirAll(dir, 0o755); err != nil {
		return
	}

	stale, err := filepath.Glob(filepath.Join(dir, "*.chan"))

	if err != nil {
		return
	}

	stale = append(stale, filepath.Join(dir, worldFile))

	for _, path := range stale {
		if err = os.Remove(path); err != nil && !os.IsNotExist(err) {
			return
		}
	}

	for src := 0; src < size; src++ {
		for dst := 0; dst < size; dst++ {
			if src == dst {
				continue
			}

			var ch *channel.ByteChannel

			if ch, err = channel.NewByteChannel(channel.Link{Src: src, Dst: dst}.Path(dir), o.capacity, o.itemSize); err != nil {
				return
			}

			if err = ch.Close(); err != nil {
				return
			}
		}
	}

	tmp := filepath.Join(dir, worldFile+".tmp")

	if err = os.WriteFile(tmp, []byte(strconv.Itoa(size)+"\n"), 0o644); err != nil {
		return
	}

	return os.Rename(tmp, filepath.Join(dir, worldFile))
}

// Open attaches rank to a mailbox directory made by Prepare, waiting for it to
// be ready until ctx is done. The world size must match the prepared one, and
// so must capacity and item size.
func Open(ctx context.Context, dir string, rank, size int, opts ...Option) (n *Node, err error) {
	if size <= 0 || rank < 0 || rank >= size {
		return nil, commErrorf(ErrInvalidArgument, "rank %d in world of %d", rank, size)
	}

	o, err := gatherOptions(opts)

	if err != nil {
		return
	}

	prepared, err := waitWorld(ctx, dir, o.poll)

	if err != nil {
		return
	}

	if prepared != size {
		return nil, commErrorf(ErrInvalidArgument, "mailbox %s was prepared for %d ranks, not %d", dir, prepared, size)
	}

	n = newNode(rank, size, o)

	for peer := 0; peer < size; peer++ {
		if peer == rank {
			continue
		}

		var out, in *channel.ByteChannel

		if out, err = openLink(dir, channel.Link{Src: rank, Dst: peer}, o); err != nil {
			n.Close()
			return nil, err
		}

		n.out[peer] = out

		if in, err = openLink(dir, channel.Link{Src: peer, Dst: rank}, o); err != nil {
			n.Close()
			return nil, err
		}

		n.in[peer] = in
	}

	n.logger.V(2).Info("Joined world", "mailbox", dir, "size", size)
	return
}

func openLink(dir string, l channel.Link, o Options) (ch *channel.ByteChannel, err error) {
	path := l.Path(dir)

	if _, err = os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: link %v: %w", ErrCommFailure, l, err)
	}

	if ch, err = channel.NewByteChannel(path, o.capacity, o.itemSize); err != nil {
		return nil, fmt.Errorf("%w: link %v: %w", ErrCommFailure, l, err)
	}

	ch.SetPollInterval(o.poll)
	return
}

func waitWorld(ctx context.Context, dir string, poll time.Duration) (size int, err error) {
	path := filepath.Join(dir, worldFile)
	t := time.NewTicker(poll)
	defer t.Stop()

	for {
		var b []byte

		if b, err = os.ReadFile(path); err == nil {
			if size, err = strconv.Atoi(strings.TrimSpace(string(b))); err != nil {
				return 0, fmt.Errorf("%w: world file: %w", ErrCommFailure, err)
			}

			return
		}

		if !errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: world file: %w", ErrCommFailure, err)
		}

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: mailbox %s not ready: %w", ErrCommFailure, dir, ctx.Err())
		case <-t.C:
		}
	}
}
