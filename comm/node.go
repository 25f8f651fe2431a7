package comm

import (
	"context"
	"errors"
	"fmt"

	"github.com/webbmaffian/go-matmul/channel"
	"github.com/webbmaffian/go-matmul/internal/utils"
	"github.com/webbmaffian/go-matmul/matrix"
	"github.com/webbmaffian/go-matmul/partition"
	"k8s.io/klog/v2"
)

var _ Collective = (*Node)(nil)

// Collective is the set of operations every rank of a world calls in the
// same order. Each call returns only after all ranks have reached it.
type Collective interface {
	// Broadcast returns root's m on every rank. Only root passes a matrix.
	Broadcast(ctx context.Context, m *matrix.Dense, root int) (*matrix.Dense, error)

	// Scatter slices root's m by part and returns each rank its own rows.
	// Only root passes a matrix.
	Scatter(ctx context.Context, m *matrix.Dense, part partition.Partition, root int) (*matrix.Dense, error)

	// Gather collects every rank's block on root, placed at the rows part
	// assigns to the sending rank. Ranks other than root get nil.
	Gather(ctx context.Context, block *matrix.Dense, part partition.Partition, root int) (*matrix.Dense, error)
}

// Node is one rank's end of a fully connected world. out[dst] carries frames
// to dst, in[src] frames from src; both are nil for the rank itself.
type Node struct {
	rank     int
	size     int
	out      []channel.Channel
	in       []channel.Channel
	itemSize int
	seq      uint32
	logger   klog.Logger
	closed   bool
}

func newNode(rank, size int, o Options) *Node {
	return &Node{
		rank:     rank,
		size:     size,
		out:      make([]channel.Channel, size),
		in:       make([]channel.Channel, size),
		itemSize: o.itemSize,
		logger:   klog.LoggerWithValues(o.logger, "rank", rank),
	}
}

func (n *Node) Rank() int {
	return n.rank
}

func (n *Node) Size() int {
	return n.size
}

func (n *Node) Broadcast(ctx context.Context, m *matrix.Dense, root int) (res *matrix.Dense, err error) {
	if err = n.checkRoot(root); err != nil {
		return
	}

	if n.rank == root {
		if m == nil {
			return nil, commErrorf(ErrInvalidArgument, "broadcast root without a matrix")
		}

		payload := encodeMatrix(m)

		for dst := 0; dst < n.size; dst++ {
			if dst == root {
				continue
			}

			if err = n.send(ctx, dst, kindData, payload); err != nil {
				return
			}
		}

		res = m
	} else {
		var payload []byte

		if payload, err = n.recv(ctx, root, kindData); err != nil {
			return
		}

		if res, err = decodeMatrix(payload); err != nil {
			return
		}
	}

	if err = n.barrier(ctx, root); err != nil {
		return nil, err
	}

	n.logger.V(3).Info("Broadcast done", "root", root, "rows", res.Rows(), "cols", res.Cols())
	return
}

func (n *Node) Scatter(ctx context.Context, m *matrix.Dense, part partition.Partition, root int) (block *matrix.Dense, err error) {
	if err = n.checkRoot(root); err != nil {
		return
	}

	if err = n.checkPartition(part); err != nil {
		return
	}

	own := part.Range(n.rank)

	if n.rank == root {
		if m == nil {
			return nil, commErrorf(ErrInvalidArgument, "scatter root without a matrix")
		}

		if m.Rows() != part.Rows() {
			return nil, commErrorf(ErrInvalidArgument, "scatter of %d rows with a partition of %d", m.Rows(), part.Rows())
		}

		for dst := 0; dst < n.size; dst++ {
			rg := part.Range(dst)
			var b *matrix.Dense

			if b, err = m.Slice(rg.Start, rg.End); err != nil {
				return nil, err
			}

			if dst == root {
				block = b
				continue
			}

			if err = n.send(ctx, dst, kindData, encodeMatrix(b)); err != nil {
				return nil, err
			}
		}
	} else {
		var payload []byte

		if payload, err = n.recv(ctx, root, kindData); err != nil {
			return
		}

		if block, err = decodeMatrix(payload); err != nil {
			return
		}

		if block.Rows() != own.Len() {
			return nil, n.failf("scatter from %d: got %d rows, own %v", root, block.Rows(), own)
		}
	}

	if err = n.barrier(ctx, root); err != nil {
		return nil, err
	}

	n.logger.V(3).Info("Scatter done", "root", root, "rows", own)
	return
}

func (n *Node) Gather(ctx context.Context, block *matrix.Dense, part partition.Partition, root int) (res *matrix.Dense, err error) {
	if err = n.checkRoot(root); err != nil {
		return
	}

	if err = n.checkPartition(part); err != nil {
		return
	}

	if block == nil {
		return nil, commErrorf(ErrInvalidArgument, "gather without a block")
	}

	if own := part.Range(n.rank); block.Rows() != own.Len() {
		return nil, commErrorf(ErrInvalidArgument, "gather of %d rows, own %v", block.Rows(), own)
	}

	if n.rank == root {
		if res, err = matrix.New(part.Rows(), block.Cols()); err != nil {
			return nil, commErrorf(ErrInvalidArgument, "gather result: %v", err)
		}

		// Blocks are taken in rank order, which is also row order.
		for src := 0; src < n.size; src++ {
			rg := part.Range(src)
			b := block

			if src != root {
				var payload []byte

				if payload, err = n.recv(ctx, src, kindData); err != nil {
					return nil, err
				}

				if b, err = decodeMatrix(payload); err != nil {
					return nil, err
				}

				if b.Rows() != rg.Len() || b.Cols() != block.Cols() {
					return nil, n.failf("gather from %d: got %dx%d, expected %dx%d", src, b.Rows(), b.Cols(), rg.Len(), block.Cols())
				}
			}

			if err = res.SetRows(rg.Start, b); err != nil {
				return nil, n.failf("gather from %d: %v", src, err)
			}
		}

		if !res.Complete() {
			return nil, n.failf("gather left rows unassigned")
		}
	} else if err = n.send(ctx, root, kindData, encodeMatrix(block)); err != nil {
		return
	}

	if err = n.barrier(ctx, root); err != nil {
		return nil, err
	}

	n.logger.V(3).Info("Gather done", "root", root)
	return
}

// barrier returns once every rank has reached it: all ranks report to root,
// then root releases them. It also completes the current collective.
func (n *Node) barrier(ctx context.Context, root int) (err error) {
	if n.rank == root {
		for src := 0; src < n.size; src++ {
			if src == root {
				continue
			}

			if _, err = n.recv(ctx, src, kindBarrierAck); err != nil {
				return
			}
		}

		for dst := 0; dst < n.size; dst++ {
			if dst == root {
				continue
			}

			if err = n.send(ctx, dst, kindBarrierRelease, nil); err != nil {
				return
			}
		}
	} else {
		if err = n.send(ctx, root, kindBarrierAck, nil); err != nil {
			return
		}

		if _, err = n.recv(ctx, root, kindBarrierRelease); err != nil {
			return
		}
	}

	n.seq++
	return
}

func (n *Node) send(ctx context.Context, dst int, k kind, payload []byte) error {
	if n.closed {
		return n.failf("send to %d: node is closed", dst)
	}

	chunk := n.itemSize - frameHeadSize
	total := len(payload)
	tag := n.seq

	for off := 0; ; {
		length := min(chunk, total-off)
		final := off+length == total

		err := n.out[dst].WriteOrBlock(ctx, func(b []byte) {
			head := utils.BytesToPointer[frameHead](b)
			head.tag = tag
			head.kind = k
			head.final = 0
			head.total = uint32(total)
			head.length = uint32(length)

			if final {
				head.final = 1
			}

			copy(b[frameHeadSize:], payload[off:off+length])
		})

		if err != nil {
			return n.linkError("send", k, dst, err)
		}

		if off += length; final {
			return nil
		}
	}
}

func (n *Node) recv(ctx context.Context, src int, k kind) (payload []byte, err error) {
	if n.closed {
		return nil, n.failf("receive from %d: node is closed", src)
	}

	var started, final bool
	var total uint32

	for !final {
		err = n.in[src].ReadOrBlock(ctx, func(b []byte) error {
			head := *utils.BytesToPointer[frameHead](b)

			if head.tag != n.seq {
				return n.failf("frame from %d has sequence %d, expected %d", src, head.tag, n.seq)
			}

			if head.kind != k {
				return n.failf("frame from %d is %v, expected %v", src, head.kind, k)
			}

			if !started {
				started = true
				total = head.total
				payload = make([]byte, 0, total)
			} else if head.total != total {
				return n.failf("frame from %d announces %d bytes, expected %d", src, head.total, total)
			}

			if int(head.length) > len(b)-frameHeadSize || uint64(len(payload))+uint64(head.length) > uint64(total) {
				return n.failf("frame from %d carries %d bytes, overflowing message of %d", src, head.length, total)
			}

			payload = append(payload, b[frameHeadSize:frameHeadSize+int(head.length)]...)
			final = head.final != 0
			return nil
		})

		if err != nil {
			return nil, n.linkError("receive", k, src, err)
		}
	}

	if uint32(len(payload)) != total {
		return nil, n.failf("message from %d has %d bytes, announced %d", src, len(payload), total)
	}

	return
}

func (n *Node) linkError(op string, k kind, peer int, err error) error {
	if errors.Is(err, ErrCommFailure) {
		return err
	}

	var reason string

	switch {
	case errors.Is(err, channel.ErrClosed):
		reason = "peer closed the link"
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timed out"
	case errors.Is(err, context.Canceled):
		reason = "canceled"
	default:
		reason = "link error"
	}

	return fmt.Errorf("%w: %s %v with rank %d: %s: %w", ErrCommFailure, op, k, peer, reason, err)
}

func (n *Node) failf(format string, args ...any) error {
	return commErrorf(ErrCommFailure, "rank %d: "+format, append([]any{n.rank}, args...)...)
}

func (n *Node) checkRoot(root int) error {
	if root < 0 || root >= n.size {
		return commErrorf(ErrInvalidArgument, "root %d outside world of %d", root, n.size)
	}

	return nil
}

func (n *Node) checkPartition(part partition.Partition) error {
	if part.Workers() != n.size {
		return commErrorf(ErrInvalidArgument, "partition over %d ranks in a world of %d", part.Workers(), n.size)
	}

	return nil
}

// Close gives up the node's links. Peers still waiting on this rank fail
// instead of blocking forever; data already sent can still be read.
func (n *Node) Close() (err error) {
	if n.closed {
		return
	}

	n.closed = true

	for _, ch := range n.out {
		if ch != nil {
			ch.CloseWriting()
		}
	}

	for _, ch := range n.in {
		if ch != nil {
			ch.CloseReading()
		}
	}

	for _, chs := range [][]channel.Channel{n.out, n.in} {
		for _, ch := range chs {
			if ch == nil {
				continue
			}

			if e := ch.Close(); e != nil && err == nil {
				err = e
			}
		}
	}

	return
}

func commErrorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
