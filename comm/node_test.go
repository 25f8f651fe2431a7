package comm

import (
	"context"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webbmaffian/go-matmul/matrix"
	"github.com/webbmaffian/go-matmul/partition"
)

// runWorld drives every node in its own goroutine and returns their errors by
// rank. A failing rank closes its node, like a crashed process would.
func runWorld(t *testing.T, nodes []*Node, fn func(ctx context.Context, n *Node) error) []error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	errs := make([]error, len(nodes))
	var wg sync.WaitGroup

	for i, n := range nodes {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if errs[i] = fn(ctx, n); errs[i] != nil {
				n.Close()
			}
		}()
	}

	wg.Wait()

	for _, n := range nodes {
		n.Close()
	}

	return errs
}

func sequential(t testing.TB, rows, cols int) *matrix.Dense {
	m, err := matrix.New(rows, cols)
	require.NoError(t, err)

	for i := range m.Raw() {
		m.Raw()[i] = float64(i) + 0.25
	}

	return m
}

func TestBroadcastScatterGatherRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		n, p, itemSize int
	}{
		{n: 2, p: 2, itemSize: DefaultItemSize},
		{n: 3, p: 4, itemSize: DefaultItemSize},
		{n: 10, p: 3, itemSize: 64},
		{n: 7, p: 1, itemSize: 32},
		{n: 1, p: 5, itemSize: 24},
	} {
		nodes, err := NewLocalWorld(tc.p, WithItemSize(tc.itemSize), WithCapacity(2))
		require.NoError(t, err)

		src := sequential(t, tc.n, tc.n)
		part, err := partition.New(tc.n, tc.p)
		require.NoError(t, err)

		var gathered *matrix.Dense
		blocks := make([]*matrix.Dense, tc.p)
		broadcasts := make([]*matrix.Dense, tc.p)

		errs := runWorld(t, nodes, func(ctx context.Context, n *Node) (err error) {
			var in *matrix.Dense

			if n.Rank() == 0 {
				in = src
			}

			if broadcasts[n.Rank()], err = n.Broadcast(ctx, in, 0); err != nil {
				return
			}

			if blocks[n.Rank()], err = n.Scatter(ctx, in, part, 0); err != nil {
				return
			}

			res, err := n.Gather(ctx, blocks[n.Rank()], part, 0)

			if n.Rank() == 0 {
				gathered = res
			} else {
				assert.Nil(t, res)
			}

			return
		})

		for rank, err := range errs {
			require.NoError(t, err, "n=%d p=%d rank=%d", tc.n, tc.p, rank)
		}

		for rank := range nodes {
			require.True(t, broadcasts[rank].Equal(src), "broadcast to rank %d", rank)

			rg := part.Range(rank)
			want, err := src.Slice(rg.Start, rg.End)
			require.NoError(t, err)
			require.True(t, blocks[rank].Equal(want), "scatter to rank %d", rank)
		}

		require.True(t, gathered.Equal(src), "n=%d p=%d", tc.n, tc.p)
	}
}

func TestScatterCopiesRows(t *testing.T) {
	nodes, err := NewLocalWorld(2)
	require.NoError(t, err)

	src := sequential(t, 4, 4)
	part, _ := partition.New(4, 2)
	blocks := make([]*matrix.Dense, 2)

	errs := runWorld(t, nodes, func(ctx context.Context, n *Node) (err error) {
		var in *matrix.Dense

		if n.Rank() == 0 {
			in = src
		}

		blocks[n.Rank()], err = n.Scatter(ctx, in, part, 0)
		return
	})

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	blocks[0].Raw()[0] = -1
	blocks[1].Raw()[0] = -1
	require.Equal(t, 0.25, src.At(0, 0))
	require.Equal(t, 8.25, src.At(2, 0))
}

func TestGatherPreservesRowOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for p := 1; p <= 6; p++ {
		const n = 5
		nodes, err := NewLocalWorld(p, WithItemSize(48))
		require.NoError(t, err)

		part, _ := partition.New(n, p)
		owned := make([]*matrix.Dense, p)

		for rank := range owned {
			owned[rank], err = matrix.NewBlock(part.Range(rank).Len(), 3)
			require.NoError(t, err)

			for i := range owned[rank].Raw() {
				owned[rank].Raw()[i] = rng.Float64()
			}
		}

		var res *matrix.Dense

		errs := runWorld(t, nodes, func(ctx context.Context, node *Node) (err error) {
			out, err := node.Gather(ctx, owned[node.Rank()], part, 0)

			if node.Rank() == 0 {
				res = out
			}

			return
		})

		for _, err := range errs {
			require.NoError(t, err)
		}

		for row := 0; row < n; row++ {
			owner := part.Owner(row)
			local := row - part.Range(owner).Start
			require.Equal(t, owned[owner].Row(local), res.Row(row), "p=%d row=%d", p, row)
		}
	}
}

func TestNonZeroRoot(t *testing.T) {
	nodes, err := NewLocalWorld(3)
	require.NoError(t, err)

	src := sequential(t, 3, 3)
	got := make([]*matrix.Dense, 3)

	errs := runWorld(t, nodes, func(ctx context.Context, n *Node) (err error) {
		var in *matrix.Dense

		if n.Rank() == 2 {
			in = src
		}

		got[n.Rank()], err = n.Broadcast(ctx, in, 2)
		return
	})

	for rank, err := range errs {
		require.NoError(t, err)
		require.True(t, got[rank].Equal(src))
	}
}

func TestMismatchedCallOrderFails(t *testing.T) {
	nodes, err := NewLocalWorld(2)
	require.NoError(t, err)

	src := sequential(t, 2, 2)
	part, _ := partition.New(2, 2)

	errs := runWorld(t, nodes, func(ctx context.Context, n *Node) error {
		if n.Rank() == 0 {
			_, err := n.Broadcast(ctx, src, 0)
			return err
		}

		// Rank 1 skips the broadcast and expects its rows right away.
		block, _ := matrix.NewBlock(1, 2)
		_, err := n.Gather(ctx, block, part, 0)
		return err
	})

	require.ErrorIs(t, errs[0], ErrCommFailure)
	require.ErrorIs(t, errs[1], ErrCommFailure)
}

func TestPeerGoneFailsFast(t *testing.T) {
	nodes, err := NewLocalWorld(3)
	require.NoError(t, err)

	errs := runWorld(t, nodes, func(ctx context.Context, n *Node) error {
		if n.Rank() == 0 {
			return ErrCommFailure
		}

		_, err := n.Broadcast(ctx, nil, 0)
		return err
	})

	require.ErrorIs(t, errs[1], ErrCommFailure)
	require.ErrorIs(t, errs[2], ErrCommFailure)
}

func TestBoundedWait(t *testing.T) {
	nodes, err := NewLocalWorld(2)
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, n := range nodes {
			n.Close()
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = nodes[1].Broadcast(ctx, nil, 0)
	require.ErrorIs(t, err, ErrCommFailure)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvalidArguments(t *testing.T) {
	nodes, err := NewLocalWorld(2)
	require.NoError(t, err)

	ctx := context.Background()
	n := nodes[0]

	_, err = n.Broadcast(ctx, nil, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = n.Broadcast(ctx, sequential(t, 2, 2), 2)
	require.ErrorIs(t, err, ErrInvalidArgument)

	part, _ := partition.New(2, 3)
	_, err = n.Scatter(ctx, sequential(t, 2, 2), part, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	part, _ = partition.New(3, 2)
	_, err = n.Scatter(ctx, sequential(t, 2, 2), part, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = n.Gather(ctx, sequential(t, 1, 2), part, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewLocalWorld(0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewLocalWorld(2, WithItemSize(12))
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMailboxWorld(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mailbox")
	const size = 3

	opts := []Option{WithCapacity(4), WithItemSize(64), WithPollInterval(100 * time.Microsecond)}
	require.NoError(t, Prepare(dir, size, opts...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nodes := make([]*Node, size)

	for rank := range nodes {
		n, err := Open(ctx, dir, rank, size, opts...)
		require.NoError(t, err)
		nodes[rank] = n
	}

	src := sequential(t, 7, 7)
	part, _ := partition.New(7, size)
	var gathered *matrix.Dense

	errs := runWorld(t, nodes, func(ctx context.Context, n *Node) (err error) {
		var in *matrix.Dense

		if n.Rank() == 0 {
			in = src
		}

		b, err := n.Broadcast(ctx, in, 0)

		if err != nil {
			return
		}

		if !b.Equal(src) {
			t.Errorf("rank %d: broadcast mismatch", n.Rank())
		}

		block, err := n.Scatter(ctx, in, part, 0)

		if err != nil {
			return
		}

		res, err := n.Gather(ctx, block, part, 0)

		if n.Rank() == 0 {
			gathered = res
		}

		return
	})

	for _, err := range errs {
		require.NoError(t, err)
	}

	require.True(t, gathered.Equal(src))
}

func TestOpenChecksWorldSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Prepare(dir, 2))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Open(ctx, dir, 0, 3)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Open(ctx, dir, 0, 2, WithCapacity(DefaultCapacity+1))
	require.ErrorIs(t, err, ErrCommFailure)
}

func TestOpenWaitsForMailbox(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := Open(ctx, filepath.Join(t.TempDir(), "missing"), 0, 2)
	require.ErrorIs(t, err, ErrCommFailure)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
