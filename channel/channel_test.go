package channel

import (
	"context"
	"encoding/binary"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func channels(t *testing.T, capacity, itemSize int) map[string]Channel {
	t.Helper()

	file, err := NewByteChannel(filepath.Join(t.TempDir(), "test.chan"), capacity, itemSize)
	require.NoError(t, err)
	t.Cleanup(func() { file.Close() })

	return map[string]Channel{
		"mmap":   file,
		"memory": NewMemoryByteChannel(capacity, itemSize),
	}
}

func TestChannelOrderAcrossWrap(t *testing.T) {
	for name, ch := range channels(t, 3, 8) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const items = 50

			var wg sync.WaitGroup
			wg.Add(1)

			go func() {
				defer wg.Done()

				for i := uint64(0); i < items; i++ {
					err := ch.WriteOrBlock(ctx, func(b []byte) {
						binary.LittleEndian.PutUint64(b, i)
					})
					assert.NoError(t, err)
				}

				ch.CloseWriting()
			}()

			var got []uint64

			for {
				err := ch.ReadOrBlock(ctx, func(b []byte) error {
					got = append(got, binary.LittleEndian.Uint64(b))
					return nil
				})

				if errors.Is(err, ErrClosed) {
					break
				}

				require.NoError(t, err)
			}

			wg.Wait()
			require.Len(t, got, items)

			for i, v := range got {
				require.Equal(t, uint64(i), v)
			}
		})
	}
}

func TestChannelReadTimesOut(t *testing.T) {
	for name, ch := range channels(t, 2, 8) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()

			err := ch.ReadOrBlock(ctx, func([]byte) error { return nil })
			require.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestChannelWriteBlocksWhenFull(t *testing.T) {
	for name, ch := range channels(t, 1, 8) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, ch.WriteOrBlock(context.Background(), func([]byte) {}))

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()

			err := ch.WriteOrBlock(ctx, func([]byte) {})
			require.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestChannelClosedReadingFailsWriter(t *testing.T) {
	for name, ch := range channels(t, 1, 8) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, ch.WriteOrBlock(context.Background(), func([]byte) {}))

			done := make(chan error, 1)

			go func() {
				done <- ch.WriteOrBlock(context.Background(), func([]byte) {})
			}()

			ch.CloseReading()

			select {
			case err := <-done:
				require.ErrorIs(t, err, ErrClosed)
			case <-time.After(5 * time.Second):
				t.Fatal("blocked writer was not released")
			}
		})
	}
}

func TestFailedReadConsumesItem(t *testing.T) {
	for name, ch := range channels(t, 2, 8) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, ch.WriteOrBlock(ctx, func(b []byte) { b[0] = 1 }))
			require.NoError(t, ch.WriteOrBlock(ctx, func(b []byte) { b[0] = 2 }))

			boom := errors.New("boom")
			require.ErrorIs(t, ch.ReadOrBlock(ctx, func([]byte) error { return boom }), boom)

			require.NoError(t, ch.ReadOrBlock(ctx, func(b []byte) error {
				require.Equal(t, byte(2), b[0])
				return nil
			}))
		})
	}
}

func TestByteChannelReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.chan")

	ch, err := NewByteChannel(path, 4, 16)
	require.NoError(t, err)
	require.NoError(t, ch.WriteOrBlock(context.Background(), func(b []byte) { copy(b, "hello") }))
	require.NoError(t, ch.Close())

	_, err = NewByteChannel(path, 8, 16)
	require.ErrorIs(t, err, ErrMismatch)

	ch, err = NewByteChannel(path, 4, 16)
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })

	require.Equal(t, int64(1), ch.Len())
	require.NoError(t, ch.ReadOrBlock(context.Background(), func(b []byte) error {
		require.Equal(t, "hello", string(b[:5]))
		return nil
	}))
}

func TestByteChannelValidation(t *testing.T) {
	dir := t.TempDir()

	_, err := NewByteChannel(filepath.Join(dir, "a.chan"), 4, 12)
	require.ErrorIs(t, err, ErrInvalidItemSize)

	_, err = NewByteChannel(filepath.Join(dir, "b.chan"), 0, 8)
	require.ErrorIs(t, err, ErrCapacityRequired)
	require.NoFileExists(t, filepath.Join(dir, "b.chan"))
}

func TestReadonlyObserver(t *testing.T) {
	path := filepath.Join(t.TempDir(), Link{Src: 1, Dst: 0}.Filename())

	ch, err := NewByteChannel(path, 4, 8)
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })

	ro, err := OpenByteChannelReadonly(path)
	require.NoError(t, err)
	t.Cleanup(func() { ro.Close() })

	require.Equal(t, int64(4), ro.Cap())
	require.Equal(t, int64(8), ro.ItemSize())

	ctx := context.Background()
	require.NoError(t, ch.WriteOrBlock(ctx, func(b []byte) { b[0] = 1 }))
	require.NoError(t, ch.WriteOrBlock(ctx, func(b []byte) { b[0] = 2 }))
	require.NoError(t, ch.ReadOrBlock(ctx, func([]byte) error { return nil }))

	require.Equal(t, int64(1), ro.Len())
	require.Equal(t, uint64(2), ro.ItemsWritten())
	require.Equal(t, uint64(1), ro.ItemsRead())

	b, ok := ro.Peek(0)
	require.True(t, ok)
	require.Equal(t, byte(2), b[0])

	_, ok = ro.Peek(1)
	require.False(t, ok)

	ch.CloseWriting()
	require.True(t, ro.ClosedWriting())
	require.False(t, ro.ClosedReading())
}

func TestLinkFilename(t *testing.T) {
	l := Link{Src: 3, Dst: 12}
	require.Equal(t, "0003-0012.chan", l.Filename())
	require.Equal(t, "3->12", l.String())

	parsed, err := ParseLink(filepath.Join("some", "dir", l.Filename()))
	require.NoError(t, err)
	require.Equal(t, l, parsed)

	_, err = ParseLink("notes.txt")
	require.Error(t, err)
}

func BenchmarkByteChannelWriteRead(b *testing.B) {
	ch, err := NewByteChannel(filepath.Join(b.TempDir(), "bench.chan"), 64, 64)

	if err != nil {
		b.Fatal(err)
	}

	b.Cleanup(func() {
		ch.Close()
	})

	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err = ch.WriteOrBlock(ctx, func(b []byte) { b[0] = 1 }); err != nil {
			b.Fatal(err)
		}

		if err = ch.ReadOrBlock(ctx, func([]byte) error { return nil }); err != nil {
			b.Fatal(err)
		}
	}
}
