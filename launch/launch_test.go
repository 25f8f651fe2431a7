package launch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test. It is the program the other tests
// launch, behaving as HELPER_MODE says.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	r, err := FromEnv()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(9)
	}

	switch os.Getenv("HELPER_MODE") {
	case "ok":
		fmt.Printf("rank %d of %d\n", r.Rank, r.Size)
		os.Exit(0)

	case "fail-one":
		if r.Rank == 1 {
			os.Exit(4)
		}

	case "fail-root":
		if r.Rank == 0 {
			time.Sleep(100 * time.Millisecond)
			os.Exit(3)
		}
	}

	time.Sleep(time.Minute)
	os.Exit(0)
}

func helper(mode string, size int) Config {
	return Config{
		Size:    size,
		Path:    os.Args[0],
		Args:    []string{"-test.run=^TestHelperProcess$"},
		Env:     []string{"GO_WANT_HELPER_PROCESS=1", "HELPER_MODE=" + mode},
		Mailbox: "unused",
	}
}

func TestRunAllSucceed(t *testing.T) {
	cfg := helper("ok", 3)
	var out bytes.Buffer
	cfg.Stdout = &out

	require.NoError(t, Run(context.Background(), cfg))

	for rank := 0; rank < 3; rank++ {
		assert.Contains(t, out.String(), fmt.Sprintf("rank %d of 3", rank))
	}
}

func TestShareWriterSerializesRanks(t *testing.T) {
	require.Equal(t, os.Stdout, shareWriter(os.Stdout))
	require.Nil(t, shareWriter(nil))

	var out bytes.Buffer
	w := shareWriter(&out)
	done := make(chan struct{})

	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()

			for j := 0; j < 100; j++ {
				fmt.Fprintf(w, "%d\n", i)
			}
		}()
	}

	for i := 0; i < 8; i++ {
		<-done
	}

	assert.Equal(t, 800, bytes.Count(out.Bytes(), []byte("\n")))
}

func TestRunFailsFast(t *testing.T) {
	start := time.Now()
	err := Run(context.Background(), helper("fail-one", 4))

	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.Rank)
	assert.Equal(t, 4, ee.Code)
	assert.Less(t, time.Since(start), 30*time.Second)
}

func TestRunPrefersRootFailure(t *testing.T) {
	err := Run(context.Background(), helper("fail-root", 3))

	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 0, ee.Rank)
	assert.Equal(t, 3, ee.Code)
}

func TestRunStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := Run(ctx, helper("hang", 2))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunInvalidConfig(t *testing.T) {
	require.ErrorIs(t, Run(context.Background(), Config{Size: 0, Path: "x"}), ErrInvalidConfig)
	require.ErrorIs(t, Run(context.Background(), Config{Size: 2}), ErrInvalidConfig)
	require.Error(t, Run(context.Background(), Config{Size: 2, Path: "/nonexistent/binary"}))
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvRank, "")
	t.Setenv(EnvSize, "")
	os.Unsetenv(EnvRank)
	os.Unsetenv(EnvSize)

	_, err := FromEnv()
	require.ErrorIs(t, err, ErrNotLaunched)

	t.Setenv(EnvRank, "2")
	t.Setenv(EnvSize, "3")
	t.Setenv(EnvMailbox, "/tmp/mb")

	r, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, Rank{Rank: 2, Size: 3, Mailbox: "/tmp/mb"}, r)

	t.Setenv(EnvRank, "3")
	_, err = FromEnv()
	require.ErrorIs(t, err, ErrInvalidConfig)

	t.Setenv(EnvRank, "x")
	_, err = FromEnv()
	require.ErrorIs(t, err, ErrInvalidConfig)
}
