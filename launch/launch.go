// Package launch starts the ranks of a world as a group of processes that
// live and die together.
package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"k8s.io/klog/v2"
)

// Environment of a launched rank.
const (
	EnvRank    = "MATMUL_RANK"
	EnvSize    = "MATMUL_SIZE"
	EnvMailbox = "MATMUL_MAILBOX"
)

type launchError string

var _ error = launchError("")

func (err launchError) Error() string {
	return string(err)
}

const (
	ErrInvalidConfig = launchError("launch: invalid configuration")
	ErrNotLaunched   = launchError("launch: not a launched rank")
)

// Rank is what a launched process learns from its environment.
type Rank struct {
	Rank    int
	Size    int
	Mailbox string
}

// FromEnv returns the rank the current process was launched as. It fails
// with ErrNotLaunched if the process wasn't started by Run.
func FromEnv() (r Rank, err error) {
	rank, okRank := os.LookupEnv(EnvRank)
	size, okSize := os.LookupEnv(EnvSize)

	if !okRank && !okSize {
		return r, ErrNotLaunched
	}

	if r.Rank, err = strconv.Atoi(rank); err != nil {
		return r, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvRank, rank)
	}

	if r.Size, err = strconv.Atoi(size); err != nil {
		return r, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvSize, size)
	}

	if r.Size <= 0 || r.Rank < 0 || r.Rank >= r.Size {
		return r, fmt.Errorf("%w: rank %d in world of %d", ErrInvalidConfig, r.Rank, r.Size)
	}

	if r.Mailbox = os.Getenv(EnvMailbox); r.Mailbox == "" {
		return r, fmt.Errorf("%w: %s is not set", ErrInvalidConfig, EnvMailbox)
	}

	return
}

// Config describes a group of processes running the same program.
type Config struct {
	Size    int
	Path    string
	Args    []string
	Env     []string // Added to the environment of the current process.
	Mailbox string
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  klog.Logger
}

// ExitError is the failure of one rank.
type ExitError struct {
	Rank int
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("rank %d exited with code %d: %v", e.Rank, e.Code, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

type exit struct {
	rank int
	err  error
}

// Run starts Size copies of the program and waits for all of them. As soon as
// one rank fails, or ctx is done, the whole group is killed. The returned
// ExitError names the root's failure if it has one, otherwise the first rank
// that failed.
func Run(ctx context.Context, cfg Config) (err error) {
	if cfg.Size <= 0 || cfg.Path == "" {
		return fmt.Errorf("%w: %d ranks of %q", ErrInvalidConfig, cfg.Size, cfg.Path)
	}

	logger := cfg.Logger

	if logger.GetSink() == nil {
		logger = klog.Background()
	}

	g := &group{}
	exits := make(chan exit, cfg.Size)
	stdout, stderr := shareWriter(cfg.Stdout), shareWriter(cfg.Stderr)

	for rank := 0; rank < cfg.Size; rank++ {
		cmd := exec.Command(cfg.Path, cfg.Args...)
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		cmd.Env = append(os.Environ(), cfg.Env...)
		cmd.Env = append(cmd.Env,
			EnvRank+"="+strconv.Itoa(rank),
			EnvSize+"="+strconv.Itoa(cfg.Size),
			EnvMailbox+"="+cfg.Mailbox,
		)

		if err = g.start(cmd); err != nil {
			g.kill()
			g.wait(exits)
			return fmt.Errorf("starting rank %d: %w", rank, err)
		}

		logger.V(2).Info("Started rank", "rank", rank, "pid", cmd.Process.Pid)
	}

	g.wait(exits)

	var failed []*ExitError
	done := ctx.Done()

	for pending := cfg.Size; pending > 0; {
		select {
		case e := <-exits:
			pending--

			if e.err == nil {
				continue
			}

			ee := &ExitError{Rank: e.rank, Code: -1, Err: e.err}
			var xe *exec.ExitError

			if errors.As(e.err, &xe) {
				ee.Code = xe.ExitCode()
			}

			if len(failed) == 0 {
				logger.Info("Rank failed, stopping the group", "rank", e.rank, "code", ee.Code)
				g.kill()
			}

			failed = append(failed, ee)

		case <-done:
			done = nil
			logger.Info("Stopping the group", "reason", context.Cause(ctx))
			g.kill()
		}
	}

	// Ranks killed by the group exit without a code of their own. The root's
	// failure is what the caller wants to see, then any other real one.
	var root, first *ExitError

	for _, ee := range failed {
		if ee.Code <= 0 {
			continue
		}

		if first == nil {
			first = ee
		}

		if ee.Rank == 0 {
			root = ee
		}
	}

	switch {
	case root != nil:
		return root
	case first != nil:
		return first
	case ctx.Err() != nil:
		return ctx.Err()
	case len(failed) != 0:
		return failed[0]
	}

	return
}

// lockedWriter lets the output copiers of all ranks write to one writer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	return lw.w.Write(p)
}

// shareWriter returns w ready to be handed to every rank. Files are written
// by the children directly; anything else gets copied by one goroutine per
// rank and needs serializing.
func shareWriter(w io.Writer) io.Writer {
	switch w.(type) {
	case nil, *os.File:
		return w
	}

	return &lockedWriter{w: w}
}

type group struct {
	cmds []*exec.Cmd
	pgid int
}

func (g *group) start(cmd *exec.Cmd) (err error) {
	setGroup(cmd, g.pgid)

	if err = cmd.Start(); err != nil {
		return
	}

	if g.pgid == 0 {
		g.pgid = cmd.Process.Pid
	}

	g.cmds = append(g.cmds, cmd)
	return
}

func (g *group) wait(exits chan<- exit) {
	for rank, cmd := range g.cmds {
		go func() {
			exits <- exit{rank: rank, err: cmd.Wait()}
		}()
	}
}

func (g *group) kill() {
	if g.pgid != 0 && killGroup(g.pgid) == nil {
		return
	}

	for _, cmd := range g.cmds {
		cmd.Process.Kill()
	}
}
