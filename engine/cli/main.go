// Command cli multiplies two square matrices over a world of ranks.
//
// Started by hand it prepares a mailbox directory and launches itself once per
// rank; each launched copy finds its rank in the environment. With -local all
// ranks run as goroutines of a single process instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/webbmaffian/go-matmul/comm"
	"github.com/webbmaffian/go-matmul/engine"
	"github.com/webbmaffian/go-matmul/launch"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	cfg := engine.DefaultConfig()

	flag.IntVar(&cfg.Size, "np", cfg.Size, "number of ranks")
	flag.IntVar(&cfg.Dimension, "n", cfg.Dimension, "expected matrix dimension (0 accepts any)")
	flag.StringVar(&cfg.A, "a", cfg.A, "left operand (CSV, or binary with the .mmat extension)")
	flag.StringVar(&cfg.B, "b", cfg.B, "right operand")
	flag.StringVar(&cfg.Out, "out", cfg.Out, "where to write the product")
	flag.IntVar(&cfg.Precision, "precision", cfg.Precision, "decimals in CSV output (-1 for shortest exact)")
	flag.Var(&cfg.Kernel, "kernel", "multiplication kernel: naive or gonum")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "give up after this long (0 waits forever)")
	flag.StringVar(&cfg.Mailbox, "mailbox", cfg.Mailbox, "directory for the link files (default a temporary one)")
	flag.IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "frames buffered per link")
	flag.IntVar(&cfg.ItemSize, "item-size", cfg.ItemSize, "bytes per frame")
	flag.DurationVar(&cfg.Poll, "poll", cfg.Poll, "longest sleep between two looks at a link (0 for the default)")
	flag.BoolVar(&cfg.Local, "local", cfg.Local, "run every rank in this process")
	flag.Parse()

	code := run(cfg)
	klog.Flush()
	os.Exit(code)
}

func run(cfg engine.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	err := cfg.Validate()

	if err == nil {
		var r launch.Rank

		switch r, err = launch.FromEnv(); {
		case err == nil:
			err = runRank(ctx, cfg, r)
		case errors.Is(err, launch.ErrNotLaunched) && cfg.Local:
			err = runLocal(ctx, cfg)
		case errors.Is(err, launch.ErrNotLaunched):
			return runLauncher(ctx, cfg)
		default:
			err = fmt.Errorf("%w: %w", engine.ErrInvalidConfig, err)
		}
	}

	if err != nil {
		klog.ErrorS(err, "Matrix multiplication failed")
	}

	return engine.ExitCode(err)
}

// runRank is one launched process.
func runRank(ctx context.Context, cfg engine.Config, r launch.Rank) (err error) {
	if npSet() && cfg.Size != r.Size {
		return fmt.Errorf("%w: -np %d, but launched into a world of %d", engine.ErrInvalidConfig, cfg.Size, r.Size)
	}

	logger := klog.LoggerWithValues(klog.Background(), "rank", r.Rank)
	node, err := comm.Open(ctx, r.Mailbox, r.Rank, r.Size, cfg.CommOptions(logger)...)

	if err != nil {
		return
	}

	defer node.Close()

	return runNode(ctx, cfg, node, logger)
}

// runLocal runs every rank as a goroutine over in-memory links. A failed
// rank closes its node, which fails the others.
func runLocal(ctx context.Context, cfg engine.Config) (err error) {
	nodes, err := comm.NewLocalWorld(cfg.Size, cfg.CommOptions(klog.Background())...)

	if err != nil {
		return
	}

	errs := make([]error, len(nodes))
	var wg sync.WaitGroup

	for rank, node := range nodes {
		wg.Add(1)

		go func() {
			defer wg.Done()
			defer node.Close()

			errs[rank] = runNode(ctx, cfg, node, klog.LoggerWithValues(klog.Background(), "rank", rank))
		}()
	}

	wg.Wait()

	if errs[engine.Root] != nil {
		return errs[engine.Root]
	}

	return errors.Join(errs...)
}

func runNode(ctx context.Context, cfg engine.Config, node *comm.Node, logger klog.Logger) error {
	exec := engine.ExecutionContext{
		Rank:   node.Rank(),
		Size:   node.Size(),
		Comm:   node,
		Kernel: cfg.Kernel,
		Logger: logger,
	}

	if exec.Rank != engine.Root {
		return engine.Worker{Exec: exec}.Run(ctx)
	}

	files := cfg.Files()
	c := engine.Coordinator{
		Exec:      exec,
		Source:    files,
		Sink:      files,
		Dimension: cfg.Dimension,
	}

	if err := c.Run(ctx); err != nil {
		return err
	}

	fmt.Printf("Execution Time: %f seconds\n", c.Elapsed().Seconds())
	return nil
}

// runLauncher prepares the mailbox and starts one copy of this program per
// rank. Its exit status is the one of the failing rank.
func runLauncher(ctx context.Context, cfg engine.Config) int {
	dir := cfg.Mailbox

	if dir == "" {
		tmp, err := os.MkdirTemp("", "matmul-*")

		if err != nil {
			klog.ErrorS(err, "Failed to create mailbox")
			return engine.ExitIOFailure
		}

		defer os.RemoveAll(tmp)
		dir = tmp
	}

	if err := comm.Prepare(dir, cfg.Size, cfg.CommOptions(klog.Background())...); err != nil {
		klog.ErrorS(err, "Failed to prepare mailbox", "dir", dir)
		return engine.ExitCode(fmt.Errorf("%w: %w", engine.ErrCommFailure, err))
	}

	exe, err := os.Executable()

	if err != nil {
		klog.ErrorS(err, "Failed to find own executable")
		return engine.ExitFailure
	}

	klog.V(1).InfoS("Launching ranks", "np", cfg.Size, "mailbox", dir)

	err = launch.Run(ctx, launch.Config{
		Size:    cfg.Size,
		Path:    exe,
		Args:    os.Args[1:],
		Mailbox: dir,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Logger:  klog.Background(),
	})

	var ee *launch.ExitError

	switch {
	case err == nil:
		return engine.ExitOK
	case errors.As(err, &ee) && ee.Code > 0:
		return ee.Code
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		klog.ErrorS(err, "Ranks stopped before finishing")
		return engine.ExitCommFailure
	}

	klog.ErrorS(err, "Ranks failed")
	return engine.ExitFailure
}

func npSet() (set bool) {
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "np" {
			set = true
		}
	})

	return
}
