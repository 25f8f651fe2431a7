// Command cli shows the state of mailbox channels, either a single channel
// file or every link in a mailbox directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/gosuri/uilive"
	"github.com/mattn/go-isatty"
	"github.com/webbmaffian/go-matmul/channel"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	interval := flag.Duration("interval", time.Second, "refresh interval")
	once := flag.Bool("once", false, "print a single snapshot and exit")
	flag.Parse()
	defer klog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	args := flag.Args()

	if len(args) != 1 {
		klog.ErrorS(nil, "Exactly one (1) argument expected, and this must be the path to a channel file or mailbox directory.")
		os.Exit(2)
	}

	paths, err := linkFiles(args[0])

	if err != nil {
		klog.ErrorS(err, "Failed to list channels", "path", args[0])
		os.Exit(1)
	}

	views := make([]*view, 0, len(paths))

	for _, path := range paths {
		ch, err := channel.OpenByteChannelReadonly(path)

		if err != nil {
			klog.ErrorS(err, "Failed to open channel", "path", path)
			os.Exit(1)
		}

		defer ch.Close()
		views = append(views, &view{path: path, ch: ch})
	}

	// Without a terminal there is nothing to redraw; print plain snapshots.
	if *once || !isatty.IsTerminal(os.Stdout.Fd()) {
		for _, v := range views {
			v.render(os.Stdout)
		}

		return
	}

	writer := uilive.New()
	writer.RefreshInterval = *interval

	for _, v := range views {
		v.out = writer.Newline()
	}

	writer.Start()
	defer writer.Stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		for _, v := range views {
			v.render(v.out)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type view struct {
	path string
	ch   *channel.ByteChannelReadonly
	out  io.Writer
}

func (v *view) render(w io.Writer) {
	name := filepath.Base(v.path)

	if l, err := channel.ParseLink(v.path); err == nil {
		name = l.String()
	}

	var state string

	switch {
	case v.ch.ClosedReading():
		state = "closed (reader)"
	case v.ch.ClosedWriting():
		state = "closed (writer)"
	default:
		state = "open"
	}

	fmt.Fprintf(w, "%-12s pending %4d/%-4d item %5d B | written %8d | read %8d | %s\n",
		name, v.ch.Len(), v.ch.Cap(), v.ch.ItemSize(), v.ch.ItemsWritten(), v.ch.ItemsRead(), state)
}

func linkFiles(path string) (paths []string, err error) {
	info, err := os.Stat(path)

	if err != nil {
		return
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	if paths, err = filepath.Glob(filepath.Join(path, "*.chan")); err != nil {
		return
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no channels in %s", path)
	}

	sort.Strings(paths)
	return
}
