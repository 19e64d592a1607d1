// Package main runs a parallel rendering demo on a group of processes.
//
// Every satellite publishes the depth of its quad through an output port and
// renders a quad of its own color. The root pulls each depth through an input
// port, renders, and reports the composited image.
//
// With -backend=memory every process runs in this binary. With -backend=socket
// or -backend=grpc one instance is started per rank, each with the same
// -peers list.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/tandem/controller"
	"github.com/dogmatiq/tandem/controller/collective"
	"github.com/dogmatiq/tandem/controller/memory"
	"github.com/dogmatiq/tandem/controller/socket"
	"github.com/dogmatiq/tandem/internal/x/loggingx"
	"go.uber.org/zap"
)

// newContext returns a cancelable context that is canceled when the process
// receives a SIGTERM or SIGINT.
func newContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type config struct {
	Backend string
	Size    int
	Rank    int
	Peers   []string
	Width   int
	Height  int
	Frames  string
	Debug   bool
}

func main() {
	var (
		cfg   config
		peers string
	)

	flag.StringVar(&cfg.Backend, "backend", "memory", "communicator to use: memory, socket or grpc")
	flag.IntVar(&cfg.Size, "n", 4, "number of processes (memory backend only)")
	flag.IntVar(&cfg.Rank, "rank", 0, "rank of this process (socket and grpc backends)")
	flag.StringVar(&peers, "peers", "", "comma-separated address of every process, by rank")
	flag.IntVar(&cfg.Width, "width", 64, "window width in pixels")
	flag.IntVar(&cfg.Height, "height", 64, "window height in pixels")
	flag.StringVar(&cfg.Frames, "frames", "", "BoltDB file to capture composited frames to")
	flag.BoolVar(&cfg.Debug, "debug", false, "log transport and protocol details")
	flag.Parse()

	if peers != "" {
		cfg.Peers = strings.Split(peers, ",")
	}

	ctx, cancel := newContext()
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}

func run(ctx context.Context, cfg config) error {
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return err
	}

	opts := []controller.Option{
		controller.WithLogger(logger),
		controller.WithMarshaler(controller.NewDefaultMarshaler(reflect.TypeOf(quad{}))),
	}

	d := &demo{cfg, logger}

	switch cfg.Backend {
	case "memory":
		return memory.NewGroup(cfg.Size).Run(ctx, d.Run, opts...)

	case "socket":
		comm, err := socket.Open(
			ctx,
			controller.ProcessID(cfg.Rank),
			cfg.Peers,
			socket.WithLogger(logger),
		)
		if err != nil {
			return err
		}

		p := controller.New(comm, opts...)
		defer p.Close()

		return d.Run(ctx, p)

	case "grpc":
		comm, err := collective.Open(
			ctx,
			collective.Config{
				Rank:      controller.ProcessID(cfg.Rank),
				Addresses: cfg.Peers,
			},
			collective.WithLogger(logger),
		)
		if err != nil {
			return err
		}

		p := controller.New(comm, opts...)
		defer p.Close()

		return d.Run(ctx, p)

	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// newLogger returns a logger backed by zap.
func newLogger(debug bool) (logging.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.DisableStacktrace = true

	if !debug {
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	l, err := zc.Build()
	if err != nil {
		return nil, err
	}

	return loggingx.Zap(l), nil
}
