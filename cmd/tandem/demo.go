package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/tandem/asyncbuffer"
	"github.com/dogmatiq/tandem/composite"
	"github.com/dogmatiq/tandem/composite/compositetest"
	"github.com/dogmatiq/tandem/controller"
	"github.com/dogmatiq/tandem/framestore/boltdb"
	"github.com/dogmatiq/tandem/internal/x/bboltx"
	"github.com/dogmatiq/tandem/internal/x/loggingx"
	"github.com/dogmatiq/tandem/pipeline"
	"github.com/dogmatiq/tandem/port"
)

// quadTag is the base tag of the ports that carry each satellite's quad.
const quadTag controller.Tag = 200

// quad describes the flat quad rendered by one process.
type quad struct {
	Rank  int
	Depth float32
	Color [4]float32
}

// quadFor returns the quad rendered by the process with the given rank. Depth
// decreases with rank, so the last process is nearest.
func quadFor(rank, size int) quad {
	return quad{
		Rank:  rank,
		Depth: 1 - float32(rank+1)/float32(size+1),
		Color: [4]float32{
			float32(rank%3) / 2,
			float32((rank/3)%3) / 2,
			float32(rank) / float32(size),
			1,
		},
	}
}

type demo struct {
	config config
	logger logging.Logger
}

// Run runs the demo on one process.
func (d *demo) Run(ctx context.Context, p *controller.Process) error {
	rank := int(p.LocalProcessID())
	size := p.NumberOfProcesses()
	logger := loggingx.ForProcess(d.logger, rank, size)

	window := compositetest.NewWindow(d.config.Width, d.config.Height, 1)

	var opts []composite.Option
	opts = append(opts, composite.WithLogger(logger))

	if rank != 0 {
		return d.satellite(ctx, p, window, opts)
	}

	if d.config.Frames != "" {
		db, err := bboltx.Open(ctx, filepath.Clean(d.config.Frames), 0, nil)
		if err != nil {
			return err
		}
		defer db.Close()

		opts = append(opts, composite.WithCapture(boltdb.New(db)))
	}

	return d.root(ctx, p, window, logger, opts)
}

// satellite publishes the local quad and serves RMIs until the root is done.
func (d *demo) satellite(
	ctx context.Context,
	p *controller.Process,
	window *compositetest.Window,
	opts []composite.Option,
) error {
	q := quadFor(int(p.LocalProcessID()), p.NumberOfProcesses())

	source := &pipeline.Source{
		Produce: func(context.Context, pipeline.Extent) (interface{}, error) {
			return q, nil
		},
	}

	out, err := port.NewOutputPort(p, quadTag, source, port.WithLogger(d.logger))
	if err != nil {
		return err
	}
	defer out.Close()

	window.Color = q.Color
	window.Depth = q.Depth

	c, err := composite.New(p, window, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	return c.StartServices(ctx)
}

// root collects the quads, composites and reports the result.
func (d *demo) root(
	ctx context.Context,
	p *controller.Process,
	window *compositetest.Window,
	logger logging.Logger,
	opts []composite.Option,
) (err error) {
	c, err := composite.New(p, window, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	defer func() {
		if e := c.StopServices(ctx); err == nil {
			err = e
		}
	}()

	q := quadFor(0, p.NumberOfProcesses())
	window.Color = q.Color
	window.Depth = q.Depth

	for id := 1; id < p.NumberOfProcesses(); id++ {
		remote, err := d.fetch(ctx, p, controller.ProcessID(id))
		if err != nil {
			return err
		}

		logging.Log(logger, "process %d renders depth %.3f", remote.Rank, remote.Depth)
	}

	if err := c.ResetCamera(ctx, 0); err != nil {
		return err
	}

	if err := c.Render(ctx); err != nil {
		return err
	}

	f := window.Written()
	if f == nil {
		return fmt.Errorf("no frame was composited")
	}

	logging.Log(
		logger,
		"composited %dx%d frame, depth %.3f at the origin, color %v",
		f.Width,
		f.Height,
		f.Depth[0],
		f.FloatColor[0:4],
	)

	return nil
}

// fetch pulls the quad of process id through an input port, buffered by a
// blocking asynchronous buffer.
func (d *demo) fetch(ctx context.Context, p *controller.Process, id controller.ProcessID) (quad, error) {
	in, err := port.NewInputPort(p, id, quadTag, port.WithLogger(d.logger))
	if err != nil {
		return quad{}, err
	}

	buf := asyncbuffer.New(
		in,
		asyncbuffer.WithBlocking(true),
		asyncbuffer.WithLogger(d.logger),
	)
	defer buf.Close()

	if _, err := buf.UpdateInformation(ctx); err != nil {
		return quad{}, err
	}

	v, err := buf.Update(ctx, pipeline.WholeExtent)
	if err != nil {
		return quad{}, err
	}

	q, ok := v.(quad)
	if !ok {
		return quad{}, fmt.Errorf("process %s sent %T, expected a quad", id, v)
	}

	return q, nil
}
