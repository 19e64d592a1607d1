// Package asyncbuffer provides a pipeline stage that produces the output of
// another stage in the background.
//
// While a background update is in progress nothing upstream of the buffer may
// be modified. The buffer does not enforce this.
package asyncbuffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/tandem/pipeline"
	"golang.org/x/sync/semaphore"
)

// State is the state of a buffer's background update.
type State int

const (
	// Idle means that no update is in progress and no result is waiting.
	Idle State = iota

	// Producing means that an update is in progress.
	Producing

	// Ready means that an update has finished and its result has not yet
	// been promoted to the buffer's output.
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Producing:
		return "producing"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Buffer is a pipeline stage that decorates an input stage.
type Buffer struct {
	input    pipeline.Algorithm
	blocking bool
	logger   logging.Logger

	// worker is held for the lifetime of each background update, so that at
	// most one is in flight.
	worker *semaphore.Weighted

	// phase is held for each information request. m is never held while
	// the input is called.
	phase *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	m      sync.Mutex
	job    *job
	extent pipeline.Extent
	info   pipeline.Information
	output interface{}
	source pipeline.Time // input pipeline time that output was produced from
	mtime  pipeline.Time // time output was promoted
}

var _ pipeline.Algorithm = (*Buffer)(nil)

// job is one background update.
type job struct {
	Time   pipeline.Time
	Extent pipeline.Extent
	Done   chan struct{}

	// finished is raised once Value and Err are populated.
	//
	// It is read without holding the buffer's mutex; the single false to
	// true transition is the only synchronization between the worker and
	// the information phase.
	finished atomic.Bool

	Value interface{}
	Err   error
}

// New returns a buffer that decorates input.
func New(input pipeline.Algorithm, opts ...Option) *Buffer {
	o := resolveOptions(opts...)
	ctx, cancel := context.WithCancel(context.Background())

	return &Buffer{
		input:    input,
		blocking: o.Blocking,
		logger:   o.Logger,
		worker:   semaphore.NewWeighted(1),
		phase:    semaphore.NewWeighted(1),
		ctx:      ctx,
		cancel:   cancel,
		extent:   pipeline.WholeExtent,
	}
}

// UpdateInformation returns information about the buffer's output.
//
// A blocking buffer returns the information of its input. A non-blocking
// buffer first promotes the result of a finished background update to its
// output. Then, only if no update is in progress, it requests the information
// of the input and starts a background update if the input is newer than the
// output.
func (b *Buffer) UpdateInformation(ctx context.Context) (pipeline.Information, error) {
	if b.blocking {
		return b.input.UpdateInformation(ctx)
	}

	if err := b.phase.Acquire(ctx, 1); err != nil {
		return pipeline.Information{}, err
	}
	defer b.phase.Release(1)

	b.m.Lock()
	b.promote()
	idle := b.job == nil
	b.m.Unlock()

	if idle {
		info, err := b.input.UpdateInformation(ctx)
		if err != nil {
			return pipeline.Information{}, err
		}

		b.m.Lock()
		b.info = info
		if b.job == nil && (info.PipelineTime > b.source || b.mtime == 0) {
			b.start(info.PipelineTime, b.extent)
		}
		b.m.Unlock()
	}

	b.m.Lock()
	defer b.m.Unlock()

	info := b.info
	info.PipelineTime = b.mtime

	return info, nil
}

// Update returns the buffer's output.
//
// A blocking buffer starts an update of its input if none is in progress,
// waits for it to finish and returns its result. A non-blocking buffer
// returns its current output without waiting; e is used by subsequent
// background updates.
func (b *Buffer) Update(ctx context.Context, e pipeline.Extent) (interface{}, error) {
	for {
		b.m.Lock()
		b.extent = e

		if !b.blocking {
			out := b.output
			b.m.Unlock()
			return out, nil
		}

		if b.job == nil && !b.start(0, e) {
			b.m.Unlock()
			return nil, errors.New("background update of the previous output has not yet returned")
		}

		j := b.job
		b.m.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-j.Done:
		}

		b.m.Lock()
		if b.job == j {
			b.promote()
		}
		b.m.Unlock()

		// An update left behind by a canceled call may be for another extent.
		if j.Extent == e {
			return j.Value, j.Err
		}
	}
}

// WaitForFinished blocks until the background update in progress, if any,
// has finished.
func (b *Buffer) WaitForFinished(ctx context.Context) error {
	b.m.Lock()
	j := b.job
	b.m.Unlock()

	if j == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-j.Done:
		return nil
	}
}

// State returns the state of the buffer's background update.
func (b *Buffer) State() State {
	b.m.Lock()
	defer b.m.Unlock()

	switch {
	case b.job == nil:
		return Idle
	case b.job.finished.Load():
		return Ready
	default:
		return Producing
	}
}

// Output returns the buffer's current output.
func (b *Buffer) Output() interface{} {
	b.m.Lock()
	defer b.m.Unlock()

	return b.output
}

// Close stops any background update in progress and waits for it to return.
func (b *Buffer) Close() error {
	b.cancel()

	if err := b.worker.Acquire(context.Background(), 1); err != nil {
		return err
	}
	b.worker.Release(1)

	return nil
}

// start begins a background update of the input. t is the pipeline time of
// the input. It must be called with b.m held.
//
// It returns false if the previous worker has not yet returned.
func (b *Buffer) start(t pipeline.Time, e pipeline.Extent) bool {
	if !b.worker.TryAcquire(1) {
		return false
	}

	j := &job{
		Time:   t,
		Extent: e,
		Done:   make(chan struct{}),
	}
	b.job = j

	logging.Debug(b.logger, "starting background update of %s", e)

	go func() {
		j.Value, j.Err = b.input.Update(b.ctx, e)
		j.finished.Store(true)
		b.worker.Release(1)
		close(j.Done)
	}()

	return true
}

// promote moves the result of a finished update to the buffer's output and
// returns the buffer to the idle state. It must be called with b.m held.
func (b *Buffer) promote() {
	j := b.job
	if j == nil || !j.finished.Load() {
		return
	}

	b.job = nil

	if j.Err != nil {
		logging.Log(b.logger, "background update failed: %s", j.Err)
		return
	}

	b.output = j.Value
	b.source = j.Time
	b.mtime = pipeline.Now()
}
