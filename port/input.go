package port

import (
	"context"
	"fmt"
	"sync"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/tandem/controller"
	"github.com/dogmatiq/tandem/internal/x/loggingx"
	"github.com/dogmatiq/tandem/pipeline"
	"golang.org/x/sync/semaphore"
)

// State is the staleness state of an input port.
type State struct {
	// DataTime is the time at which the producer produced the port's current
	// output.
	DataTime pipeline.Time

	// UpstreamMTime is the pipeline time of the producer at the last
	// information request. A later pipeline time means the output is stale.
	UpstreamMTime pipeline.Time

	// TransferNeeded is true between an information request that found the
	// output stale and the update that transfers the fresh output.
	TransferNeeded bool
}

// UpdateError indicates that the producer could not produce the requested
// output.
type UpdateError struct {
	Producer controller.ProcessID
	Tag      controller.Tag
	Extent   pipeline.Extent
}

func (e UpdateError) Error() string {
	return fmt.Sprintf(
		"output port %d on process %s could not produce %s",
		e.Tag,
		e.Producer,
		e.Extent,
	)
}

// InputPort is the consumer end of a pipeline edge that crosses a process
// boundary.
//
// It is a pipeline.Algorithm, so stages downstream of it can not tell it from
// a local stage. Its output is transferred from the OutputPort with the same
// tag on the producer process only when the producer's pipeline time shows
// that the local copy is stale, or the local copy has been released.
type InputPort struct {
	ctl      controller.Controller
	producer controller.ProcessID
	tag      controller.Tag
	logger   logging.Logger

	// phase is held for the duration of each exchange with the producer. It
	// is acquired with the caller's context, so a caller waiting behind a
	// blocked exchange can give up.
	phase *semaphore.Weighted

	// m guards the fields below. It is never held while communicating.
	m         sync.Mutex
	state     State
	info      pipeline.Information
	output    interface{}
	released  bool
	requested bool
}

var (
	_ pipeline.Algorithm = (*InputPort)(nil)
	_ pipeline.Releaser  = (*InputPort)(nil)
)

// NewInputPort returns a port that receives its output from the OutputPort
// with the given tag on the producer process.
func NewInputPort(
	ctl controller.Controller,
	producer controller.ProcessID,
	tag controller.Tag,
	opts ...Option,
) (*InputPort, error) {
	if ctl == nil {
		return nil, controller.ArgumentError{Op: "NewInputPort", Reason: "no controller is provided"}
	}

	if err := checkTag("NewInputPort", tag); err != nil {
		return nil, err
	}

	if producer < 0 || int(producer) >= ctl.NumberOfProcesses() {
		return nil, controller.ArgumentError{
			Op:     "NewInputPort",
			Reason: "producer process " + producer.String() + " is out of range",
		}
	}

	o := resolveOptions(opts...)

	return &InputPort{
		ctl:      ctl,
		producer: producer,
		tag:      tag,
		logger: loggingx.WithPrefix(
			loggingx.ForProcess(o.Logger, int(ctl.LocalProcessID()), ctl.NumberOfProcesses()),
			"input port %d: ",
			tag,
		),
		phase: semaphore.NewWeighted(1),
	}, nil
}

// UpdateInformation requests the information of the producer's output.
//
// If the producer's pipeline time is later than the pipeline time seen by the
// previous request, no output has been transferred yet, or the output has
// been released, a transfer is needed and the next call to Update() fetches
// the output from the producer.
//
// While a transfer is pending it returns the information from the previous
// call, without contacting the producer.
func (p *InputPort) UpdateInformation(ctx context.Context) (pipeline.Information, error) {
	if err := p.phase.Acquire(ctx, 1); err != nil {
		return pipeline.Information{}, err
	}
	defer p.phase.Release(1)

	p.m.Lock()
	pending, cached := p.state.TransferNeeded, p.info
	p.m.Unlock()

	if pending {
		logging.LogString(
			p.logger,
			controller.ProtocolError{
				Op:     "UpdateInformation",
				Reason: "a transfer is already pending",
			}.Error(),
		)

		return cached, nil
	}

	if err := p.ctl.TriggerRMI(ctx, p.producer, p.tag, nil); err != nil {
		return pipeline.Information{}, err
	}

	info, err := receiveInformation(ctx, p.ctl, p.producer, p.tag)
	if err != nil {
		return pipeline.Information{}, err
	}

	p.m.Lock()
	defer p.m.Unlock()

	if info.PipelineTime > p.state.UpstreamMTime || p.state.DataTime == 0 || p.released {
		p.state.TransferNeeded = true
	}

	p.state.UpstreamMTime = info.PipelineTime
	p.info = info

	return info, nil
}

// PreUpdate sends the update request for e to the producer, if a transfer is
// needed, without waiting for the output.
//
// Calling PreUpdate() on several input ports before calling Update() on any
// of them lets their producers work concurrently.
func (p *InputPort) PreUpdate(ctx context.Context, e pipeline.Extent) error {
	if err := p.phase.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.phase.Release(1)

	return p.preUpdate(ctx, e)
}

// preUpdate sends the update request. p.phase must be held.
func (p *InputPort) preUpdate(ctx context.Context, e pipeline.Extent) error {
	p.m.Lock()
	skip := !p.state.TransferNeeded || p.requested
	dataTime := p.state.DataTime
	p.m.Unlock()

	if skip {
		return nil
	}

	if err := p.ctl.TriggerRMI(ctx, p.producer, p.tag+1, nil); err != nil {
		return err
	}

	if err := sendRequest(ctx, p.ctl, p.producer, p.tag+1, e, dataTime); err != nil {
		return err
	}

	p.m.Lock()
	p.requested = true
	p.m.Unlock()

	return nil
}

// Update returns the port's output, transferring it from the producer if a
// transfer is needed.
//
// If no transfer is needed the current output is returned as-is.
func (p *InputPort) Update(ctx context.Context, e pipeline.Extent) (interface{}, error) {
	if err := p.phase.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.phase.Release(1)

	p.m.Lock()
	pending, output := p.state.TransferNeeded, p.output
	p.m.Unlock()

	if !pending {
		logging.LogString(
			p.logger,
			controller.ProtocolError{
				Op:     "Update",
				Reason: "no transfer is pending, the current output is returned",
			}.Error(),
		)

		return output, nil
	}

	if err := p.preUpdate(ctx, e); err != nil {
		return nil, err
	}

	var t [1]uint64
	if _, err := p.ctl.ReceiveUint64s(ctx, p.producer, p.tag+1, t[:]); err != nil {
		return nil, err
	}

	// The request has been answered, even if no output follows.
	p.m.Lock()
	p.requested = false
	p.m.Unlock()

	if t[0] == 0 {
		return nil, UpdateError{p.producer, p.tag, e}
	}

	v, _, err := p.ctl.ReceiveObject(ctx, p.producer, p.tag+1)
	if err != nil {
		return nil, err
	}

	p.m.Lock()
	defer p.m.Unlock()

	p.output = v
	p.released = false
	p.state.DataTime = pipeline.Time(t[0])
	p.state.TransferNeeded = false

	return v, nil
}

// ReleaseData discards the port's output. The next information request
// causes a transfer, even if the producer's output has not changed.
func (p *InputPort) ReleaseData() {
	p.m.Lock()
	defer p.m.Unlock()

	p.output = nil
	p.released = true
}

// DataReleased returns true if the port's output has been released since it
// was last transferred.
func (p *InputPort) DataReleased() bool {
	p.m.Lock()
	defer p.m.Unlock()

	return p.released
}

// Output returns the port's current output without contacting the producer.
func (p *InputPort) Output() interface{} {
	p.m.Lock()
	defer p.m.Unlock()

	return p.output
}

// State returns the port's staleness state.
func (p *InputPort) State() State {
	p.m.Lock()
	defer p.m.Unlock()

	return p.state
}
