package port

import (
	"context"
	"sync"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/tandem/controller"
	"github.com/dogmatiq/tandem/internal/x/loggingx"
	"github.com/dogmatiq/tandem/pipeline"
)

// OutputPort is the producer end of a pipeline edge that crosses a process
// boundary.
//
// It answers the information and update requests of an InputPort on another
// process by invoking a local pipeline stage. Requests are handled by RMI
// callbacks, so they are only answered while the local process is
// dispatching RMIs.
type OutputPort struct {
	ctl      controller.Controller
	tag      controller.Tag
	source   pipeline.Algorithm
	parallel bool
	logger   logging.Logger
	ids      [2]controller.RMIID

	m    sync.Mutex
	next *production
}

// production is an output produced ahead of the request that will collect
// it.
type production struct {
	Extent pipeline.Extent
	Time   pipeline.Time
	Value  interface{}
}

// NewOutputPort returns a port that makes the output of source available to
// an InputPort with the same tag on another process.
//
// The port registers RMIs for tag (information requests) and tag+1 (update
// requests) with ctl.
func NewOutputPort(
	ctl controller.Controller,
	tag controller.Tag,
	source pipeline.Algorithm,
	opts ...Option,
) (*OutputPort, error) {
	if ctl == nil {
		return nil, controller.ArgumentError{Op: "NewOutputPort", Reason: "no controller is provided"}
	}

	if source == nil {
		return nil, controller.ArgumentError{Op: "NewOutputPort", Reason: "no source is provided"}
	}

	if err := checkTag("NewOutputPort", tag); err != nil {
		return nil, err
	}

	o := resolveOptions(opts...)

	p := &OutputPort{
		ctl:      ctl,
		tag:      tag,
		source:   source,
		parallel: o.PipelineParallel,
		logger: loggingx.WithPrefix(
			loggingx.ForProcess(o.Logger, int(ctl.LocalProcessID()), ctl.NumberOfProcesses()),
			"output port %d: ",
			tag,
		),
	}

	p.ids[0] = ctl.AddRMI(tag, p.onInformation)
	p.ids[1] = ctl.AddRMI(tag+1, p.onUpdate)

	return p, nil
}

// Tag returns the base tag of the port.
func (p *OutputPort) Tag() controller.Tag {
	return p.tag
}

// Close removes the port's RMI registrations.
func (p *OutputPort) Close() error {
	p.ctl.RemoveRMI(p.ids[0])
	p.ctl.RemoveRMI(p.ids[1])
	return nil
}

// onInformation sends the information of the source to the requesting
// process.
func (p *OutputPort) onInformation(ctx context.Context, requester controller.ProcessID, _ []byte) {
	info, err := p.source.UpdateInformation(ctx)
	if err != nil {
		// The requester is waiting for a reply, so it gets zero information,
		// which never causes a transfer.
		logging.Log(p.logger, "unable to update information: %s", err)
		info = pipeline.Information{}
	}

	if err := sendInformation(ctx, p.ctl, requester, p.tag, info); err != nil {
		logging.Log(p.logger, "unable to send information to process %s: %s", requester, err)
	}
}

// onUpdate receives an update request and sends the output of the source to
// the requesting process.
func (p *OutputPort) onUpdate(ctx context.Context, requester controller.ProcessID, _ []byte) {
	extent, dataTime, err := receiveRequest(ctx, p.ctl, requester, p.tag+1)
	if err != nil {
		logging.Log(p.logger, "unable to receive update request from process %s: %s", requester, err)
		return
	}

	logging.Debug(
		p.logger,
		"process %s requested %s, its output is from time %d",
		requester,
		extent,
		dataTime,
	)

	var out *production

	if p.parallel {
		out = p.takeNext(extent)
	}

	if out == nil {
		out = p.produce(ctx, extent)
	}

	if err := p.send(ctx, requester, out); err != nil {
		logging.Log(p.logger, "unable to send output to process %s: %s", requester, err)
	}

	if p.parallel {
		// Produce the next output while the requester processes this one.
		next := p.produce(ctx, extent)

		p.m.Lock()
		p.next = next
		p.m.Unlock()
	}
}

// takeNext returns the output produced after the last request, if it was
// produced for the same extent.
func (p *OutputPort) takeNext(e pipeline.Extent) *production {
	p.m.Lock()
	defer p.m.Unlock()

	next := p.next
	p.next = nil

	if next == nil || next.Extent != e {
		return nil
	}

	return next
}

// produce updates the source. It returns nil if the update fails.
func (p *OutputPort) produce(ctx context.Context, e pipeline.Extent) *production {
	v, err := p.source.Update(ctx, e)
	if err != nil {
		logging.Log(p.logger, "unable to update %s: %s", e, err)
		return nil
	}

	return &production{e, pipeline.Now(), v}
}

// send sends the time of an output followed by the output itself.
//
// A zero time tells the requester that no output could be produced, and no
// output follows it.
func (p *OutputPort) send(ctx context.Context, requester controller.ProcessID, out *production) error {
	if out == nil {
		return p.ctl.SendUint64s(ctx, requester, p.tag+1, []uint64{0})
	}

	if err := p.ctl.SendUint64s(ctx, requester, p.tag+1, []uint64{uint64(out.Time)}); err != nil {
		return err
	}

	return p.ctl.SendObject(ctx, requester, p.tag+1, out.Value)
}
