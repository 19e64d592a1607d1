package controller

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/marshalkit"
	"github.com/dogmatiq/tandem/internal/mlog"
	"github.com/dogmatiq/tandem/internal/x/loggingx"
)

// Process is the Controller for the local process. It layers typed arrays,
// object marshaling and RMI dispatch over a Communicator.
type Process struct {
	comm      Communicator
	marshaler marshalkit.ValueMarshaler
	logger    logging.Logger

	m       sync.Mutex
	nextID  RMIID
	entries map[Tag][]rmiEntry

	breakFlag atomic.Bool
}

var _ Controller = (*Process)(nil)

// New returns a controller for the local process of the group that c
// communicates with.
func New(c Communicator, opts ...Option) *Process {
	o := resolveOptions(opts...)

	p := &Process{
		comm:      c,
		marshaler: o.Marshaler,
		logger: loggingx.ForProcess(
			o.Logger,
			int(c.LocalProcessID()),
			c.NumberOfProcesses(),
		),
	}

	p.AddRMI(
		BreakRMITag,
		func(context.Context, ProcessID, []byte) {
			p.breakFlag.Store(true)
		},
	)

	return p
}

// Logger returns the logger used by the controller, which prefixes every
// message with the local rank.
func (p *Process) Logger() logging.Logger {
	return p.logger
}

// LocalProcessID returns the rank of the local process.
func (p *Process) LocalProcessID() ProcessID {
	return p.comm.LocalProcessID()
}

// NumberOfProcesses returns the number of processes in the group.
func (p *Process) NumberOfProcesses() int {
	return p.comm.NumberOfProcesses()
}

// Close releases the underlying communicator.
func (p *Process) Close() error {
	return p.comm.Close()
}

// send validates dst and sends m via the communicator.
func (p *Process) send(ctx context.Context, op string, dst ProcessID, m Message) error {
	if err := p.checkDestination(op, dst); err != nil {
		return err
	}

	err := p.comm.SendMessage(ctx, dst, m)
	mlog.LogSend(p.logger, int(dst), int(m.Tag), len(m.Data), err)

	if err != nil {
		return TransportError{"send", dst, m.Tag, err}
	}

	return nil
}

// receive validates src and receives a message via the communicator.
func (p *Process) receive(ctx context.Context, op string, src ProcessID, tag Tag) (Message, error) {
	if err := p.checkSource(op, src); err != nil {
		return Message{}, err
	}

	m, err := p.comm.ReceiveMessage(ctx, src, tag)
	if err != nil {
		mlog.LogReceive(p.logger, int(src), int(tag), 0, err)
		return Message{}, TransportError{"receive", src, tag, err}
	}

	mlog.LogReceive(p.logger, int(m.Source), int(tag), len(m.Data), nil)

	return m, nil
}

func (p *Process) checkDestination(op string, dst ProcessID) error {
	if dst < 0 || int(dst) >= p.NumberOfProcesses() {
		return ArgumentError{op, "destination process " + dst.String() + " is out of range"}
	}

	return nil
}

func (p *Process) checkSource(op string, src ProcessID) error {
	if src == AnyProcess {
		return nil
	}

	if src < 0 || int(src) >= p.NumberOfProcesses() {
		return ArgumentError{op, "source process " + src.String() + " is out of range"}
	}

	return nil
}
