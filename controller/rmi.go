package controller

import (
	"context"
	"fmt"

	"github.com/dogmatiq/tandem/internal/mlog"
	"go.uber.org/multierr"
)

// RMIFunc is a callback invoked when a remote method invocation is triggered.
//
// remote is the rank of the process that triggered the invocation, arg is the
// argument it supplied. Any local context is captured by the closure.
type RMIFunc func(ctx context.Context, remote ProcessID, arg []byte)

// RMIID uniquely identifies an RMI registration within one process.
type RMIID uint64

type rmiEntry struct {
	ID RMIID
	Fn RMIFunc
}

// rmiHeaderSize is the number of 32-bit words in an RMI header: the tag, the
// argument length and the rank of the triggering process.
const rmiHeaderSize = 3

// AddRMI registers fn to be called when an RMI with the given tag is
// triggered on the local process.
//
// Several callbacks may be registered for the same tag; they are called in
// the order they were added.
func (p *Process) AddRMI(tag Tag, fn RMIFunc) RMIID {
	if fn == nil {
		panic("RMI callback must not be nil")
	}

	p.m.Lock()
	defer p.m.Unlock()

	if p.entries == nil {
		p.entries = map[Tag][]rmiEntry{}
	}

	p.nextID++
	id := p.nextID

	p.entries[tag] = append(p.entries[tag], rmiEntry{id, fn})

	return id
}

// RemoveRMI removes the registration with the given ID.
//
// It returns false if there is no such registration.
func (p *Process) RemoveRMI(id RMIID) bool {
	p.m.Lock()
	defer p.m.Unlock()

	for tag, entries := range p.entries {
		for i, e := range entries {
			if e.ID != id {
				continue
			}

			entries = append(entries[:i:i], entries[i+1:]...)

			if len(entries) == 0 {
				delete(p.entries, tag)
			} else {
				p.entries[tag] = entries
			}

			return true
		}
	}

	return false
}

// RemoveAllRMIs removes every registration for the given tag.
func (p *Process) RemoveAllRMIs(tag Tag) {
	p.m.Lock()
	defer p.m.Unlock()

	delete(p.entries, tag)
}

// TriggerRMI invokes the callbacks registered for tag on process dst.
//
// If dst is the local process the callbacks are called directly, without any
// transport traffic. Otherwise an RMI header is sent on RMITag, followed by
// arg on RMIArgTag if it is non-empty. It does not wait for the callbacks to
// be invoked on the remote process.
func (p *Process) TriggerRMI(ctx context.Context, dst ProcessID, tag Tag, arg []byte) error {
	if err := p.checkDestination("TriggerRMI", dst); err != nil {
		return err
	}

	local := p.LocalProcessID()
	mlog.LogInvoke(p.logger, int(dst), int(tag), len(arg), dst == local)

	if dst == local {
		return p.dispatch(ctx, local, tag, arg)
	}

	header := []int32{
		int32(tag),
		int32(len(arg)),
		int32(local),
	}

	if err := p.SendInt32s(ctx, dst, RMITag, header); err != nil {
		return err
	}

	if len(arg) == 0 {
		return nil
	}

	return p.SendBytes(ctx, dst, RMIArgTag, arg)
}

// TriggerRMIOnAllSatellites invokes the callbacks registered for tag on every
// process other than the local process, one after the other.
//
// A transport failure does not prevent the RMI being triggered on the
// remaining processes. The failures are returned together.
func (p *Process) TriggerRMIOnAllSatellites(ctx context.Context, tag Tag, arg []byte) error {
	var err error
	local := p.LocalProcessID()

	for id := ProcessID(0); int(id) < p.NumberOfProcesses(); id++ {
		if id == local {
			continue
		}

		err = multierr.Append(
			err,
			p.TriggerRMI(ctx, id, tag, arg),
		)
	}

	return err
}

// TriggerBreakRMIs causes ProcessRMIs() to return on every other process.
func (p *Process) TriggerBreakRMIs(ctx context.Context) error {
	return p.TriggerRMIOnAllSatellites(ctx, BreakRMITag, nil)
}

// ProcessRMIs dispatches incoming RMIs until a BREAK RMI is received.
//
// The loop ends after the dispatch in which the break flag was raised. An RMI
// for an unregistered tag is logged and does not stop the loop. It returns an
// RMIError if an RMI can not be received.
func (p *Process) ProcessRMIs(ctx context.Context) error {
	for {
		if err := p.ProcessRMI(ctx); err != nil {
			return err
		}

		if p.breakFlag.CompareAndSwap(true, false) {
			return nil
		}
	}
}

// ProcessRMI waits for and dispatches exactly one incoming RMI.
func (p *Process) ProcessRMI(ctx context.Context) error {
	var header [rmiHeaderSize]int32

	s, err := p.ReceiveInt32s(ctx, AnyProcess, RMITag, header[:])
	if err != nil {
		return RMIError{RMITagError, err}
	}

	if s.Count != rmiHeaderSize {
		return RMIError{
			RMITagError,
			fmt.Errorf("header from process %s is %d word(s) long", s.Source, s.Count),
		}
	}

	tag := Tag(header[0])
	size := int(header[1])
	remote := ProcessID(header[2])

	var arg []byte
	if size > 0 {
		arg = make([]byte, size)

		s, err := p.ReceiveBytes(ctx, remote, RMIArgTag, arg)
		if err != nil {
			return RMIError{RMIArgError, err}
		}

		arg = arg[:s.Count]
	}

	mlog.LogInvoke(p.logger, int(remote), int(tag), len(arg), false)

	if err := p.dispatch(ctx, remote, tag, arg); err != nil {
		mlog.LogError(p.logger, int(remote), int(tag), err)
	}

	return nil
}

// dispatch calls each callback registered for tag.
func (p *Process) dispatch(ctx context.Context, remote ProcessID, tag Tag, arg []byte) error {
	p.m.Lock()
	entries := p.entries[tag]
	p.m.Unlock()

	if len(entries) == 0 {
		return DispatchError{remote, tag}
	}

	for _, e := range entries {
		e.Fn(ctx, remote, arg)
	}

	return nil
}
