package memory

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/dogmatiq/tandem/controller"
	"golang.org/x/sync/errgroup"
)

// Group is a set of logical processes that share one address space.
//
// Each process is represented by a Communicator. Messages are exchanged by
// synchronous rendezvous: a send blocks until the matching receive has
// consumed the message, and vice versa.
type Group struct {
	deepCopy bool
	inboxes  []*inbox
}

// GroupOption configures the behavior of a group.
type GroupOption func(*Group)

// WithForceDeepCopy returns a group option that causes objects to be
// marshaled in the same way as they are on the wire transports, instead of
// being handed to the receiver by reference.
func WithForceDeepCopy() GroupOption {
	return func(g *Group) {
		g.deepCopy = true
	}
}

// NewGroup returns a group of n logical processes.
func NewGroup(n int, opts ...GroupOption) *Group {
	if n < 1 {
		panic("a group must contain at least one process")
	}

	g := &Group{
		inboxes: make([]*inbox, n),
	}

	for _, o := range opts {
		o(g)
	}

	for i := range g.inboxes {
		g.inboxes[i] = newInbox(n)
	}

	return g
}

// Size returns the number of processes in the group.
func (g *Group) Size() int {
	return len(g.inboxes)
}

// Communicator returns the communicator for the process with the given rank.
func (g *Group) Communicator(id controller.ProcessID) *Communicator {
	if id < 0 || int(id) >= len(g.inboxes) {
		panic(fmt.Sprintf("process %d is not a member of a group of %d", id, len(g.inboxes)))
	}

	return &Communicator{g, id}
}

// Run calls fn once for each process in the group, each on its own goroutine,
// and waits for them all to return.
//
// The context passed to fn is canceled as soon as any call returns an error,
// which unblocks any process waiting on a partner that has failed.
func (g *Group) Run(
	ctx context.Context,
	fn func(context.Context, *controller.Process) error,
	opts ...controller.Option,
) error {
	eg, ctx := errgroup.WithContext(ctx)

	for i := range g.inboxes {
		p := controller.New(
			g.Communicator(controller.ProcessID(i)),
			opts...,
		)

		eg.Go(func() error {
			return fn(ctx, p)
		})
	}

	return eg.Wait()
}

// Communicator is the controller.Communicator for one logical process within a
// group.
type Communicator struct {
	group *Group
	id    controller.ProcessID
}

var (
	_ controller.Communicator  = (*Communicator)(nil)
	_ controller.ObjectCarrier = (*Communicator)(nil)
)

// LocalProcessID returns the rank of the local process.
func (c *Communicator) LocalProcessID() controller.ProcessID {
	return c.id
}

// NumberOfProcesses returns the number of processes in the group.
func (c *Communicator) NumberOfProcesses() int {
	return len(c.group.inboxes)
}

// ByteOrder returns the native byte order, as every process shares the same
// memory.
func (c *Communicator) ByteOrder() binary.ByteOrder {
	return binary.NativeEndian
}

// CarriesObjects returns true unless the group forces a deep copy of objects.
func (c *Communicator) CarriesObjects() bool {
	return !c.group.deepCopy
}

// SendMessage blocks until the process dst has received m.
func (c *Communicator) SendMessage(ctx context.Context, dst controller.ProcessID, m controller.Message) error {
	return c.group.inboxes[dst].put(ctx, c.id, m)
}

// ReceiveMessage blocks until a message with the given tag has been sent to
// the local process by src.
func (c *Communicator) ReceiveMessage(ctx context.Context, src controller.ProcessID, tag controller.Tag) (controller.Message, error) {
	m, err := c.group.inboxes[c.id].take(ctx, src, tag)
	if err != nil {
		return controller.Message{}, err
	}

	m.ByteOrder = binary.NativeEndian

	return m, nil
}

// Close is a no-op. The group has no resources to release.
func (c *Communicator) Close() error {
	return nil
}
