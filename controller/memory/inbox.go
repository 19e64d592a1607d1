package memory

import (
	"context"
	"sync"

	"github.com/dogmatiq/tandem/controller"
)

// inbox holds the messages that are waiting to be received by one process.
//
// There is one slot per sender, so at most one message is pending for each
// ordered pair of processes. A single mutex guards every slot; senders and
// receivers wait on the same condition variable, which removes any lock
// ordering between them.
type inbox struct {
	m     sync.Mutex
	cond  *sync.Cond
	slots []*pending
}

// pending is a message that has been posted but not necessarily received.
type pending struct {
	Message  controller.Message
	Consumed bool
}

func newInbox(n int) *inbox {
	b := &inbox{
		slots: make([]*pending, n),
	}
	b.cond = sync.NewCond(&b.m)
	return b
}

// wake wakes all waiters when ctx is canceled. The returned function must be
// called once the caller stops waiting.
func (b *inbox) wake(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		b.m.Lock()
		b.cond.Broadcast()
		b.m.Unlock()
	})
}

// put posts m from src and blocks until it has been consumed.
func (b *inbox) put(ctx context.Context, src controller.ProcessID, m controller.Message) error {
	defer b.wake(ctx)()

	b.m.Lock()
	defer b.m.Unlock()

	for b.slots[src] != nil {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.cond.Wait()
	}

	p := &pending{Message: m}
	b.slots[src] = p
	b.cond.Broadcast()

	for !p.Consumed {
		if err := ctx.Err(); err != nil {
			// Withdraw the message, it has not been received yet.
			b.slots[src] = nil
			b.cond.Broadcast()
			return err
		}

		b.cond.Wait()
	}

	return nil
}

// take blocks until a message with the given tag is posted by src, which may
// be controller.AnyProcess, and consumes it.
func (b *inbox) take(ctx context.Context, src controller.ProcessID, tag controller.Tag) (controller.Message, error) {
	defer b.wake(ctx)()

	b.m.Lock()
	defer b.m.Unlock()

	for {
		if from, ok := b.find(src, tag); ok {
			p := b.slots[from]
			b.slots[from] = nil
			p.Consumed = true
			b.cond.Broadcast()

			m := p.Message
			m.Source = from

			return m, nil
		}

		if err := ctx.Err(); err != nil {
			return controller.Message{}, err
		}

		b.cond.Wait()
	}
}

// find returns the sender of a pending message that matches src and tag. When
// src is controller.AnyProcess the lowest matching rank wins.
func (b *inbox) find(src controller.ProcessID, tag controller.Tag) (controller.ProcessID, bool) {
	if src != controller.AnyProcess {
		p := b.slots[src]
		return src, p != nil && p.Message.Tag == tag
	}

	for i, p := range b.slots {
		if p != nil && p.Message.Tag == tag {
			return controller.ProcessID(i), true
		}
	}

	return 0, false
}
