// Package inbox provides the receive-side demultiplexer used by the stream
// based communicators.
//
// Messages arrive on one stream per peer in the order they were sent. The
// queue buffers them per (source, tag) so that a receive for one tag is not
// blocked by messages for another.
package inbox

import (
	"context"
	"errors"
	"sync"

	"github.com/dogmatiq/tandem/controller"
)

// ErrClosed is returned by Take() after the queue is closed.
var ErrClosed = errors.New("communicator is closed")

// Queue buffers received messages until they are taken.
type Queue struct {
	m       sync.Mutex
	cond    *sync.Cond
	pending []map[controller.Tag][]controller.Message // indexed by source
	failed  []error                                   // indexed by source
	closed  bool
}

// New returns a queue for messages from n processes.
func New(n int) *Queue {
	q := &Queue{
		pending: make([]map[controller.Tag][]controller.Message, n),
		failed:  make([]error, n),
	}
	q.cond = sync.NewCond(&q.m)
	return q
}

// Put adds a message to the queue. m.Source must already be populated.
func (q *Queue) Put(m controller.Message) {
	q.m.Lock()
	defer q.m.Unlock()

	if q.closed {
		return
	}

	byTag := q.pending[m.Source]
	if byTag == nil {
		byTag = map[controller.Tag][]controller.Message{}
		q.pending[m.Source] = byTag
	}

	byTag[m.Tag] = append(byTag[m.Tag], m)
	q.cond.Broadcast()
}

// Fail records that no further messages will arrive from src.
//
// Messages from src that are already queued can still be taken. Once they are
// exhausted, receives from src (or from any process) return err.
func (q *Queue) Fail(src controller.ProcessID, err error) {
	q.m.Lock()
	defer q.m.Unlock()

	if q.failed[src] == nil {
		q.failed[src] = err
	}

	q.cond.Broadcast()
}

// Close discards all pending messages and causes blocked and future calls to
// Take() to return ErrClosed.
func (q *Queue) Close() {
	q.m.Lock()
	defer q.m.Unlock()

	q.closed = true
	q.pending = nil
	q.cond.Broadcast()
}

// Take blocks until a message with the given tag is available from src, which
// may be controller.AnyProcess, and removes it from the queue.
//
// When src is controller.AnyProcess the lowest matching rank wins.
func (q *Queue) Take(ctx context.Context, src controller.ProcessID, tag controller.Tag) (controller.Message, error) {
	defer context.AfterFunc(ctx, func() {
		q.m.Lock()
		q.cond.Broadcast()
		q.m.Unlock()
	})()

	q.m.Lock()
	defer q.m.Unlock()

	for {
		if q.closed {
			return controller.Message{}, ErrClosed
		}

		if m, ok := q.pop(src, tag); ok {
			return m, nil
		}

		if err := q.failure(src); err != nil {
			return controller.Message{}, err
		}

		if err := ctx.Err(); err != nil {
			return controller.Message{}, err
		}

		q.cond.Wait()
	}
}

func (q *Queue) pop(src controller.ProcessID, tag controller.Tag) (controller.Message, bool) {
	if src != controller.AnyProcess {
		return q.popFrom(src, tag)
	}

	for i := range q.pending {
		if m, ok := q.popFrom(controller.ProcessID(i), tag); ok {
			return m, true
		}
	}

	return controller.Message{}, false
}

func (q *Queue) popFrom(src controller.ProcessID, tag controller.Tag) (controller.Message, bool) {
	queue := q.pending[src][tag]
	if len(queue) == 0 {
		return controller.Message{}, false
	}

	m := queue[0]
	queue[0] = controller.Message{}

	if len(queue) == 1 {
		delete(q.pending[src], tag)
	} else {
		q.pending[src][tag] = queue[1:]
	}

	return m, true
}

func (q *Queue) failure(src controller.ProcessID) error {
	if src != controller.AnyProcess {
		return q.failed[src]
	}

	for _, err := range q.failed {
		if err != nil {
			return err
		}
	}

	return nil
}
