package socket

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger/backoff"
	"github.com/dogmatiq/tandem/controller"
	"github.com/dogmatiq/tandem/controller/internal/inbox"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Communicator is a controller.Communicator that exchanges messages over one
// TCP connection per pair of processes.
type Communicator struct {
	id     controller.ProcessID
	order  binary.ByteOrder
	peers  []*peer
	queue  *inbox.Queue
	logger logging.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ controller.Communicator = (*Communicator)(nil)

// peer is the connection to one other process.
type peer struct {
	ID    controller.ProcessID
	Conn  net.Conn
	Order binary.ByteOrder // the byte order of the remote process

	writeM sync.Mutex
}

// Open connects the local process to every other process in the group.
//
// addrs contains the TCP address of every process, indexed by rank. The local
// process accepts connections from higher-ranked processes on addrs[id] and
// dials each lower-ranked process, retrying while the peer is not yet
// listening. It blocks until every connection is established or ctx is
// canceled.
func Open(
	ctx context.Context,
	id controller.ProcessID,
	addrs []string,
	opts ...Option,
) (*Communicator, error) {
	n := len(addrs)
	if id < 0 || int(id) >= n {
		return nil, controller.ArgumentError{
			Op:     "Open",
			Reason: fmt.Sprintf("process %d is not a member of a group of %d", id, n),
		}
	}

	o := resolveOptions(opts...)

	c := &Communicator{
		id:     id,
		order:  o.ByteOrder,
		peers:  make([]*peer, n),
		queue:  inbox.New(n),
		logger: o.Logger,
	}

	if err := c.connect(ctx, addrs, o); err != nil {
		c.closePeers()
		return nil, err
	}

	for _, p := range c.peers {
		if p != nil {
			go c.read(p)
		}
	}

	return c, nil
}

// connect establishes a connection with every peer.
func (c *Communicator) connect(ctx context.Context, addrs []string, o *options) error {
	var m sync.Mutex

	add := func(p *peer) error {
		m.Lock()
		defer m.Unlock()

		if int(p.ID) >= len(c.peers) || p.ID <= c.id || c.peers[p.ID] != nil {
			p.Conn.Close()
			return fmt.Errorf("unexpected connection from process %d", p.ID)
		}

		c.peers[p.ID] = p
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)

	if expected := len(addrs) - int(c.id) - 1; expected > 0 {
		lis := o.Listener
		if lis == nil {
			var err error
			lis, err = net.Listen("tcp", addrs[c.id])
			if err != nil {
				return fmt.Errorf("unable to start listener: %w", err)
			}
		}

		g.Go(func() error {
			defer lis.Close()
			return c.accept(ctx, lis, expected, add)
		})
	} else if o.Listener != nil {
		o.Listener.Close()
	}

	for i := controller.ProcessID(0); i < c.id; i++ {
		i := i // capture loop variable

		g.Go(func() error {
			p, err := c.dial(ctx, i, addrs[i], o.DialBackoff)
			if err != nil {
				return err
			}

			m.Lock()
			c.peers[i] = p
			m.Unlock()

			return nil
		})
	}

	return g.Wait()
}

// accept accepts n connections from higher-ranked peers.
func (c *Communicator) accept(
	ctx context.Context,
	lis net.Listener,
	n int,
	add func(*peer) error,
) error {
	// Unblock Accept() if ctx is canceled before every peer connects.
	stop := context.AfterFunc(ctx, func() { lis.Close() })
	defer stop()

	for i := 0; i < n; i++ {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return fmt.Errorf("unable to accept connection: %w", err)
		}

		p, err := c.handshakeAccepted(conn)
		if err != nil {
			conn.Close()
			return err
		}

		if err := add(p); err != nil {
			return err
		}

		logging.Debug(c.logger, "accepted connection from process %d at %s", p.ID, conn.RemoteAddr())
	}

	return nil
}

// dial connects to the lower-ranked peer at addr.
func (c *Communicator) dial(
	ctx context.Context,
	id controller.ProcessID,
	addr string,
	s backoff.Strategy,
) (*peer, error) {
	counter := backoff.Counter{
		Strategy: s,
	}

	var d net.Dialer

	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			p, err := c.handshakeDialed(id, conn)
			if err != nil {
				conn.Close()
				return nil, err
			}

			logging.Debug(c.logger, "connected to process %d at %s", id, addr)
			return p, nil
		}

		logging.Debug(c.logger, "unable to connect to process %d at %s: %s", id, addr, err)

		if err := counter.Sleep(ctx, err); err != nil {
			return nil, err
		}
	}
}

// handshakeDialed performs the dialing side of the connection handshake.
//
// The dialer writes its endianness flag, reads the flag of the accepting
// process, then announces its rank in its own byte order.
func (c *Communicator) handshakeDialed(id controller.ProcessID, conn net.Conn) (*peer, error) {
	if _, err := conn.Write([]byte{endiannessFlag(c.order)}); err != nil {
		return nil, fmt.Errorf("unable to send handshake to process %d: %w", id, err)
	}

	order, err := readEndianness(conn)
	if err != nil {
		return nil, fmt.Errorf("unable to read handshake from process %d: %w", id, err)
	}

	var rank [4]byte
	c.order.PutUint32(rank[:], uint32(c.id))

	if _, err := conn.Write(rank[:]); err != nil {
		return nil, fmt.Errorf("unable to send rank to process %d: %w", id, err)
	}

	return &peer{ID: id, Conn: conn, Order: order}, nil
}

// handshakeAccepted performs the accepting side of the connection handshake.
func (c *Communicator) handshakeAccepted(conn net.Conn) (*peer, error) {
	order, err := readEndianness(conn)
	if err != nil {
		return nil, fmt.Errorf("unable to read handshake from %s: %w", conn.RemoteAddr(), err)
	}

	if _, err := conn.Write([]byte{endiannessFlag(c.order)}); err != nil {
		return nil, fmt.Errorf("unable to send handshake to %s: %w", conn.RemoteAddr(), err)
	}

	var rank [4]byte
	if _, err := io.ReadFull(conn, rank[:]); err != nil {
		return nil, fmt.Errorf("unable to read rank from %s: %w", conn.RemoteAddr(), err)
	}

	return &peer{
		ID:    controller.ProcessID(order.Uint32(rank[:])),
		Conn:  conn,
		Order: order,
	}, nil
}

func readEndianness(r io.Reader) (binary.ByteOrder, error) {
	var f [1]byte
	if _, err := io.ReadFull(r, f[:]); err != nil {
		return nil, err
	}

	return byteOrderFor(f[0])
}

// read receives frames from p until the connection fails.
func (c *Communicator) read(p *peer) {
	for {
		tag, data, err := readFrame(p.Conn, p.Order)
		if err != nil {
			c.queue.Fail(p.ID, err)
			return
		}

		c.queue.Put(controller.Message{
			Tag:       tag,
			Source:    p.ID,
			Data:      data,
			ByteOrder: p.Order,
		})
	}
}

// LocalProcessID returns the rank of the local process.
func (c *Communicator) LocalProcessID() controller.ProcessID {
	return c.id
}

// NumberOfProcesses returns the number of processes in the group.
func (c *Communicator) NumberOfProcesses() int {
	return len(c.peers)
}

// ByteOrder returns the byte order used by the local process.
func (c *Communicator) ByteOrder() binary.ByteOrder {
	return c.order
}

// SendMessage writes m to the connection with dst. It blocks until the frame
// has been written.
func (c *Communicator) SendMessage(ctx context.Context, dst controller.ProcessID, m controller.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if dst == c.id {
		m.Source = c.id
		m.ByteOrder = c.order
		c.queue.Put(m)
		return nil
	}

	p := c.peers[dst]

	p.writeM.Lock()
	defer p.writeM.Unlock()

	return writeFrame(p.Conn, c.order, m.Tag, m.Data)
}

// ReceiveMessage blocks until a message with the given tag arrives from src.
func (c *Communicator) ReceiveMessage(ctx context.Context, src controller.ProcessID, tag controller.Tag) (controller.Message, error) {
	return c.queue.Take(ctx, src, tag)
}

// Close closes every connection.
func (c *Communicator) Close() error {
	c.closeOnce.Do(func() {
		c.queue.Close()
		c.closeErr = c.closePeers()
	})

	return c.closeErr
}

func (c *Communicator) closePeers() error {
	var err error

	for _, p := range c.peers {
		if p != nil {
			err = multierr.Append(err, p.Conn.Close())
		}
	}

	return err
}
