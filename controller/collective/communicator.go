// Package collective provides a controller.Communicator that exchanges
// messages over gRPC streams.
//
// Every process serves an Exchange endpoint at its own address. Each process
// opens one Deliver stream to every other process, so messages from one
// sender to one receiver travel on a single stream and arrive in the order
// they were sent.
package collective

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/tandem/controller"
	"github.com/dogmatiq/tandem/controller/internal/inbox"
	"github.com/dogmatiq/tandem/internal/x/grpcx"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Config describes the local process's membership of the group.
type Config struct {
	// Rank is the ID of the local process.
	Rank controller.ProcessID

	// Addresses contains the gRPC endpoint address of every process, indexed
	// by rank.
	Addresses []string
}

// Communicator is a controller.Communicator that exchanges messages over gRPC
// streams.
type Communicator struct {
	id     controller.ProcessID
	peers  []*peer
	queue  *inbox.Queue
	logger logging.Logger

	cancel context.CancelFunc
	served chan error

	connectedM sync.Mutex
	connected  []bool

	closeOnce sync.Once
	closeErr  error
}

var _ controller.Communicator = (*Communicator)(nil)

// order is the byte order of every header and element.
var order = binary.BigEndian

// peer is the outgoing stream to one other process.
type peer struct {
	ID     controller.ProcessID
	Conn   *grpc.ClientConn
	Stream grpc.ClientStream

	cancel context.CancelFunc
	sendM  sync.Mutex
}

// Open starts serving the local process's endpoint and opens a stream to
// every other process in the group.
//
// Streams to peers that are not yet serving are retried until ctx is
// canceled.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Communicator, error) {
	n := len(cfg.Addresses)
	if cfg.Rank < 0 || int(cfg.Rank) >= n {
		return nil, controller.ArgumentError{
			Op:     "Open",
			Reason: fmt.Sprintf("process %d is not a member of a group of %d", cfg.Rank, n),
		}
	}

	o := resolveOptions(opts...)

	lis := o.Listener
	if lis == nil {
		var err error
		lis, err = net.Listen("tcp", cfg.Addresses[cfg.Rank])
		if err != nil {
			return nil, fmt.Errorf("unable to start listener: %w", err)
		}
	}

	serveCtx, cancel := context.WithCancel(context.Background())

	c := &Communicator{
		id:        cfg.Rank,
		peers:     make([]*peer, n),
		queue:     inbox.New(n),
		logger:    o.Logger,
		cancel:    cancel,
		served:    make(chan error, 1),
		connected: make([]bool, n),
	}

	s := grpc.NewServer(o.ServerOptions...)
	s.RegisterService(&exchangeServiceDesc, &server{c})

	go func() {
		c.served <- grpcx.Serve(serveCtx, lis, s)
	}()

	stop := context.AfterFunc(ctx, cancel)
	err := c.connect(serveCtx, cfg.Addresses, o)

	if !stop() {
		err = ctx.Err()
	}

	if err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// connect opens a stream to every other process.
func (c *Communicator) connect(ctx context.Context, addrs []string, o *options) error {
	g, groupCtx := errgroup.WithContext(ctx)

	for i, addr := range addrs {
		id := controller.ProcessID(i)
		addr := addr // capture loop variable

		if id == c.id {
			continue
		}

		g.Go(func() error {
			p, err := c.dial(groupCtx, ctx, id, addr, o.DialOptions)
			if err != nil {
				return err
			}

			c.peers[id] = p

			return nil
		})
	}

	return g.Wait()
}

// dial opens a stream to the process at addr and sends the hello frame.
//
// ctx bounds the connection attempt. The stream itself lives until the
// communicator is closed.
func (c *Communicator) dial(
	ctx, streamCtx context.Context,
	id controller.ProcessID,
	addr string,
	dialOpts []grpc.DialOption,
) (*peer, error) {
	conn, err := grpc.DialContext(ctx, addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to dial process %d at %s: %w", id, addr, err)
	}

	streamCtx, cancel := context.WithCancel(streamCtx)
	stop := context.AfterFunc(ctx, cancel)

	stream, err := conn.NewStream(
		streamCtx,
		&exchangeServiceDesc.Streams[0],
		deliverMethod,
		grpc.WaitForReady(true),
	)
	if err == nil {
		err = stream.SendMsg(encodeHello(c.id))
	}

	if !stop() && err == nil {
		err = ctx.Err()
	}

	if err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("unable to open stream to process %d at %s: %w", id, addr, err)
	}

	logging.Debug(c.logger, "opened stream to process %d at %s", id, addr)

	return &peer{ID: id, Conn: conn, Stream: stream, cancel: cancel}, nil
}

// LocalProcessID returns the rank of the local process.
func (c *Communicator) LocalProcessID() controller.ProcessID {
	return c.id
}

// NumberOfProcesses returns the number of processes in the group.
func (c *Communicator) NumberOfProcesses() int {
	return len(c.peers)
}

// ByteOrder returns the byte order of encoded messages, which is always
// big-endian.
func (c *Communicator) ByteOrder() binary.ByteOrder {
	return order
}

// SendMessage sends m on the stream to dst.
func (c *Communicator) SendMessage(ctx context.Context, dst controller.ProcessID, m controller.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if dst == c.id {
		m.Source = c.id
		m.ByteOrder = order
		c.queue.Put(m)
		return nil
	}

	p := c.peers[dst]

	p.sendM.Lock()
	defer p.sendM.Unlock()

	return p.Stream.SendMsg(encodeFrame(m.Tag, m.Data))
}

// ReceiveMessage blocks until a message with the given tag arrives from src.
func (c *Communicator) ReceiveMessage(ctx context.Context, src controller.ProcessID, tag controller.Tag) (controller.Message, error) {
	return c.queue.Take(ctx, src, tag)
}

// Close closes the streams to every peer and stops serving the local
// endpoint.
//
// Each stream is half-closed and Close() waits for the peer to acknowledge
// that it has received every frame on it.
func (c *Communicator) Close() error {
	c.closeOnce.Do(func() {
		var err error

		for _, p := range c.peers {
			if p == nil {
				continue
			}

			p.sendM.Lock()
			if err := p.Stream.CloseSend(); err == nil {
				if err := p.Stream.RecvMsg(&emptypb.Empty{}); err != nil && err != io.EOF && !grpcx.IsShutdown(err) {
					logging.Debug(c.logger, "stream to process %d did not close cleanly: %s", p.ID, err)
				}
			}
			p.sendM.Unlock()

			p.cancel()
			err = multierr.Append(err, p.Conn.Close())
		}

		c.cancel()
		<-c.served

		c.queue.Close()
		c.closeErr = err
	})

	return c.closeErr
}

// claim marks src as connected. It returns false if src already has a
// stream to the local process.
func (c *Communicator) claim(src controller.ProcessID) bool {
	c.connectedM.Lock()
	defer c.connectedM.Unlock()

	if c.connected[src] {
		return false
	}

	c.connected[src] = true
	return true
}

// server is the Exchange service of one communicator.
type server struct {
	comm *Communicator
}

func (s *server) Deliver(stream deliverServer) error {
	c := s.comm

	hello, err := stream.Recv()
	if err != nil {
		return err
	}

	src, err := decodeHello(hello.GetValue(), len(c.peers))
	if err != nil {
		return grpcx.Errorf(codes.InvalidArgument, "%s", err)
	}

	if src == c.id || !c.claim(src) {
		return grpcx.Errorf(codes.AlreadyExists, "process %d already has a stream", src)
	}

	logging.Debug(c.logger, "accepted stream from process %d", src)

	for {
		frame, err := stream.Recv()
		if err == io.EOF {
			c.queue.Fail(src, fmt.Errorf("process %d closed its stream: %w", src, err))
			return stream.SendAndClose(&emptypb.Empty{})
		}

		if err != nil {
			c.queue.Fail(src, err)
			return err
		}

		tag, data, err := decodeFrame(frame.GetValue())
		if err != nil {
			c.queue.Fail(src, err)
			return grpcx.Errorf(codes.InvalidArgument, "%s", err)
		}

		c.queue.Put(controller.Message{
			Tag:       tag,
			Source:    src,
			Data:      data,
			ByteOrder: order,
		})
	}
}

func encodeHello(id controller.ProcessID) *wrapperspb.BytesValue {
	var buf [4]byte
	order.PutUint32(buf[:], uint32(id))
	return wrapperspb.Bytes(buf[:])
}

func decodeHello(data []byte, n int) (controller.ProcessID, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("hello frame is %d byte(s) long, expected 4", len(data))
	}

	id := controller.ProcessID(order.Uint32(data))
	if id < 0 || int(id) >= n {
		return 0, fmt.Errorf("process %d is not a member of a group of %d", id, n)
	}

	return id, nil
}

func encodeFrame(tag controller.Tag, data []byte) *wrapperspb.BytesValue {
	buf := make([]byte, 4+len(data))
	order.PutUint32(buf, uint32(tag))
	copy(buf[4:], data)
	return wrapperspb.Bytes(buf)
}

func decodeFrame(data []byte) (controller.Tag, []byte, error) {
	if len(data) < 4 {
		return 0, nil, errors.New("frame is too short to contain a tag")
	}

	return controller.Tag(int32(order.Uint32(data))), data[4:], nil
}
