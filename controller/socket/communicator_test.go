package socket_test

import (
	"context"
	"encoding/binary"
	"net"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/tandem/controller"
	. "github.com/dogmatiq/tandem/controller/socket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sync/errgroup"
)

// openGroup opens a fully-connected group of n communicators on the loopback
// interface. orders, if non-nil, supplies the byte order of each process.
func openGroup(ctx context.Context, n int, orders []binary.ByteOrder) []*Communicator {
	listeners := make([]net.Listener, n)
	addrs := make([]string, n)

	for i := range listeners {
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).ShouldNot(HaveOccurred())

		listeners[i] = lis
		addrs[i] = lis.Addr().String()
	}

	comms := make([]*Communicator, n)
	g, ctx := errgroup.WithContext(ctx)

	for i := range comms {
		i := i // capture loop variable

		opts := []Option{
			WithListener(listeners[i]),
			WithLogger(logging.DiscardLogger{}),
		}

		if orders != nil {
			opts = append(opts, WithByteOrder(orders[i]))
		}

		g.Go(func() error {
			c, err := Open(ctx, controller.ProcessID(i), addrs, opts...)
			comms[i] = c
			return err
		})
	}

	Expect(g.Wait()).To(Succeed())

	DeferCleanup(func() {
		for _, c := range comms {
			c.Close()
		}
	})

	return comms
}

// processes wraps each communicator in a controller.
func processes(comms []*Communicator) []*controller.Process {
	procs := make([]*controller.Process, len(comms))

	for i, c := range comms {
		procs[i] = controller.New(
			c,
			controller.WithLogger(logging.DiscardLogger{}),
		)
	}

	return procs
}

var _ = Describe("type Communicator", func() {
	var ctx context.Context

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		DeferCleanup(cancel)
	})

	Describe("func Open()", func() {
		It("connects every pair of processes", func() {
			comms := openGroup(ctx, 4, nil)

			for i, c := range comms {
				Expect(c.LocalProcessID()).To(Equal(controller.ProcessID(i)))
				Expect(c.NumberOfProcesses()).To(Equal(4))
			}
		})

		It("waits for lower-ranked processes to start listening", func() {
			lis, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).ShouldNot(HaveOccurred())

			addr := lis.Addr().String()
			lis.Close()

			addrs := []string{addr, "127.0.0.1:0"}

			result := make(chan error, 1)
			go func() {
				c, err := Open(ctx, 1, addrs, WithLogger(logging.DiscardLogger{}))
				if err == nil {
					defer c.Close()
				}
				result <- err
			}()

			time.Sleep(50 * time.Millisecond)

			c, err := Open(ctx, 0, addrs, WithLogger(logging.DiscardLogger{}))
			Expect(err).ShouldNot(HaveOccurred())
			defer c.Close()

			Eventually(result).Should(Receive(BeNil()))
		})

		It("returns an error if the rank is not a member of the group", func() {
			_, err := Open(ctx, 2, []string{"a", "b"})
			Expect(err).To(BeAssignableToTypeOf(controller.ArgumentError{}))
		})

		It("returns an error if the context is canceled before the peers connect", func() {
			lis, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).ShouldNot(HaveOccurred())

			ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()

			_, err = Open(
				ctx,
				0,
				[]string{lis.Addr().String(), "127.0.0.1:1"},
				WithListener(lis),
			)
			Expect(err).To(MatchError(context.DeadlineExceeded))
		})
	})

	Describe("func SendMessage()", func() {
		It("delivers messages to the addressed process", func() {
			procs := processes(openGroup(ctx, 3, nil))

			err := procs[2].SendInt32s(ctx, 0, 10, []int32{1, 2, 3})
			Expect(err).ShouldNot(HaveOccurred())

			buf := make([]int32, 3)
			s, err := procs[0].ReceiveInt32s(ctx, controller.AnyProcess, 10, buf)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(s).To(Equal(controller.Status{Source: 2, Count: 3}))
			Expect(buf).To(Equal([]int32{1, 2, 3}))
		})

		It("delivers messages sent to the local process", func() {
			procs := processes(openGroup(ctx, 2, nil))

			err := procs[1].SendFloat64s(ctx, 1, 10, []float64{1.5})
			Expect(err).ShouldNot(HaveOccurred())

			buf := make([]float64, 1)
			_, err = procs[1].ReceiveFloat64s(ctx, 1, 10, buf)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(buf).To(Equal([]float64{1.5}))
		})

		It("does not block a receive for one tag behind a message for another", func() {
			procs := processes(openGroup(ctx, 2, nil))

			Expect(procs[0].SendBytes(ctx, 1, 20, []byte("second"))).To(Succeed())
			Expect(procs[0].SendBytes(ctx, 1, 10, []byte("first"))).To(Succeed())

			buf := make([]byte, 16)
			s, err := procs[1].ReceiveBytes(ctx, 0, 10, buf)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(string(buf[:s.Count])).To(Equal("first"))

			s, err = procs[1].ReceiveBytes(ctx, 0, 20, buf)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(string(buf[:s.Count])).To(Equal("second"))
		})

		It("preserves the order of messages with the same tag", func() {
			procs := processes(openGroup(ctx, 2, nil))

			for i := uint64(0); i < 10; i++ {
				Expect(procs[0].SendUint64s(ctx, 1, 10, []uint64{i})).To(Succeed())
			}

			buf := make([]uint64, 1)
			for i := uint64(0); i < 10; i++ {
				_, err := procs[1].ReceiveUint64s(ctx, 0, 10, buf)
				Expect(err).ShouldNot(HaveOccurred())
				Expect(buf[0]).To(Equal(i))
			}
		})

		It("converts elements between processes with different byte orders", func() {
			procs := processes(openGroup(
				ctx,
				2,
				[]binary.ByteOrder{binary.LittleEndian, binary.BigEndian},
			))

			Expect(procs[0].SendFloat32s(ctx, 1, 10, []float32{1.25, -2})).To(Succeed())
			Expect(procs[1].SendUint64s(ctx, 0, 11, []uint64{0x0102030405060708})).To(Succeed())

			f := make([]float32, 2)
			_, err := procs[1].ReceiveFloat32s(ctx, 0, 10, f)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(f).To(Equal([]float32{1.25, -2}))

			u := make([]uint64, 1)
			_, err = procs[0].ReceiveUint64s(ctx, 1, 11, u)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(u).To(Equal([]uint64{0x0102030405060708}))
		})
	})

	Describe("func ReceiveMessage()", func() {
		It("returns an error if the peer disconnects", func() {
			comms := openGroup(ctx, 2, nil)
			procs := processes(comms)

			Expect(comms[0].Close()).To(Succeed())

			_, err := procs[1].ReceiveInt32s(ctx, 0, 10, nil)
			Expect(err).To(BeAssignableToTypeOf(controller.TransportError{}))
		})

		It("returns an error if the context is canceled", func() {
			procs := processes(openGroup(ctx, 2, nil))

			ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()

			_, err := procs[1].ReceiveInt32s(ctx, 0, 10, nil)
			Expect(err).To(MatchError(context.DeadlineExceeded))
		})
	})

	It("supports remote method invocation", func() {
		procs := processes(openGroup(ctx, 3, nil))

		received := make(chan string, 2)

		for _, p := range procs[1:] {
			p := p // capture loop variable

			p.AddRMI(100, func(_ context.Context, remote controller.ProcessID, arg []byte) {
				received <- string(arg)
			})

			go p.ProcessRMIs(ctx)
		}

		Expect(procs[0].TriggerRMIOnAllSatellites(ctx, 100, []byte("hello"))).To(Succeed())
		Eventually(received).Should(Receive(Equal("hello")))
		Eventually(received).Should(Receive(Equal("hello")))

		Expect(procs[0].TriggerBreakRMIs(ctx)).To(Succeed())
	})
})
