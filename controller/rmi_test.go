package controller_test

import (
	"context"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	. "github.com/dogmatiq/tandem/controller"
	"github.com/dogmatiq/tandem/controller/controllertest"
	"github.com/dogmatiq/tandem/controller/memory"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type invocation struct {
	Remote ProcessID
	Arg    string
}

var _ = Describe("type Process (remote method invocation)", func() {
	var ctx context.Context

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		DeferCleanup(cancel)
	})

	Describe("func TriggerRMI()", func() {
		It("invokes the callbacks registered on the remote process", func() {
			var calls []invocation

			err := controllertest.Run(
				ctx,
				2,
				func(ctx context.Context, p *Process) error {
					if p.LocalProcessID() == 0 {
						if err := p.TriggerRMI(ctx, 1, 100, []byte("<arg>")); err != nil {
							return err
						}
						return p.TriggerBreakRMIs(ctx)
					}

					p.AddRMI(100, func(_ context.Context, remote ProcessID, arg []byte) {
						calls = append(calls, invocation{remote, string(arg)})
					})

					return p.ProcessRMIs(ctx)
				},
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(calls).To(Equal([]invocation{{0, "<arg>"}}))
		})

		It("does not send an argument message when the argument is empty", func() {
			group := memory.NewGroup(2)
			recorder := controllertest.NewRecorder(group.Communicator(0))

			sender := New(recorder, WithLogger(logging.DiscardLogger{}))
			receiver := New(group.Communicator(1), WithLogger(logging.DiscardLogger{}))

			var arg []byte
			receiver.AddRMI(100, func(_ context.Context, _ ProcessID, a []byte) {
				arg = a
			})

			done := make(chan error, 1)
			go func() {
				done <- receiver.ProcessRMI(ctx)
			}()

			Expect(sender.TriggerRMI(ctx, 1, 100, nil)).To(Succeed())
			Eventually(done).Should(Receive(BeNil()))

			Expect(arg).To(BeEmpty())
			Expect(recorder.Sent()).To(Equal([]controllertest.Record{
				{Peer: 1, Tag: RMITag, Size: 12},
			}))
		})

		It("invokes the callbacks for the local process directly", func() {
			recorder := controllertest.NewRecorder(memory.NewGroup(1).Communicator(0))
			p := New(recorder, WithLogger(logging.DiscardLogger{}))

			var calls []invocation
			p.AddRMI(100, func(_ context.Context, remote ProcessID, arg []byte) {
				calls = append(calls, invocation{remote, string(arg)})
			})

			Expect(p.TriggerRMI(ctx, 0, 100, []byte("<arg>"))).To(Succeed())
			Expect(calls).To(Equal([]invocation{{0, "<arg>"}}))
			Expect(recorder.Calls()).To(BeZero())
		})

		It("returns an error if the local process has no callback for the tag", func() {
			p := New(memory.NewGroup(1).Communicator(0), WithLogger(logging.DiscardLogger{}))

			err := p.TriggerRMI(ctx, 0, 100, nil)
			Expect(err).To(Equal(DispatchError{Source: 0, Tag: 100}))
		})

		It("returns an error if the destination is out of range", func() {
			p := New(memory.NewGroup(2).Communicator(0), WithLogger(logging.DiscardLogger{}))

			err := p.TriggerRMI(ctx, -1, 100, nil)
			Expect(err).To(BeAssignableToTypeOf(ArgumentError{}))
		})
	})

	Describe("func AddRMI()", func() {
		It("invokes several callbacks with the same tag in the order they were added", func() {
			p := New(memory.NewGroup(1).Communicator(0), WithLogger(logging.DiscardLogger{}))

			var order []string
			p.AddRMI(100, func(context.Context, ProcessID, []byte) { order = append(order, "first") })
			p.AddRMI(100, func(context.Context, ProcessID, []byte) { order = append(order, "second") })

			Expect(p.TriggerRMI(ctx, 0, 100, nil)).To(Succeed())
			Expect(order).To(Equal([]string{"first", "second"}))
		})

		It("returns a distinct ID for each registration", func() {
			p := New(memory.NewGroup(1).Communicator(0))
			fn := func(context.Context, ProcessID, []byte) {}

			Expect(p.AddRMI(100, fn)).NotTo(Equal(p.AddRMI(100, fn)))
		})

		It("panics if the callback is nil", func() {
			p := New(memory.NewGroup(1).Communicator(0))

			Expect(func() {
				p.AddRMI(100, nil)
			}).To(Panic())
		})
	})

	Describe("func RemoveRMI()", func() {
		It("removes only the given registration", func() {
			p := New(memory.NewGroup(1).Communicator(0), WithLogger(logging.DiscardLogger{}))

			var order []string
			id := p.AddRMI(100, func(context.Context, ProcessID, []byte) { order = append(order, "first") })
			p.AddRMI(100, func(context.Context, ProcessID, []byte) { order = append(order, "second") })

			Expect(p.RemoveRMI(id)).To(BeTrue())
			Expect(p.TriggerRMI(ctx, 0, 100, nil)).To(Succeed())
			Expect(order).To(Equal([]string{"second"}))
		})

		It("returns false if there is no such registration", func() {
			p := New(memory.NewGroup(1).Communicator(0))

			id := p.AddRMI(100, func(context.Context, ProcessID, []byte) {})
			Expect(p.RemoveRMI(id)).To(BeTrue())
			Expect(p.RemoveRMI(id)).To(BeFalse())
		})
	})

	Describe("func RemoveAllRMIs()", func() {
		It("removes every registration for the tag", func() {
			p := New(memory.NewGroup(1).Communicator(0), WithLogger(logging.DiscardLogger{}))

			p.AddRMI(100, func(context.Context, ProcessID, []byte) {})
			p.AddRMI(100, func(context.Context, ProcessID, []byte) {})
			p.RemoveAllRMIs(100)

			Expect(p.TriggerRMI(ctx, 0, 100, nil)).To(BeAssignableToTypeOf(DispatchError{}))
		})
	})

	Describe("func ProcessRMIs()", func() {
		It("logs RMIs for unregistered tags and continues", func() {
			logger := &logging.BufferedLogger{}
			var calls int

			err := memory.NewGroup(2).Run(
				ctx,
				func(ctx context.Context, p *Process) error {
					if p.LocalProcessID() == 0 {
						if err := p.TriggerRMI(ctx, 1, 200, nil); err != nil {
							return err
						}
						if err := p.TriggerRMI(ctx, 1, 100, nil); err != nil {
							return err
						}
						return p.TriggerBreakRMIs(ctx)
					}

					p.AddRMI(100, func(context.Context, ProcessID, []byte) { calls++ })

					return p.ProcessRMIs(ctx)
				},
				WithLogger(logger),
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(calls).To(Equal(1))
			Expect(logger.Messages()).To(ContainElement(
				HaveField(
					"Message",
					ContainSubstring("no RMI callback registered for tag 200 (triggered by process 0)"),
				),
			))
		})

		It("can be called again after a break", func() {
			var calls int

			err := controllertest.Run(
				ctx,
				2,
				func(ctx context.Context, p *Process) error {
					if p.LocalProcessID() == 0 {
						for i := 0; i < 2; i++ {
							if err := p.TriggerRMI(ctx, 1, 100, nil); err != nil {
								return err
							}
							if err := p.TriggerBreakRMIs(ctx); err != nil {
								return err
							}
						}
						return nil
					}

					p.AddRMI(100, func(context.Context, ProcessID, []byte) { calls++ })

					for i := 0; i < 2; i++ {
						if err := p.ProcessRMIs(ctx); err != nil {
							return err
						}
					}

					return nil
				},
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(calls).To(Equal(2))
		})

		It("returns an RMI error if the header can not be received", func() {
			p := New(memory.NewGroup(2).Communicator(1), WithLogger(logging.DiscardLogger{}))

			ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()

			err := p.ProcessRMIs(ctx)

			var rmiErr RMIError
			Expect(err).To(BeAssignableToTypeOf(rmiErr))
			Expect(err.(RMIError).Code).To(Equal(RMITagError))
			Expect(err).To(MatchError(context.DeadlineExceeded))
		})

		It("returns an RMI error if the header is malformed", func() {
			err := controllertest.Run(
				ctx,
				2,
				func(ctx context.Context, p *Process) error {
					if p.LocalProcessID() == 0 {
						return p.SendInt32s(ctx, 1, RMITag, []int32{100})
					}

					return p.ProcessRMI(ctx)
				},
			)
			Expect(err).To(MatchError(ContainSubstring("unable to receive RMI tag")))
		})
	})
})
