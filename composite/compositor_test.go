package composite_test

import (
	"context"
	"path/filepath"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	. "github.com/dogmatiq/tandem/composite"
	"github.com/dogmatiq/tandem/composite/compositetest"
	"github.com/dogmatiq/tandem/controller"
	"github.com/dogmatiq/tandem/controller/controllertest"
	"github.com/dogmatiq/tandem/controller/memory"
	"github.com/dogmatiq/tandem/framestore/boltdb"
	"github.com/dogmatiq/tandem/internal/x/bboltx"
	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Compositor", func() {
	var ctx context.Context

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		DeferCleanup(cancel)
	})

	// run creates a compositor for each window, serves RMIs on the
	// satellites and calls fn on the root.
	run := func(
		windows []*compositetest.Window,
		fn func(context.Context, *Compositor) error,
		opts ...Option,
	) error {
		return controllertest.Run(
			ctx,
			len(windows),
			func(ctx context.Context, p *controller.Process) error {
				c, err := New(
					p,
					windows[p.LocalProcessID()],
					append(opts, WithLogger(logging.DiscardLogger{}))...,
				)
				if err != nil {
					return err
				}
				defer c.Close()

				if p.LocalProcessID() != 0 {
					return c.StartServices(ctx)
				}

				err = fn(ctx, c)

				if e := c.StopServices(ctx); err == nil {
					err = e
				}

				return err
			},
		)
	}

	render := func(ctx context.Context, c *Compositor) error {
		return c.Render(ctx)
	}

	Describe("func New()", func() {
		It("returns an error if there is no controller", func() {
			_, err := New(nil, compositetest.NewWindow(1, 1, 1))
			Expect(err).To(BeAssignableToTypeOf(controller.ArgumentError{}))
		})

		It("returns an error if there is no window", func() {
			p := controller.New(memory.NewGroup(1).Communicator(0))
			_, err := New(p, nil)
			Expect(err).To(BeAssignableToTypeOf(controller.ArgumentError{}))
		})
	})

	Describe("func Render()", func() {
		It("shows the nearest quad on the root", func() {
			depths := []float32{0.9, 0.5, 0.8, 0.3}
			var windows []*compositetest.Window

			for i, d := range depths {
				w := compositetest.NewWindow(100, 100, 1)
				w.Color = [4]float32{float32(i) / 4, 0.25, 0.5, 1}
				w.Depth = d
				windows = append(windows, w)
			}

			Expect(run(windows, render)).To(Succeed())

			f := windows[0].Written()
			Expect(f).NotTo(BeNil())
			Expect(f.Width).To(Equal(100))
			Expect(f.Height).To(Equal(100))

			for i := 0; i < f.Pixels(); i++ {
				Expect(f.Depth[i]).To(Equal(float32(0.3)))
				Expect(f.FloatColor[4*i : 4*i+4]).To(Equal([]float32{0.75, 0.25, 0.5, 1}))
			}
		})

		DescribeTable(
			"it matches a linear minimum-depth fold",
			func(n int, format PixelFormat) {
				const width, height = 5, 3

				var windows []*compositetest.Window
				for rank := 0; rank < n; rank++ {
					w := compositetest.NewWindow(width, height, 1)
					w.Pixel = pixelFunc(rank)
					windows = append(windows, w)
				}

				var opts []Option
				if format == ByteRGBA {
					opts = append(opts, WithBytePixels())
				}

				Expect(run(windows, render, opts...)).To(Succeed())

				expect := linearFold(windows, format)
				actual := windows[0].Written()
				Expect(actual).NotTo(BeNil())

				Expect(cmp.Diff(expect.Depth, actual.Depth)).To(BeEmpty())
				Expect(cmp.Diff(expect.FloatColor, actual.FloatColor)).To(BeEmpty())
				Expect(cmp.Diff(expect.ByteColor, actual.ByteColor)).To(BeEmpty())
			},
			Entry("1 process", 1, FloatRGBA),
			Entry("2 processes", 2, FloatRGBA),
			Entry("3 processes", 3, FloatRGBA),
			Entry("4 processes", 4, FloatRGBA),
			Entry("5 processes", 5, FloatRGBA),
			Entry("6 processes", 6, FloatRGBA),
			Entry("7 processes", 7, FloatRGBA),
			Entry("8 processes", 8, FloatRGBA),
			Entry("3 processes with byte pixels", 3, ByteRGBA),
			Entry("8 processes with byte pixels", 8, ByteRGBA),
		)

		It("renders every window exactly once", func() {
			windows := newWindows(3, 2, 2, 1)

			Expect(run(windows, render)).To(Succeed())

			for _, w := range windows {
				Expect(w.Renders()).To(Equal(1))
			}
			Expect(windows[1].Written()).To(BeNil())
			Expect(windows[2].Written()).To(BeNil())
		})

		It("sends the window size and renderer state to the satellites", func() {
			windows := newWindows(3, 1, 1, 2)
			windows[0].SetSize(4, 2)

			cam := Camera{
				Position:      [3]float64{1, 2, 3},
				FocalPoint:    [3]float64{4, 5, 6},
				ViewUp:        [3]float64{0, 1, 0},
				ClippingRange: [2]float64{0.1, 1000},
				ViewAngle:     30,
			}
			light := Light{
				Position:   [3]float64{7, 8, 9},
				FocalPoint: [3]float64{10, 11, 12},
			}
			windows[0].Renderer(1).SetCamera(cam)
			windows[0].Renderer(1).SetLight(light)

			Expect(run(windows, render)).To(Succeed())

			for _, w := range windows[1:] {
				width, height := w.Size()
				Expect(width).To(Equal(4))
				Expect(height).To(Equal(2))
				Expect(w.Renderer(0).Camera()).To(Equal(Camera{}))
				Expect(w.Renderer(1).Camera()).To(Equal(cam))
				Expect(w.Renderer(1).Light()).To(Equal(light))
			}
		})

		It("receives every renderer's state when the satellite has fewer renderers", func() {
			windows := []*compositetest.Window{
				compositetest.NewWindow(2, 2, 3),
				compositetest.NewWindow(2, 2, 1),
			}
			windows[0].Renderer(0).SetCamera(Camera{ViewAngle: 45})

			Expect(run(windows, render)).To(Succeed())
			Expect(windows[1].Renderer(0).Camera()).To(Equal(Camera{ViewAngle: 45}))
			Expect(windows[0].Written()).NotTo(BeNil())
		})

		It("ignores renders that are triggered by the render itself", func() {
			windows := newWindows(2, 2, 2, 1)

			err := run(
				windows,
				func(ctx context.Context, c *Compositor) error {
					var inner error
					windows[0].BeforeRender = func(ctx context.Context) {
						inner = c.Render(ctx)
					}

					if err := c.Render(ctx); err != nil {
						return err
					}

					return inner
				},
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(windows[0].Renders()).To(Equal(1))
			Expect(windows[1].Renders()).To(Equal(1))
		})

		It("returns an error when called on a satellite", func() {
			err := controllertest.Run(
				ctx,
				2,
				func(ctx context.Context, p *controller.Process) error {
					if p.LocalProcessID() == 0 {
						return nil
					}

					c, err := New(p, compositetest.NewWindow(1, 1, 1), WithLogger(logging.DiscardLogger{}))
					if err != nil {
						return err
					}

					return c.Render(ctx)
				},
			)
			Expect(err).To(BeAssignableToTypeOf(controller.ArgumentError{}))
			Expect(err).To(MatchError(ContainSubstring("can only be called on process 0")))
		})

		It("saves the composited frame when capture is enabled", func() {
			db, err := bboltx.Open(ctx, filepath.Join(GinkgoT().TempDir(), "frames.boltdb"), 0, nil)
			Expect(err).ShouldNot(HaveOccurred())
			DeferCleanup(db.Close)

			store := boltdb.New(db)
			windows := newWindows(2, 3, 2, 1)
			windows[1].Depth = 0.1
			windows[1].Color = [4]float32{0, 1, 0, 1}

			Expect(run(windows, render, WithCapture(store))).To(Succeed())

			ids, err := store.List(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ids).To(HaveLen(1))

			f, ok, err := store.Load(ctx, ids[0])
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(f.Width).To(Equal(3))
			Expect(f.Height).To(Equal(2))
			Expect(f.FloatColor).To(Equal(windows[0].Written().FloatColor))
			Expect(f.Depth).To(Equal(windows[0].Written().Depth))
		})
	})

	Describe("func ComputeVisibleBounds()", func() {
		It("returns the union of the bounds on every process", func() {
			windows := newWindows(3, 1, 1, 2)
			windows[0].Renderer(1).Bounds = Bounds{0, 1, 0, 1, 0, 1}
			windows[1].Renderer(1).Bounds = Bounds{-5, 0, 2, 3, 0.5, 0.6}
			windows[2].Renderer(1).Bounds = Bounds{1, 2, -1, 0, -7, 7}
			windows[2].Renderer(0).Bounds = Bounds{-100, 100, -100, 100, -100, 100}

			var bounds Bounds
			err := run(
				windows,
				func(ctx context.Context, c *Compositor) error {
					var err error
					bounds, err = c.ComputeVisibleBounds(ctx, 1)
					return err
				},
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(bounds).To(Equal(Bounds{-5, 2, -1, 3, -7, 7}))
		})

		It("ignores processes with nothing visible", func() {
			windows := newWindows(2, 1, 1, 1)
			windows[0].Renderer(0).Bounds = Bounds{0, 1, 0, 1, 0, 1}

			var bounds Bounds
			err := run(
				windows,
				func(ctx context.Context, c *Compositor) error {
					var err error
					bounds, err = c.ComputeVisibleBounds(ctx, 0)
					return err
				},
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(bounds).To(Equal(Bounds{0, 1, 0, 1, 0, 1}))
		})

		It("returns an error if the renderer is out of range", func() {
			windows := newWindows(2, 1, 1, 1)

			err := run(
				windows,
				func(ctx context.Context, c *Compositor) error {
					_, err := c.ComputeVisibleBounds(ctx, 1)
					return err
				},
			)
			Expect(err).To(BeAssignableToTypeOf(controller.ArgumentError{}))
		})
	})

	Describe("func ResetCamera()", func() {
		It("uses the global bounds", func() {
			windows := newWindows(2, 1, 1, 1)
			windows[0].Renderer(0).Bounds = Bounds{0, 1, 0, 1, 0, 1}
			windows[1].Renderer(0).Bounds = Bounds{1, 2, 1, 2, 1, 2}

			err := run(
				windows,
				func(ctx context.Context, c *Compositor) error {
					return c.ResetCamera(ctx, 0)
				},
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(windows[0].Renderer(0).CameraResets()).To(Equal([]Bounds{
				{0, 2, 0, 2, 0, 2},
			}))
		})
	})

	Describe("func ResetCameraClippingRange()", func() {
		It("uses the global bounds", func() {
			windows := newWindows(2, 1, 1, 1)
			windows[0].Renderer(0).Bounds = Bounds{0, 1, 0, 1, 0, 1}
			windows[1].Renderer(0).Bounds = Bounds{-1, 0, 0, 1, 0, 1}

			err := run(
				windows,
				func(ctx context.Context, c *Compositor) error {
					return c.ResetCameraClippingRange(ctx, 0)
				},
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(windows[0].Renderer(0).ClippingRangeResets()).To(Equal([]Bounds{
				{-1, 1, 0, 1, 0, 1},
			}))
		})

		It("uses the local bounds when called during a render", func() {
			windows := newWindows(2, 1, 1, 1)
			windows[0].Renderer(0).Bounds = Bounds{0, 1, 0, 1, 0, 1}
			windows[1].Renderer(0).Bounds = Bounds{-1, 0, 0, 1, 0, 1}

			err := run(
				windows,
				func(ctx context.Context, c *Compositor) error {
					var inner error
					windows[0].BeforeRender = func(ctx context.Context) {
						inner = c.ResetCameraClippingRange(ctx, 0)
					}

					if err := c.Render(ctx); err != nil {
						return err
					}

					return inner
				},
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(windows[0].Renderer(0).ClippingRangeResets()).To(Equal([]Bounds{
				{0, 1, 0, 1, 0, 1},
			}))
		})
	})
})

var _ = Describe("type Bounds", func() {
	Describe("func Merge()", func() {
		It("takes the minimum of the even entries and the maximum of the odd entries", func() {
			a := Bounds{0, 1, 5, 6, -1, 1}
			b := Bounds{-1, 0.5, 6, 7, 0, 0}
			Expect(a.Merge(b)).To(Equal(Bounds{-1, 1, 5, 7, -1, 1}))
		})

		It("returns the other box when merged with the empty box", func() {
			b := Bounds{1, 2, 3, 4, 5, 6}
			Expect(EmptyBounds.Merge(b)).To(Equal(b))
			Expect(b.Merge(EmptyBounds)).To(Equal(b))
		})
	})

	Describe("func IsEmpty()", func() {
		It("returns true for the empty box", func() {
			Expect(EmptyBounds.IsEmpty()).To(BeTrue())
		})

		It("returns false for a box containing a point", func() {
			Expect(Bounds{1, 1, 1, 1, 1, 1}.IsEmpty()).To(BeFalse())
		})
	})
})

// newWindows returns n windows with the same size, each showing a flat quad
// whose depth increases with rank.
func newWindows(n, width, height, renderers int) []*compositetest.Window {
	var windows []*compositetest.Window

	for rank := 0; rank < n; rank++ {
		w := compositetest.NewWindow(width, height, renderers)
		w.Color = [4]float32{1, 1, 1, 1}
		w.Depth = 0.5 + float32(rank)/100
		windows = append(windows, w)
	}

	return windows
}

// pixelFunc returns a pattern of depths that differs per rank and contains
// many ties.
func pixelFunc(rank int) func(x, y int) ([4]float32, float32) {
	return func(x, y int) ([4]float32, float32) {
		depth := float32((x*7+y*3+rank*5)%4) / 4
		color := [4]float32{float32(rank) / 8, float32(x) / 8, float32(y) / 8, 1}
		return color, depth
	}
}

// linearFold returns the frame obtained by visiting the windows in rank order
// and keeping each pixel whose depth is strictly less than the current one.
func linearFold(windows []*compositetest.Window, format PixelFormat) Frame {
	expect, err := windows[0].ReadFrame(format)
	Expect(err).ShouldNot(HaveOccurred())

	for _, w := range windows[1:] {
		f, err := w.ReadFrame(format)
		Expect(err).ShouldNot(HaveOccurred())

		for i, d := range f.Depth {
			if d >= expect.Depth[i] {
				continue
			}

			expect.Depth[i] = d
			if format == ByteRGBA {
				copy(expect.ByteColor[4*i:4*i+4], f.ByteColor[4*i:4*i+4])
			} else {
				copy(expect.FloatColor[4*i:4*i+4], f.FloatColor[4*i:4*i+4])
			}
		}
	}

	return expect
}
