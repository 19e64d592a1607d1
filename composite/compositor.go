// Package composite renders a scene that is distributed across a group of
// processes and merges the per-process images by depth.
//
// Rank 0 is the root. It drives rendering by invoking RMIs on the other
// processes (the satellites) and holds the final image.
package composite

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/tandem/controller"
	"github.com/dogmatiq/tandem/framestore"
	"github.com/dogmatiq/tandem/internal/x/loggingx"
	"github.com/google/uuid"
)

// Compositor coordinates sort-last parallel rendering of one window.
type Compositor struct {
	ctl     controller.Controller
	window  Window
	format  PixelFormat
	capture framestore.Store
	logger  logging.Logger

	// busy is set while the local process is taking part in a render or a
	// bounds reduction. It prevents side effects of those operations, such
	// as a renderer resetting its camera, from re-entering the protocol.
	busy atomic.Bool

	m   sync.Mutex
	ids []controller.RMIID
}

// New returns a compositor for window.
//
// Every process in the group must construct a compositor with the same
// options. Satellites must call InitializeRMIs() or StartServices().
func New(ctl controller.Controller, window Window, opts ...Option) (*Compositor, error) {
	if ctl == nil {
		return nil, controller.ArgumentError{Op: "composite.New", Reason: "no controller is provided"}
	}

	if window == nil {
		return nil, controller.ArgumentError{Op: "composite.New", Reason: "no window is provided"}
	}

	o := resolveOptions(opts...)

	return &Compositor{
		ctl:     ctl,
		window:  window,
		format:  o.Format,
		capture: o.Capture,
		logger: loggingx.WithPrefix(
			loggingx.ForProcess(o.Logger, int(ctl.LocalProcessID()), ctl.NumberOfProcesses()),
			"compositor: ",
		),
	}, nil
}

// InitializeRMIs registers the render and bounds RMIs with the controller.
//
// It has no effect if the RMIs are already registered.
func (c *Compositor) InitializeRMIs() {
	c.m.Lock()
	defer c.m.Unlock()

	if c.ids != nil {
		return
	}

	c.ids = []controller.RMIID{
		c.ctl.AddRMI(RenderRMITag, c.onRender),
		c.ctl.AddRMI(ComputeBoundsRMITag, c.onComputeBounds),
	}
}

// StartServices registers the RMIs and dispatches them until the root calls
// StopServices(). It is called on satellites.
func (c *Compositor) StartServices(ctx context.Context) error {
	c.InitializeRMIs()
	return c.ctl.ProcessRMIs(ctx)
}

// StopServices causes StartServices() to return on every satellite. It is
// called on the root.
func (c *Compositor) StopServices(ctx context.Context) error {
	if err := c.checkRoot("StopServices"); err != nil {
		return err
	}

	return c.ctl.TriggerBreakRMIs(ctx)
}

// Close removes the compositor's RMI registrations.
func (c *Compositor) Close() error {
	c.m.Lock()
	defer c.m.Unlock()

	for _, id := range c.ids {
		c.ctl.RemoveRMI(id)
	}
	c.ids = nil

	return nil
}

// Render renders the window on every process and composites the result into
// the root's window. It must be called on the root.
//
// It returns immediately if the compositor is already busy, which happens
// when the window's own rendering triggers another render.
func (c *Compositor) Render(ctx context.Context) error {
	if err := c.checkRoot("Render"); err != nil {
		return err
	}

	if !c.busy.CompareAndSwap(false, true) {
		logging.Debug(c.logger, "render requested while busy, ignoring")
		return nil
	}
	defer c.busy.Store(false)

	if err := c.ctl.TriggerRMIOnAllSatellites(ctx, RenderRMITag, nil); err != nil {
		return err
	}

	if err := c.broadcastState(ctx); err != nil {
		return err
	}

	return c.renderAndComposite(ctx)
}

// broadcastState sends the size of the window and the state of each renderer
// to every satellite.
func (c *Compositor) broadcastState(ctx context.Context) error {
	w, h := c.window.Size()
	renderers := c.window.Renderers()
	info := windowInfo{w, h, len(renderers)}

	for id := 0; id < c.ctl.NumberOfProcesses(); id++ {
		dst := controller.ProcessID(id)
		if dst == root {
			continue
		}

		if err := sendWindowInfo(ctx, c.ctl, dst, info); err != nil {
			return err
		}

		for _, r := range renderers {
			if err := sendRendererInfo(ctx, c.ctl, dst, r.Camera(), r.Light()); err != nil {
				return err
			}
		}
	}

	return nil
}

// onRender is the RMI callback that runs the satellite side of Render().
func (c *Compositor) onRender(ctx context.Context, _ controller.ProcessID, _ []byte) {
	c.busy.Store(true)
	defer c.busy.Store(false)

	if err := c.receiveState(ctx); err != nil {
		logging.Log(c.logger, "unable to receive render state: %s", err)
		return
	}

	if err := c.renderAndComposite(ctx); err != nil {
		logging.Log(c.logger, "unable to composite: %s", err)
	}
}

// receiveState applies the window and renderer state sent by the root.
func (c *Compositor) receiveState(ctx context.Context) error {
	info, err := receiveWindowInfo(ctx, c.ctl)
	if err != nil {
		return err
	}

	c.window.SetSize(info.Width, info.Height)
	renderers := c.window.Renderers()

	if info.Renderers != len(renderers) {
		logging.Log(
			c.logger,
			"the root has %d renderer(s) but this window has %d",
			info.Renderers,
			len(renderers),
		)
	}

	// Every renderer's state must be received, even those that can not be
	// applied, so that the next message on the tag is not misread.
	for i := 0; i < info.Renderers; i++ {
		cam, light, err := receiveRendererInfo(ctx, c.ctl)
		if err != nil {
			return err
		}

		if i < len(renderers) {
			renderers[i].SetCamera(cam)
			renderers[i].SetLight(light)
		}
	}

	return nil
}

// renderAndComposite renders locally then takes part in the tree reduction.
// The root writes the result back to its window.
func (c *Compositor) renderAndComposite(ctx context.Context) error {
	if err := c.window.Render(ctx); err != nil {
		return fmt.Errorf("unable to render: %w", err)
	}

	f, err := c.window.ReadFrame(c.format)
	if err != nil {
		return fmt.Errorf("unable to read frame: %w", err)
	}

	if err := checkFrame(f, c.format); err != nil {
		return err
	}

	if err := reduce(ctx, c.ctl, &f); err != nil {
		return err
	}

	if c.ctl.LocalProcessID() != root {
		return nil
	}

	if err := c.window.WriteFrame(f); err != nil {
		return fmt.Errorf("unable to write frame: %w", err)
	}

	if c.capture != nil {
		return c.save(ctx, f)
	}

	return nil
}

// save stores f in the capture store.
func (c *Compositor) save(ctx context.Context, f Frame) error {
	id := uuid.NewString()

	if err := c.capture.Save(ctx, framestore.Frame{
		ID:         id,
		CapturedAt: time.Now(),
		Width:      f.Width,
		Height:     f.Height,
		FloatColor: f.FloatColor,
		ByteColor:  f.ByteColor,
		Depth:      f.Depth,
	}); err != nil {
		return fmt.Errorf("unable to capture frame: %w", err)
	}

	logging.Debug(c.logger, "captured %dx%d frame %s", f.Width, f.Height, id)

	return nil
}

// checkRoot returns an error if the local process is not the root.
func (c *Compositor) checkRoot(op string) error {
	if c.ctl.LocalProcessID() == root {
		return nil
	}

	return controller.ArgumentError{
		Op:     op,
		Reason: fmt.Sprintf("can only be called on process %s", root),
	}
}

// checkFrame returns an error if the buffers of f do not match its size and
// format.
func checkFrame(f Frame, format PixelFormat) error {
	if f.Format != format {
		return fmt.Errorf("window returned a %s frame, expected %s", f.Format, format)
	}

	n := f.Pixels()
	color := len(f.FloatColor)
	if format == ByteRGBA {
		color = len(f.ByteColor)
	}

	if len(f.Depth) != n || color != 4*n {
		return fmt.Errorf(
			"%dx%d frame has %d depth value(s) and %d color value(s)",
			f.Width,
			f.Height,
			len(f.Depth),
			color,
		)
	}

	return nil
}
