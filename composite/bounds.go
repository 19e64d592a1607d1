package composite

import (
	"context"
	"fmt"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/tandem/controller"
)

// ComputeVisibleBounds returns the union of the visible bounds of renderer r
// across every process. It must be called on the root.
func (c *Compositor) ComputeVisibleBounds(ctx context.Context, r int) (Bounds, error) {
	if err := c.checkRoot("ComputeVisibleBounds"); err != nil {
		return EmptyBounds, err
	}

	ren, err := c.renderer("ComputeVisibleBounds", r)
	if err != nil {
		return EmptyBounds, err
	}

	n := c.ctl.NumberOfProcesses()

	for id := 0; id < n; id++ {
		dst := controller.ProcessID(id)
		if dst == root {
			continue
		}

		if err := c.ctl.TriggerRMI(ctx, dst, ComputeBoundsRMITag, nil); err != nil {
			return EmptyBounds, err
		}

		if err := c.ctl.SendInt32s(ctx, dst, RendererIDTag, []int32{int32(r)}); err != nil {
			return EmptyBounds, err
		}
	}

	// The satellites are already computing their bounds, so the local bounds
	// can be computed even if that requires a parallel operation.
	bounds := ren.VisibleBounds()

	for id := 0; id < n; id++ {
		src := controller.ProcessID(id)
		if src == root {
			continue
		}

		var buf Bounds
		s, err := c.ctl.ReceiveFloat64s(ctx, src, BoundsTag, buf[:])
		if err != nil {
			return EmptyBounds, err
		}

		if s.Count != len(buf) {
			return EmptyBounds, fmt.Errorf("process %s sent %d bound(s), expected %d", src, s.Count, len(buf))
		}

		bounds = bounds.Merge(buf)
	}

	return bounds, nil
}

// onComputeBounds is the RMI callback that sends the local bounds of the
// requested renderer to the root.
func (c *Compositor) onComputeBounds(ctx context.Context, _ controller.ProcessID, _ []byte) {
	var buf [1]int32
	if _, err := c.ctl.ReceiveInt32s(ctx, root, RendererIDTag, buf[:]); err != nil {
		logging.Log(c.logger, "unable to receive renderer ID: %s", err)
		return
	}

	renderers := c.window.Renderers()
	r := int(buf[0])

	bounds := EmptyBounds
	if r >= 0 && r < len(renderers) {
		bounds = renderers[r].VisibleBounds()
	} else if len(renderers) > 0 {
		logging.Log(c.logger, "renderer %d was requested but there are only %d, using the first", r, len(renderers))
		bounds = renderers[0].VisibleBounds()
	}

	if err := c.ctl.SendFloat64s(ctx, root, BoundsTag, bounds[:]); err != nil {
		logging.Log(c.logger, "unable to send bounds: %s", err)
	}
}

// ResetCamera resets the camera of renderer r so that the props on every
// process are visible.
//
// On a satellite, or if the compositor is busy, only the local bounds are
// used.
func (c *Compositor) ResetCamera(ctx context.Context, r int) error {
	return c.reset(ctx, "ResetCamera", r, Renderer.ResetCamera)
}

// ResetCameraClippingRange resets the clipping range of renderer r so that
// the props on every process are not clipped.
//
// On a satellite, or if the compositor is busy, only the local bounds are
// used.
func (c *Compositor) ResetCameraClippingRange(ctx context.Context, r int) error {
	return c.reset(ctx, "ResetCameraClippingRange", r, Renderer.ResetCameraClippingRange)
}

func (c *Compositor) reset(
	ctx context.Context,
	op string,
	r int,
	apply func(Renderer, Bounds),
) error {
	ren, err := c.renderer(op, r)
	if err != nil {
		return err
	}

	if c.ctl.LocalProcessID() != root || !c.busy.CompareAndSwap(false, true) {
		apply(ren, ren.VisibleBounds())
		return nil
	}
	defer c.busy.Store(false)

	bounds, err := c.ComputeVisibleBounds(ctx, r)
	if err != nil {
		return err
	}

	apply(ren, bounds)

	return nil
}

// renderer returns the renderer at index r of the window.
func (c *Compositor) renderer(op string, r int) (Renderer, error) {
	renderers := c.window.Renderers()

	if r < 0 || r >= len(renderers) {
		return nil, controller.ArgumentError{
			Op:     op,
			Reason: fmt.Sprintf("renderer %d is out of range, the window has %d", r, len(renderers)),
		}
	}

	return renderers[r], nil
}
