package composite

import (
	"context"
	"fmt"

	"github.com/dogmatiq/tandem/controller"
)

const (
	// RenderRMITag is the RMI that causes a satellite to receive the render
	// state and take part in a composite.
	RenderRMITag controller.Tag = 34532

	// ComputeBoundsRMITag is the RMI that causes a satellite to send the
	// visible bounds of one of its renderers to the root.
	ComputeBoundsRMITag controller.Tag = 54636

	// WindowInfoTag carries the size of the window and the number of
	// renderers.
	WindowInfoTag controller.Tag = 87834

	// RendererInfoTag carries the camera and light of one renderer.
	RendererInfoTag controller.Tag = 87836

	// RendererIDTag carries the index of the renderer whose bounds are
	// requested.
	RendererIDTag controller.Tag = 58794

	// BoundsTag carries the visible bounds of a satellite.
	BoundsTag controller.Tag = 23543

	// DepthTag carries a depth buffer during tree reduction.
	DepthTag controller.Tag = 99

	// ColorTag carries a color buffer during tree reduction.
	ColorTag controller.Tag = 100
)

// root is the rank of the process that drives rendering and holds the final
// image.
const root controller.ProcessID = 0

// rendererInfoSize is the number of float64 values that describe one
// renderer: the camera followed by the light.
const rendererInfoSize = 18

// windowInfo is the state of a window that is broadcast before rendering.
type windowInfo struct {
	Width, Height int
	Renderers     int
}

func sendWindowInfo(ctx context.Context, ctl controller.Controller, dst controller.ProcessID, w windowInfo) error {
	return ctl.SendInt32s(
		ctx,
		dst,
		WindowInfoTag,
		[]int32{int32(w.Width), int32(w.Height), int32(w.Renderers)},
	)
}

func receiveWindowInfo(ctx context.Context, ctl controller.Controller) (windowInfo, error) {
	var buf [3]int32

	s, err := ctl.ReceiveInt32s(ctx, root, WindowInfoTag, buf[:])
	if err != nil {
		return windowInfo{}, err
	}

	if s.Count != len(buf) {
		return windowInfo{}, fmt.Errorf("window information has %d value(s), expected %d", s.Count, len(buf))
	}

	return windowInfo{int(buf[0]), int(buf[1]), int(buf[2])}, nil
}

func sendRendererInfo(ctx context.Context, ctl controller.Controller, dst controller.ProcessID, c Camera, l Light) error {
	buf := make([]float64, 0, rendererInfoSize)
	buf = append(buf, c.Position[:]...)
	buf = append(buf, c.FocalPoint[:]...)
	buf = append(buf, c.ViewUp[:]...)
	buf = append(buf, c.ClippingRange[:]...)
	buf = append(buf, c.ViewAngle)
	buf = append(buf, l.Position[:]...)
	buf = append(buf, l.FocalPoint[:]...)

	return ctl.SendFloat64s(ctx, dst, RendererInfoTag, buf)
}

func receiveRendererInfo(ctx context.Context, ctl controller.Controller) (Camera, Light, error) {
	var buf [rendererInfoSize]float64

	s, err := ctl.ReceiveFloat64s(ctx, root, RendererInfoTag, buf[:])
	if err != nil {
		return Camera{}, Light{}, err
	}

	if s.Count != len(buf) {
		return Camera{}, Light{}, fmt.Errorf("renderer information has %d value(s), expected %d", s.Count, len(buf))
	}

	var (
		c Camera
		l Light
	)

	copy(c.Position[:], buf[0:3])
	copy(c.FocalPoint[:], buf[3:6])
	copy(c.ViewUp[:], buf[6:9])
	copy(c.ClippingRange[:], buf[9:11])
	c.ViewAngle = buf[11]
	copy(l.Position[:], buf[12:15])
	copy(l.FocalPoint[:], buf[15:18])

	return c, l, nil
}
