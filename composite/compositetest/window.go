// Package compositetest provides a software window for testing compositing.
package compositetest

import (
	"context"
	"sync"

	"github.com/dogmatiq/tandem/composite"
)

// Window is a composite.Window that renders a flat quad covering the whole
// window.
type Window struct {
	// Color is the color of the quad.
	Color [4]float32

	// Depth is the depth of the quad.
	Depth float32

	// Pixel, if non-nil, overrides Color and Depth for the pixel at (x, y).
	Pixel func(x, y int) ([4]float32, float32)

	// BeforeRender, if non-nil, is called at the start of each Render().
	BeforeRender func(ctx context.Context)

	m         sync.Mutex
	width     int
	height    int
	renderers []*Renderer
	renders   int
	written   *composite.Frame
}

// NewWindow returns a window of the given size with n renderers.
func NewWindow(width, height, n int) *Window {
	w := &Window{
		width:  width,
		height: height,
	}

	for i := 0; i < n; i++ {
		w.renderers = append(w.renderers, &Renderer{Bounds: composite.EmptyBounds})
	}

	return w
}

// Size returns the size of the window.
func (w *Window) Size() (int, int) {
	w.m.Lock()
	defer w.m.Unlock()
	return w.width, w.height
}

// SetSize changes the size of the window.
func (w *Window) SetSize(width, height int) {
	w.m.Lock()
	defer w.m.Unlock()
	w.width, w.height = width, height
}

// Renderers returns the window's renderers.
func (w *Window) Renderers() []composite.Renderer {
	w.m.Lock()
	defer w.m.Unlock()

	renderers := make([]composite.Renderer, len(w.renderers))
	for i, r := range w.renderers {
		renderers[i] = r
	}

	return renderers
}

// Renderer returns the renderer at index i.
func (w *Window) Renderer(i int) *Renderer {
	w.m.Lock()
	defer w.m.Unlock()
	return w.renderers[i]
}

// Render counts the render.
func (w *Window) Render(ctx context.Context) error {
	if w.BeforeRender != nil {
		w.BeforeRender(ctx)
	}

	w.m.Lock()
	defer w.m.Unlock()
	w.renders++

	return nil
}

// Renders returns the number of times Render() has been called.
func (w *Window) Renders() int {
	w.m.Lock()
	defer w.m.Unlock()
	return w.renders
}

// ReadFrame returns the quad rasterized in the given format.
func (w *Window) ReadFrame(format composite.PixelFormat) (composite.Frame, error) {
	w.m.Lock()
	defer w.m.Unlock()

	f := composite.Frame{
		Width:  w.width,
		Height: w.height,
		Format: format,
		Depth:  make([]float32, w.width*w.height),
	}

	if format == composite.ByteRGBA {
		f.ByteColor = make([]byte, 4*len(f.Depth))
	} else {
		f.FloatColor = make([]float32, 4*len(f.Depth))
	}

	for y := 0; y < w.height; y++ {
		for x := 0; x < w.width; x++ {
			color, depth := w.Color, w.Depth
			if w.Pixel != nil {
				color, depth = w.Pixel(x, y)
			}

			i := y*w.width + x
			f.Depth[i] = depth

			for c, v := range color {
				if format == composite.ByteRGBA {
					f.ByteColor[4*i+c] = ToByte(v)
				} else {
					f.FloatColor[4*i+c] = v
				}
			}
		}
	}

	return f, nil
}

// WriteFrame stores f as the content of the window.
func (w *Window) WriteFrame(f composite.Frame) error {
	w.m.Lock()
	defer w.m.Unlock()
	w.written = &f
	return nil
}

// Written returns the last frame written to the window, or nil if none has
// been written.
func (w *Window) Written() *composite.Frame {
	w.m.Lock()
	defer w.m.Unlock()
	return w.written
}

// ToByte converts a color channel from a float in [0, 1] to a byte.
func ToByte(v float32) byte {
	return byte(v*255 + 0.5)
}

// Renderer is a composite.Renderer that records the state applied to it.
type Renderer struct {
	// Bounds is the local visible bounds of the renderer.
	Bounds composite.Bounds

	m             sync.Mutex
	camera        composite.Camera
	light         composite.Light
	cameraResets  []composite.Bounds
	clippingResets []composite.Bounds
}

// Camera returns the renderer's camera.
func (r *Renderer) Camera() composite.Camera {
	r.m.Lock()
	defer r.m.Unlock()
	return r.camera
}

// SetCamera sets the renderer's camera.
func (r *Renderer) SetCamera(c composite.Camera) {
	r.m.Lock()
	defer r.m.Unlock()
	r.camera = c
}

// Light returns the renderer's light.
func (r *Renderer) Light() composite.Light {
	r.m.Lock()
	defer r.m.Unlock()
	return r.light
}

// SetLight sets the renderer's light.
func (r *Renderer) SetLight(l composite.Light) {
	r.m.Lock()
	defer r.m.Unlock()
	r.light = l
}

// VisibleBounds returns r.Bounds.
func (r *Renderer) VisibleBounds() composite.Bounds {
	return r.Bounds
}

// ResetCamera records b.
func (r *Renderer) ResetCamera(b composite.Bounds) {
	r.m.Lock()
	defer r.m.Unlock()
	r.cameraResets = append(r.cameraResets, b)
}

// ResetCameraClippingRange records b.
func (r *Renderer) ResetCameraClippingRange(b composite.Bounds) {
	r.m.Lock()
	defer r.m.Unlock()
	r.clippingResets = append(r.clippingResets, b)
}

// CameraResets returns the bounds passed to each call to ResetCamera().
func (r *Renderer) CameraResets() []composite.Bounds {
	r.m.Lock()
	defer r.m.Unlock()
	return append([]composite.Bounds(nil), r.cameraResets...)
}

// ClippingRangeResets returns the bounds passed to each call to
// ResetCameraClippingRange().
func (r *Renderer) ClippingRangeResets() []composite.Bounds {
	r.m.Lock()
	defer r.m.Unlock()
	return append([]composite.Bounds(nil), r.clippingResets...)
}
