package composite

import (
	"context"
	"math"
)

// PixelFormat is the representation of the color channel of a frame.
type PixelFormat int

const (
	// FloatRGBA stores each channel of a pixel as a float32 in [0, 1].
	FloatRGBA PixelFormat = iota

	// ByteRGBA stores each channel of a pixel as a byte.
	ByteRGBA
)

func (f PixelFormat) String() string {
	if f == ByteRGBA {
		return "byte RGBA"
	}

	return "float RGBA"
}

// Frame is the content of a render surface.
//
// Pixels are stored row by row. Color holds four channels per pixel in either
// FloatColor or ByteColor, depending on Format. Depth holds one value per
// pixel, smaller values are nearer the viewer.
type Frame struct {
	Width, Height int
	Format        PixelFormat
	FloatColor    []float32
	ByteColor     []byte
	Depth         []float32
}

// Pixels returns the number of pixels in the frame.
func (f Frame) Pixels() int {
	return f.Width * f.Height
}

// Camera is the state of a renderer's camera that is broadcast to every
// process before rendering.
type Camera struct {
	Position      [3]float64
	FocalPoint    [3]float64
	ViewUp        [3]float64
	ClippingRange [2]float64
	ViewAngle     float64
}

// Light is the state of a renderer's headlight.
type Light struct {
	Position   [3]float64
	FocalPoint [3]float64
}

// Bounds is an axis-aligned bounding box, stored as
// [xmin, xmax, ymin, ymax, zmin, zmax].
type Bounds [6]float64

// EmptyBounds is the bounding box of nothing. Merging it with any other box
// yields the other box.
var EmptyBounds = Bounds{
	math.Inf(1), math.Inf(-1),
	math.Inf(1), math.Inf(-1),
	math.Inf(1), math.Inf(-1),
}

// IsEmpty returns true if b contains no points.
func (b Bounds) IsEmpty() bool {
	return b[0] > b[1] || b[2] > b[3] || b[4] > b[5]
}

// Merge returns the smallest box that contains both b and o.
func (b Bounds) Merge(o Bounds) Bounds {
	for i := 0; i < 6; i += 2 {
		b[i] = math.Min(b[i], o[i])
		b[i+1] = math.Max(b[i+1], o[i+1])
	}

	return b
}

// Renderer is a single viewport of a window.
type Renderer interface {
	Camera() Camera
	SetCamera(Camera)
	Light() Light
	SetLight(Light)

	// VisibleBounds returns the bounds of the props visible to the renderer
	// on the local process.
	VisibleBounds() Bounds

	// ResetCamera positions the camera so that b is entirely visible.
	ResetCamera(b Bounds)

	// ResetCameraClippingRange adjusts the clipping range of the camera so
	// that b is not clipped.
	ResetCameraClippingRange(b Bounds)
}

// Window is the render surface of one process.
//
// The frames exchanged with a window are copies; the compositor never retains
// the window's own buffers.
type Window interface {
	Size() (width, height int)
	SetSize(width, height int)
	Renderers() []Renderer

	// Render draws the local geometry of every renderer.
	Render(ctx context.Context) error

	// ReadFrame returns a copy of the rendered color and depth buffers.
	ReadFrame(f PixelFormat) (Frame, error)

	// WriteFrame replaces the content of the window with f.
	WriteFrame(f Frame) error
}
