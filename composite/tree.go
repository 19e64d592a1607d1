package composite

import (
	"context"
	"fmt"

	"github.com/dogmatiq/tandem/controller"
)

// reduce merges the frames of every process into f on the root process using
// a binary tree.
//
// In round i (step = 2^i), a process receives from id+step if
// id mod 2^(i+1) < step and id+step < n, and sends to id-step if
// id mod 2^(i+1) >= step and id-step >= 0. A process drops out after it
// sends. There are ceil(log2(n)) rounds.
//
// A partner's pixel replaces the local pixel only if its depth is strictly
// less, so ties resolve to the lowest rank.
func reduce(ctx context.Context, ctl controller.Controller, f *Frame) error {
	id := int(ctl.LocalProcessID())
	n := ctl.NumberOfProcesses()

	var (
		depth []float32
		color interface{}
	)

	for step := 1; step < n; step <<= 1 {
		if id%(2*step) < step {
			if id+step >= n {
				continue
			}

			if depth == nil {
				depth, color = allocate(*f)
			}

			src := controller.ProcessID(id + step)
			if err := receiveFrame(ctx, ctl, src, f, depth, color); err != nil {
				return err
			}

			switch c := color.(type) {
			case []float32:
				merge(f.Depth, f.FloatColor, depth, c)
			case []byte:
				merge(f.Depth, f.ByteColor, depth, c)
			}
		} else if id-step >= 0 {
			return sendFrame(ctx, ctl, controller.ProcessID(id-step), *f)
		}
	}

	return nil
}

// allocate returns receive buffers with the same shape as f.
func allocate(f Frame) ([]float32, interface{}) {
	depth := make([]float32, len(f.Depth))

	if f.Format == ByteRGBA {
		return depth, make([]byte, len(f.ByteColor))
	}

	return depth, make([]float32, len(f.FloatColor))
}

func sendFrame(ctx context.Context, ctl controller.Controller, dst controller.ProcessID, f Frame) error {
	if err := ctl.SendFloat32s(ctx, dst, DepthTag, f.Depth); err != nil {
		return err
	}

	if f.Format == ByteRGBA {
		return ctl.SendBytes(ctx, dst, ColorTag, f.ByteColor)
	}

	return ctl.SendFloat32s(ctx, dst, ColorTag, f.FloatColor)
}

func receiveFrame(
	ctx context.Context,
	ctl controller.Controller,
	src controller.ProcessID,
	f *Frame,
	depth []float32,
	color interface{},
) error {
	s, err := ctl.ReceiveFloat32s(ctx, src, DepthTag, depth)
	if err != nil {
		return err
	}
	if err := checkCount(src, DepthTag, s, len(depth)); err != nil {
		return err
	}

	switch c := color.(type) {
	case []float32:
		s, err = ctl.ReceiveFloat32s(ctx, src, ColorTag, c)
	case []byte:
		s, err = ctl.ReceiveBytes(ctx, src, ColorTag, c)
	}
	if err != nil {
		return err
	}

	if f.Format == ByteRGBA {
		return checkCount(src, ColorTag, s, len(f.ByteColor))
	}

	return checkCount(src, ColorTag, s, len(f.FloatColor))
}

// checkCount returns an error if a buffer received from src does not have
// the same length as the local one.
func checkCount(src controller.ProcessID, tag controller.Tag, s controller.Status, n int) error {
	if s.Count == n {
		return nil
	}

	return fmt.Errorf(
		"process %s sent %d value(s) with tag %d, expected %d, all processes must use the same window size",
		src,
		s.Count,
		tag,
		n,
	)
}

// merge replaces each pixel of the local buffers with the corresponding
// pixel of the remote buffers if the remote pixel is strictly nearer.
func merge[T float32 | byte](
	localDepth []float32,
	localColor []T,
	remoteDepth []float32,
	remoteColor []T,
) {
	for i, d := range remoteDepth {
		if d < localDepth[i] {
			localDepth[i] = d
			copy(localColor[i*4:i*4+4], remoteColor[i*4:i*4+4])
		}
	}
}
