package port

import (
	"context"
	"fmt"

	"github.com/dogmatiq/tandem/controller"
	"github.com/dogmatiq/tandem/pipeline"
)

// informationSize is the number of int32 words that follow the pipeline time
// in an information message: the maximum number of pieces and the whole
// extent.
const informationSize = 7

// extentSize is the number of int32 words in an update request.
const extentSize = 3

// checkTag returns an error if base, or the update tag derived from it, is
// reserved by the controller.
func checkTag(op string, base controller.Tag) error {
	if base.IsReserved() || (base + 1).IsReserved() {
		return controller.ArgumentError{
			Op:     op,
			Reason: fmt.Sprintf("tags %d and %d overlap the tags reserved for RMIs", base, base+1),
		}
	}

	return nil
}

func sendInformation(
	ctx context.Context,
	ctl controller.Controller,
	dst controller.ProcessID,
	tag controller.Tag,
	info pipeline.Information,
) error {
	if err := ctl.SendUint64s(ctx, dst, tag, []uint64{uint64(info.PipelineTime)}); err != nil {
		return err
	}

	words := make([]int32, informationSize)
	words[0] = int32(info.MaximumNumberOfPieces)
	for i, v := range info.WholeExtent {
		words[i+1] = int32(v)
	}

	return ctl.SendInt32s(ctx, dst, tag, words)
}

func receiveInformation(
	ctx context.Context,
	ctl controller.Controller,
	src controller.ProcessID,
	tag controller.Tag,
) (pipeline.Information, error) {
	var (
		info  pipeline.Information
		time  [1]uint64
		words [informationSize]int32
	)

	if _, err := ctl.ReceiveUint64s(ctx, src, tag, time[:]); err != nil {
		return info, err
	}

	if _, err := ctl.ReceiveInt32s(ctx, src, tag, words[:]); err != nil {
		return info, err
	}

	info.PipelineTime = pipeline.Time(time[0])
	info.MaximumNumberOfPieces = int(words[0])
	for i := range info.WholeExtent {
		info.WholeExtent[i] = int(words[i+1])
	}

	return info, nil
}

func sendRequest(
	ctx context.Context,
	ctl controller.Controller,
	dst controller.ProcessID,
	tag controller.Tag,
	e pipeline.Extent,
	dataTime pipeline.Time,
) error {
	words := []int32{
		int32(e.Piece),
		int32(e.NumberOfPieces),
		int32(e.GhostLevel),
	}

	if err := ctl.SendInt32s(ctx, dst, tag, words); err != nil {
		return err
	}

	return ctl.SendUint64s(ctx, dst, tag, []uint64{uint64(dataTime)})
}

func receiveRequest(
	ctx context.Context,
	ctl controller.Controller,
	src controller.ProcessID,
	tag controller.Tag,
) (pipeline.Extent, pipeline.Time, error) {
	var (
		words [extentSize]int32
		time  [1]uint64
	)

	if _, err := ctl.ReceiveInt32s(ctx, src, tag, words[:]); err != nil {
		return pipeline.Extent{}, 0, err
	}

	if _, err := ctl.ReceiveUint64s(ctx, src, tag, time[:]); err != nil {
		return pipeline.Extent{}, 0, err
	}

	e := pipeline.Extent{
		Piece:          int(words[0]),
		NumberOfPieces: int(words[1]),
		GhostLevel:     int(words[2]),
	}

	return e, pipeline.Time(time[0]), nil
}
