package usecase

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/forPelevin/kfcut/internal/domain/timespec"
	"github.com/forPelevin/kfcut/internal/ports"
	"github.com/forPelevin/kfcut/internal/types"
	"github.com/forPelevin/kfcut/internal/workspace"
	"go.uber.org/zap"
)

// executor runs one plan. Every stage consumes the previous stage's output
// path; nothing runs concurrently.
type executor struct {
	engine    ports.Engine
	inspector ports.Inspector
	ws        *workspace.Workspace
	log       *zap.Logger
	obs       Observer

	media types.MediaInfo
	input string
	ext   string
}

// cutVideo produces the video-only intermediate for plan.
func (x *executor) cutVideo(ctx context.Context, plan types.CutPlan) (string, error) {
	switch plan.Case {
	case types.OnKeyframe:
		return x.onKeyframe(ctx, plan)
	case types.SingleGOP:
		return x.singleGOP(ctx, plan)
	case types.SplitGOP:
		return x.splitGOP(ctx, plan)
	default:
		return "", fmt.Errorf("unknown cut case %s", plan.Case)
	}
}

func (x *executor) onKeyframe(ctx context.Context, plan types.CutPlan) (string, error) {
	out := x.ws.Path("video", x.ext)
	err := x.stage(ctx, StageCopy, func() error {
		return x.engine.Copy(ctx, types.CopyRequest{
			Stage:  StageCopy,
			Input:  x.input,
			Start:  plan.NextKeyframe,
			End:    plan.EndTime,
			Output: out,
		})
	})
	return out, err
}

func (x *executor) singleGOP(ctx context.Context, plan types.CutPlan) (string, error) {
	out := x.ws.Path("video", x.ext)
	err := x.stage(ctx, StageEncode, func() error {
		return x.engine.Encode(ctx, x.encodeRequest(StageEncode, plan.PrevKeyframe, plan.StartOffset, plan.EndOffset, out))
	})
	return out, err
}

func (x *executor) splitGOP(ctx context.Context, plan types.CutPlan) (string, error) {
	head := x.ws.Path("segment-a", x.ext)
	tail := x.ws.Path("segment-b", x.ext)
	out := x.ws.Path("video", x.ext)

	if err := x.stage(ctx, StageEncodeHead, func() error {
		return x.engine.Encode(ctx, x.encodeRequest(StageEncodeHead, plan.PrevKeyframe, plan.StartOffset, plan.KeyframeOffset, head))
	}); err != nil {
		return "", err
	}
	if err := x.stage(ctx, StageCopyTail, func() error {
		return x.engine.Copy(ctx, types.CopyRequest{
			Stage:  StageCopyTail,
			Input:  x.input,
			Start:  plan.NextKeyframe,
			End:    plan.EndTime,
			Output: tail,
		})
	}); err != nil {
		return "", err
	}
	if err := x.stage(ctx, StageConcat, func() error {
		return x.engine.Concat(ctx, types.ConcatRequest{
			Stage:    StageConcat,
			ListFile: x.ws.Path("concat", ".txt"),
			Inputs:   []string{head, tail},
			Output:   out,
		})
	}); err != nil {
		return "", err
	}
	if err := x.ws.Discard(head, tail); err != nil {
		x.log.Warn("discard segments", zap.Error(err))
	}
	return out, nil
}

func (x *executor) encodeRequest(stage string, seekIn, from, to *big.Rat, out string) types.EncodeRequest {
	return types.EncodeRequest{
		Stage:     stage,
		Input:     x.input,
		SeekIn:    seekIn,
		From:      from,
		To:        to,
		Codec:     x.media.CodecName,
		Timescale: x.media.TimeBaseDenominator,
		Output:    out,
	}
}

// finalize measures the cut video, pulls the matching audio span from the
// source and muxes both into output. Re-encoding can shift the video length
// slightly, so the audio follows the measured duration.
func (x *executor) finalize(ctx context.Context, plan types.CutPlan, video, output string) (*big.Rat, error) {
	var dur *big.Rat
	if err := x.stage(ctx, StageProbeVideo, func() error {
		d, err := x.inspector.ProbeDuration(ctx, video)
		if err != nil {
			return fmt.Errorf("%s: %w", StageProbeVideo, err)
		}
		dur = d
		return nil
	}); err != nil {
		return nil, err
	}

	audio := ""
	if x.media.HasAudio {
		audio = x.ws.Path("audio", ".mka")
		if err := x.stage(ctx, StageExtractAudio, func() error {
			return x.engine.ExtractAudio(ctx, types.AudioRequest{
				Stage:    StageExtractAudio,
				Input:    x.input,
				Start:    plan.StartRaw,
				Duration: dur,
				Output:   audio,
			})
		}); err != nil {
			return nil, err
		}
	}

	staged := x.ws.Stage(output)
	if err := x.stage(ctx, StageMux, func() error {
		return x.engine.Mux(ctx, types.MuxRequest{
			Stage:  StageMux,
			Video:  video,
			Audio:  audio,
			Output: staged,
		})
	}); err != nil {
		return nil, err
	}
	if err := x.ws.Commit(staged, output); err != nil {
		return nil, err
	}
	return dur, nil
}

// stage runs fn unless ctx is already done. A cancelled run stops before
// the next stage, never inside one.
func (x *executor) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("before %s: %w", name, err)
	}
	if x.obs != nil {
		x.obs.OnStageStart(name)
	}
	started := time.Now()
	if err := fn(); err != nil {
		x.log.Debug("stage failed", zap.String("stage", name), zap.Error(err))
		return err
	}
	took := time.Since(started)
	x.log.Info("stage done", zap.String("stage", name), zap.Duration("took", took.Round(time.Millisecond)))
	if x.obs != nil {
		x.obs.OnStageDone(name, took)
	}
	return nil
}

// spanSeconds renders b-a for reporting.
func spanSeconds(a, b *big.Rat) string {
	if a == nil || b == nil {
		return "0"
	}
	return timespec.Format(new(big.Rat).Sub(b, a))
}
