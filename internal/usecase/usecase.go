package usecase

import (
	"context"
	"fmt"
	"iter"
	"math/big"
	"path/filepath"
	"time"

	"github.com/forPelevin/kfcut/internal/domain/boundary"
	"github.com/forPelevin/kfcut/internal/domain/timespec"
	"github.com/forPelevin/kfcut/internal/ports"
	"github.com/forPelevin/kfcut/internal/types"
	"github.com/forPelevin/kfcut/internal/workspace"
	"go.uber.org/zap"
)

// Stage names reported in logs, errors and progress.
const (
	StageCopy         = "copy"
	StageEncode       = "encode"
	StageEncodeHead   = "encode-head"
	StageCopyTail     = "copy-tail"
	StageConcat       = "concat"
	StageProbeVideo   = "probe-intermediate"
	StageExtractAudio = "extract-audio"
	StageMux          = "mux"
)

type Deps struct {
	Inspector ports.Inspector
	Engine    ports.Engine
}

// Observer receives run events. The usecase never writes to the terminal
// itself; a nil Observer is allowed.
type Observer interface {
	OnPlan(plan types.CutPlan, stages int)
	OnStageStart(stage string)
	OnStageDone(stage string, dur time.Duration)
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

type Input struct {
	Start      string
	End        string
	InputPath  string
	OutputPath string

	// WorkDir is the parent of the per-run workspace; empty means os.TempDir().
	WorkDir        string
	EpsilonDivisor int64

	Logger   *zap.Logger
	Observer Observer
}

type Result struct {
	Plan   types.CutPlan
	Media  types.MediaInfo
	Output string
	// VideoDuration is the measured length of the cut video stream.
	VideoDuration *big.Rat
}

func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	log := in.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if err := timespec.Validate(in.Start); err != nil {
		return Result{}, fmt.Errorf("start: %w", err)
	}
	if err := timespec.Validate(in.End); err != nil {
		return Result{}, fmt.Errorf("end: %w", err)
	}

	media, err := u.d.Inspector.Inspect(ctx, in.InputPath)
	if err != nil {
		return Result{}, fmt.Errorf("inspect %s: %w", in.InputPath, err)
	}
	log.Info("inspected",
		zap.String("codec", media.CodecName),
		zap.String("fps", media.FPS.String()),
		zap.Int64("timebase", media.TimeBaseDenominator),
		zap.String("duration", timespec.Format(media.DurationSeconds)),
		zap.Bool("audio", media.HasAudio),
	)

	start, err := timespec.Parse(in.Start, media.FPS, in.EpsilonDivisor)
	if err != nil {
		return Result{}, fmt.Errorf("start: %w", err)
	}
	end, err := timespec.Parse(in.End, media.FPS, in.EpsilonDivisor)
	if err != nil {
		return Result{}, fmt.Errorf("end: %w", err)
	}

	plan, err := boundary.Resolve(start, end, media, relativeTo(u.d.Inspector.ScanKeyframes(ctx, in.InputPath), media.StartTime), in.EpsilonDivisor)
	if err != nil {
		return Result{}, err
	}
	logPlan(log, plan)

	ws, err := workspace.New(in.WorkDir)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			log.Warn("workspace cleanup failed", zap.String("dir", ws.Dir()), zap.Error(cerr))
		}
	}()

	x := &executor{
		engine:    u.d.Engine,
		inspector: u.d.Inspector,
		ws:        ws,
		log:       log,
		obs:       in.Observer,
		media:     media,
		input:     in.InputPath,
		ext:       containerExt(in.InputPath),
	}
	if x.obs != nil {
		x.obs.OnPlan(plan, stageCount(plan, media))
	}

	video, err := x.cutVideo(ctx, plan)
	if err != nil {
		return Result{}, err
	}
	dur, err := x.finalize(ctx, plan, video, in.OutputPath)
	if err != nil {
		return Result{}, err
	}

	return Result{Plan: plan, Media: media, Output: in.OutputPath, VideoDuration: dur}, nil
}

func logPlan(log *zap.Logger, plan types.CutPlan) {
	fields := []zap.Field{
		zap.Stringer("case", plan.Case),
		zap.String("start", timespec.Format(plan.StartRaw)),
		zap.String("end", timespec.Format(plan.EndTime)),
		zap.String("prev_keyframe", timespec.Format(plan.PrevKeyframe)),
		zap.String("next_keyframe", timespec.Format(plan.NextKeyframe)),
	}
	if plan.StartOffset != nil {
		fields = append(fields, zap.String("start_offset", timespec.Format(plan.StartOffset)))
	}
	if plan.EndOffset != nil {
		fields = append(fields, zap.String("end_offset", timespec.Format(plan.EndOffset)))
	}
	if plan.KeyframeOffset != nil {
		fields = append(fields, zap.String("keyframe_offset", timespec.Format(plan.KeyframeOffset)))
	}
	log.Info("plan", fields...)
}

// relativeTo shifts probed keyframe timestamps onto the seek timeline,
// which starts at the container's start offset.
func relativeTo(keyframes iter.Seq2[*big.Rat, error], origin *big.Rat) iter.Seq2[*big.Rat, error] {
	if origin == nil || origin.Sign() == 0 {
		return keyframes
	}
	return func(yield func(*big.Rat, error) bool) {
		for ts, err := range keyframes {
			if err == nil {
				ts = new(big.Rat).Sub(ts, origin)
			}
			if !yield(ts, err) {
				return
			}
		}
	}
}

// stageCount is the number of stages the executor will run for plan.
func stageCount(plan types.CutPlan, media types.MediaInfo) int {
	n := 2 // probe-intermediate, mux
	if media.HasAudio {
		n++
	}
	switch plan.Case {
	case types.SplitGOP:
		n += 3
	default:
		n++
	}
	return n
}

func containerExt(path string) string {
	if ext := filepath.Ext(path); ext != "" {
		return ext
	}
	return ".mp4"
}

// Summary is a one-line report of what was re-encoded and what was copied.
func (r Result) Summary() string {
	p := r.Plan
	reencoded, copied := "0", "0"
	switch p.Case {
	case types.OnKeyframe:
		copied = spanSeconds(p.NextKeyframe, p.EndTime)
	case types.SingleGOP:
		reencoded = spanSeconds(p.StartOffset, p.EndOffset)
	case types.SplitGOP:
		reencoded = spanSeconds(p.StartOffset, p.KeyframeOffset)
		copied = spanSeconds(p.NextKeyframe, p.EndTime)
	}
	return fmt.Sprintf("%s: case=%s prev_keyframe=%s next_keyframe=%s reencoded=%ss copied=%ss",
		r.Output, p.Case,
		timespec.Format(p.PrevKeyframe), timespec.Format(p.NextKeyframe),
		reencoded, copied,
	)
}
