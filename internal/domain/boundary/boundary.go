// Package boundary resolves a requested [start, end) range against the
// keyframe layout of a video and classifies how it must be cut.
package boundary

import (
	"fmt"
	"iter"
	"math/big"

	"github.com/forPelevin/kfcut/internal/domain/timespec"
	"github.com/forPelevin/kfcut/internal/types"
)

// Resolve builds the CutPlan for [start, end). keyframes must yield
// strictly increasing timestamps; it is consumed at most once and only
// until the first keyframe at or after the search start.
// divisor <= 0 selects timespec.DefaultEpsilonDivisor.
func Resolve(
	start, end types.TimeSpec,
	media types.MediaInfo,
	keyframes iter.Seq2[*big.Rat, error],
	divisor int64,
) (types.CutPlan, error) {
	frameEps, err := timespec.FrameEpsilon(media.FPS, divisor)
	if err != nil {
		return types.CutPlan{}, err
	}

	startRaw := new(big.Rat).Set(start.Seconds)
	startSearch := minusEpsilon(start)
	endTime := minusEpsilon(end)

	// Both the tolerance-shifted bounds and the literal ones must be
	// ordered; mixing a frame token with a plain one at the same instant
	// passes the first check alone.
	if endTime.Cmp(startSearch) <= 0 ||
		end.Seconds.Cmp(start.Seconds) <= 0 ||
		endTime.Cmp(startRaw) <= 0 {
		return types.CutPlan{}, emptyRange(start, end)
	}

	if media.DurationSeconds != nil {
		startRaw = clamp(startRaw, media.DurationSeconds)
		startSearch = clamp(startSearch, media.DurationSeconds)
		if endTime.Cmp(media.DurationSeconds) > 0 {
			endTime = new(big.Rat).Set(media.DurationSeconds)
		}
	} else {
		startRaw = clamp(startRaw, nil)
		startSearch = clamp(startSearch, nil)
	}
	// start past the end of the file
	if endTime.Cmp(startSearch) <= 0 || endTime.Cmp(startRaw) <= 0 {
		return types.CutPlan{}, emptyRange(start, end)
	}

	prev, next, err := scan(keyframes, startSearch)
	if err != nil {
		return types.CutPlan{}, err
	}
	if next == nil {
		return types.CutPlan{}, fmt.Errorf("%w at or after %s (start %q)",
			types.ErrNoKeyframeFound, timespec.Format(startSearch), start.Token)
	}

	plan := types.CutPlan{
		StartRaw:     startRaw,
		StartSearch:  startSearch,
		EndTime:      endTime,
		PrevKeyframe: prev,
		NextKeyframe: next,
		FrameEpsilon: frameEps,
	}

	switch {
	// A start within tolerance of the keyframe, or past it, copies from
	// the keyframe.
	case onKeyframe(next, startRaw, frameEps) || startRaw.Cmp(next) >= 0:
		if endTime.Cmp(next) <= 0 {
			// no frame lies in [next, end)
			return types.CutPlan{}, emptyRange(start, end)
		}
		plan.Case = types.OnKeyframe
	case endTime.Cmp(next) <= 0:
		plan.Case = types.SingleGOP
		plan.StartOffset = sub(startRaw, prev)
		plan.EndOffset = sub(endTime, prev)
	default:
		plan.Case = types.SplitGOP
		plan.StartOffset = sub(startRaw, prev)
		plan.KeyframeOffset = splitOffset(prev, next, frameEps, plan.StartOffset)
	}
	return plan, nil
}

// splitOffset ends the re-encoded head one epsilon short of the keyframe so
// the keyframe itself opens the copied tail. If that would leave the head
// empty or inverted, the full distance is used instead.
func splitOffset(prev, next, frameEps, startOffset *big.Rat) *big.Rat {
	full := sub(next, prev)
	off := sub(full, frameEps)
	if off.Cmp(startOffset) <= 0 {
		return full
	}
	return off
}

func scan(keyframes iter.Seq2[*big.Rat, error], target *big.Rat) (prev, next *big.Rat, err error) {
	prev = new(big.Rat)
	if keyframes == nil {
		return prev, nil, nil
	}
	for ts, scanErr := range keyframes {
		if scanErr != nil {
			return nil, nil, scanErr
		}
		if ts.Cmp(target) >= 0 {
			return prev, new(big.Rat).Set(ts), nil
		}
		prev = new(big.Rat).Set(ts)
	}
	return prev, nil, nil
}

func onKeyframe(next, startRaw, frameEps *big.Rat) bool {
	d := sub(next, startRaw)
	return d.Abs(d).Cmp(frameEps) < 0
}

func minusEpsilon(ts types.TimeSpec) *big.Rat {
	v := new(big.Rat).Set(ts.Seconds)
	if ts.Epsilon != nil {
		v.Sub(v, ts.Epsilon)
	}
	return v
}

// clamp limits v to [0, max]; a nil max leaves the upper bound open.
func clamp(v, max *big.Rat) *big.Rat {
	if v.Sign() < 0 {
		return new(big.Rat)
	}
	if max != nil && v.Cmp(max) > 0 {
		return new(big.Rat).Set(max)
	}
	return v
}

func sub(a, b *big.Rat) *big.Rat { return new(big.Rat).Sub(a, b) }

func emptyRange(start, end types.TimeSpec) error {
	return fmt.Errorf("%w: start %q is not before end %q", types.ErrEmptyRange, start.Token, end.Token)
}
