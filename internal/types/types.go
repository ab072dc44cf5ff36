package types

import (
	"fmt"
	"math/big"
)

// Fraction is an exact frame rate such as 30000/1001.
type Fraction struct {
	Num int64
	Den int64
}

func (f Fraction) Valid() bool { return f.Num > 0 && f.Den > 0 }

func (f Fraction) String() string { return fmt.Sprintf("%d/%d", f.Num, f.Den) }

// TimeSpec is a parsed time token. Epsilon is non-nil only for frame-index
// tokens and is a fraction of one frame duration.
type TimeSpec struct {
	Token   string
	Seconds *big.Rat
	Epsilon *big.Rat
}

// MediaInfo describes the first video stream. StartTime is the container's
// start offset; seek positions and DurationSeconds are relative to it while
// probed frame timestamps are not. A nil StartTime means zero.
type MediaInfo struct {
	CodecName           string
	TimeBaseDenominator int64
	FPS                 Fraction
	DurationSeconds     *big.Rat
	StartTime           *big.Rat
	HasAudio            bool
}

type CutCase int

const (
	OnKeyframe CutCase = iota + 1
	SingleGOP
	SplitGOP
)

func (c CutCase) String() string {
	switch c {
	case OnKeyframe:
		return "on-keyframe"
	case SingleGOP:
		return "single-gop"
	case SplitGOP:
		return "split-gop"
	default:
		return fmt.Sprintf("cutcase(%d)", int(c))
	}
}

// CutPlan holds every value the executor needs. Offsets are relative to
// PrevKeyframe; KeyframeOffset is set only for SplitGOP, StartOffset and
// EndOffset only for the re-encoding cases.
type CutPlan struct {
	Case CutCase

	StartRaw     *big.Rat
	StartSearch  *big.Rat
	EndTime      *big.Rat
	PrevKeyframe *big.Rat
	NextKeyframe *big.Rat

	StartOffset    *big.Rat
	EndOffset      *big.Rat
	KeyframeOffset *big.Rat

	FrameEpsilon *big.Rat
}

// Engine requests. Every time value is computed upstream; adapters only
// render them.

// CopyRequest stream-copies the first video stream over [Start, End).
type CopyRequest struct {
	Stage  string
	Input  string
	Start  *big.Rat
	End    *big.Rat
	Output string
}

// EncodeRequest re-encodes the first video stream with a two-stage seek:
// a coarse input seek to SeekIn, then an output-relative trim over
// [From, To).
type EncodeRequest struct {
	Stage     string
	Input     string
	SeekIn    *big.Rat
	From      *big.Rat
	To        *big.Rat
	Codec     string
	Timescale int64
	Output    string
}

type ConcatRequest struct {
	Stage    string
	ListFile string
	Inputs   []string
	Output   string
}

type AudioRequest struct {
	Stage    string
	Input    string
	Start    *big.Rat
	Duration *big.Rat
	Output   string
}

// MuxRequest copies Video and, when set, Audio into Output.
type MuxRequest struct {
	Stage  string
	Video  string
	Audio  string
	Output string
}
