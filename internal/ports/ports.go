package ports

import (
	"context"
	"iter"
	"math/big"

	"github.com/forPelevin/kfcut/internal/types"
)

type Inspector interface {
	Inspect(ctx context.Context, path string) (types.MediaInfo, error)
	// ScanKeyframes yields intra-frame presentation timestamps in order.
	// The sequence is single-pass; stopping early releases the probe.
	ScanKeyframes(ctx context.Context, path string) iter.Seq2[*big.Rat, error]
	ProbeDuration(ctx context.Context, path string) (*big.Rat, error)
}

type Engine interface {
	Copy(ctx context.Context, req types.CopyRequest) error
	Encode(ctx context.Context, req types.EncodeRequest) error
	Concat(ctx context.Context, req types.ConcatRequest) error
	ExtractAudio(ctx context.Context, req types.AudioRequest) error
	Mux(ctx context.Context, req types.MuxRequest) error
}
