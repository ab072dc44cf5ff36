package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"math/big"
	"os"
	"os/exec"
	"strings"

	"github.com/forPelevin/kfcut/internal/domain/timespec"
	"github.com/forPelevin/kfcut/internal/types"
	"go.uber.org/zap"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
	log     *zap.Logger
}

func New(ffmpegPath, ffprobePath string, logger *zap.Logger) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, log: logger}
}

type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		TimeBase   string `json:"time_base"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration  string `json:"duration"`
		StartTime string `json:"start_time"`
	} `json:"format"`
}

func (a *Adapter) Inspect(ctx context.Context, path string) (types.MediaInfo, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "stream=codec_type,codec_name,time_base,r_frame_rate:format=duration,start_time",
		"-of", "json",
		path,
	}
	a.log.Debug("ffprobe", zap.String("stage", "inspect"), zap.Strings("args", args))
	cmd := exec.CommandContext(ctx, a.ffprobe, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	b, err := cmd.Output()
	if err != nil {
		return types.MediaInfo{}, probeError("ffprobe", err, stderr.String())
	}
	return parseProbe(b)
}

func parseProbe(b []byte) (types.MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return types.MediaInfo{}, fmt.Errorf("%w: decode ffprobe output: %v", types.ErrProbeFailure, err)
	}

	var info types.MediaInfo
	video := -1
	for i, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if video < 0 {
				video = i
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if video < 0 {
		return types.MediaInfo{}, fmt.Errorf("%w: no video stream", types.ErrProbeFailure)
	}
	vs := out.Streams[video]

	if vs.CodecName == "" {
		return types.MediaInfo{}, fmt.Errorf("%w: codec_name missing", types.ErrProbeFailure)
	}
	info.CodecName = vs.CodecName

	tb, err := parseFraction(vs.TimeBase)
	if err != nil || !tb.Valid() {
		return types.MediaInfo{}, fmt.Errorf("%w: time_base %q", types.ErrProbeFailure, vs.TimeBase)
	}
	info.TimeBaseDenominator = tb.Den

	if vs.RFrameRate == "" {
		return types.MediaInfo{}, fmt.Errorf("%w: r_frame_rate missing", types.ErrProbeFailure)
	}
	fps, err := parseFraction(vs.RFrameRate)
	if err != nil || !fps.Valid() {
		return types.MediaInfo{}, fmt.Errorf("%w: r_frame_rate %q", types.ErrProbeFailure, vs.RFrameRate)
	}
	info.FPS = fps

	d, err := parseSeconds(out.Format.Duration)
	if err != nil {
		return types.MediaInfo{}, err
	}
	info.DurationSeconds = d

	// Absent for some containers; treated as zero.
	if st := strings.TrimSpace(out.Format.StartTime); st != "" && st != "N/A" {
		r, ok := new(big.Rat).SetString(st)
		if !ok {
			return types.MediaInfo{}, fmt.Errorf("%w: start_time %q", types.ErrProbeFailure, st)
		}
		info.StartTime = r
	}
	return info, nil
}

// ScanKeyframes decodes only intra frames and reports their best-effort
// presentation timestamps; decode timestamps are often absent.
func (a *Adapter) ScanKeyframes(ctx context.Context, path string) iter.Seq2[*big.Rat, error] {
	return func(yield func(*big.Rat, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		args := []string{
			"-v", "error",
			"-select_streams", "v:0",
			"-skip_frame", "nokey",
			"-show_entries", "frame=best_effort_timestamp_time",
			"-of", "csv=p=0",
			path,
		}
		a.log.Debug("ffprobe", zap.String("stage", "scan-keyframes"), zap.Strings("args", args))
		cmd := exec.CommandContext(ctx, a.ffprobe, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			yield(nil, fmt.Errorf("%w: ffprobe keyframes: %v", types.ErrProbeFailure, err))
			return
		}
		if err := cmd.Start(); err != nil {
			yield(nil, fmt.Errorf("%w: ffprobe keyframes: %v", types.ErrProbeFailure, err))
			return
		}
		stop := func() {
			cancel()
			_ = cmd.Wait()
		}

		sc := bufio.NewScanner(stdout)
		for sc.Scan() {
			line := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(sc.Text()), ","))
			if line == "" || line == "N/A" {
				continue
			}
			ts, ok := new(big.Rat).SetString(line)
			if !ok {
				stop()
				yield(nil, fmt.Errorf("%w: keyframe timestamp %q", types.ErrProbeFailure, line))
				return
			}
			if !yield(ts, nil) {
				stop()
				return
			}
		}
		if err := sc.Err(); err != nil {
			stop()
			yield(nil, fmt.Errorf("%w: read keyframes: %v", types.ErrProbeFailure, err))
			return
		}
		if err := cmd.Wait(); err != nil {
			yield(nil, probeError("ffprobe keyframes", err, stderr.String()))
		}
	}
}

func (a *Adapter) ProbeDuration(ctx context.Context, path string) (*big.Rat, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return nil, probeError("ffprobe duration", err, string(b))
	}
	return parseSeconds(string(b))
}

func (a *Adapter) Copy(ctx context.Context, req types.CopyRequest) error {
	return a.run(ctx, req.Stage,
		"-ss", fmtSeconds(req.Start),
		"-i", req.Input,
		"-t", fmtSeconds(new(big.Rat).Sub(req.End, req.Start)),
		"-map", "0:v:0",
		"-c", "copy",
		"-an",
		req.Output,
	)
}

// Encode seeks coarsely on the input, then trims accurately on the output
// side where timestamps are relative to SeekIn.
func (a *Adapter) Encode(ctx context.Context, req types.EncodeRequest) error {
	args := []string{
		"-ss", fmtSeconds(req.SeekIn),
		"-i", req.Input,
		"-ss", fmtSeconds(req.From),
		"-to", fmtSeconds(req.To),
		"-map", "0:v:0",
		"-c:v", req.Codec,
		"-an",
	}
	if req.Timescale > 0 {
		args = append(args, "-video_track_timescale", fmt.Sprint(req.Timescale))
	}
	args = append(args, req.Output)
	return a.run(ctx, req.Stage, args...)
}

func (a *Adapter) Concat(ctx context.Context, req types.ConcatRequest) error {
	if err := writeConcatList(req.ListFile, req.Inputs); err != nil {
		return &types.EngineError{Stage: req.Stage, ExitCode: -1, Err: err}
	}
	return a.run(ctx, req.Stage,
		"-f", "concat",
		"-safe", "0",
		"-i", req.ListFile,
		"-map", "0",
		"-c", "copy",
		req.Output,
	)
}

func (a *Adapter) ExtractAudio(ctx context.Context, req types.AudioRequest) error {
	return a.run(ctx, req.Stage,
		"-ss", fmtSeconds(req.Start),
		"-i", req.Input,
		"-t", fmtSeconds(req.Duration),
		"-map", "0:a:0",
		"-vn",
		"-c:a", "copy",
		req.Output,
	)
}

func (a *Adapter) Mux(ctx context.Context, req types.MuxRequest) error {
	args := []string{"-i", req.Video}
	if req.Audio != "" {
		args = append(args, "-i", req.Audio)
	}
	args = append(args, "-map", "0:v:0")
	if req.Audio != "" {
		args = append(args, "-map", "1:a:0")
	}
	args = append(args, "-c", "copy", req.Output)
	return a.run(ctx, req.Stage, args...)
}

func (a *Adapter) run(ctx context.Context, stage string, args ...string) error {
	full := append([]string{"-hide_banner", "-nostdin", "-v", "error", "-y"}, args...)
	a.log.Debug("ffmpeg", zap.String("stage", stage), zap.Strings("args", full))
	cmd := exec.CommandContext(ctx, a.ffmpeg, full...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &types.EngineError{Stage: stage, ExitCode: code, Output: string(b), Err: err}
	}
	return nil
}

func writeConcatList(path string, inputs []string) error {
	var b strings.Builder
	for _, in := range inputs {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(in, "'", `'\''`))
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// parseFraction accepts "num/den", an integer, or a decimal. "0/0" is how
// ffprobe reports an unknown rate and yields the zero Fraction.
func parseFraction(s string) (types.Fraction, error) {
	s = strings.TrimSpace(s)
	if s == "0/0" {
		return types.Fraction{}, nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return types.Fraction{}, fmt.Errorf("parse fraction %q", s)
	}
	if !r.Num().IsInt64() || !r.Denom().IsInt64() {
		return types.Fraction{}, fmt.Errorf("fraction %q out of range", s)
	}
	return types.Fraction{Num: r.Num().Int64(), Den: r.Denom().Int64()}, nil
}

func parseSeconds(s string) (*big.Rat, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return nil, fmt.Errorf("%w: duration missing", types.ErrProbeFailure)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() < 0 {
		return nil, fmt.Errorf("%w: parse duration %q", types.ErrProbeFailure, s)
	}
	return r, nil
}

// probeError keeps only the last line of ffprobe's output so failures
// stay on one line.
func probeError(what string, err error, output string) error {
	msg := fmt.Sprintf("%s: %v", what, err)
	out := strings.TrimSpace(output)
	if i := strings.LastIndexByte(out, '\n'); i >= 0 {
		out = strings.TrimSpace(out[i+1:])
	}
	if out != "" {
		msg += ": " + out
	}
	return fmt.Errorf("%w: %s", types.ErrProbeFailure, msg)
}

func fmtSeconds(r *big.Rat) string {
	return timespec.Format(r)
}
