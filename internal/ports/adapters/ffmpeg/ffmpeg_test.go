package ffmpeg

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/forPelevin/kfcut/internal/types"
)

func TestParseProbe(t *testing.T) {
	in := `{
  "streams": [
    {"codec_type": "audio", "codec_name": "aac", "time_base": "1/48000", "r_frame_rate": "0/0"},
    {"codec_type": "video", "codec_name": "h264", "time_base": "1/15360", "r_frame_rate": "30000/1001"}
  ],
  "format": {"duration": "10.010000"}
}`
	info, err := parseProbe([]byte(in))
	if err != nil {
		t.Fatal(err)
	}
	if info.CodecName != "h264" {
		t.Fatalf("codec = %q", info.CodecName)
	}
	if info.TimeBaseDenominator != 15360 {
		t.Fatalf("time base den = %d", info.TimeBaseDenominator)
	}
	if info.FPS != (types.Fraction{Num: 30000, Den: 1001}) {
		t.Fatalf("fps = %s", info.FPS)
	}
	if info.DurationSeconds.Cmp(big.NewRat(1001, 100)) != 0 {
		t.Fatalf("duration = %s", info.DurationSeconds.RatString())
	}
	if !info.HasAudio {
		t.Fatalf("expected audio stream to be detected")
	}
}

func TestParseProbe_Failures(t *testing.T) {
	tests := map[string]string{
		"not json":       `nope`,
		"no video":       `{"streams":[{"codec_type":"audio","codec_name":"aac"}],"format":{"duration":"1"}}`,
		"no codec":       `{"streams":[{"codec_type":"video","time_base":"1/90000","r_frame_rate":"25/1"}],"format":{"duration":"1"}}`,
		"no time base":   `{"streams":[{"codec_type":"video","codec_name":"h264","r_frame_rate":"25/1"}],"format":{"duration":"1"}}`,
		"no frame rate":  `{"streams":[{"codec_type":"video","codec_name":"h264","time_base":"1/90000"}],"format":{"duration":"1"}}`,
		"no duration":    `{"streams":[{"codec_type":"video","codec_name":"h264","time_base":"1/90000","r_frame_rate":"25/1"}],"format":{}}`,
		"duration is NA": `{"streams":[{"codec_type":"video","codec_name":"h264","time_base":"1/90000","r_frame_rate":"25/1"}],"format":{"duration":"N/A"}}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseProbe([]byte(in))
			if !errors.Is(err, types.ErrProbeFailure) {
				t.Fatalf("err = %v, want probe failure", err)
			}
		})
	}
}

func TestParseProbe_UnknownRateIsProbeFailure(t *testing.T) {
	in := `{"streams":[{"codec_type":"video","codec_name":"h264","time_base":"1/90000","r_frame_rate":"0/0"}],"format":{"duration":"3"}}`
	_, err := parseProbe([]byte(in))
	if !errors.Is(err, types.ErrProbeFailure) {
		t.Fatalf("err = %v, want probe failure", err)
	}
	if types.IsUsageError(err) {
		t.Fatalf("an unreadable frame rate must not be reported as a usage error")
	}
}

func TestParseProbe_StartTime(t *testing.T) {
	tests := map[string]*big.Rat{
		`"1.400000"`: big.NewRat(7, 5),
		`"N/A"`:      nil,
		`""`:         nil,
	}
	for raw, want := range tests {
		t.Run(raw, func(t *testing.T) {
			in := `{"streams":[{"codec_type":"video","codec_name":"h264","time_base":"1/90000","r_frame_rate":"25/1"}],` +
				`"format":{"duration":"3","start_time":` + raw + `}}`
			info, err := parseProbe([]byte(in))
			if err != nil {
				t.Fatal(err)
			}
			if want == nil {
				if info.StartTime != nil {
					t.Fatalf("start time = %s, want unset", info.StartTime.RatString())
				}
				return
			}
			if info.StartTime == nil || info.StartTime.Cmp(want) != 0 {
				t.Fatalf("start time = %v, want %s", info.StartTime, want.RatString())
			}
		})
	}
}

func TestParseFraction(t *testing.T) {
	tests := map[string]types.Fraction{
		"30000/1001": {Num: 30000, Den: 1001},
		"25":         {Num: 25, Den: 1},
		"50/2":       {Num: 25, Den: 1},
		"0/0":        {},
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := parseFraction(in)
			if err != nil {
				t.Fatal(err)
			}
			if got != want {
				t.Fatalf("parseFraction(%q) = %s, want %s", in, got, want)
			}
		})
	}
	if _, err := parseFraction("abc"); err == nil {
		t.Fatalf("expected error for garbage")
	}
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.txt")
	if err := writeConcatList(list, []string{"/tmp/a.mp4", "/tmp/it's.mp4"}); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(list)
	if err != nil {
		t.Fatal(err)
	}
	want := "file '/tmp/a.mp4'\nfile '/tmp/it'\\''s.mp4'\n"
	if string(b) != want {
		t.Fatalf("list = %q, want %q", string(b), want)
	}
}

// fakeTool writes an executable shell script standing in for ffmpeg/ffprobe.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	p := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRun_EngineErrorCarriesStageAndStatus(t *testing.T) {
	a := New(fakeTool(t, `echo "Invalid data found" >&2; exit 3`), "", nil)
	err := a.Copy(context.Background(), types.CopyRequest{
		Stage:  "copy",
		Input:  "in.mp4",
		Start:  big.NewRat(4, 1),
		End:    big.NewRat(6, 1),
		Output: "out.mp4",
	})
	if !errors.Is(err, types.ErrEngineFailure) {
		t.Fatalf("err = %v, want engine failure", err)
	}
	var ee *types.EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *EngineError, got %T", err)
	}
	if ee.Stage != "copy" || ee.ExitCode != 3 {
		t.Fatalf("stage=%q exit=%d", ee.Stage, ee.ExitCode)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected tool output in error, got %q", err.Error())
	}
}

func TestEncode_Args(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	a := New(fakeTool(t, `printf '%s\n' "$@" > `+argsFile), "", nil)
	err := a.Encode(context.Background(), types.EncodeRequest{
		Stage:     "encode-head",
		Input:     "in.mp4",
		SeekIn:    big.NewRat(2, 1),
		From:      big.NewRat(1, 1),
		To:        new(big.Rat).Sub(big.NewRat(2, 1), big.NewRat(1, 90)),
		Codec:     "h264",
		Timescale: 15360,
		Output:    "head.mp4",
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Join(strings.Fields(string(b)), " ")
	want := "-hide_banner -nostdin -v error -y -ss 2 -i in.mp4 -ss 1 -to 1.9888888889 -map 0:v:0 -c:v h264 -an -video_track_timescale 15360 head.mp4"
	if got != want {
		t.Fatalf("args:\n got %s\nwant %s", got, want)
	}
}

func TestScanKeyframes(t *testing.T) {
	probe := fakeTool(t, `printf '0.000000\n2.002000,\nN/A\n4.004000\n'`)
	a := New("", probe, nil)
	var got []string
	for ts, err := range a.ScanKeyframes(context.Background(), "in.mp4") {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, ts.RatString())
	}
	want := []string{"0", "1001/500", "1001/250"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("keyframes = %v, want %v", got, want)
	}
}

func TestScanKeyframes_EarlyStop(t *testing.T) {
	probe := fakeTool(t, `i=0; while [ $i -lt 100000 ]; do echo "$i.0"; i=$((i+1)); done`)
	a := New("", probe, nil)
	n := 0
	for _, err := range a.ScanKeyframes(context.Background(), "in.mp4") {
		if err != nil {
			t.Fatal(err)
		}
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Fatalf("consumed %d, want 3", n)
	}
}

func TestScanKeyframes_ProbeExitIsFailure(t *testing.T) {
	probe := fakeTool(t, `echo "0.0"; echo "moov atom not found" >&2; exit 1`)
	a := New("", probe, nil)
	var last error
	for _, err := range a.ScanKeyframes(context.Background(), "in.mp4") {
		last = err
	}
	if !errors.Is(last, types.ErrProbeFailure) {
		t.Fatalf("err = %v, want probe failure", last)
	}
}

func TestInspect_FailureIsOneLine(t *testing.T) {
	probe := fakeTool(t, `printf 'first line\nin.mp4: Invalid data found when processing input\n' >&2; exit 1`)
	a := New("", probe, nil)
	_, err := a.Inspect(context.Background(), "in.mp4")
	if !errors.Is(err, types.ErrProbeFailure) {
		t.Fatalf("err = %v, want probe failure", err)
	}
	msg := err.Error()
	if strings.Contains(msg, "\n") {
		t.Fatalf("error spans lines: %q", msg)
	}
	if !strings.Contains(msg, "Invalid data found") || strings.Contains(msg, "first line") {
		t.Fatalf("expected only the last output line, got %q", msg)
	}
}
