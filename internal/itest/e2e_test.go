//go:build integration

package itest

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forPelevin/kfcut/internal/pipeline"
	"github.com/forPelevin/kfcut/internal/types"
)

func TestE2E_Cases(t *testing.T) {
	tmp := t.TempDir()
	withAudio := makeFixture(t, tmp, true)
	videoOnly := makeFixture(t, tmp, false)

	cases := []struct {
		name       string
		input      string
		start, end string
		wantCase   types.CutCase
		wantFrames int
		wantAudio  bool
	}{
		{"split gop", withAudio, "3", "5", types.SplitGOP, 60, true},
		{"on keyframe", withAudio, "4", "6", types.OnKeyframe, 60, true},
		{"single gop", withAudio, "2.5", "3.5", types.SingleGOP, 30, true},
		{"frame tokens", withAudio, "f0", "f45", types.OnKeyframe, 45, true},
		{"mixed tokens", withAudio, "0:03", "150/30", types.SplitGOP, 60, true},
		{"video only", videoOnly, "3", "5", types.SplitGOP, 60, false},
		{"clamped end", videoOnly, "7", "999", types.SplitGOP, 90, false},
		{"whole file by frames", videoOnly, "f0", "f300", types.OnKeyframe, fixtureFPS * fixtureSeconds, false},
		{"clamped far end", withAudio, "5", "999999", types.SplitGOP, 150, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			work := t.TempDir()
			outDir := t.TempDir()
			out := filepath.Join(outDir, "cut.mp4")

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			cfg := pipeline.Config{
				Start:       tc.start,
				End:         tc.end,
				Input:       tc.input,
				Output:      out,
				WorkDir:     work,
				FFmpegPath:  "ffmpeg",
				FFprobePath: "ffprobe",
			}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("config: %v", err)
			}
			res, err := pipeline.Run(ctx, cfg)
			if err != nil {
				t.Fatalf("pipeline failed: %v", err)
			}
			if res.Plan.Case != tc.wantCase {
				t.Fatalf("case = %s, want %s", res.Plan.Case, tc.wantCase)
			}

			frames, err := countVideoFrames(out)
			if err != nil {
				t.Fatal(err)
			}
			if frames != tc.wantFrames {
				t.Fatalf("frames = %d, want %d", frames, tc.wantFrames)
			}

			dur, err := probeDurationSeconds(out)
			if err != nil {
				t.Fatal(err)
			}
			want := float64(tc.wantFrames) / fixtureFPS
			if math.Abs(dur-want) > 1.0/fixtureFPS {
				t.Fatalf("duration = %.4f, want %.4f", dur, want)
			}

			audio, err := hasAudioStream(out)
			if err != nil {
				t.Fatal(err)
			}
			if audio != tc.wantAudio {
				t.Fatalf("audio stream present = %v, want %v", audio, tc.wantAudio)
			}

			assertEmptyDir(t, work)
			assertOnlyFile(t, outDir, "cut.mp4")
		})
	}
}

func TestE2E_NoKeyframeAfterStart(t *testing.T) {
	tmp := t.TempDir()
	in := makeFixture(t, tmp, false)
	work := t.TempDir()
	out := filepath.Join(tmp, "cut.mp4")

	_, err := pipeline.Run(context.Background(), pipeline.Config{
		Start:       "9",
		End:         "10",
		Input:       in,
		Output:      out,
		WorkDir:     work,
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
	})
	// The last keyframe sits at 8s.
	if !errors.Is(err, types.ErrNoKeyframeFound) {
		t.Fatalf("expected no keyframe error, got %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output must not exist after failure: %v", err)
	}
	assertEmptyDir(t, work)
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected %s to be empty, found %v", dir, names)
	}
}

func assertOnlyFile(t *testing.T, dir, name string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != name {
		t.Fatalf("expected only %s in %s, got %d entries", name, dir, len(entries))
	}
}
