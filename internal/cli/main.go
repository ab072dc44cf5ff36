package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/forPelevin/kfcut/internal/types"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const longHelp = `Cut [start, end) out of a video. Only the frames between start and the
next keyframe are re-encoded; everything else is stream-copied.

Time tokens (start and end may use different shapes):
  f<N>        frame index, e.g. f120
  p/q         exact seconds as a fraction, e.g. 1001/30
  ss          seconds, e.g. 12.5
  mm:ss       e.g. 1:30
  hh:mm:ss    e.g. 1:02:03.25`

// usageError marks failures that should be followed by the usage text.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if isUsageError(err) {
			fmt.Fprint(os.Stderr, "\n"+root.UsageString())
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cut <start> <end> <input> <output>",
		Short:        "Cut a video range, re-encoding only up to the next keyframe",
		Long:         longHelp,
		Args:         exactArgs(4),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], args[1], args[2], args[3])
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	// Visible flags
	root.Flags().String("workdir", getenvDefault("CUT_WORKDIR", ""), "Parent directory for intermediates (default: system temp dir)")
	root.Flags().String("ffmpeg", getenvDefault("CUT_FFMPEG", "ffmpeg"), "ffmpeg binary")
	root.Flags().String("ffprobe", getenvDefault("CUT_FFPROBE", "ffprobe"), "ffprobe binary")
	root.Flags().BoolP("verbose", "v", false, "Log every stage and engine invocation")
	root.Flags().Bool("progress", stderrIsTerminal(), "Show a stage progress bar on stderr")

	// Hidden tuning flag (internal)
	root.Flags().Int64("epsilon-divisor", 0, "Frame tolerance as 1/N of a frame (default 3)")
	_ = root.Flags().MarkHidden("epsilon-divisor")

	return root
}

func exactArgs(n int) cobra.PositionalArgs {
	check := cobra.ExactArgs(n)
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func isUsageError(err error) bool {
	var ue usageError
	return errors.As(err, &ue) || types.IsUsageError(err)
}
