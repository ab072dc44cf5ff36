package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/forPelevin/kfcut/internal/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

func run(cmd *cobra.Command, start, end, input, output string) error {
	workDir, _ := cmd.Flags().GetString("workdir")
	ffmpegPath, _ := cmd.Flags().GetString("ffmpeg")
	ffprobePath, _ := cmd.Flags().GetString("ffprobe")
	verbose, _ := cmd.Flags().GetBool("verbose")
	showProgress, _ := cmd.Flags().GetBool("progress")

	divisor, err := epsilonDivisor(cmd)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	absOut, err := filepath.Abs(output)
	if err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), verbose)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := pipeline.Config{
		Start:  start,
		End:    end,
		Input:  absIn,
		Output: absOut,

		WorkDir:        workDir,
		FFmpegPath:     ffmpegPath,
		FFprobePath:    ffprobePath,
		EpsilonDivisor: divisor,
		Logger:         logger,
	}

	var ui *progressUI
	if showProgress && !verbose {
		ui = newProgressUI(cmd.ErrOrStderr())
		cfg.Observer = ui
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	res, err := pipeline.Run(ctx, cfg)
	if ui != nil {
		ui.Close(err == nil)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Summary())
	return nil
}

// epsilonDivisor resolves the tolerance divisor: flag, then
// CUT_EPSILON_DIVISOR, then the built-in default (0).
func epsilonDivisor(cmd *cobra.Command) (int64, error) {
	if cmd.Flags().Changed("epsilon-divisor") {
		return cmd.Flags().GetInt64("epsilon-divisor")
	}
	v := os.Getenv("CUT_EPSILON_DIVISOR")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("CUT_EPSILON_DIVISOR: %w", err)
	}
	return n, nil
}

// newLogger writes human-readable lines to w. Only warnings show unless
// verbose is set.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core)
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func stderrIsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
