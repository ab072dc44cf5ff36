package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forPelevin/kfcut/internal/ports"
	"github.com/forPelevin/kfcut/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/kfcut/internal/usecase"
	"go.uber.org/zap"
)

type Config struct {
	Start  string
	End    string
	Input  string
	Output string

	// WorkDir is the parent directory for per-run intermediates.
	// If empty, defaults to os.TempDir().
	WorkDir string

	FFmpegPath  string
	FFprobePath string

	// EpsilonDivisor sets the frame tolerance to 1/divisor of a frame.
	// Zero selects the default of 3.
	EpsilonDivisor int64

	Logger   *zap.Logger
	Observer usecase.Observer
}

func (c Config) Validate() error {
	if c.Input == "" {
		return errors.New("input is empty")
	}
	fi, err := os.Stat(c.Input)
	if err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("input %s is a directory", c.Input)
	}
	if c.Output == "" {
		return errors.New("output is empty")
	}
	if same, err := samePath(c.Input, c.Output); err != nil {
		return err
	} else if same {
		return errors.New("output must differ from input")
	}
	if err := requireDir(filepath.Dir(c.Output), "output directory"); err != nil {
		return err
	}
	if c.WorkDir != "" {
		if err := requireDir(c.WorkDir, "workdir"); err != nil {
			return err
		}
	}
	if c.EpsilonDivisor < 0 {
		return fmt.Errorf("epsilon divisor must not be negative, got %d", c.EpsilonDivisor)
	}
	return nil
}

func Run(ctx context.Context, cfg Config) (usecase.Result, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// adapters
	v := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath, logger)

	uc := usecase.New(usecase.Deps{
		Inspector: v,
		Engine:    v,
	})

	logger.Info("cutting",
		zap.String("input", cfg.Input),
		zap.String("start", cfg.Start),
		zap.String("end", cfg.End),
		zap.String("output", cfg.Output),
	)
	return uc.Run(ctx, usecase.Input{
		Start:          cfg.Start,
		End:            cfg.End,
		InputPath:      cfg.Input,
		OutputPath:     cfg.Output,
		WorkDir:        cfg.WorkDir,
		EpsilonDivisor: cfg.EpsilonDivisor,
		Logger:         logger,
		Observer:       cfg.Observer,
	})
}

func requireDir(p, what string) error {
	fi, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("stat %s: %w", what, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s %s is not a directory", what, p)
	}
	return nil
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	if absA == absB {
		return true, nil
	}
	fa, errA := os.Stat(absA)
	fb, errB := os.Stat(absB)
	if errA != nil || errB != nil {
		return false, nil
	}
	return os.SameFile(fa, fb), nil
}

// ensure adapters implement ports
var _ ports.Inspector = (*ffmpeg.Adapter)(nil)
var _ ports.Engine = (*ffmpeg.Adapter)(nil)
