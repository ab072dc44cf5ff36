package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTimeFormat = errors.New("invalid time format")
	ErrMissingFrameRate  = errors.New("missing frame rate")
	ErrProbeFailure      = errors.New("probe failure")
	ErrEmptyRange        = errors.New("empty range")
	ErrNoKeyframeFound   = errors.New("no keyframe found")
	ErrEngineFailure     = errors.New("engine failure")
)

// EngineError is returned when an engine invocation exits unsuccessfully.
type EngineError struct {
	Stage    string
	ExitCode int
	Output   string
	Err      error
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("%s: stage %q failed (exit status %d)", ErrEngineFailure, e.Stage, e.ExitCode)
	if e.Err != nil && e.ExitCode < 0 {
		msg = fmt.Sprintf("%s: stage %q failed: %v", ErrEngineFailure, e.Stage, e.Err)
	}
	if tail := lastLine(e.Output); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *EngineError) Unwrap() error { return e.Err }

func (e *EngineError) Is(target error) bool { return target == ErrEngineFailure }

// IsUsageError reports whether err stems from user input rather than the
// environment.
func IsUsageError(err error) bool {
	return errors.Is(err, ErrInvalidTimeFormat) ||
		errors.Is(err, ErrMissingFrameRate) ||
		errors.Is(err, ErrEmptyRange) ||
		errors.Is(err, ErrNoKeyframeFound)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
