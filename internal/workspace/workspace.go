// Package workspace owns every on-disk artifact of a single cut run.
//
// Intermediates live in a private directory whose name, like every file in
// it, carries the process id. The final output is written to a staging file
// beside its destination and renamed into place by Commit, so a failed run
// never leaves a partial output behind.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Workspace struct {
	dir    string
	prefix string
	staged map[string]struct{}
	closed bool
}

// New creates the run directory under base (os.TempDir() when empty).
func New(base string) (*Workspace, error) {
	if base == "" {
		base = os.TempDir()
	}
	prefix := fmt.Sprintf("kfcut-%d", os.Getpid())
	dir, err := os.MkdirTemp(base, prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir, prefix: prefix, staged: map[string]struct{}{}}, nil
}

func (w *Workspace) Dir() string { return w.dir }

// Path names an intermediate artifact. ext includes the leading dot.
func (w *Workspace) Path(name, ext string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s%s", w.prefix, name, ext))
}

// Stage returns the staging path for dst. It keeps dst's extension so the
// engine picks the same container.
func (w *Workspace) Stage(dst string) string {
	base := filepath.Base(dst)
	ext := filepath.Ext(base)
	name := fmt.Sprintf(".%s.%s.partial%s", strings.TrimSuffix(base, ext), w.prefix, ext)
	p := filepath.Join(filepath.Dir(dst), name)
	w.staged[p] = struct{}{}
	return p
}

// Commit moves a staged file onto dst, replacing it.
func (w *Workspace) Commit(staged, dst string) error {
	if _, ok := w.staged[staged]; !ok {
		return fmt.Errorf("commit %q: not staged by this workspace", staged)
	}
	if err := os.Rename(staged, dst); err != nil {
		return fmt.Errorf("publish output: %w", err)
	}
	delete(w.staged, staged)
	return nil
}

// Discard removes intermediates that later stages no longer need.
func (w *Workspace) Discard(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if filepath.Dir(p) != w.dir {
			errs = append(errs, fmt.Errorf("discard %q: outside workspace", p))
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close removes the run directory and any uncommitted staging files.
// It is safe to call more than once.
func (w *Workspace) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var errs []error
	for p := range w.staged {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	w.staged = map[string]struct{}{}
	if err := os.RemoveAll(w.dir); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
