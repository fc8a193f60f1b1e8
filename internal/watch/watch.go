// Package watch re-runs the pipeline whenever an input file changes.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cired/directory/internal/sources"
	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/logging"
)

// DefaultDebounce is the quiet period after the last event before a run.
const DefaultDebounce = 500 * time.Millisecond

// RunFunc executes one pipeline run.
type RunFunc func(ctx context.Context) error

// Watcher observes the directories holding input files.
type Watcher struct {
	patterns []string
	run      RunFunc
	debounce time.Duration
	ignore   []string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIgnore leaves out events under dirs, typically the output directory
// the run writes into.
func WithIgnore(dirs ...string) Option {
	return func(w *Watcher) {
		for _, dir := range dirs {
			if dir != "" {
				w.ignore = append(w.ignore, dir)
			}
		}
	}
}

// New creates a watcher calling run for changes to files matched by patterns.
func New(patterns []string, run RunFunc, opts ...Option) *Watcher {
	w := &Watcher{patterns: patterns, run: run, debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run performs an initial run, then one run per burst of changes until ctx
// is cancelled. Failed runs are logged and watching continues.
func (w *Watcher) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapIO("watch", "", err)
	}
	defer watcher.Close()

	for _, root := range sources.Roots(w.patterns) {
		if err := w.addRecursive(watcher, root); err != nil {
			return err
		}
	}

	w.execute(ctx)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if sources.Skipped(w.ignore, event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(watcher, event.Name); err != nil {
						logger.Warn().Err(err).Str("path", event.Name).Msg("Could not watch new directory")
					}
					continue
				}
			}
			if event.Has(fsnotify.Chmod) || !sources.Match(w.patterns, event.Name) {
				continue
			}
			logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("Input changed")
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("Watcher error")

		case <-timer.C:
			w.execute(ctx)
		}
	}
}

func (w *Watcher) execute(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := w.run(ctx); err != nil {
		logging.FromContext(ctx).Error().Err(err).Msg("Run failed")
	}
}

// addRecursive watches dir and every directory below it, ignored ones
// excepted.
func (w *Watcher) addRecursive(watcher *fsnotify.Watcher, dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if sources.Skipped(w.ignore, path) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		return errors.WrapIO("watch", dir, err)
	}
	return nil
}
