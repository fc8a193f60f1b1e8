// Package sources discovers collector files from glob patterns.
package sources

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cired/directory/internal/sources/local"
	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/sources"
)

// Discover expands patterns (with ** support) into one local source per
// regular file, sorted by path. A file matched by several patterns is read
// once. Files below any of the skip directories are left out.
func Discover(patterns []string, skip ...string) ([]sources.Source, error) {
	paths, err := Files(patterns, skip...)
	if err != nil {
		return nil, err
	}
	out := make([]sources.Source, len(paths))
	for i, path := range paths {
		out[i] = local.New(local.WithPath(path))
	}
	return out, nil
}

// Files expands patterns into the sorted list of matching regular files,
// leaving out files below the skip directories.
func Files(patterns []string, skip ...string) ([]string, error) {
	var paths []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePathPattern(pattern) {
			return nil, errors.NewValidationError("inputs", pattern, "invalid glob pattern")
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, errors.WrapIO("glob", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, errors.WrapIO("stat", m, err)
			}
			if info.Mode().IsRegular() && !Skipped(skip, m) {
				paths = append(paths, filepath.Clean(m))
			}
		}
	}
	slices.Sort(paths)
	return slices.Compact(paths), nil
}

// Match reports whether path is matched by any pattern.
func Match(patterns []string, path string) bool {
	path = filepath.Clean(path)
	for _, pattern := range patterns {
		if ok, err := doublestar.PathMatch(filepath.Clean(pattern), path); err == nil && ok {
			return true
		}
	}
	return false
}

// Within reports whether path is dir itself or lies below it. An empty dir
// contains nothing.
func Within(dir, path string) bool {
	if dir == "" {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Skipped reports whether path lies within any of dirs.
func Skipped(dirs []string, path string) bool {
	return slices.ContainsFunc(dirs, func(dir string) bool {
		return Within(dir, path)
	})
}

// Roots returns the static directory prefix of each pattern, the directories
// a watcher has to observe.
func Roots(patterns []string) []string {
	var roots []string
	for _, pattern := range patterns {
		base, _ := doublestar.SplitPattern(filepath.ToSlash(pattern))
		roots = append(roots, filepath.FromSlash(base))
	}
	slices.Sort(roots)
	return slices.Compact(roots)
}
