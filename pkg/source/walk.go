// Package source enumerates repository files from a local tree or a
// downloaded GitHub archive.
package source

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultExcludeDirs are directory names never descended into
var DefaultExcludeDirs = []string{
	// Version control
	".git", ".svn", ".hg",
	// Dependencies
	"node_modules", "vendor", "bower_components", "site-packages",
	// Virtual environments
	".venv", "venv", "__pycache__",
	// Build output and caches
	"dist", "build", "target", ".cache", ".next", ".idea", ".vscode", "coverage",
}

// DefaultExcludeExts are binary or archive extensions that are never read
var DefaultExcludeExts = []string{
	".png", ".jpg", ".jpeg", ".gif", ".ico", ".bmp", ".webp", ".pdf",
	".zip", ".tar", ".gz", ".tgz", ".bz2", ".xz", ".7z", ".jar", ".war",
	".exe", ".dll", ".so", ".dylib", ".a", ".o", ".class", ".pyc", ".wasm",
	".woff", ".woff2", ".ttf", ".eot", ".mp3", ".mp4", ".mov", ".db", ".sqlite",
}

// WalkOptions controls file enumeration
type WalkOptions struct {
	ExcludeDirs []string
	ExcludeExts []string
	// IncludeExts restricts results to these extensions when set.
	IncludeExts []string
	// MaxFiles caps the number of returned paths; zero means no cap.
	MaxFiles int
}

// DefaultWalkOptions returns the stock exclusions
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		ExcludeDirs: DefaultExcludeDirs,
		ExcludeExts: DefaultExcludeExts,
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[strings.ToLower(item)] = true
	}
	return set
}

// Walk returns the regular files under root in lexical order. A missing
// root is logged and yields an empty list.
func Walk(ctx context.Context, root string, opts WalkOptions, logger zerolog.Logger) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn().Str("root", root).Msg("Directory does not exist")
			return []string{}, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	excludeDirs := toSet(opts.ExcludeDirs)
	excludeExts := toSet(opts.ExcludeExts)
	includeExts := toSet(opts.IncludeExts)

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != root && excludeDirs[strings.ToLower(d.Name())] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if excludeExts[ext] {
			return nil
		}
		if len(includeExts) > 0 && !includeExts[ext] {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	if opts.MaxFiles > 0 && len(files) > opts.MaxFiles {
		files = files[:opts.MaxFiles]
	}
	return files, nil
}
