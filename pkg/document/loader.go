// Package document turns files on disk into normalized in-memory documents
// and splits them into chunks for embedding.
package document

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/fastctx/fastctx/pkg/models"
	"github.com/fastctx/fastctx/pkg/source"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoaderConfig sizes the loader
type LoaderConfig struct {
	MaxFileSize int64
	Concurrency int
	Walk        source.WalkOptions
}

// Loader reads files into documents
type Loader struct {
	config LoaderConfig
	logger zerolog.Logger
}

// LoadResult is the outcome of loading a directory
type LoadResult struct {
	Documents []models.Document
	Skipped   int
}

// NewLoader creates a loader with bounded read concurrency
func NewLoader(config LoaderConfig, logger zerolog.Logger) *Loader {
	if config.Concurrency <= 0 {
		config.Concurrency = 16
	}
	return &Loader{
		config: config,
		logger: logger.With().Str("component", "loader").Logger(),
	}
}

// Origin names the source a root belongs to: the repository URL and ref for
// downloaded archives, the absolute directory otherwise.
func Origin(root string, extra map[string]interface{}) string {
	if url, ok := extra[models.MetaGitHubURL].(string); ok && url != "" {
		if ref, ok := extra[models.MetaGitHubRef].(string); ok && ref != "" {
			return url + "@" + ref
		}
		return url
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return filepath.ToSlash(filepath.Clean(root))
}

// DocumentKey joins an origin and a root-relative path.
func DocumentKey(origin, relPath string) string {
	return origin + "#" + relPath
}

// LoadFile reads one file under root. It returns nil without error when the
// file is skipped (too large or not valid UTF-8).
func (l *Loader) LoadFile(ctx context.Context, root, path string) (*models.Document, error) {
	return l.loadFile(ctx, Origin(root, nil), root, path)
}

func (l *Loader) loadFile(ctx context.Context, origin, root, path string) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if l.config.MaxFileSize > 0 && info.Size() > l.config.MaxFileSize {
		l.logger.Warn().Str("path", path).Int64("size", info.Size()).Msg("Skipping file over size limit")
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	if !utf8.Valid(data) {
		l.logger.Warn().Str("path", path).Msg("Could not decode file as UTF-8, skipping")
		return nil, nil
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)

	key := DocumentKey(origin, rel)
	sum := sha256.Sum256(data)
	ext := filepath.Ext(path)
	doc := &models.Document{
		ID:      DocumentID(key),
		Content: string(data),
		Metadata: map[string]interface{}{
			models.MetaFilename:  filepath.Base(path),
			models.MetaSource:    path,
			models.MetaPath:      rel,
			models.MetaKey:       key,
			models.MetaExtension: ext,
			models.MetaLanguage:  LanguageFromExt(ext),
			models.MetaSize:      len(data),
			models.MetaHash:      hex.EncodeToString(sum[:]),
		},
	}

	l.logger.Debug().Str("path", rel).Int("size", len(data)).Msg("Got document")
	return doc, nil
}

// LoadDir loads every eligible file under root. Per-file failures are logged
// and counted as skipped. Extra metadata is merged into every document.
func (l *Loader) LoadDir(ctx context.Context, root string, extra map[string]interface{}) (*LoadResult, error) {
	paths, err := source.Walk(ctx, root, l.config.Walk, l.logger)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	origin := Origin(root, extra)
	docs := make([]*models.Document, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.config.Concurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			doc, err := l.loadFile(gctx, origin, root, path)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				l.logger.Warn().Err(err).Str("path", path).Msg("Failed to read file")
				return nil
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &LoadResult{Documents: make([]models.Document, 0, len(paths))}
	for _, doc := range docs {
		if doc == nil {
			result.Skipped++
			continue
		}
		for k, v := range extra {
			doc.Metadata[k] = v
		}
		result.Documents = append(result.Documents, *doc)
	}

	l.logger.Info().
		Str("root", root).
		Int("documents", len(result.Documents)).
		Int("skipped", result.Skipped).
		Msg("Loaded documents")
	return result, nil
}

// DocumentID derives a stable identifier from a document key.
func DocumentID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}
