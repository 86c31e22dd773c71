package source

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const githubPrefix = "https://github.com"

// ErrInvalidGitHubURL is returned for URLs outside https://github.com
var ErrInvalidGitHubURL = errors.New("invalid GitHub URL")

// ErrArchiveTooLarge is returned when an archive unpacks to more than the
// fetcher's extraction limit.
var ErrArchiveTooLarge = errors.New("archive exceeds extraction limit")

// DownloadError reports a failed archive download
type DownloadError struct {
	URL        string
	StatusCode int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s failed with status %d", e.URL, e.StatusCode)
}

// ValidateGitHubURL checks that url points at a GitHub repository.
func ValidateGitHubURL(url string) error {
	if !strings.HasPrefix(url, githubPrefix+"/") {
		return fmt.Errorf("%w: %q", ErrInvalidGitHubURL, url)
	}
	rest := strings.Trim(strings.TrimPrefix(url, githubPrefix+"/"), "/")
	if parts := strings.Split(rest, "/"); len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("%w: %q", ErrInvalidGitHubURL, url)
	}
	return nil
}

// ArchiveURL returns the zip download URL for a branch of the repository.
func ArchiveURL(repoURL, branch string) string {
	return fmt.Sprintf("%s/archive/refs/heads/%s.zip", strings.TrimSuffix(strings.TrimSuffix(repoURL, "/"), ".git"), branch)
}

// Project is an unpacked repository archive in a temporary directory
type Project struct {
	URL string
	Ref string
	// Dir is the temporary directory that owns everything on disk.
	Dir string
	// Root is the repository root inside Dir.
	Root string
}

// Cleanup removes the temporary directory.
func (p *Project) Cleanup() error {
	if p == nil || p.Dir == "" {
		return nil
	}
	return os.RemoveAll(p.Dir)
}

// GitHubFetcher downloads and unpacks repository archives
type GitHubFetcher struct {
	client     *http.Client
	branch     string
	maxBytes   int64 // compressed download
	maxExtract int64 // total unpacked bytes
	logger     zerolog.Logger
}

// NewGitHubFetcher creates a fetcher. A nil client gets a 5 minute timeout.
func NewGitHubFetcher(client *http.Client, branch string, logger zerolog.Logger) *GitHubFetcher {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	if branch == "" {
		branch = "main"
	}
	return &GitHubFetcher{
		client:     client,
		branch:     branch,
		maxBytes:   512 << 20,
		maxExtract: 2 << 30,
		logger:     logger.With().Str("component", "github").Logger(),
	}
}

// Fetch downloads the repository archive and unpacks it into a new temp dir.
// The caller owns the returned Project and must call Cleanup.
func (f *GitHubFetcher) Fetch(ctx context.Context, repoURL string) (*Project, error) {
	if err := ValidateGitHubURL(repoURL); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "fastctx-github-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	project := &Project{URL: repoURL, Ref: f.branch, Dir: dir}

	archive := filepath.Join(dir, "archive.zip")
	if err := f.download(ctx, ArchiveURL(repoURL, f.branch), archive); err != nil {
		project.Cleanup()
		return nil, err
	}

	extractDir := filepath.Join(dir, "src")
	if err := unzip(archive, extractDir, f.maxExtract); err != nil {
		project.Cleanup()
		return nil, fmt.Errorf("failed to unpack archive: %w", err)
	}
	os.Remove(archive)

	project.Root = repoRoot(extractDir)
	f.logger.Info().Str("github_url", repoURL).Str("root", project.Root).Msg("Fetched repository")
	return project, nil
}

func (f *GitHubFetcher) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	f.logger.Debug().Str("url", url).Msg("Downloading archive")
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &DownloadError{URL: url, StatusCode: resp.StatusCode}
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	if n > f.maxBytes {
		return fmt.Errorf("archive %s exceeds %d bytes", url, f.maxBytes)
	}
	return nil
}

// unzip extracts archive into dest, refusing entries that escape it and
// stopping once more than limit bytes have been written in total.
func unzip(archive, dest string, limit int64) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	cleanDest := filepath.Clean(dest) + string(os.PathSeparator)
	remaining := limit
	for _, file := range r.File {
		target := filepath.Join(dest, file.Name)
		if !strings.HasPrefix(target, cleanDest) {
			return fmt.Errorf("illegal path in archive: %s", file.Name)
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if !file.Mode().IsRegular() {
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		n, err := extractFile(file, target, remaining)
		if err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}

// extractFile writes at most limit bytes of file to target. Header sizes
// are not trusted; the copy itself is capped.
func extractFile(file *zip.File, target string, limit int64) (int64, error) {
	if file.UncompressedSize64 > uint64(limit) {
		return 0, fmt.Errorf("%w: %s", ErrArchiveTooLarge, file.Name)
	}

	rc, err := file.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(rc, limit+1))
	if err != nil {
		return n, err
	}
	if n > limit {
		return n, fmt.Errorf("%w: %s", ErrArchiveTooLarge, file.Name)
	}
	return n, nil
}

// repoRoot descends into the single top-level directory GitHub archives wrap
// their contents in.
func repoRoot(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 || !entries[0].IsDir() {
		return dir
	}
	return filepath.Join(dir, entries[0].Name())
}
