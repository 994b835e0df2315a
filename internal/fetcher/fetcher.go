package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/strefethen/harmony-go/internal/apperrors"
	"github.com/strefethen/harmony-go/internal/filerefs"
	"github.com/strefethen/harmony-go/internal/media"
)

const (
	// DefaultPrefix starts every temp file name the fetcher writes.
	DefaultPrefix = "harmony"
	// DefaultTimeout bounds a single download.
	DefaultTimeout = 2 * time.Minute
)

// Downloader writes the audio for ref to path.
type Downloader interface {
	Download(ctx context.Context, ref media.Ref, path string) error
}

// Fetcher materializes media into the temp directory and registers every file it creates.
type Fetcher struct {
	downloader Downloader
	refs       *filerefs.Manager
	tempDir    string
	prefix     string
	timeout    time.Duration
	logger     *logrus.Logger
}

// Config configures a Fetcher.
type Config struct {
	TempDir string        // Optional: defaults to os.TempDir()
	Prefix  string        // Optional: defaults to DefaultPrefix
	Timeout time.Duration // Optional: defaults to DefaultTimeout
	Logger  *logrus.Logger
}

// New creates a Fetcher.
func New(downloader Downloader, refs *filerefs.Manager, cfg Config) *Fetcher {
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Fetcher{
		downloader: downloader,
		refs:       refs,
		tempDir:    tempDir,
		prefix:     prefix,
		timeout:    timeout,
		logger:     logger,
	}
}

// PathFor returns the deterministic temp path for ref.
func (f *Fetcher) PathFor(ref media.Ref) string {
	format := ref.Format
	if format == "" {
		format = media.DefaultFormat
	}
	name := fmt.Sprintf("%s-%s-%s.%s", f.prefix, ref.Provider, ref.ID, format)
	return filepath.Join(f.tempDir, name)
}

// TempDir is the directory files are written to.
func (f *Fetcher) TempDir() string {
	return f.tempDir
}

// Prefix is the file name prefix shared by every file this fetcher writes.
func (f *Fetcher) Prefix() string {
	return f.prefix
}

// Materialize downloads ref and registers the resulting file with one reference.
//
// The path is reserved with the reference manager for the whole download so nothing
// else deletes it before it is registered. If the path is already registered the file
// is reused without downloading and the duplicate is returned together with the path,
// so the caller can report the accounting problem and still play.
func (f *Fetcher) Materialize(ctx context.Context, ref media.Ref) (string, error) {
	path := f.PathFor(ref)
	log := f.logger.WithFields(logrus.Fields{"ref": ref.String(), "path": path})

	if err := f.refs.Reserve(path); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateReference) {
			log.WithError(err).Error("file is already registered")
			return path, err
		}
		return "", apperrors.NewFetchFailedError(ref.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	started := time.Now()

	if err := f.downloader.Download(ctx, ref, path); err != nil {
		f.refs.Abandon(path)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperrors.NewTimeoutError("Download", err)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", apperrors.NewShuttingDownError()
		}
		log.WithError(err).Warn("download failed")
		return "", apperrors.NewFetchFailedError(ref.ID, err)
	}

	if _, err := os.Stat(path); err != nil {
		f.refs.Abandon(path)
		log.WithError(err).Warn("downloader reported success but produced no file")
		return "", apperrors.NewFetchFailedError(ref.ID, err)
	}

	if err := f.refs.Commit(path); err != nil {
		log.WithError(err).Error("download reservation was lost")
		return "", err
	}

	log.WithField("elapsed", time.Since(started).Round(time.Millisecond)).Info("media fetched")
	return path, nil
}

// Release drops the caller's reference to path.
func (f *Fetcher) Release(path string) error {
	return f.refs.RemoveReference(path)
}
