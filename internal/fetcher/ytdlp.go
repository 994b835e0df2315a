package fetcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	"github.com/sirupsen/logrus"

	"github.com/strefethen/harmony-go/internal/media"
)

// YtDlpDownloader downloads and transcodes audio with the yt-dlp binary.
type YtDlpDownloader struct {
	executable string
	logger     *logrus.Logger
}

// NewYtDlpDownloader creates a downloader. An empty executable uses yt-dlp from PATH.
func NewYtDlpDownloader(executable string, logger *logrus.Logger) *YtDlpDownloader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &YtDlpDownloader{executable: executable, logger: logger}
}

// Download extracts the audio track of ref into path. The extension of path selects the codec.
func (d *YtDlpDownloader) Download(ctx context.Context, ref media.Ref, path string) error {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format == "" {
		format = media.DefaultFormat
	}
	template := strings.TrimSuffix(path, filepath.Ext(path)) + ".%(ext)s"

	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		NoPlaylist().
		ForceIPv4().
		Format("bestaudio").
		ExtractAudio().
		AudioFormat(format).
		ForceOverwrites().
		NoMtime().
		Output(template)
	if d.executable != "" {
		cmd.SetExecutable(d.executable)
	}

	res, err := cmd.Run(ctx, ref.Link())
	if err != nil {
		stderr := ""
		if res != nil {
			stderr = strings.TrimSpace(res.Stderr)
		}
		d.logger.WithFields(logrus.Fields{
			"id":     ref.ID,
			"stderr": stderr,
		}).WithError(err).Debug("yt-dlp failed")
		if stderr != "" {
			return fmt.Errorf("yt-dlp: %w: %s", err, stderr)
		}
		return fmt.Errorf("yt-dlp: %w", err)
	}
	return nil
}
