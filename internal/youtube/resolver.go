package youtube

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/strefethen/harmony-go/internal/apperrors"
	"github.com/strefethen/harmony-go/internal/media"
)

// DefaultMaxDuration rejects anything ten minutes or longer.
const DefaultMaxDuration = 10 * time.Minute

// Resolver turns user text into validated media references and metadata.
type Resolver struct {
	client      *Client
	format      string
	maxDuration time.Duration
	logger      *logrus.Logger
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Format      string        // Optional: defaults to media.DefaultFormat
	MaxDuration time.Duration // Optional: defaults to DefaultMaxDuration
	Logger      *logrus.Logger
}

// NewResolver creates a Resolver backed by the Data API client.
func NewResolver(client *Client, cfg ResolverConfig) *Resolver {
	format := cfg.Format
	if format == "" {
		format = media.DefaultFormat
	}
	maxDuration := cfg.MaxDuration
	if maxDuration == 0 {
		maxDuration = DefaultMaxDuration
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Resolver{
		client:      client,
		format:      format,
		maxDuration: maxDuration,
		logger:      logger,
	}
}

// DirectRef returns the reference named by a URL without any network call.
func (r *Resolver) DirectRef(text string) (media.Ref, bool) {
	id, ok := ExtractVideoID(strings.TrimSpace(text))
	if !ok {
		return media.Ref{}, false
	}
	return media.Ref{Provider: media.ProviderYouTube, ID: id, Format: r.format}, true
}

// ResolveQuery returns the reference for a URL, or searches for the text.
func (r *Resolver) ResolveQuery(ctx context.Context, text string) (media.Ref, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return media.Ref{}, apperrors.NewEmptyQueryError()
	}
	if ref, ok := r.DirectRef(text); ok {
		return ref, nil
	}

	id, err := r.client.SearchVideoID(ctx, text)
	if err != nil {
		return media.Ref{}, err
	}
	if id == "" {
		return media.Ref{}, apperrors.NewNoResultsError(text)
	}

	ref, err := media.NewRef(media.ProviderYouTube, id, r.format)
	if err != nil {
		return media.Ref{}, apperrors.NewUpstreamFormatError(searchSource, err)
	}
	r.logger.WithFields(logrus.Fields{"query": text, "id": id}).Debug("search resolved")
	return ref, nil
}

// Describe fetches metadata for ref and applies the content policy.
func (r *Resolver) Describe(ctx context.Context, ref media.Ref) (media.Metadata, error) {
	video, err := r.client.Video(ctx, ref.ID)
	if err != nil {
		return media.Metadata{}, err
	}
	if video == nil {
		return media.Metadata{}, apperrors.NewInvalidReferenceError(ref.ID)
	}

	if video.LiveBroadcastContent != "none" {
		return media.Metadata{}, apperrors.NewLiveContentError(ref.Link())
	}

	duration, err := ParseDuration(video.Duration)
	if err != nil {
		return media.Metadata{}, apperrors.NewUpstreamFormatError(metadataSource, err)
	}
	if duration >= r.maxDuration {
		return media.Metadata{}, apperrors.NewDurationExceededError(ref.Link(), int(r.maxDuration.Seconds()))
	}

	return media.Metadata{
		Ref:     ref,
		Title:   video.Title,
		Channel: video.Channel,
	}, nil
}
