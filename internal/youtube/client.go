package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/strefethen/harmony-go/internal/apperrors"
)

const (
	// DefaultBaseURL is the YouTube Data API v3 root.
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

	metadataSource = "metadata API"
	searchSource   = "search API"
)

// Client is an HTTP client for the YouTube Data API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	APIKey     string        // Required
	BaseURL    string        // Optional: defaults to DefaultBaseURL
	Timeout    time.Duration // Optional: HTTP timeout, defaults to 10s
	HTTPClient *http.Client  // Optional: overrides Timeout
}

// NewClient creates a new Data API client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
	}
}

// SearchVideoID returns the id of the best matching video, or "" when nothing matched.
func (c *Client) SearchVideoID(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("type", "video")
	params.Set("maxResults", "1")
	params.Set("q", query)

	var response searchResponse
	if err := c.get(ctx, "/search", params, searchSource, &response); err != nil {
		return "", err
	}
	if err := response.validate(); err != nil {
		return "", apperrors.NewUpstreamFormatError(searchSource, err)
	}

	items := *response.Items
	if len(items) == 0 {
		return "", nil
	}
	return items[0].ID.VideoID, nil
}

// VideoInfo is the validated part of a /videos item.
type VideoInfo struct {
	ID                   string
	Title                string
	Channel              string
	LiveBroadcastContent string
	Duration             string // ISO 8601
}

// Video fetches snippet and content details for one id. It returns nil when the id does not exist.
func (c *Client) Video(ctx context.Context, id string) (*VideoInfo, error) {
	params := url.Values{}
	params.Set("part", "contentDetails,snippet")
	params.Set("id", id)

	var response videosResponse
	if err := c.get(ctx, "/videos", params, metadataSource, &response); err != nil {
		return nil, err
	}
	if err := response.validate(); err != nil {
		return nil, apperrors.NewUpstreamFormatError(metadataSource, err)
	}

	items := *response.Items
	if len(items) == 0 {
		return nil, nil
	}
	item := items[0]
	return &VideoInfo{
		ID:                   id,
		Title:                item.Snippet.Title,
		Channel:              item.Snippet.ChannelTitle,
		LiveBroadcastContent: item.Snippet.LiveBroadcastContent,
		Duration:             item.ContentDetails.Duration,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, source string, out any) error {
	params.Set("key", c.apiKey)
	fullURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return apperrors.NewTimeoutError("YouTube "+source, err)
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return apperrors.NewTimeoutError("YouTube "+source, err)
		}
		return apperrors.NewUpstreamUnreachableError("YouTube "+source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		var apiErr apiErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return apperrors.NewUpstreamFormatError(source,
				fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error.Message))
		}
		return apperrors.NewUpstreamFormatError(source, fmt.Errorf("status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewUpstreamFormatError(source, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
