package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/harmony-go/internal/apperrors"
	"github.com/strefethen/harmony-go/internal/media"
)

const videoJSON = `{"items":[{"id":"dQw4w9WgXcQ","snippet":{"title":"Lo-Fi Beats","channelTitle":"Chill Channel","liveBroadcastContent":"none"},"contentDetails":{"duration":"PT3M20S"}}]}`

func newTestResolver(t *testing.T, handler http.HandlerFunc) *Resolver {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{APIKey: "test-key", BaseURL: server.URL})
	return NewResolver(client, ResolverConfig{})
}

func staticJSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestResolver_ResolveQuery_DirectURL(t *testing.T) {
	calls := 0
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	ref, err := resolver.ResolveQuery(context.Background(), "https://youtu.be/dQw4w9WgXcQ")

	require.NoError(t, err)
	require.Equal(t, media.Ref{Provider: media.ProviderYouTube, ID: "dQw4w9WgXcQ", Format: "opus"}, ref)
	require.Equal(t, 0, calls)
}

func TestResolver_ResolveQuery_Search(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		query := r.URL.Query()
		require.Equal(t, "video", query.Get("type"))
		require.Equal(t, "1", query.Get("maxResults"))
		require.Equal(t, "lo-fi beats", query.Get("q"))
		require.Equal(t, "test-key", query.Get("key"))
		staticJSON(http.StatusOK, `{"items":[{"id":{"videoId":"dQw4w9WgXcQ"}}]}`)(w, r)
	})

	ref, err := resolver.ResolveQuery(context.Background(), "lo-fi beats")

	require.NoError(t, err)
	require.Equal(t, "dQw4w9WgXcQ", ref.ID)
}

func TestResolver_ResolveQuery_NoResults(t *testing.T) {
	resolver := newTestResolver(t, staticJSON(http.StatusOK, `{"items":[]}`))

	_, err := resolver.ResolveQuery(context.Background(), "nothing matches this")

	require.ErrorIs(t, err, apperrors.ErrNoResults)
	require.Equal(t, apperrors.KindUpstream, apperrors.KindOf(err))
}

func TestResolver_ResolveQuery_Empty(t *testing.T) {
	resolver := newTestResolver(t, staticJSON(http.StatusOK, `{}`))

	_, err := resolver.ResolveQuery(context.Background(), "   ")

	require.ErrorIs(t, err, apperrors.ErrEmptyQuery)
	require.Equal(t, apperrors.KindUserInput, apperrors.KindOf(err))
}

func TestResolver_ResolveQuery_MalformedSearch(t *testing.T) {
	resolver := newTestResolver(t, staticJSON(http.StatusOK, `{"items":[{"id":{}}]}`))

	_, err := resolver.ResolveQuery(context.Background(), "anything")

	require.ErrorIs(t, err, apperrors.ErrUpstreamFormat)
}

func TestResolver_ResolveQuery_SearchReturnsBadID(t *testing.T) {
	resolver := newTestResolver(t, staticJSON(http.StatusOK, `{"items":[{"id":{"videoId":"short"}}]}`))

	_, err := resolver.ResolveQuery(context.Background(), "anything")

	require.ErrorIs(t, err, apperrors.ErrUpstreamFormat)
}

func TestResolver_Describe_Success(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/videos", r.URL.Path)
		require.Equal(t, "contentDetails,snippet", r.URL.Query().Get("part"))
		require.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("id"))
		staticJSON(http.StatusOK, videoJSON)(w, r)
	})
	ref := media.Ref{Provider: media.ProviderYouTube, ID: "dQw4w9WgXcQ", Format: "opus"}

	meta, err := resolver.Describe(context.Background(), ref)

	require.NoError(t, err)
	require.Equal(t, "Lo-Fi Beats", meta.Title)
	require.Equal(t, "Chill Channel", meta.Channel)
	require.Equal(t, ref, meta.Ref)
	require.Equal(t, "Lo-Fi Beats by Chill Channel", media.NewSong(meta).DisplayName)
}

func TestResolver_Describe_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		kind     apperrors.Kind
	}{
		{
			name:     "invalid id",
			status:   http.StatusOK,
			body:     `{"items":[]}`,
			sentinel: apperrors.ErrInvalidReference,
			kind:     apperrors.KindUpstream,
		},
		{
			name:     "livestream",
			status:   http.StatusOK,
			body:     `{"items":[{"snippet":{"title":"t","channelTitle":"c","liveBroadcastContent":"live"},"contentDetails":{"duration":"P0D"}}]}`,
			sentinel: apperrors.ErrLiveContent,
			kind:     apperrors.KindUpstream,
		},
		{
			name:     "upcoming premiere",
			status:   http.StatusOK,
			body:     `{"items":[{"snippet":{"title":"t","channelTitle":"c","liveBroadcastContent":"upcoming"},"contentDetails":{"duration":"PT3M"}}]}`,
			sentinel: apperrors.ErrLiveContent,
			kind:     apperrors.KindUpstream,
		},
		{
			name:     "exactly ten minutes",
			status:   http.StatusOK,
			body:     `{"items":[{"snippet":{"title":"t","channelTitle":"c","liveBroadcastContent":"none"},"contentDetails":{"duration":"PT10M"}}]}`,
			sentinel: apperrors.ErrDurationExceeded,
			kind:     apperrors.KindUpstream,
		},
		{
			name:     "missing snippet",
			status:   http.StatusOK,
			body:     `{"items":[{"contentDetails":{"duration":"PT3M"}}]}`,
			sentinel: apperrors.ErrUpstreamFormat,
			kind:     apperrors.KindUpstream,
		},
		{
			name:     "missing items",
			status:   http.StatusOK,
			body:     `{"kind":"youtube#videoListResponse"}`,
			sentinel: apperrors.ErrUpstreamFormat,
			kind:     apperrors.KindUpstream,
		},
		{
			name:     "bad duration",
			status:   http.StatusOK,
			body:     `{"items":[{"snippet":{"title":"t","channelTitle":"c","liveBroadcastContent":"none"},"contentDetails":{"duration":"three minutes"}}]}`,
			sentinel: apperrors.ErrUpstreamFormat,
			kind:     apperrors.KindUpstream,
		},
		{
			name:     "not json",
			status:   http.StatusOK,
			body:     `<html>`,
			sentinel: apperrors.ErrUpstreamFormat,
			kind:     apperrors.KindUpstream,
		},
		{
			name:     "quota exceeded",
			status:   http.StatusForbidden,
			body:     `{"error":{"code":403,"message":"quotaExceeded"}}`,
			sentinel: apperrors.ErrUpstreamFormat,
			kind:     apperrors.KindUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := newTestResolver(t, staticJSON(tt.status, tt.body))
			ref := media.Ref{Provider: media.ProviderYouTube, ID: "dQw4w9WgXcQ", Format: "opus"}

			_, err := resolver.Describe(context.Background(), ref)

			require.ErrorIs(t, err, tt.sentinel)
			require.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}
}

func TestResolver_Describe_UnderLimit(t *testing.T) {
	resolver := newTestResolver(t, staticJSON(http.StatusOK,
		`{"items":[{"snippet":{"title":"t","channelTitle":"c","liveBroadcastContent":"none"},"contentDetails":{"duration":"PT9M59S"}}]}`))

	_, err := resolver.Describe(context.Background(), media.Ref{ID: "dQw4w9WgXcQ", Format: "opus"})

	require.NoError(t, err)
}

func TestResolver_Describe_Timeout(t *testing.T) {
	release := make(chan struct{})
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := resolver.Describe(ctx, media.Ref{ID: "dQw4w9WgXcQ", Format: "opus"})

	require.ErrorIs(t, err, apperrors.ErrTimeout)
	require.Equal(t, apperrors.KindTransient, apperrors.KindOf(err))
}

func TestResolver_Describe_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	resolver := NewResolver(NewClient(ClientConfig{APIKey: "k", BaseURL: baseURL}), ResolverConfig{})

	_, err := resolver.Describe(context.Background(), media.Ref{ID: "dQw4w9WgXcQ", Format: "opus"})

	require.Error(t, err)
	require.Equal(t, apperrors.KindTransient, apperrors.KindOf(err))
}
