package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	config "github.com/relaypost/relaypost/configs"
	"github.com/relaypost/relaypost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTiktokAdapter(server *httptest.Server) *TiktokAdapter {
	a := NewTiktokAdapter(config.Provider{ClientID: "key", ClientSecret: "secret"})
	a.authBase = server.URL
	a.apiBase = server.URL
	a.client = server.Client()
	return a
}

func TestTiktokPublishRejectsZeroMedia(t *testing.T) {
	a := NewTiktokAdapter(config.Provider{})

	_, err := a.Publish(context.Background(), &TokenSet{AccessToken: "t"}, &models.OutboundPost{Text: "no media"})
	require.Error(t, err)

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.False(t, pubErr.Retryable)
}

func TestTiktokPublishVideoRunsCreatorInfoPreflight(t *testing.T) {
	var calls []string
	var initPayload map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		switch r.URL.Path {
		case "/v2/post/publish/creator_info/query/":
			fmt.Fprint(w, `{"data":{}}`)
		case "/v2/post/publish/video/init/":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&initPayload))
			fmt.Fprint(w, `{"data":{"publish_id":"pub-1"}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	a := newTestTiktokAdapter(server)
	post := &models.OutboundPost{
		Text:  "my video",
		Media: []models.MediaItem{{MediaType: models.MediaTypeVideo, URL: "https://cdn.example.com/v.mp4"}},
	}

	result, err := a.Publish(context.Background(), &TokenSet{AccessToken: "t"}, post)
	require.NoError(t, err)

	assert.Equal(t, "pub-1", result.ProviderPostID)
	assert.Equal(t, []string{"/v2/post/publish/creator_info/query/", "/v2/post/publish/video/init/"}, calls)

	source := initPayload["source_info"].(map[string]interface{})
	assert.Equal(t, "PULL_FROM_URL", source["source"])
	assert.Equal(t, "https://cdn.example.com/v.mp4", source["video_url"])
	info := initPayload["post_info"].(map[string]interface{})
	assert.Equal(t, "my video", info["title"])
}

func TestTiktokPublishPhotosUsesContentInit(t *testing.T) {
	var initPayload map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/post/publish/creator_info/query/":
			fmt.Fprint(w, `{"data":{}}`)
		case "/v2/post/publish/content/init/":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&initPayload))
			fmt.Fprint(w, `{"data":{"publish_id":"pub-2"}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	a := newTestTiktokAdapter(server)
	post := &models.OutboundPost{
		Text: "my photos",
		Media: []models.MediaItem{
			{MediaType: models.MediaTypeImage, URL: "https://cdn.example.com/1.jpg"},
			{MediaType: models.MediaTypeImage, URL: "https://cdn.example.com/2.jpg"},
		},
	}

	result, err := a.Publish(context.Background(), &TokenSet{AccessToken: "t"}, post)
	require.NoError(t, err)
	assert.Equal(t, "pub-2", result.ProviderPostID)

	assert.Equal(t, "PHOTO", initPayload["media_type"])
	source := initPayload["source_info"].(map[string]interface{})
	assert.Equal(t, []interface{}{"https://cdn.example.com/1.jpg", "https://cdn.example.com/2.jpg"}, source["photo_images"])
}

func TestTiktokPreflightFailureAbortsPublish(t *testing.T) {
	initCalls := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/post/publish/creator_info/query/":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			initCalls++
		}
	}))
	defer server.Close()

	a := newTestTiktokAdapter(server)
	post := &models.OutboundPost{
		Media: []models.MediaItem{{MediaType: models.MediaTypeVideo, URL: "https://cdn.example.com/v.mp4"}},
	}

	_, err := a.Publish(context.Background(), &TokenSet{AccessToken: "t"}, post)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 0, initCalls)
}

func TestTiktokRefreshTokenKeepsOldRefreshWhenOmitted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/oauth/token/", r.URL.Path)
		require.Equal(t, "refresh_token", r.FormValue("grant_type"))
		require.Equal(t, "old-refresh", r.FormValue("refresh_token"))
		fmt.Fprint(w, `{"access_token":"new-access","expires_in":86400}`)
	}))
	defer server.Close()

	a := newTestTiktokAdapter(server)
	fresh, err := a.RefreshToken(context.Background(), &TokenSet{RefreshToken: "old-refresh"})
	require.NoError(t, err)

	assert.Equal(t, "new-access", fresh.AccessToken)
	assert.Equal(t, "old-refresh", fresh.RefreshToken)
	require.NotNil(t, fresh.ExpiresAt)
}

func TestTiktokRevokeToken(t *testing.T) {
	revoked := false

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/oauth/revoke/", r.URL.Path)
		require.Equal(t, "the-token", r.FormValue("token"))
		revoked = true
	}))
	defer server.Close()

	a := newTestTiktokAdapter(server)
	require.NoError(t, a.RevokeToken(context.Background(), &TokenSet{AccessToken: "the-token"}))
	assert.True(t, revoked)
}

func TestTiktokAdapterImplementsTokenRevoker(t *testing.T) {
	var adapter Adapter = NewTiktokAdapter(config.Provider{})
	_, ok := adapter.(TokenRevoker)
	assert.True(t, ok)
}
