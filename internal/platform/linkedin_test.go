package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	config "github.com/relaypost/relaypost/configs"
	"github.com/relaypost/relaypost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLinkedInAdapter(server *httptest.Server) *LinkedInAdapter {
	a := NewLinkedInAdapter(config.Provider{ClientID: "cid", ClientSecret: "secret"})
	a.authBase = server.URL
	a.apiBase = server.URL
	a.client = server.Client()
	return a
}

func TestLinkedInOptimizeTextAddsDefaultHashtags(t *testing.T) {
	a := NewLinkedInAdapter(config.Provider{})

	got := a.OptimizeText("plain announcement")
	assert.Contains(t, got, "plain announcement")
	assert.Contains(t, got, "#business")
	assert.Contains(t, got, "#professional")
	assert.Contains(t, got, "#networking")
}

func TestLinkedInOptimizeTextKeepsExistingHashtags(t *testing.T) {
	a := NewLinkedInAdapter(config.Provider{})

	text := "launch day #golang"
	assert.Equal(t, text, a.OptimizeText(text))
}

func TestLinkedInPublishTextOnly(t *testing.T) {
	var ugcPayload map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/userinfo":
			fmt.Fprint(w, `{"sub":"abc123","name":"Pat","email":"pat@example.com"}`)
		case "/v2/ugcPosts":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&ugcPayload))
			w.Header().Set("X-Restli-Id", "urn:li:share:42")
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	a := newTestLinkedInAdapter(server)
	result, err := a.Publish(context.Background(), &TokenSet{AccessToken: "t"}, &models.OutboundPost{Text: "hello network"})
	require.NoError(t, err)

	assert.Equal(t, "urn:li:share:42", result.ProviderPostID)
	assert.Equal(t, "urn:li:person:abc123", ugcPayload["author"])

	specific := ugcPayload["specificContent"].(map[string]interface{})
	share := specific["com.linkedin.ugc.ShareContent"].(map[string]interface{})
	commentary := share["shareCommentary"].(map[string]interface{})
	assert.Contains(t, commentary["text"], "#business")
	assert.Equal(t, "NONE", share["shareMediaCategory"])
}

func TestLinkedInPublishRunsThreeStepMediaFlow(t *testing.T) {
	var steps []string
	var uploadedBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/userinfo":
			fmt.Fprint(w, `{"sub":"abc123"}`)
		case r.URL.Path == "/media.png":
			steps = append(steps, "download")
			w.Write([]byte("pngbytes"))
		case r.URL.Path == "/v2/assets":
			steps = append(steps, "register")
			fmt.Fprintf(w, `{"value":{"asset":"urn:li:digitalmediaAsset:a1","uploadMechanism":{"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest":{"uploadUrl":"%s/upload-here"}}}}`, "http://"+r.Host)
		case r.URL.Path == "/upload-here":
			require.Equal(t, "PUT", r.Method)
			steps = append(steps, "put")
			uploadedBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusCreated)
		case r.URL.Path == "/v2/ugcPosts":
			steps = append(steps, "post")
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			specific := payload["specificContent"].(map[string]interface{})
			share := specific["com.linkedin.ugc.ShareContent"].(map[string]interface{})
			assert.Equal(t, "IMAGE", share["shareMediaCategory"])
			media := share["media"].([]interface{})
			first := media[0].(map[string]interface{})
			assert.Equal(t, "urn:li:digitalmediaAsset:a1", first["media"])
			w.Header().Set("X-Restli-Id", "urn:li:share:43")
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	a := newTestLinkedInAdapter(server)
	post := &models.OutboundPost{
		Text:  "with image #tagged",
		Media: []models.MediaItem{{MediaType: models.MediaTypeImage, URL: server.URL + "/media.png"}},
	}

	result, err := a.Publish(context.Background(), &TokenSet{AccessToken: "t"}, post)
	require.NoError(t, err)

	assert.Equal(t, "urn:li:share:43", result.ProviderPostID)
	assert.Equal(t, []string{"register", "download", "put", "post"}, steps)
	assert.Equal(t, "pngbytes", string(uploadedBody))
}

func TestLinkedInRefreshUnsupported(t *testing.T) {
	a := NewLinkedInAdapter(config.Provider{})
	require.False(t, a.SupportsRefresh())

	_, err := a.RefreshToken(context.Background(), &TokenSet{RefreshToken: "r"})
	require.Error(t, err)

	var unsupported *RefreshUnsupportedError
	assert.ErrorAs(t, err, &unsupported)
}

func TestLinkedInExchangeCodeSetsExpiry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/v2/accessToken", r.URL.Path)
		require.Equal(t, "authorization_code", r.FormValue("grant_type"))
		fmt.Fprint(w, `{"access_token":"at","expires_in":5184000}`)
	}))
	defer server.Close()

	a := newTestLinkedInAdapter(server)
	ts, err := a.ExchangeCode(context.Background(), "code", "https://app.example.com/cb", "")
	require.NoError(t, err)

	assert.Equal(t, "at", ts.AccessToken)
	assert.Empty(t, ts.RefreshToken)
	require.NotNil(t, ts.ExpiresAt)
}
