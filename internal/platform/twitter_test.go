package platform

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	config "github.com/relaypost/relaypost/configs"
	"github.com/relaypost/relaypost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTwitterAdapter(server *httptest.Server) *TwitterAdapter {
	a := NewTwitterAdapter(config.Provider{ClientID: "cid", ClientSecret: "secret"})
	a.authBase = server.URL
	a.apiBase = server.URL
	a.uploadBase = server.URL
	a.client = server.Client()
	return a
}

func TestTwitterPublishSingleTweet(t *testing.T) {
	var created []map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/tweets", r.URL.Path)
		require.Equal(t, "Bearer token123", r.Header.Get("Authorization"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		created = append(created, payload)

		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"data":{"id":"tw-%d"}}`, len(created))
	}))
	defer server.Close()

	a := newTestTwitterAdapter(server)
	ts := &TokenSet{AccessToken: "token123"}

	result, err := a.Publish(context.Background(), ts, &models.OutboundPost{Text: "short post"})
	require.NoError(t, err)

	assert.Equal(t, "tw-1", result.ProviderPostID)
	assert.Contains(t, result.URL, "/i/status/tw-1")
	require.Len(t, created, 1)
	assert.Equal(t, "short post", created[0]["text"])
	assert.NotContains(t, created[0], "reply")
}

func TestTwitterPublishThreadChainsReplies(t *testing.T) {
	var created []map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		created = append(created, payload)

		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"data":{"id":"tw-%d"}}`, len(created))
	}))
	defer server.Close()

	a := newTestTwitterAdapter(server)
	ts := &TokenSet{AccessToken: "token123"}

	longText := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	result, err := a.Publish(context.Background(), ts, &models.OutboundPost{Text: longText})
	require.NoError(t, err)

	require.Greater(t, len(created), 1)
	assert.Equal(t, "tw-1", result.ProviderPostID)

	// head has no reply field, every follower replies to its predecessor
	assert.NotContains(t, created[0], "reply")
	for i := 1; i < len(created); i++ {
		reply, ok := created[i]["reply"].(map[string]interface{})
		require.True(t, ok, "segment %d missing reply field", i)
		assert.Equal(t, fmt.Sprintf("tw-%d", i), reply["in_reply_to_tweet_id"])
	}

	n := len(created)
	for i, payload := range created {
		text := payload["text"].(string)
		assert.True(t, strings.HasSuffix(text, fmt.Sprintf("(%d/%d)", i+1, n)))
	}
}

func TestTwitterPublishAttachesMediaToHeadOnly(t *testing.T) {
	var created []map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media.jpg":
			w.Write([]byte("jpegbytes"))
		case "/1.1/media/upload.json":
			require.NotEmpty(t, r.FormValue("media_data"))
			fmt.Fprint(w, `{"media_id_string":"m-1"}`)
		case "/2/tweets":
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			created = append(created, payload)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"data":{"id":"tw-%d"}}`, len(created))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	a := newTestTwitterAdapter(server)
	ts := &TokenSet{AccessToken: "token123"}

	longText := strings.Repeat("words and more words ", 30)
	post := &models.OutboundPost{
		Text:  longText,
		Media: []models.MediaItem{{MediaType: models.MediaTypeImage, URL: server.URL + "/media.jpg"}},
	}

	_, err := a.Publish(context.Background(), ts, post)
	require.NoError(t, err)
	require.Greater(t, len(created), 1)

	media, ok := created[0]["media"].(map[string]interface{})
	require.True(t, ok, "head tweet missing media")
	assert.Equal(t, []interface{}{"m-1"}, media["media_ids"])
	for i := 1; i < len(created); i++ {
		assert.NotContains(t, created[i], "media")
	}
}

func TestTwitterPublishRateLimitIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	a := newTestTwitterAdapter(server)
	_, err := a.Publish(context.Background(), &TokenSet{AccessToken: "t"}, &models.OutboundPost{Text: "hi"})

	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestTwitterPublishBadRequestIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	a := newTestTwitterAdapter(server)
	_, err := a.Publish(context.Background(), &TokenSet{AccessToken: "t"}, &models.OutboundPost{Text: "hi"})

	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestTwitterFetchAnalytics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/tweets/tw-9", r.URL.Path)
		fmt.Fprint(w, `{"data":{"public_metrics":{"like_count":12,"reply_count":3,"retweet_count":4,"impression_count":1500}}}`)
	}))
	defer server.Close()

	a := newTestTwitterAdapter(server)
	metrics, err := a.FetchAnalytics(context.Background(), &TokenSet{AccessToken: "t"}, "tw-9")
	require.NoError(t, err)

	assert.Equal(t, int64(12), metrics.Likes)
	assert.Equal(t, int64(3), metrics.Comments)
	assert.Equal(t, int64(4), metrics.Shares)
	assert.Equal(t, int64(1500), metrics.Impressions)
}

func TestTwitterAuthorizationURL(t *testing.T) {
	a := NewTwitterAdapter(config.Provider{ClientID: "cid"})

	u := a.AuthorizationURL("https://app.example.com/cb", "state-token", "the-verifier")
	assert.Contains(t, u, "client_id=cid")
	assert.Contains(t, u, "state=state-token")
	assert.Contains(t, u, "response_type=code")

	// the challenge is derived from the caller's verifier, not a fixed
	// value
	sum := sha256.Sum256([]byte("the-verifier"))
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "S256", parsed.Query().Get("code_challenge_method"))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), parsed.Query().Get("code_challenge"))

	other := a.AuthorizationURL("https://app.example.com/cb", "state-token", "another-verifier")
	otherParsed, err := url.Parse(other)
	require.NoError(t, err)
	assert.NotEqual(t, parsed.Query().Get("code_challenge"), otherParsed.Query().Get("code_challenge"))
}
