package platform

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	config "github.com/relaypost/relaypost/configs"
	"github.com/relaypost/relaypost/internal/models"
	"golang.org/x/oauth2"
)

const twitterCharLimit = 280

// TwitterAdapter publishes to the character-limited, threadable provider.
// Text over the limit is split into a reply chain; the first segment
// carries the media.
type TwitterAdapter struct {
	clientID     string
	clientSecret string
	authBase     string
	apiBase      string
	uploadBase   string
	client       *http.Client
}

func NewTwitterAdapter(p config.Provider) *TwitterAdapter {
	return &TwitterAdapter{
		clientID:     p.ClientID,
		clientSecret: p.ClientSecret,
		authBase:     "https://twitter.com",
		apiBase:      "https://api.twitter.com",
		uploadBase:   "https://upload.twitter.com",
		client:       http.DefaultClient,
	}
}

func (a *TwitterAdapter) Provider() string      { return "twitter" }
func (a *TwitterAdapter) SupportsRefresh() bool { return true }

func (a *TwitterAdapter) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  a.authBase + "/i/oauth2/authorize",
			TokenURL: a.apiBase + "/2/oauth2/token",
		},
	}
}

// AuthorizationURL carries the PKCE challenge for the given verifier. The
// verifier is minted per authorization and round-trips through the state
// payload to ExchangeCode.
func (a *TwitterAdapter) AuthorizationURL(redirectURI, state, verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	params := url.Values{}
	params.Add("client_id", a.clientID)
	params.Add("scope", "tweet.read tweet.write users.read offline.access")
	params.Add("response_type", "code")
	params.Add("redirect_uri", redirectURI)
	params.Add("state", state)
	params.Add("code_challenge", base64.RawURLEncoding.EncodeToString(sum[:]))
	params.Add("code_challenge_method", "S256")
	return fmt.Sprintf("%s/i/oauth2/authorize?%s", a.authBase, params.Encode())
}

func (a *TwitterAdapter) ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	token, err := a.oauthConfig(redirectURI).Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		slog.Info(err.Error())
		return nil, &OAuthExchangeError{Provider: a.Provider(), Err: err}
	}

	ts := &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		ts.ExpiresAt = &expiry
	}
	return ts, nil
}

func (a *TwitterAdapter) FetchProfile(ctx context.Context, ts *TokenSet) (*Profile, error) {
	reqURL := a.apiBase + "/2/users/me?user.fields=profile_image_url,public_metrics"
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+ts.AccessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &NetworkError{Op: "twitter profile fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProfileFetchError{Provider: a.Provider(),
			Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	var result struct {
		Data struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			Username        string `json:"username"`
			ProfileImageURL string `json:"profile_image_url"`
			PublicMetrics   struct {
				Followers int64 `json:"followers_count"`
				Following int64 `json:"following_count"`
				Tweets    int64 `json:"tweet_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, &ProfileFetchError{Provider: a.Provider(), Err: err}
	}

	return &Profile{
		AccountID: result.Data.ID,
		Username:  result.Data.Username,
		Name:      result.Data.Name,
		Picture:   result.Data.ProfileImageURL,
		Followers: result.Data.PublicMetrics.Followers,
		Following: result.Data.PublicMetrics.Following,
		Posts:     result.Data.PublicMetrics.Tweets,
	}, nil
}

// Publish splits the text into a thread when it exceeds the character
// limit and posts the segments as a reply chain, segment i replying to
// segment i-1. Media is uploaded first and attached to the head tweet.
func (a *TwitterAdapter) Publish(ctx context.Context, ts *TokenSet, post *models.OutboundPost) (*PublishResult, error) {
	segments := SplitThread(post.Text, twitterCharLimit)

	var mediaIDs []string
	for _, item := range post.Media {
		mediaID, err := a.uploadMedia(ctx, ts, item.URL)
		if err != nil {
			return nil, err
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	var headID string
	prevID := ""
	for i, segment := range segments {
		payload := map[string]interface{}{
			"text": segment,
		}
		if i == 0 && len(mediaIDs) > 0 {
			payload["media"] = map[string]interface{}{"media_ids": mediaIDs}
		}
		if prevID != "" {
			payload["reply"] = map[string]interface{}{"in_reply_to_tweet_id": prevID}
		}

		tweetID, err := a.createTweet(ctx, ts, payload)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			headID = tweetID
		}
		prevID = tweetID
	}

	return &PublishResult{
		ProviderPostID: headID,
		URL:            fmt.Sprintf("%s/i/status/%s", a.authBase, headID),
	}, nil
}

func (a *TwitterAdapter) createTweet(ctx context.Context, ts *TokenSet, payload map[string]interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.apiBase+"/2/tweets", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+ts.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", &NetworkError{Op: "tweet create", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", &PublishError{
			Provider:  a.Provider(),
			Reason:    fmt.Sprintf("tweet create returned status %d", resp.StatusCode),
			Retryable: retryableStatus(resp.StatusCode),
		}
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", &PublishError{Provider: a.Provider(), Reason: "malformed tweet response", Err: err}
	}
	if result.Data.ID == "" {
		return "", &PublishError{Provider: a.Provider(), Reason: "no tweet id returned"}
	}
	return result.Data.ID, nil
}

func (a *TwitterAdapter) uploadMedia(ctx context.Context, ts *TokenSet, mediaURL string) (string, error) {
	mediaBytes, err := downloadMedia(ctx, a.client, mediaURL)
	if err != nil {
		return "", err
	}

	data := url.Values{}
	data.Set("media_data", base64.StdEncoding.EncodeToString(mediaBytes))

	req, err := http.NewRequestWithContext(ctx, "POST",
		a.uploadBase+"/1.1/media/upload.json", strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+ts.AccessToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", &NetworkError{Op: "twitter media upload", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &PublishError{
			Provider:  a.Provider(),
			Reason:    fmt.Sprintf("media upload returned status %d", resp.StatusCode),
			Retryable: retryableStatus(resp.StatusCode),
		}
	}

	var result struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", &PublishError{Provider: a.Provider(), Reason: "malformed upload response", Err: err}
	}
	return result.MediaIDString, nil
}

func (a *TwitterAdapter) FetchAnalytics(ctx context.Context, ts *TokenSet, providerPostID string) (*Metrics, error) {
	reqURL := fmt.Sprintf("%s/2/tweets/%s?tweet.fields=public_metrics", a.apiBase, providerPostID)
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+ts.AccessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &NetworkError{Op: "twitter analytics fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("twitter analytics returned status %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Data struct {
			PublicMetrics struct {
				Likes       int64 `json:"like_count"`
				Replies     int64 `json:"reply_count"`
				Retweets    int64 `json:"retweet_count"`
				Impressions int64 `json:"impression_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &Metrics{
		Likes:       result.Data.PublicMetrics.Likes,
		Comments:    result.Data.PublicMetrics.Replies,
		Shares:      result.Data.PublicMetrics.Retweets,
		Impressions: result.Data.PublicMetrics.Impressions,
	}, nil
}

func (a *TwitterAdapter) RefreshToken(ctx context.Context, ts *TokenSet) (*TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	src := a.oauthConfig("").TokenSource(ctx, &oauth2.Token{RefreshToken: ts.RefreshToken})

	token, err := src.Token()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	fresh := &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = ts.RefreshToken
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		fresh.ExpiresAt = &expiry
	}
	return fresh, nil
}

func (a *TwitterAdapter) ValidateToken(ctx context.Context, ts *TokenSet) bool {
	_, err := a.FetchProfile(ctx, ts)
	return err == nil
}

func downloadMedia(ctx context.Context, client *http.Client, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", mediaURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &NetworkError{Op: "media download", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
