package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	config "github.com/relaypost/relaypost/configs"
	"github.com/relaypost/relaypost/internal/models"
)

// TiktokAdapter publishes to the short-video provider. Media sources are
// pulled by the provider from their URLs, so nothing is uploaded inline.
type TiktokAdapter struct {
	clientKey    string
	clientSecret string
	authBase     string
	apiBase      string
	client       *http.Client
}

func NewTiktokAdapter(p config.Provider) *TiktokAdapter {
	return &TiktokAdapter{
		clientKey:    p.ClientID,
		clientSecret: p.ClientSecret,
		authBase:     "https://www.tiktok.com",
		apiBase:      "https://open.tiktokapis.com",
		client:       http.DefaultClient,
	}
}

func (a *TiktokAdapter) Provider() string      { return "tiktok" }
func (a *TiktokAdapter) SupportsRefresh() bool { return true }

func (a *TiktokAdapter) AuthorizationURL(redirectURI, state, verifier string) string {
	params := url.Values{}
	params.Add("client_key", a.clientKey)
	params.Add("scope", "user.info.basic,user.info.profile,user.info.stats,video.publish,video.upload")
	params.Add("response_type", "code")
	params.Add("redirect_uri", redirectURI)
	params.Add("state", state)
	return fmt.Sprintf("%s/v2/auth/authorize?%s", a.authBase, params.Encode())
}

func (a *TiktokAdapter) ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*TokenSet, error) {
	data := url.Values{}
	data.Add("client_key", a.clientKey)
	data.Add("client_secret", a.clientSecret)
	data.Add("code", code)
	data.Add("grant_type", "authorization_code")
	data.Add("redirect_uri", redirectURI)

	ts, err := a.tokenRequest(ctx, data)
	if err != nil {
		var ne *NetworkError
		if errors.As(err, &ne) {
			return nil, err
		}
		return nil, &OAuthExchangeError{Provider: a.Provider(), Err: err}
	}
	return ts, nil
}

func (a *TiktokAdapter) tokenRequest(ctx context.Context, data url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, "POST",
		a.apiBase+"/v2/oauth/token/", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &NetworkError{Op: "tiktok token request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var result struct {
		AccessToken      string `json:"access_token"`
		RefreshToken     string `json:"refresh_token"`
		ExpiresIn        int64  `json:"expires_in"`
		RefreshExpiresIn int64  `json:"refresh_expires_in"`
		OpenID           string `json:"open_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &TokenSet{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    expiryFromSeconds(result.ExpiresIn),
	}, nil
}

func (a *TiktokAdapter) FetchProfile(ctx context.Context, ts *TokenSet) (*Profile, error) {
	reqURL := a.apiBase + "/v2/user/info/?fields=open_id,avatar_url,display_name,username,follower_count,following_count,video_count"
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+ts.AccessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &NetworkError{Op: "tiktok profile fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProfileFetchError{Provider: a.Provider(),
			Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	var result struct {
		Data struct {
			User struct {
				OpenID      string `json:"open_id"`
				AvatarURL   string `json:"avatar_url"`
				DisplayName string `json:"display_name"`
				Username    string `json:"username"`
				Followers   int64  `json:"follower_count"`
				Following   int64  `json:"following_count"`
				Videos      int64  `json:"video_count"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, &ProfileFetchError{Provider: a.Provider(), Err: err}
	}

	user := result.Data.User
	return &Profile{
		AccountID: user.OpenID,
		Username:  user.Username,
		Name:      user.DisplayName,
		Picture:   user.AvatarURL,
		Followers: user.Followers,
		Following: user.Following,
		Posts:     user.Videos,
	}, nil
}

func (a *TiktokAdapter) Publish(ctx context.Context, ts *TokenSet, post *models.OutboundPost) (*PublishResult, error) {
	if len(post.Media) == 0 {
		return nil, &PublishError{
			Provider:  a.Provider(),
			Reason:    "tiktok requires at least one media item",
			Retryable: false,
		}
	}

	if err := a.queryCreatorInfo(ctx, ts); err != nil {
		return nil, err
	}

	primary := post.Media[0]
	if primary.MediaType == models.MediaTypeVideo {
		return a.publishVideo(ctx, ts, post, primary.URL)
	}
	return a.publishPhotos(ctx, ts, post)
}

// queryCreatorInfo is the provider-mandated preflight before any publish
// init call.
func (a *TiktokAdapter) queryCreatorInfo(ctx context.Context, ts *TokenSet) error {
	req, err := http.NewRequestWithContext(ctx, "POST",
		a.apiBase+"/v2/post/publish/creator_info/query/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+ts.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return &NetworkError{Op: "tiktok creator info query", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &PublishError{
			Provider:  a.Provider(),
			Reason:    fmt.Sprintf("creator info query returned status %d", resp.StatusCode),
			Retryable: retryableStatus(resp.StatusCode),
		}
	}
	return nil
}

func (a *TiktokAdapter) publishVideo(ctx context.Context, ts *TokenSet, post *models.OutboundPost, videoURL string) (*PublishResult, error) {
	payload := map[string]interface{}{
		"post_info": map[string]interface{}{
			"title":                    post.Text,
			"privacy_level":            "PUBLIC_TO_EVERYONE",
			"disable_duet":             false,
			"disable_comment":          false,
			"disable_stitch":           false,
			"video_cover_timestamp_ms": 1000,
		},
		"source_info": map[string]interface{}{
			"source":    "PULL_FROM_URL",
			"video_url": videoURL,
		},
	}
	return a.publishInit(ctx, ts, "/v2/post/publish/video/init/", payload)
}

func (a *TiktokAdapter) publishPhotos(ctx context.Context, ts *TokenSet, post *models.OutboundPost) (*PublishResult, error) {
	photos := make([]string, 0, len(post.Media))
	for _, item := range post.Media {
		photos = append(photos, item.URL)
	}

	payload := map[string]interface{}{
		"post_info": map[string]interface{}{
			"title":          post.Text,
			"privacy_level":  "PUBLIC_TO_EVERYONE",
			"auto_add_music": true,
		},
		"source_info": map[string]interface{}{
			"source":            "PULL_FROM_URL",
			"photo_cover_index": 0,
			"photo_images":      photos,
		},
		"post_mode":  "DIRECT_POST",
		"media_type": "PHOTO",
	}
	return a.publishInit(ctx, ts, "/v2/post/publish/content/init/", payload)
}

func (a *TiktokAdapter) publishInit(ctx context.Context, ts *TokenSet, path string, payload map[string]interface{}) (*PublishResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.apiBase+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+ts.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &NetworkError{Op: "tiktok publish init", Err: err}
	}
	defer resp.Body.Close()

	var result struct {
		Data struct {
			PublishID string `json:"publish_id"`
		} `json:"data"`
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, &PublishError{Provider: a.Provider(), Reason: "malformed publish response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &PublishError{
			Provider:  a.Provider(),
			Reason:    fmt.Sprintf("publish init returned status %d: %s", resp.StatusCode, result.Error.Message),
			Retryable: retryableStatus(resp.StatusCode),
		}
	}
	if result.Data.PublishID == "" {
		return nil, &PublishError{Provider: a.Provider(), Reason: "no publish id returned"}
	}

	return &PublishResult{ProviderPostID: result.Data.PublishID}, nil
}

func (a *TiktokAdapter) FetchAnalytics(ctx context.Context, ts *TokenSet, providerPostID string) (*Metrics, error) {
	payload := map[string]interface{}{
		"filters": map[string]interface{}{
			"video_ids": []string{providerPostID},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	reqURL := a.apiBase + "/v2/video/query/?fields=like_count,comment_count,share_count,view_count"
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+ts.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &NetworkError{Op: "tiktok analytics fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tiktok analytics returned status %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Videos []struct {
				Likes    int64 `json:"like_count"`
				Comments int64 `json:"comment_count"`
				Shares   int64 `json:"share_count"`
				Views    int64 `json:"view_count"`
			} `json:"videos"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if len(result.Data.Videos) == 0 {
		return &Metrics{}, nil
	}

	v := result.Data.Videos[0]
	return &Metrics{
		Likes:       v.Likes,
		Comments:    v.Comments,
		Shares:      v.Shares,
		Impressions: v.Views,
	}, nil
}

func (a *TiktokAdapter) RefreshToken(ctx context.Context, ts *TokenSet) (*TokenSet, error) {
	data := url.Values{}
	data.Set("client_key", a.clientKey)
	data.Set("client_secret", a.clientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", ts.RefreshToken)

	fresh, err := a.tokenRequest(ctx, data)
	if err != nil {
		return nil, err
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = ts.RefreshToken
	}
	return fresh, nil
}

func (a *TiktokAdapter) ValidateToken(ctx context.Context, ts *TokenSet) bool {
	_, err := a.FetchProfile(ctx, ts)
	return err == nil
}

// RevokeToken is a best-effort disconnect courtesy call.
func (a *TiktokAdapter) RevokeToken(ctx context.Context, ts *TokenSet) error {
	data := url.Values{}
	data.Set("client_key", a.clientKey)
	data.Set("client_secret", a.clientSecret)
	data.Set("token", ts.AccessToken)

	req, err := http.NewRequestWithContext(ctx, "POST",
		a.apiBase+"/v2/oauth/revoke/", strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to revoke token, status code: %d", resp.StatusCode)
	}
	return nil
}
