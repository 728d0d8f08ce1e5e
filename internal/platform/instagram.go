package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	config "github.com/relaypost/relaypost/configs"
	"github.com/relaypost/relaypost/internal/models"
)

// InstagramAdapter publishes to the image/video-first provider. A post
// without media is a hard precondition failure. Multi-media posts run the
// three-step container flow: create children, create the carousel parent,
// commit. Nothing is committed if any child creation fails.
type InstagramAdapter struct {
	clientID     string
	clientSecret string
	authBase     string
	apiBase      string
	graphBase    string
	client       *http.Client
}

func NewInstagramAdapter(p config.Provider) *InstagramAdapter {
	return &InstagramAdapter{
		clientID:     p.ClientID,
		clientSecret: p.ClientSecret,
		authBase:     "https://www.instagram.com",
		apiBase:      "https://api.instagram.com",
		graphBase:    "https://graph.instagram.com",
		client:       http.DefaultClient,
	}
}

func (a *InstagramAdapter) Provider() string      { return "instagram" }
func (a *InstagramAdapter) SupportsRefresh() bool { return true }

func (a *InstagramAdapter) AuthorizationURL(redirectURI, state, verifier string) string {
	params := url.Values{}
	params.Add("client_id", a.clientID)
	params.Add("scope", "instagram_business_basic,instagram_business_content_publish")
	params.Add("response_type", "code")
	params.Add("redirect_uri", redirectURI)
	params.Add("state", state)
	return fmt.Sprintf("%s/oauth/authorize?%s", a.authBase, params.Encode())
}

// ExchangeCode trades the authorization code for a short-lived token, then
// immediately exchanges it for the long-lived one the account keeps.
func (a *InstagramAdapter) ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*TokenSet, error) {
	shortLived, err := a.shortLivedToken(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}
	return a.longLivedToken(ctx, shortLived)
}

func (a *InstagramAdapter) shortLivedToken(ctx context.Context, code, redirectURI string) (string, error) {
	data := url.Values{}
	data.Set("client_id", a.clientID)
	data.Set("client_secret", a.clientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", redirectURI)
	data.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, "POST",
		a.apiBase+"/oauth/access_token", strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", &NetworkError{Op: "instagram code exchange", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &OAuthExchangeError{Provider: a.Provider(),
			Err: fmt.Errorf("token endpoint returned status %d", resp.StatusCode)}
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", &OAuthExchangeError{Provider: a.Provider(), Err: err}
	}
	return result.AccessToken, nil
}

func (a *InstagramAdapter) longLivedToken(ctx context.Context, shortLived string) (*TokenSet, error) {
	reqURL := fmt.Sprintf(
		"%s/access_token?grant_type=ig_exchange_token&client_secret=%s&access_token=%s",
		a.graphBase, a.clientSecret, shortLived,
	)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &NetworkError{Op: "instagram long-lived exchange", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &OAuthExchangeError{Provider: a.Provider(),
			Err: fmt.Errorf("long-lived exchange failed: %s (status %d)", body, resp.StatusCode)}
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, &OAuthExchangeError{Provider: a.Provider(), Err: err}
	}

	// The long-lived token refreshes against itself.
	return &TokenSet{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresAt:    expiryFromSeconds(result.ExpiresIn),
	}, nil
}

func (a *InstagramAdapter) FetchProfile(ctx context.Context, ts *TokenSet) (*Profile, error) {
	reqURL := fmt.Sprintf(
		"%s/me?fields=user_id,username,name,profile_picture_url,followers_count,follows_count,media_count&access_token=%s",
		a.graphBase, ts.AccessToken,
	)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &NetworkError{Op: "instagram profile fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProfileFetchError{Provider: a.Provider(),
			Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	var result struct {
		UserID         string `json:"user_id"`
		Username       string `json:"username"`
		Name           string `json:"name"`
		ProfilePicture string `json:"profile_picture_url"`
		Followers      int64  `json:"followers_count"`
		Follows        int64  `json:"follows_count"`
		MediaCount     int64  `json:"media_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, &ProfileFetchError{Provider: a.Provider(), Err: err}
	}

	return &Profile{
		AccountID: result.UserID,
		Username:  result.Username,
		Name:      result.Name,
		Picture:   result.ProfilePicture,
		Followers: result.Followers,
		Following: result.Follows,
		Posts:     result.MediaCount,
	}, nil
}

func (a *InstagramAdapter) Publish(ctx context.Context, ts *TokenSet, post *models.OutboundPost) (*PublishResult, error) {
	if len(post.Media) == 0 {
		return nil, &PublishError{
			Provider:  a.Provider(),
			Reason:    "instagram requires at least one media item",
			Retryable: false,
		}
	}

	profile, err := a.FetchProfile(ctx, ts)
	if err != nil {
		return nil, &PublishError{Provider: a.Provider(), Reason: "account lookup failed", Err: err}
	}
	accountID := profile.AccountID

	var containerID string
	if len(post.Media) == 1 {
		containerID, err = a.createContainer(ctx, ts, accountID, map[string]interface{}{
			mediaURLField(post.Media[0]): post.Media[0].URL,
			"caption":                    post.Text,
		})
	} else {
		containerID, err = a.createCarousel(ctx, ts, accountID, post)
	}
	if err != nil {
		return nil, err
	}

	mediaID, err := a.commitContainer(ctx, ts, accountID, containerID)
	if err != nil {
		return nil, err
	}

	return &PublishResult{
		ProviderPostID: mediaID,
		URL:            fmt.Sprintf("%s/p/%s", a.authBase, mediaID),
	}, nil
}

// createCarousel creates one child container per media item and then the
// parent referencing all children. Any child failure aborts before the
// parent exists, so no partial carousel is ever committed.
func (a *InstagramAdapter) createCarousel(ctx context.Context, ts *TokenSet, accountID string, post *models.OutboundPost) (string, error) {
	childIDs := make([]string, 0, len(post.Media))
	for _, item := range post.Media {
		childID, err := a.createContainer(ctx, ts, accountID, map[string]interface{}{
			mediaURLField(item): item.URL,
			"is_carousel_item":  true,
		})
		if err != nil {
			return "", err
		}
		childIDs = append(childIDs, childID)
	}

	return a.createContainer(ctx, ts, accountID, map[string]interface{}{
		"media_type": "CAROUSEL",
		"caption":    post.Text,
		"children":   childIDs,
	})
}

func (a *InstagramAdapter) createContainer(ctx context.Context, ts *TokenSet, accountID string, payload map[string]interface{}) (string, error) {
	payload["access_token"] = ts.AccessToken

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	reqURL := fmt.Sprintf("%s/v21.0/%s/media", a.graphBase, accountID)
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", &NetworkError{Op: "instagram container create", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &PublishError{
			Provider:  a.Provider(),
			Reason:    fmt.Sprintf("container create returned status %d", resp.StatusCode),
			Retryable: retryableStatus(resp.StatusCode),
		}
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", &PublishError{Provider: a.Provider(), Reason: "malformed container response", Err: err}
	}
	if result.ID == "" {
		return "", &PublishError{Provider: a.Provider(), Reason: "no container id returned"}
	}
	return result.ID, nil
}

func (a *InstagramAdapter) commitContainer(ctx context.Context, ts *TokenSet, accountID, containerID string) (string, error) {
	payload := map[string]string{
		"creation_id":  containerID,
		"access_token": ts.AccessToken,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	reqURL := fmt.Sprintf("%s/v21.0/%s/media_publish", a.graphBase, accountID)
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", &NetworkError{Op: "instagram publish commit", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &PublishError{
			Provider:  a.Provider(),
			Reason:    fmt.Sprintf("publish commit returned status %d", resp.StatusCode),
			Retryable: retryableStatus(resp.StatusCode),
		}
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", &PublishError{Provider: a.Provider(), Reason: "malformed publish response", Err: err}
	}
	if result.ID == "" {
		return "", &PublishError{Provider: a.Provider(), Reason: "no media id returned"}
	}
	return result.ID, nil
}

func (a *InstagramAdapter) FetchAnalytics(ctx context.Context, ts *TokenSet, providerPostID string) (*Metrics, error) {
	reqURL := fmt.Sprintf(
		"%s/%s?fields=like_count,comments_count&access_token=%s",
		a.graphBase, providerPostID, ts.AccessToken,
	)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &NetworkError{Op: "instagram analytics fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instagram analytics returned status %d", resp.StatusCode)
	}

	var result struct {
		Likes    int64 `json:"like_count"`
		Comments int64 `json:"comments_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &Metrics{Likes: result.Likes, Comments: result.Comments}, nil
}

// RefreshToken extends the long-lived token. The refresh credential is the
// current long-lived token itself.
func (a *InstagramAdapter) RefreshToken(ctx context.Context, ts *TokenSet) (*TokenSet, error) {
	reqURL := fmt.Sprintf(
		"%s/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		a.graphBase, ts.RefreshToken,
	)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &NetworkError{Op: "instagram token refresh", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instagram refresh returned status %d", resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &TokenSet{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresAt:    expiryFromSeconds(result.ExpiresIn),
	}, nil
}

func (a *InstagramAdapter) ValidateToken(ctx context.Context, ts *TokenSet) bool {
	_, err := a.FetchProfile(ctx, ts)
	return err == nil
}

func mediaURLField(item models.MediaItem) string {
	if item.MediaType == models.MediaTypeVideo {
		return "video_url"
	}
	return "image_url"
}
