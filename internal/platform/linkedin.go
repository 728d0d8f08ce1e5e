package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	config "github.com/relaypost/relaypost/configs"
	"github.com/relaypost/relaypost/internal/models"
)

// Default tags appended to posts that carry no hashtags of their own.
var linkedinDefaultHashtags = []string{"#business", "#professional", "#networking"}

// LinkedInAdapter publishes to the professional-network provider. Tokens
// are long-lived and cannot be refreshed; expiry demands a re-link.
type LinkedInAdapter struct {
	clientID     string
	clientSecret string
	authBase     string
	apiBase      string
	client       *http.Client
}

func NewLinkedInAdapter(p config.Provider) *LinkedInAdapter {
	return &LinkedInAdapter{
		clientID:     p.ClientID,
		clientSecret: p.ClientSecret,
		authBase:     "https://www.linkedin.com",
		apiBase:      "https://api.linkedin.com",
		client:       http.DefaultClient,
	}
}

func (a *LinkedInAdapter) Provider() string      { return "linkedin" }
func (a *LinkedInAdapter) SupportsRefresh() bool { return false }

func (a *LinkedInAdapter) AuthorizationURL(redirectURI, state, verifier string) string {
	params := url.Values{}
	params.Add("response_type", "code")
	params.Add("client_id", a.clientID)
	params.Add("redirect_uri", redirectURI)
	params.Add("state", state)
	params.Add("scope", "openid profile w_member_social")
	return fmt.Sprintf("%s/oauth/v2/authorization?%s", a.authBase, params.Encode())
}

func (a *LinkedInAdapter) ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("client_id", a.clientID)
	data.Set("client_secret", a.clientSecret)
	data.Set("redirect_uri", redirectURI)

	req, err := http.NewRequestWithContext(ctx, "POST",
		a.authBase+"/oauth/v2/accessToken", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &NetworkError{Op: "linkedin code exchange", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &OAuthExchangeError{Provider: a.Provider(),
			Err: fmt.Errorf("token endpoint returned status %d", resp.StatusCode)}
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, &OAuthExchangeError{Provider: a.Provider(), Err: err}
	}

	return &TokenSet{
		AccessToken: result.AccessToken,
		ExpiresAt:   expiryFromSeconds(result.ExpiresIn),
	}, nil
}

func (a *LinkedInAdapter) FetchProfile(ctx context.Context, ts *TokenSet) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", a.apiBase+"/v2/userinfo", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+ts.AccessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &NetworkError{Op: "linkedin profile fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProfileFetchError{Provider: a.Provider(),
			Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	var result struct {
		Sub     string `json:"sub"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, &ProfileFetchError{Provider: a.Provider(), Err: err}
	}

	return &Profile{
		AccountID: result.Sub,
		Username:  result.Email,
		Name:      result.Name,
		Picture:   result.Picture,
	}, nil
}

// OptimizeText appends the default hashtag set only when the text carries
// no hashtags already.
func (a *LinkedInAdapter) OptimizeText(text string) string {
	if strings.Contains(text, "#") {
		return text
	}
	return text + "\n\n" + strings.Join(linkedinDefaultHashtags, " ")
}

func (a *LinkedInAdapter) Publish(ctx context.Context, ts *TokenSet, post *models.OutboundPost) (*PublishResult, error) {
	text := a.OptimizeText(post.Text)

	profile, err := a.FetchProfile(ctx, ts)
	if err != nil {
		return nil, &PublishError{Provider: a.Provider(), Reason: "author lookup failed", Err: err}
	}
	authorURN := "urn:li:person:" + profile.AccountID

	var assetURNs []string
	for _, item := range post.Media {
		assetURN, err := a.uploadAsset(ctx, ts, authorURN, item.URL)
		if err != nil {
			return nil, err
		}
		assetURNs = append(assetURNs, assetURN)
	}

	shareContent := map[string]interface{}{
		"shareCommentary":    map[string]string{"text": text},
		"shareMediaCategory": "NONE",
	}
	if len(assetURNs) > 0 {
		media := make([]map[string]interface{}, len(assetURNs))
		for i, urn := range assetURNs {
			media[i] = map[string]interface{}{
				"status": "READY",
				"media":  urn,
			}
		}
		shareContent["shareMediaCategory"] = "IMAGE"
		shareContent["media"] = media
	}

	payload := map[string]interface{}{
		"author":         authorURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": shareContent,
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.apiBase+"/v2/ugcPosts", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+ts.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &NetworkError{Op: "linkedin post create", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, &PublishError{
			Provider:  a.Provider(),
			Reason:    fmt.Sprintf("ugc post returned status %d", resp.StatusCode),
			Retryable: retryableStatus(resp.StatusCode),
		}
	}

	postID := resp.Header.Get("X-Restli-Id")
	if postID == "" {
		var result struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
			postID = result.ID
		}
	}
	if postID == "" {
		return nil, &PublishError{Provider: a.Provider(), Reason: "no post id returned"}
	}

	return &PublishResult{
		ProviderPostID: postID,
		URL:            fmt.Sprintf("%s/feed/update/%s", a.authBase, postID),
	}, nil
}

// uploadAsset runs the provider's three-step media flow: register the
// upload, PUT the bytes against the returned URL, reference the asset URN.
func (a *LinkedInAdapter) uploadAsset(ctx context.Context, ts *TokenSet, authorURN, mediaURL string) (string, error) {
	registerPayload := map[string]interface{}{
		"registerUploadRequest": map[string]interface{}{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			"owner":   authorURN,
			"serviceRelationships": []map[string]string{{
				"relationshipType": "OWNER",
				"identifier":       "urn:li:userGeneratedContent",
			}},
		},
	}
	body, err := json.Marshal(registerPayload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		a.apiBase+"/v2/assets?action=registerUpload", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+ts.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", &NetworkError{Op: "linkedin upload register", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &PublishError{
			Provider:  a.Provider(),
			Reason:    fmt.Sprintf("upload register returned status %d", resp.StatusCode),
			Retryable: retryableStatus(resp.StatusCode),
		}
	}

	var registered struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism struct {
				Request struct {
					UploadURL string `json:"uploadUrl"`
				} `json:"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&registered); err != nil {
		slog.Info(err.Error())
		return "", &PublishError{Provider: a.Provider(), Reason: "malformed register response", Err: err}
	}

	mediaBytes, err := downloadMedia(ctx, a.client, mediaURL)
	if err != nil {
		return "", err
	}

	putReq, err := http.NewRequestWithContext(ctx, "PUT",
		registered.Value.UploadMechanism.Request.UploadURL, bytes.NewReader(mediaBytes))
	if err != nil {
		return "", err
	}
	putReq.Header.Set("Authorization", "Bearer "+ts.AccessToken)

	putResp, err := a.client.Do(putReq)
	if err != nil {
		slog.Info(err.Error())
		return "", &NetworkError{Op: "linkedin media upload", Err: err}
	}
	defer putResp.Body.Close()

	if putResp.StatusCode != http.StatusCreated && putResp.StatusCode != http.StatusOK {
		return "", &PublishError{
			Provider:  a.Provider(),
			Reason:    fmt.Sprintf("media upload returned status %d", putResp.StatusCode),
			Retryable: retryableStatus(putResp.StatusCode),
		}
	}

	return registered.Value.Asset, nil
}

func (a *LinkedInAdapter) FetchAnalytics(ctx context.Context, ts *TokenSet, providerPostID string) (*Metrics, error) {
	reqURL := fmt.Sprintf("%s/v2/socialActions/%s", a.apiBase, url.PathEscape(providerPostID))
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+ts.AccessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &NetworkError{Op: "linkedin analytics fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("linkedin analytics returned status %d", resp.StatusCode)
	}

	var result struct {
		LikesSummary struct {
			TotalLikes int64 `json:"totalLikes"`
		} `json:"likesSummary"`
		CommentsSummary struct {
			TotalComments int64 `json:"aggregatedTotalComments"`
		} `json:"commentsSummary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &Metrics{
		Likes:    result.LikesSummary.TotalLikes,
		Comments: result.CommentsSummary.TotalComments,
	}, nil
}

func (a *LinkedInAdapter) RefreshToken(ctx context.Context, ts *TokenSet) (*TokenSet, error) {
	return nil, &RefreshUnsupportedError{Provider: a.Provider()}
}

func (a *LinkedInAdapter) ValidateToken(ctx context.Context, ts *TokenSet) bool {
	_, err := a.FetchProfile(ctx, ts)
	return err == nil
}
