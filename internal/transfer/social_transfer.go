package transfer

import "github.com/relaypost/relaypost/internal/platform"

// StatePayload is what an OAuth state token resolves to in the cache. The
// token binds one in-flight authorization to a user, provider and
// redirect; the provider callback itself only carries code and state, so
// everything else the exchange needs lives here.
type StatePayload struct {
	UserID       int64  `json:"user_id"`
	Provider     string `json:"provider"`
	RedirectURI  string `json:"redirect_uri"`
	CodeVerifier string `json:"code_verifier"`
}

type MediaInput struct {
	Type    string `json:"type"`
	URL     string `json:"url"`
	AltText string `json:"altText"`
}

type OutboundPostInput struct {
	Text          string       `json:"text"`
	Title         string       `json:"title"`
	SourceID      string       `json:"sourceContentId"`
	Media         []MediaInput `json:"media"`
	ScheduledTime string       `json:"scheduledTime"`
	Timezone      string       `json:"timezone"`
}

type PublishRequest struct {
	Post             OutboundPostInput `json:"outboundPost"`
	TargetAccountIDs []int64           `json:"targetAccountIds"`
}

// PerAccountResult is one entry of a fan-out publish, independently
// success or failure.
type PerAccountResult struct {
	AccountID      int64  `json:"accountId"`
	Provider       string `json:"provider"`
	Success        bool   `json:"success"`
	ProviderPostID string `json:"providerPostId,omitempty"`
	URL            string `json:"url,omitempty"`
	Error          string `json:"error,omitempty"`
}

type PublishSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type AccountSettingsRequest struct {
	AutoPost       *bool   `json:"autoPost"`
	ContentFilters *string `json:"contentFilters"`
}

type AnalyticsSummary struct {
	Totals     platform.Metrics            `json:"totals"`
	ByProvider map[string]platform.Metrics `json:"byProvider"`
	PostCount  int                         `json:"postCount"`
}
