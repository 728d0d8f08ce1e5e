package platform

import (
	"context"
	"sort"
	"time"

	"github.com/relaypost/relaypost/internal/models"
)

// TokenSet carries one linked account's provider credentials in plaintext.
// Encryption at rest is the caller's responsibility.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenSecret  string
	ExpiresAt    *time.Time
}

type Profile struct {
	AccountID string
	Username  string
	Name      string
	Picture   string
	Followers int64
	Following int64
	Posts     int64
}

type PublishResult struct {
	ProviderPostID string
	URL            string
}

type Metrics struct {
	Likes       int64 `json:"likes"`
	Comments    int64 `json:"comments"`
	Shares      int64 `json:"shares"`
	Impressions int64 `json:"impressions"`
}

// Adapter encapsulates one provider's authorization, content transform,
// publish and analytics behavior. Implementations are stateless; all
// account state is passed in through the TokenSet.
type Adapter interface {
	Provider() string

	// SupportsRefresh reports whether the provider issues refreshable
	// tokens. When false, RefreshToken always fails with
	// RefreshUnsupportedError.
	SupportsRefresh() bool

	// AuthorizationURL is pure construction, no I/O. verifier is the
	// per-authorization PKCE code verifier; providers without PKCE
	// ignore it.
	AuthorizationURL(redirectURI, state, verifier string) string

	ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*TokenSet, error)

	FetchProfile(ctx context.Context, ts *TokenSet) (*Profile, error)

	// Publish applies the provider-specific content transform and
	// publishes. The media order of the post is significant: the first
	// item is the primary attachment.
	Publish(ctx context.Context, ts *TokenSet, post *models.OutboundPost) (*PublishResult, error)

	// FetchAnalytics is best effort; callers treat failures as a zeroed
	// snapshot rather than propagating them.
	FetchAnalytics(ctx context.Context, ts *TokenSet, providerPostID string) (*Metrics, error)

	RefreshToken(ctx context.Context, ts *TokenSet) (*TokenSet, error)

	// ValidateToken is a cheap liveness check.
	ValidateToken(ctx context.Context, ts *TokenSet) bool
}

// TokenRevoker is implemented by adapters whose provider offers a revoke
// endpoint. Disconnect calls it best effort.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, ts *TokenSet) error
}

// Registry is the closed set of adapters, built once at startup.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Provider()] = a
	}
	return &Registry{adapters: m}
}

func (r *Registry) Get(provider string) (Adapter, bool) {
	a, ok := r.adapters[provider]
	return a, ok
}

func expiryFromSeconds(seconds int64) *time.Time {
	if seconds <= 0 {
		return nil
	}
	t := time.Now().Add(time.Duration(seconds) * time.Second)
	return &t
}

// Providers lists the registered provider names in stable order.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
