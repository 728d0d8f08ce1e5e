package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/relaypost/relaypost/internal/models"
	"github.com/relaypost/relaypost/internal/platform"
)

// fakeLinkedAccountRepo is an in-memory LinkedAccountRepository.
type fakeLinkedAccountRepo struct {
	mu       sync.Mutex
	accounts map[int64]*models.LinkedAccount
	nextID   int64
}

func newFakeLinkedAccountRepo() *fakeLinkedAccountRepo {
	return &fakeLinkedAccountRepo{accounts: make(map[int64]*models.LinkedAccount), nextID: 1}
}

func (r *fakeLinkedAccountRepo) add(account *models.LinkedAccount) *models.LinkedAccount {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account.ID == 0 {
		account.ID = r.nextID
		r.nextID++
	} else if account.ID >= r.nextID {
		r.nextID = account.ID + 1
	}
	clone := *account
	r.accounts[account.ID] = &clone
	return account
}

func (r *fakeLinkedAccountRepo) Create(ctx context.Context, la *models.LinkedAccount) (int64, error) {
	r.add(la)
	return la.ID, nil
}

func (r *fakeLinkedAccountRepo) GetByID(ctx context.Context, id int64) (*models.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	clone := *account
	return &clone, nil
}

func (r *fakeLinkedAccountRepo) GetActiveByUserAndProvider(ctx context.Context, userID int64, provider string) (*models.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.UserID == userID && account.Provider == provider && account.Status != models.AccountStatusRevoked {
			clone := *account
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeLinkedAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.LinkedAccount
	for _, account := range r.accounts {
		if account.UserID == userID {
			clone := *account
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeLinkedAccountRepo) ListAutoPostByUserID(ctx context.Context, userID int64) ([]*models.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.LinkedAccount
	for _, account := range r.accounts {
		if account.UserID == userID && account.AutoPost && account.Status == models.AccountStatusActive {
			clone := *account
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeLinkedAccountRepo) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*models.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.LinkedAccount
	for _, account := range r.accounts {
		if account.TokenExpiresAt != nil && account.TokenExpiresAt.Before(cutoff) && account.Status == models.AccountStatusActive {
			clone := *account
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeLinkedAccountRepo) CountActiveByUserID(ctx context.Context, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, account := range r.accounts {
		if account.UserID == userID && account.Status == models.AccountStatusActive {
			count++
		}
	}
	return count, nil
}

func (r *fakeLinkedAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	return ok && account.UserID == userID, nil
}

func (r *fakeLinkedAccountRepo) UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.accounts[id]; ok {
		account.AccessToken = accessToken
		if refreshToken != "" {
			account.RefreshToken = refreshToken
		}
		account.TokenExpiresAt = expiresAt
		account.Status = models.AccountStatusActive
	}
	return nil
}

func (r *fakeLinkedAccountRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.accounts[id]; ok {
		account.Status = status
	}
	return nil
}

func (r *fakeLinkedAccountRepo) UpdateProfile(ctx context.Context, id int64, la *models.LinkedAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.accounts[id]; ok {
		account.AccountID = la.AccountID
		account.AccountName = la.AccountName
		account.AccountUsername = la.AccountUsername
		account.ProfilePicture = la.ProfilePicture
		account.AccessToken = la.AccessToken
		account.RefreshToken = la.RefreshToken
		account.TokenSecret = la.TokenSecret
		account.TokenExpiresAt = la.TokenExpiresAt
		account.Status = la.Status
		account.Followers = la.Followers
		account.Following = la.Following
		account.PostsCount = la.PostsCount
	}
	return nil
}

func (r *fakeLinkedAccountRepo) UpdateMetrics(ctx context.Context, id int64, followers, following, posts int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.accounts[id]; ok {
		account.Followers = followers
		account.Following = following
		account.PostsCount = posts
	}
	return nil
}

func (r *fakeLinkedAccountRepo) UpdateSettings(ctx context.Context, id int64, autoPost bool, contentFilters string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.accounts[id]; ok {
		account.AutoPost = autoPost
		account.ContentFilters = contentFilters
	}
	return nil
}

// fakePostedContentRepo is an in-memory PostedContentRepository.
type fakePostedContentRepo struct {
	mu      sync.Mutex
	records map[int64]*models.PostedContent
	nextID  int64
}

func newFakePostedContentRepo() *fakePostedContentRepo {
	return &fakePostedContentRepo{records: make(map[int64]*models.PostedContent), nextID: 1}
}

func (r *fakePostedContentRepo) add(record *models.PostedContent) *models.PostedContent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record.ID == 0 {
		record.ID = r.nextID
		r.nextID++
	} else if record.ID >= r.nextID {
		r.nextID = record.ID + 1
	}
	clone := *record
	r.records[record.ID] = &clone
	return record
}

func (r *fakePostedContentRepo) Create(ctx context.Context, pc *models.PostedContent) (int64, error) {
	r.add(pc)
	return pc.ID, nil
}

func (r *fakePostedContentRepo) GetByID(ctx context.Context, id int64) (*models.PostedContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

func (r *fakePostedContentRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.PostedContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PostedContent
	for _, record := range r.records {
		if record.UserID == userID {
			clone := *record
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakePostedContentRepo) ListPosted(ctx context.Context, userID int64, provider string, from, to *time.Time) ([]*models.PostedContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PostedContent
	for _, record := range r.records {
		if record.UserID != userID || record.Status != models.PostedStatusPosted {
			continue
		}
		if provider != "" && record.Provider != provider {
			continue
		}
		if from != nil && record.PostedAt != nil && record.PostedAt.Before(*from) {
			continue
		}
		if to != nil && record.PostedAt != nil && record.PostedAt.After(*to) {
			continue
		}
		clone := *record
		out = append(out, &clone)
	}
	return out, nil
}

func (r *fakePostedContentRepo) CountPostedSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, record := range r.records {
		if record.UserID == userID && record.Status == models.PostedStatusPosted &&
			record.PostedAt != nil && record.PostedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (r *fakePostedContentRepo) MarkPosting(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.records[id]; ok {
		record.Status = models.PostedStatusPosting
	}
	return nil
}

func (r *fakePostedContentRepo) MarkPosted(ctx context.Context, id int64, providerPostID, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.records[id]; ok {
		record.Status = models.PostedStatusPosted
		record.ProviderPostID = providerPostID
		record.URL = url
		now := time.Now()
		record.PostedAt = &now
	}
	return nil
}

func (r *fakePostedContentRepo) MarkFailed(ctx context.Context, id int64, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.records[id]; ok {
		record.Status = models.PostedStatusFailed
		record.LastError = lastError
	}
	return nil
}

func (r *fakePostedContentRepo) IncrementRetry(ctx context.Context, id int64, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.records[id]; ok {
		record.RetryCount++
		record.LastError = lastError
	}
	return nil
}

func (r *fakePostedContentRepo) UpdateMetrics(ctx context.Context, id int64, m *platform.Metrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.records[id]; ok {
		record.Likes = m.Likes
		record.Comments = m.Comments
		record.Shares = m.Shares
		record.Impressions = m.Impressions
		now := time.Now()
		record.MetricsSyncAt = &now
	}
	return nil
}

// fakeOutboundPostRepo is an in-memory OutboundPostRepository.
type fakeOutboundPostRepo struct {
	mu     sync.Mutex
	posts  map[int64]*models.OutboundPost
	nextID int64
}

func newFakeOutboundPostRepo() *fakeOutboundPostRepo {
	return &fakeOutboundPostRepo{posts: make(map[int64]*models.OutboundPost), nextID: 1}
}

func (r *fakeOutboundPostRepo) add(post *models.OutboundPost) *models.OutboundPost {
	r.mu.Lock()
	defer r.mu.Unlock()
	if post.ID == 0 {
		post.ID = r.nextID
		r.nextID++
	} else if post.ID >= r.nextID {
		r.nextID = post.ID + 1
	}
	clone := *post
	r.posts[post.ID] = &clone
	return post
}

func (r *fakeOutboundPostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.OutboundPost) (int64, error) {
	r.add(post)
	return post.ID, nil
}

func (r *fakeOutboundPostRepo) GetByID(ctx context.Context, id int64) (*models.OutboundPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	clone := *post
	return &clone, nil
}

func (r *fakeOutboundPostRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.OutboundPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.OutboundPost
	for _, post := range r.posts {
		if post.UserID == userID {
			clone := *post
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeOutboundPostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[postID]
	return ok && post.UserID == userID, nil
}

func (r *fakeOutboundPostRepo) AddMedia(ctx context.Context, tx *sql.Tx, item *models.MediaItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if post, ok := r.posts[item.PostID]; ok {
		post.Media = append(post.Media, *item)
	}
	return nil
}

func (r *fakeOutboundPostRepo) ListMedia(ctx context.Context, postID int64) ([]models.MediaItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if post, ok := r.posts[postID]; ok {
		return post.Media, nil
	}
	return nil, nil
}

// fakeSubscriptionRepo returns a fixed plan.
type fakeSubscriptionRepo struct {
	plan string
}

func (r *fakeSubscriptionRepo) GetPlanByUserID(ctx context.Context, userID int64) (string, error) {
	if r.plan == "" {
		return models.PlanFree, nil
	}
	return r.plan, nil
}

// fakeAdapter is a scriptable platform.Adapter.
type fakeAdapter struct {
	provider        string
	supportsRefresh bool

	mu           sync.Mutex
	publishCalls int
	refreshCalls int

	publishFn   func(ctx context.Context, ts *platform.TokenSet, post *models.OutboundPost) (*platform.PublishResult, error)
	refreshFn   func(ctx context.Context, ts *platform.TokenSet) (*platform.TokenSet, error)
	exchange    func(ctx context.Context, code, redirectURI, verifier string) (*platform.TokenSet, error)
	profileFn   func(ctx context.Context, ts *platform.TokenSet) (*platform.Profile, error)
	analyticsFn func(ctx context.Context, ts *platform.TokenSet, providerPostID string) (*platform.Metrics, error)
}

func (a *fakeAdapter) Provider() string      { return a.provider }
func (a *fakeAdapter) SupportsRefresh() bool { return a.supportsRefresh }

func (a *fakeAdapter) AuthorizationURL(redirectURI, state, verifier string) string {
	return "https://auth.example.com/authorize?state=" + state + "&redirect_uri=" + redirectURI
}

func (a *fakeAdapter) ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*platform.TokenSet, error) {
	if a.exchange != nil {
		return a.exchange(ctx, code, redirectURI, verifier)
	}
	return &platform.TokenSet{AccessToken: "access-" + code}, nil
}

func (a *fakeAdapter) FetchProfile(ctx context.Context, ts *platform.TokenSet) (*platform.Profile, error) {
	if a.profileFn != nil {
		return a.profileFn(ctx, ts)
	}
	return &platform.Profile{AccountID: "acc-1", Username: "user", Name: "User"}, nil
}

func (a *fakeAdapter) Publish(ctx context.Context, ts *platform.TokenSet, post *models.OutboundPost) (*platform.PublishResult, error) {
	a.mu.Lock()
	a.publishCalls++
	a.mu.Unlock()
	if a.publishFn != nil {
		return a.publishFn(ctx, ts, post)
	}
	return &platform.PublishResult{ProviderPostID: "p-1", URL: "https://example.com/p-1"}, nil
}

func (a *fakeAdapter) FetchAnalytics(ctx context.Context, ts *platform.TokenSet, providerPostID string) (*platform.Metrics, error) {
	if a.analyticsFn != nil {
		return a.analyticsFn(ctx, ts, providerPostID)
	}
	return &platform.Metrics{}, nil
}

func (a *fakeAdapter) RefreshToken(ctx context.Context, ts *platform.TokenSet) (*platform.TokenSet, error) {
	a.mu.Lock()
	a.refreshCalls++
	a.mu.Unlock()
	if a.refreshFn != nil {
		return a.refreshFn(ctx, ts)
	}
	return &platform.TokenSet{AccessToken: "refreshed"}, nil
}

func (a *fakeAdapter) ValidateToken(ctx context.Context, ts *platform.TokenSet) bool { return true }

func (a *fakeAdapter) publishCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.publishCalls
}

func (a *fakeAdapter) refreshCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshCalls
}
