package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	config "github.com/relaypost/relaypost/configs"
	"github.com/relaypost/relaypost/internal/cache"
	"github.com/relaypost/relaypost/internal/models"
	"github.com/relaypost/relaypost/internal/platform"
	"github.com/relaypost/relaypost/internal/repository"
	"github.com/relaypost/relaypost/internal/transfer"
	"github.com/relaypost/relaypost/pkg/utils"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	stateTokenTTL    = 10 * time.Minute
	stateTokenLength = 32
	verifierLength   = 64
	profileCacheTTL  = time.Hour
)

// AccountService drives account linking: it mints single-use OAuth state
// tokens, completes the code exchange through the right adapter, and owns
// the linked-account records.
type AccountService interface {
	Providers() []string
	BeginAuthorization(ctx context.Context, userID int64, plan, provider, redirectURI string) (string, error)
	CompleteAuthorization(ctx context.Context, provider, code, state string) (*models.LinkedAccount, error)
	List(ctx context.Context, userID int64) ([]*models.LinkedAccount, error)
	UpdateSettings(ctx context.Context, userID, accountID int64, req *transfer.AccountSettingsRequest) (*models.LinkedAccount, error)
	Disconnect(ctx context.Context, userID, accountID int64) (*models.LinkedAccount, error)
	SyncProfile(ctx context.Context, account *models.LinkedAccount) error
}

type accountService struct {
	cfg      config.Config
	registry *platform.Registry
	la       repository.LinkedAccountRepository
	quota    QuotaService
	tokens   TokenService
	store    cache.Store
}

func NewAccountService(
	cfg config.Config,
	registry *platform.Registry,
	la repository.LinkedAccountRepository,
	quota QuotaService,
	tokens TokenService,
	store cache.Store) AccountService {
	return &accountService{
		cfg:      cfg,
		registry: registry,
		la:       la,
		quota:    quota,
		tokens:   tokens,
		store:    store,
	}
}

func stateKey(token string) string {
	return "oauth_state:" + token
}

func (s *accountService) Providers() []string {
	return s.registry.Providers()
}

func (s *accountService) BeginAuthorization(ctx context.Context, userID int64, plan, provider, redirectURI string) (string, error) {
	adapter, ok := s.registry.Get(provider)
	if !ok {
		return "", fmt.Errorf("unsupported provider: %s", provider)
	}

	if err := s.quota.CheckProviderAllowed(plan, provider); err != nil {
		return "", err
	}
	if err := s.quota.CheckAccountHeadroom(ctx, userID, plan); err != nil {
		return "", err
	}

	token, err := gonanoid.New(stateTokenLength)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	verifier, err := gonanoid.New(verifierLength)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	payload, err := json.Marshal(transfer.StatePayload{
		UserID:       userID,
		Provider:     provider,
		RedirectURI:  redirectURI,
		CodeVerifier: verifier,
	})
	if err != nil {
		return "", err
	}

	if err := s.store.Set(ctx, stateKey(token), string(payload), stateTokenTTL); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return adapter.AuthorizationURL(redirectURI, token, verifier), nil
}

// CompleteAuthorization finishes the flow from the provider redirect,
// which carries only code and state. The consumed state payload supplies
// the user binding, redirect URI and PKCE verifier for the exchange.
func (s *accountService) CompleteAuthorization(ctx context.Context, provider, code, state string) (*models.LinkedAccount, error) {
	if code == "" || state == "" {
		return nil, &InvalidStateError{Reason: "code or state is empty"}
	}

	// Atomic fetch-and-delete: whatever happens next, this state token
	// is spent.
	raw, found, err := s.store.GetDel(ctx, stateKey(state))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &InvalidStateError{Reason: "state token expired or already consumed"}
	}

	var payload transfer.StatePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, &InvalidStateError{Reason: "state payload is malformed"}
	}
	if payload.Provider != provider {
		return nil, &InvalidStateError{Reason: "provider mismatch"}
	}

	adapter, ok := s.registry.Get(provider)
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	tokenSet, err := adapter.ExchangeCode(ctx, code, payload.RedirectURI, payload.CodeVerifier)
	if err != nil {
		return nil, err
	}

	profile, err := adapter.FetchProfile(ctx, tokenSet)
	if err != nil {
		return nil, err
	}

	return s.upsert(ctx, payload.UserID, provider, tokenSet, profile)
}

// upsert keeps at most one non-revoked linked account per (user,
// provider): an existing account gets its tokens rotated in place.
func (s *accountService) upsert(ctx context.Context, userID int64, provider string, tokenSet *platform.TokenSet, profile *platform.Profile) (*models.LinkedAccount, error) {
	encryptedAccess, err := utils.Encrypt([]byte(tokenSet.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	encryptedRefresh := ""
	if tokenSet.RefreshToken != "" {
		encryptedRefresh, err = utils.Encrypt([]byte(tokenSet.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return nil, err
		}
	}

	encryptedSecret := ""
	if tokenSet.TokenSecret != "" {
		encryptedSecret, err = utils.Encrypt([]byte(tokenSet.TokenSecret), []byte(s.cfg.SecretKey))
		if err != nil {
			return nil, err
		}
	}

	account := &models.LinkedAccount{
		UserID:          userID,
		Provider:        provider,
		AccountID:       profile.AccountID,
		AccountName:     profile.Name,
		AccountUsername: profile.Username,
		ProfilePicture:  profile.Picture,
		AccessToken:     encryptedAccess,
		RefreshToken:    encryptedRefresh,
		TokenSecret:     encryptedSecret,
		TokenExpiresAt:  tokenSet.ExpiresAt,
		Status:          models.AccountStatusActive,
		Followers:       profile.Followers,
		Following:       profile.Following,
		PostsCount:      profile.Posts,
		AutoPost:        true,
	}

	existing, err := s.la.GetActiveByUserAndProvider(ctx, userID, provider)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if err := s.la.UpdateProfile(ctx, existing.ID, account); err != nil {
			return nil, err
		}
		account.ID = existing.ID
		return account, nil
	}

	id, err := s.la.Create(ctx, account)
	if err != nil {
		return nil, err
	}
	account.ID = id
	return account, nil
}

func (s *accountService) List(ctx context.Context, userID int64) ([]*models.LinkedAccount, error) {
	if userID == 0 {
		err := errors.New("UserID is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	accounts, err := s.la.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting linked accounts")
	}
	return accounts, nil
}

func (s *accountService) UpdateSettings(ctx context.Context, userID, accountID int64, req *transfer.AccountSettingsRequest) (*models.LinkedAccount, error) {
	account, err := s.ownedAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	autoPost := account.AutoPost
	if req.AutoPost != nil {
		autoPost = *req.AutoPost
	}
	contentFilters := account.ContentFilters
	if req.ContentFilters != nil {
		contentFilters = *req.ContentFilters
	}

	if err := s.la.UpdateSettings(ctx, accountID, autoPost, contentFilters); err != nil {
		return nil, err
	}

	account.AutoPost = autoPost
	account.ContentFilters = contentFilters
	return account, nil
}

// Disconnect revokes provider access best effort, then flips the account
// to revoked. The row stays; deletion is logical only.
func (s *accountService) Disconnect(ctx context.Context, userID, accountID int64) (*models.LinkedAccount, error) {
	account, err := s.ownedAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	if tokenSet, err := s.tokens.Decrypt(account); err == nil {
		if adapter, ok := s.registry.Get(account.Provider); ok {
			if revoker, ok := adapter.(platform.TokenRevoker); ok {
				if err := revoker.RevokeToken(ctx, tokenSet); err != nil {
					slog.Info("provider revoke failed", "provider", account.Provider, "error", err.Error())
				}
			}
		}
	}

	if err := s.la.UpdateStatus(ctx, accountID, models.AccountStatusRevoked); err != nil {
		return nil, err
	}

	account.Status = models.AccountStatusRevoked
	return account, nil
}

// SyncProfile refreshes the account's cached profile metrics, reading
// through the short-TTL profile cache to bound provider call volume.
func (s *accountService) SyncProfile(ctx context.Context, account *models.LinkedAccount) error {
	adapter, ok := s.registry.Get(account.Provider)
	if !ok {
		return fmt.Errorf("no adapter registered for provider %s", account.Provider)
	}

	tokenSet, err := s.tokens.EnsureFresh(ctx, account)
	if err != nil {
		return err
	}

	cacheKey := fmt.Sprintf("%s:profile:%s", account.Provider, tokenPrefix(tokenSet.AccessToken))
	if raw, found, err := s.store.Get(ctx, cacheKey); err == nil && found {
		var profile platform.Profile
		if err := json.Unmarshal([]byte(raw), &profile); err == nil {
			return s.la.UpdateMetrics(ctx, account.ID, profile.Followers, profile.Following, profile.Posts)
		}
	}

	profile, err := adapter.FetchProfile(ctx, tokenSet)
	if err != nil {
		return err
	}

	if raw, err := json.Marshal(profile); err == nil {
		if err := s.store.Set(ctx, cacheKey, string(raw), profileCacheTTL); err != nil {
			slog.Info(err.Error())
		}
	}

	return s.la.UpdateMetrics(ctx, account.ID, profile.Followers, profile.Following, profile.Posts)
}

func (s *accountService) ownedAccount(ctx context.Context, userID, accountID int64) (*models.LinkedAccount, error) {
	if userID == 0 || accountID == 0 {
		err := errors.New("account or user id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	isOwned, err := s.la.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}
	if !isOwned {
		err = errors.New("linked account doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	return s.la.GetByID(ctx, accountID)
}

func tokenPrefix(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
