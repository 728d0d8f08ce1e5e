package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	config "github.com/relaypost/relaypost/configs"
	"github.com/relaypost/relaypost/internal/models"
	"github.com/relaypost/relaypost/internal/platform"
	"github.com/relaypost/relaypost/internal/repository"
	"github.com/relaypost/relaypost/pkg/utils"
)

// Tokens within this window of expiry are treated as already expired so a
// publish never races a token that dies mid-call.
const refreshSkew = 2 * time.Minute

// TokenService owns the token lifecycle of linked accounts. It is the
// only component that mutates token fields; everyone else treats them as
// read-only.
type TokenService interface {
	// EnsureFresh returns a decrypted, valid token set for the account,
	// refreshing it first when expired. Accounts without an expiry
	// timestamp never need refresh. A failed or unsupported refresh
	// demotes the account and fails with ReauthRequiredError.
	EnsureFresh(ctx context.Context, account *models.LinkedAccount) (*platform.TokenSet, error)

	// Decrypt exposes the account's current token set without any
	// freshness guarantee.
	Decrypt(account *models.LinkedAccount) (*platform.TokenSet, error)
}

type tokenService struct {
	cfg      config.Config
	registry *platform.Registry
	la       repository.LinkedAccountRepository

	// one lock per account id so concurrent refreshes of the same
	// account collapse into a single provider call
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewTokenService(cfg config.Config, registry *platform.Registry, la repository.LinkedAccountRepository) TokenService {
	return &tokenService{
		cfg:      cfg,
		registry: registry,
		la:       la,
		locks:    make(map[int64]*sync.Mutex),
	}
}

func (s *tokenService) accountLock(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

func (s *tokenService) Decrypt(account *models.LinkedAccount) (*platform.TokenSet, error) {
	accessToken, err := utils.Decrypt(account.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	ts := &platform.TokenSet{
		AccessToken: accessToken,
		ExpiresAt:   account.TokenExpiresAt,
	}
	if account.RefreshToken != "" {
		refreshToken, err := utils.Decrypt(account.RefreshToken, []byte(s.cfg.SecretKey))
		if err != nil {
			return nil, err
		}
		ts.RefreshToken = refreshToken
	}
	if account.TokenSecret != "" {
		secret, err := utils.Decrypt(account.TokenSecret, []byte(s.cfg.SecretKey))
		if err != nil {
			return nil, err
		}
		ts.TokenSecret = secret
	}
	return ts, nil
}

func needsRefresh(expiresAt *time.Time) bool {
	if expiresAt == nil || expiresAt.IsZero() {
		// No expiry timestamp means the provider's tokens never expire.
		return false
	}
	return time.Now().Add(refreshSkew).After(*expiresAt)
}

func (s *tokenService) EnsureFresh(ctx context.Context, account *models.LinkedAccount) (*platform.TokenSet, error) {
	if !needsRefresh(account.TokenExpiresAt) {
		return s.Decrypt(account)
	}

	lock := s.accountLock(account.ID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: the previous holder may have refreshed
	// the account already, in which case its token is ours to use.
	current, err := s.la.GetByID(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("linked account %d not found", account.ID)
	}
	if !needsRefresh(current.TokenExpiresAt) {
		return s.Decrypt(current)
	}

	adapter, ok := s.registry.Get(current.Provider)
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %s", current.Provider)
	}

	if !adapter.SupportsRefresh() {
		return nil, s.demote(ctx, current, &platform.RefreshUnsupportedError{Provider: current.Provider})
	}

	stale, err := s.Decrypt(current)
	if err != nil {
		return nil, err
	}

	fresh, err := adapter.RefreshToken(ctx, stale)
	if err != nil {
		var unsupported *platform.RefreshUnsupportedError
		if errors.As(err, &unsupported) {
			return nil, s.demote(ctx, current, err)
		}
		var ne *platform.NetworkError
		if errors.As(err, &ne) {
			// Transient; leave the account alone so a later attempt
			// can still succeed.
			return nil, err
		}
		return nil, s.demote(ctx, current, err)
	}

	if err := s.persist(ctx, current.ID, fresh); err != nil {
		return nil, err
	}

	slog.Info("refreshed token", "provider", current.Provider, "account_id", current.ID)
	return fresh, nil
}

func (s *tokenService) persist(ctx context.Context, accountID int64, ts *platform.TokenSet) error {
	encryptedAccess, err := utils.Encrypt([]byte(ts.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	encryptedRefresh := ""
	if ts.RefreshToken != "" {
		encryptedRefresh, err = utils.Encrypt([]byte(ts.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return err
		}
	}

	return s.la.UpdateTokens(ctx, accountID, encryptedAccess, encryptedRefresh, ts.ExpiresAt)
}

func (s *tokenService) demote(ctx context.Context, account *models.LinkedAccount, cause error) error {
	if err := s.la.UpdateStatus(ctx, account.ID, models.AccountStatusError); err != nil {
		slog.Info(err.Error())
	}
	return &ReauthRequiredError{
		AccountID: account.ID,
		Provider:  account.Provider,
		Err:       cause,
	}
}
