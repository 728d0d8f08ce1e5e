package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/relaypost/relaypost/internal/models"
	"github.com/relaypost/relaypost/internal/repository"
	"github.com/relaypost/relaypost/internal/service"
)

// TokenRefreshJob sweeps accounts whose tokens expire soon and refreshes
// them ahead of time, so publishes rarely pay the refresh round trip.
type TokenRefreshJob struct {
	la     repository.LinkedAccountRepository
	tokens service.TokenService
}

func NewTokenRefreshJob(la repository.LinkedAccountRepository, tokens service.TokenService) *TokenRefreshJob {
	return &TokenRefreshJob{
		la:     la,
		tokens: tokens,
	}
}

func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	cutoff := time.Now().Add(30 * time.Minute)

	accounts, err := c.la.ListExpiringBefore(ctx, cutoff)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.LinkedAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if _, err := c.tokens.EnsureFresh(ctx, acc); err != nil {
				slog.Info("unable to refresh tokens",
					"account_id", acc.ID,
					"provider", acc.Provider,
					"error", err.Error())
			}
		}(acc)
	}
	wg.Wait()
}
