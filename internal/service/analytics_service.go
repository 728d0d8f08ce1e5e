package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaypost/relaypost/internal/cache"
	"github.com/relaypost/relaypost/internal/models"
	"github.com/relaypost/relaypost/internal/platform"
	"github.com/relaypost/relaypost/internal/repository"
	"github.com/relaypost/relaypost/internal/transfer"
)

const analyticsCacheTTL = 5 * time.Minute

// AnalyticsService pulls engagement metrics from the providers back onto
// posted-content records. Provider failures never poison stored numbers;
// the last good snapshot stays.
type AnalyticsService interface {
	Refresh(ctx context.Context, userID, postedContentID int64) (*platform.Metrics, error)
	RefreshAll(ctx context.Context, userID int64, provider string, from, to *time.Time) (*transfer.AnalyticsSummary, error)
}

type analyticsService struct {
	pc       repository.PostedContentRepository
	la       repository.LinkedAccountRepository
	tokens   TokenService
	registry *platform.Registry
	store    cache.Store
}

func NewAnalyticsService(
	pc repository.PostedContentRepository,
	la repository.LinkedAccountRepository,
	tokens TokenService,
	registry *platform.Registry,
	store cache.Store) AnalyticsService {
	return &analyticsService{
		pc:       pc,
		la:       la,
		tokens:   tokens,
		registry: registry,
		store:    store,
	}
}

func analyticsKey(provider string, postedContentID int64) string {
	return fmt.Sprintf("%s:analytics:%d", provider, postedContentID)
}

func (s *analyticsService) Refresh(ctx context.Context, userID, postedContentID int64) (*platform.Metrics, error) {
	record, err := s.pc.GetByID(ctx, postedContentID)
	if err != nil {
		return nil, err
	}
	if record == nil || record.UserID != userID {
		return nil, fmt.Errorf("posted content %d does not exist", postedContentID)
	}
	return s.refreshRecord(ctx, record)
}

// refreshRecord serves from the short-lived cache first, then asks the
// provider. A failed fetch falls back to the stored snapshot.
func (s *analyticsService) refreshRecord(ctx context.Context, record *models.PostedContent) (*platform.Metrics, error) {
	stored := &platform.Metrics{
		Likes:       record.Likes,
		Comments:    record.Comments,
		Shares:      record.Shares,
		Impressions: record.Impressions,
	}
	if record.Status != models.PostedStatusPosted || record.ProviderPostID == "" {
		return stored, nil
	}

	key := analyticsKey(record.Provider, record.ID)
	if cached, ok, err := s.store.Get(ctx, key); err == nil && ok {
		var m platform.Metrics
		if err := json.Unmarshal([]byte(cached), &m); err == nil {
			return &m, nil
		}
	}

	account, err := s.la.GetByID(ctx, record.AccountID)
	if err != nil || account == nil {
		return stored, nil
	}
	adapter, ok := s.registry.Get(account.Provider)
	if !ok {
		return stored, nil
	}
	tokenSet, err := s.tokens.EnsureFresh(ctx, account)
	if err != nil {
		slog.Info(err.Error())
		return stored, nil
	}

	fresh, err := adapter.FetchAnalytics(ctx, tokenSet, record.ProviderPostID)
	if err != nil {
		slog.Info(err.Error())
		return stored, nil
	}

	if err := s.pc.UpdateMetrics(ctx, record.ID, fresh); err != nil {
		slog.Info(err.Error())
	}
	if encoded, err := json.Marshal(fresh); err == nil {
		if err := s.store.Set(ctx, key, string(encoded), analyticsCacheTTL); err != nil {
			slog.Info(err.Error())
		}
	}
	return fresh, nil
}

// RefreshAll sweeps the user's posted records in the window and aggregates
// totals overall and per provider.
func (s *analyticsService) RefreshAll(ctx context.Context, userID int64, provider string, from, to *time.Time) (*transfer.AnalyticsSummary, error) {
	records, err := s.pc.ListPosted(ctx, userID, provider, from, to)
	if err != nil {
		return nil, err
	}

	summary := &transfer.AnalyticsSummary{
		ByProvider: make(map[string]platform.Metrics),
	}
	for _, record := range records {
		m, err := s.refreshRecord(ctx, record)
		if err != nil {
			slog.Info(err.Error())
			continue
		}
		summary.Totals.Likes += m.Likes
		summary.Totals.Comments += m.Comments
		summary.Totals.Shares += m.Shares
		summary.Totals.Impressions += m.Impressions

		byProvider := summary.ByProvider[record.Provider]
		byProvider.Likes += m.Likes
		byProvider.Comments += m.Comments
		byProvider.Shares += m.Shares
		byProvider.Impressions += m.Impressions
		summary.ByProvider[record.Provider] = byProvider

		summary.PostCount++
	}
	return summary, nil
}
