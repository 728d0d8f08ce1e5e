package service

import (
	"context"
	"time"

	"github.com/relaypost/relaypost/internal/models"
	"github.com/relaypost/relaypost/internal/repository"
)

// Tier maps a subscription plan to its ceilings.
type Tier struct {
	MaxLinkedAccounts int
	MaxPostsPerDay    int
	Providers         []string
}

var tiers = map[string]Tier{
	models.PlanFree: {
		MaxLinkedAccounts: 2,
		MaxPostsPerDay:    5,
		Providers:         []string{"twitter", "linkedin"},
	},
	models.PlanStarter: {
		MaxLinkedAccounts: 5,
		MaxPostsPerDay:    30,
		Providers:         []string{"twitter", "linkedin", "instagram"},
	},
	models.PlanBusiness: {
		MaxLinkedAccounts: 15,
		MaxPostsPerDay:    200,
		Providers:         []string{"twitter", "linkedin", "instagram", "tiktok"},
	},
}

type QuotaService interface {
	CheckAccountHeadroom(ctx context.Context, userID int64, plan string) error
	CheckDailyPostBudget(ctx context.Context, userID int64, plan string) error
	CheckProviderAllowed(plan, provider string) error
}

type quotaService struct {
	la repository.LinkedAccountRepository
	pc repository.PostedContentRepository
}

func NewQuotaService(la repository.LinkedAccountRepository, pc repository.PostedContentRepository) QuotaService {
	return &quotaService{la: la, pc: pc}
}

func tierFor(plan string) Tier {
	if tier, ok := tiers[plan]; ok {
		return tier
	}
	return tiers[models.PlanFree]
}

func (s *quotaService) CheckAccountHeadroom(ctx context.Context, userID int64, plan string) error {
	tier := tierFor(plan)

	count, err := s.la.CountActiveByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if count >= tier.MaxLinkedAccounts {
		return &AccountLimitError{Current: count, Max: tier.MaxLinkedAccounts}
	}
	return nil
}

func (s *quotaService) CheckDailyPostBudget(ctx context.Context, userID int64, plan string) error {
	tier := tierFor(plan)

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	count, err := s.pc.CountPostedSince(ctx, userID, dayStart)
	if err != nil {
		return err
	}
	if count >= tier.MaxPostsPerDay {
		return &QuotaExceededError{
			Current: count,
			Max:     tier.MaxPostsPerDay,
			ResetAt: dayStart.Add(24 * time.Hour),
		}
	}
	return nil
}

func (s *quotaService) CheckProviderAllowed(plan, provider string) error {
	tier := tierFor(plan)
	for _, allowed := range tier.Providers {
		if allowed == provider {
			return nil
		}
	}
	return &PlatformNotAvailableError{Provider: provider, Plan: plan}
}
