package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	config "github.com/relaypost/relaypost/configs"
	"github.com/relaypost/relaypost/internal/models"
	"github.com/relaypost/relaypost/internal/platform"
	"github.com/relaypost/relaypost/internal/repository"
	"github.com/relaypost/relaypost/internal/transfer"
)

var retryBaseDelay = 2 * time.Second

// PublishService fans one outbound post out to many linked accounts.
// Every target runs its own pipeline; a failure on one never touches the
// others.
type PublishService interface {
	CreatePost(ctx context.Context, userID int64, input *transfer.OutboundPostInput) (*models.OutboundPost, error)
	Publish(ctx context.Context, userID int64, postID int64, targetAccountIDs []int64) ([]transfer.PerAccountResult, transfer.PublishSummary, error)
	ListHistory(ctx context.Context, userID int64) ([]*models.PostedContent, error)
}

type publishService struct {
	cfg    config.Config
	db     *sql.DB
	posts  repository.OutboundPostRepository
	la     repository.LinkedAccountRepository
	pc     repository.PostedContentRepository
	subs   repository.SubscriptionRepository
	quota  QuotaService
	tokens TokenService

	registry *platform.Registry
}

func NewPublishService(
	cfg config.Config,
	db *sql.DB,
	posts repository.OutboundPostRepository,
	la repository.LinkedAccountRepository,
	pc repository.PostedContentRepository,
	subs repository.SubscriptionRepository,
	quota QuotaService,
	tokens TokenService,
	registry *platform.Registry) PublishService {
	return &publishService{
		cfg:      cfg,
		db:       db,
		posts:    posts,
		la:       la,
		pc:       pc,
		subs:     subs,
		quota:    quota,
		tokens:   tokens,
		registry: registry,
	}
}

func (s *publishService) CreatePost(ctx context.Context, userID int64, input *transfer.OutboundPostInput) (*models.OutboundPost, error) {
	if input.Text == "" && len(input.Media) == 0 {
		err := errors.New("post needs text or media")
		slog.Info(err.Error())
		return nil, err
	}

	post := &models.OutboundPost{
		UserID:   userID,
		Text:     input.Text,
		Title:    input.Title,
		SourceID: input.SourceID,
		Timezone: input.Timezone,
	}

	if input.ScheduledTime != "" {
		loc := time.UTC
		if input.Timezone != "" {
			parsed, err := time.LoadLocation(input.Timezone)
			if err != nil {
				return nil, fmt.Errorf("invalid timezone: %w", err)
			}
			loc = parsed
		}
		scheduled, err := time.ParseInLocation("2006-01-02T15:04", input.ScheduledTime, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduled time format: %w", err)
		}
		post.ScheduledTime = &scheduled
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	postID, err := s.posts.Create(ctx, tx, post)
	if err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}
	post.ID = postID

	for i, media := range input.Media {
		item := &models.MediaItem{
			PostID:       postID,
			MediaType:    media.Type,
			URL:          media.URL,
			AltText:      media.AltText,
			DisplayOrder: i,
		}
		if err = s.posts.AddMedia(ctx, tx, item); err != nil {
			return nil, fmt.Errorf("error saving media item: %w", err)
		}
		post.Media = append(post.Media, *item)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return post, nil
}

// Publish resolves the targets and fans out, bounded by the configured
// concurrency limit. The returned slice has exactly one entry per target.
func (s *publishService) Publish(ctx context.Context, userID int64, postID int64, targetAccountIDs []int64) ([]transfer.PerAccountResult, transfer.PublishSummary, error) {
	var summary transfer.PublishSummary

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, summary, err
	}
	if post == nil || post.UserID != userID {
		return nil, summary, errors.New("post doesn't exist")
	}

	plan, err := s.subs.GetPlanByUserID(ctx, userID)
	if err != nil {
		return nil, summary, err
	}

	// A spent daily budget rejects the whole publish before any target
	// record is written. The per-target check below still guards budget
	// exhaustion during the fan-out itself.
	if err := s.quota.CheckDailyPostBudget(ctx, userID, plan); err != nil {
		return nil, summary, err
	}

	targets, err := s.resolveTargets(ctx, userID, targetAccountIDs)
	if err != nil {
		return nil, summary, err
	}
	if len(targets) == 0 {
		return nil, summary, errors.New("no target accounts to publish to")
	}

	results := make([]transfer.PerAccountResult, len(targets))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.cfg.PublishConcurrency)

	for i, account := range targets {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int, account *models.LinkedAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			results[i] = s.publishToAccount(ctx, plan, post, account)
		}(i, account)
	}
	wg.Wait()

	summary.Total = len(results)
	for _, result := range results {
		if result.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}
	return results, summary, nil
}

func (s *publishService) resolveTargets(ctx context.Context, userID int64, targetAccountIDs []int64) ([]*models.LinkedAccount, error) {
	if len(targetAccountIDs) == 0 {
		return s.la.ListAutoPostByUserID(ctx, userID)
	}

	targets := make([]*models.LinkedAccount, 0, len(targetAccountIDs))
	for _, accountID := range targetAccountIDs {
		account, err := s.la.GetByID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if account == nil || account.UserID != userID {
			return nil, fmt.Errorf("linked account %d does not exist", accountID)
		}
		targets = append(targets, account)
	}
	return targets, nil
}

// publishToAccount runs one target's full pipeline: quota, token refresh,
// adapter publish with bounded retries, and the posted-content record
// transitions queued -> posting -> posted|failed.
func (s *publishService) publishToAccount(ctx context.Context, plan string, post *models.OutboundPost, account *models.LinkedAccount) transfer.PerAccountResult {
	result := transfer.PerAccountResult{
		AccountID: account.ID,
		Provider:  account.Provider,
	}

	record := &models.PostedContent{
		UserID:        post.UserID,
		PostID:        post.ID,
		AccountID:     account.ID,
		Provider:      account.Provider,
		Status:        models.PostedStatusQueued,
		ScheduledTime: post.ScheduledTime,
	}
	recordID, err := s.pc.Create(ctx, record)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	fail := func(err error) transfer.PerAccountResult {
		result.Error = err.Error()
		if markErr := s.pc.MarkFailed(ctx, recordID, err.Error()); markErr != nil {
			slog.Info(markErr.Error())
		}
		return result
	}

	if err := s.quota.CheckProviderAllowed(plan, account.Provider); err != nil {
		return fail(err)
	}
	if err := s.quota.CheckDailyPostBudget(ctx, post.UserID, plan); err != nil {
		return fail(err)
	}

	adapter, ok := s.registry.Get(account.Provider)
	if !ok {
		return fail(fmt.Errorf("no adapter registered for provider %s", account.Provider))
	}

	tokenSet, err := s.tokens.EnsureFresh(ctx, account)
	if err != nil {
		return fail(err)
	}

	if err := s.pc.MarkPosting(ctx, recordID); err != nil {
		slog.Info(err.Error())
	}

	published, err := s.publishWithRetry(ctx, adapter, tokenSet, post, recordID)
	if err != nil {
		return fail(err)
	}

	if err := s.pc.MarkPosted(ctx, recordID, published.ProviderPostID, published.URL); err != nil {
		slog.Info(err.Error())
	}

	result.Success = true
	result.ProviderPostID = published.ProviderPostID
	result.URL = published.URL
	return result
}

// publishWithRetry retries retryable failures with exponential backoff up
// to the configured cap. Non-retryable errors fail immediately without
// touching the retry counter.
func (s *publishService) publishWithRetry(ctx context.Context, adapter platform.Adapter, tokenSet *platform.TokenSet, post *models.OutboundPost, recordID int64) (*platform.PublishResult, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		published, err := adapter.Publish(ctx, tokenSet, post)
		if err == nil {
			return published, nil
		}
		lastErr = err

		if !platform.IsRetryable(err) {
			return nil, err
		}
		if attempt+1 >= s.cfg.PublishMaxRetries {
			break
		}

		if incErr := s.pc.IncrementRetry(ctx, recordID, err.Error()); incErr != nil {
			slog.Info(incErr.Error())
		}

		delay := retryBaseDelay << attempt
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func (s *publishService) ListHistory(ctx context.Context, userID int64) ([]*models.PostedContent, error) {
	records, err := s.pc.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting publish history")
	}
	return records, nil
}
