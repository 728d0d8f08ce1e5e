package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"time"

	"github.com/relaypost/relaypost/internal/models"
	"github.com/relaypost/relaypost/internal/platform"
)

type PostedContentRepository interface {
	Create(ctx context.Context, pc *models.PostedContent) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.PostedContent, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.PostedContent, error)
	ListPosted(ctx context.Context, userID int64, provider string, from, to *time.Time) ([]*models.PostedContent, error)
	CountPostedSince(ctx context.Context, userID int64, since time.Time) (int, error)
	MarkPosting(ctx context.Context, id int64) error
	MarkPosted(ctx context.Context, id int64, providerPostID, url string) error
	MarkFailed(ctx context.Context, id int64, lastError string) error
	IncrementRetry(ctx context.Context, id int64, lastError string) error
	UpdateMetrics(ctx context.Context, id int64, m *platform.Metrics) error
}

type postedContentRepository struct {
	db *sql.DB
}

func NewPostedContentRepository(db *sql.DB) PostedContentRepository {
	return &postedContentRepository{db: db}
}

const postedContentColumns = `id, user_id, post_id, account_id, provider,
	provider_post_id, url, status, retry_count, last_error, likes, comments,
	shares, impressions, scheduled_time, posted_at, metrics_sync_at,
	created_at, updated_at`

func scanPostedContent(row interface{ Scan(...interface{}) error }) (*models.PostedContent, error) {
	var pc models.PostedContent
	err := row.Scan(&pc.ID, &pc.UserID, &pc.PostID, &pc.AccountID, &pc.Provider,
		&pc.ProviderPostID, &pc.URL, &pc.Status, &pc.RetryCount, &pc.LastError,
		&pc.Likes, &pc.Comments, &pc.Shares, &pc.Impressions, &pc.ScheduledTime,
		&pc.PostedAt, &pc.MetricsSyncAt, &pc.CreatedAt, &pc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

func (r *postedContentRepository) Create(ctx context.Context, pc *models.PostedContent) (int64, error) {
	query := `
		INSERT INTO posted_content(
			user_id,
			post_id,
			account_id,
			provider,
			status,
			scheduled_time
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		pc.UserID, pc.PostID, pc.AccountID, pc.Provider, pc.Status, pc.ScheduledTime).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *postedContentRepository) GetByID(ctx context.Context, id int64) (*models.PostedContent, error) {
	query := `SELECT ` + postedContentColumns + ` FROM posted_content WHERE id = $1`

	pc, err := scanPostedContent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return pc, nil
}

func (r *postedContentRepository) listQuery(ctx context.Context, query string, args ...interface{}) ([]*models.PostedContent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var records []*models.PostedContent
	for rows.Next() {
		pc, err := scanPostedContent(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		records = append(records, pc)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return records, nil
}

func (r *postedContentRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.PostedContent, error) {
	query := `SELECT ` + postedContentColumns + `
		FROM posted_content WHERE user_id = $1 ORDER BY created_at DESC`
	return r.listQuery(ctx, query, userID)
}

func (r *postedContentRepository) ListPosted(ctx context.Context, userID int64, provider string, from, to *time.Time) ([]*models.PostedContent, error) {
	query := `SELECT ` + postedContentColumns + `
		FROM posted_content
		WHERE user_id = $1 AND status = $2`
	args := []interface{}{userID, models.PostedStatusPosted}

	if provider != "" {
		args = append(args, provider)
		query += ` AND provider = $3`
	}
	if from != nil {
		args = append(args, *from)
		query += ` AND posted_at >= $` + strconv.Itoa(len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += ` AND posted_at <= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY posted_at DESC`

	return r.listQuery(ctx, query, args...)
}

func (r *postedContentRepository) CountPostedSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM posted_content
		WHERE user_id = $1 AND status = $2 AND posted_at >= $3
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID, models.PostedStatusPosted, since).Scan(&count)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return count, nil
}

func (r *postedContentRepository) MarkPosting(ctx context.Context, id int64) error {
	query := `UPDATE posted_content SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, models.PostedStatusPosting)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postedContentRepository) MarkPosted(ctx context.Context, id int64, providerPostID, url string) error {
	query := `
		UPDATE posted_content
		SET status = $2, provider_post_id = $3, url = $4, last_error = '',
			posted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, models.PostedStatusPosted, providerPostID, url)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postedContentRepository) MarkFailed(ctx context.Context, id int64, lastError string) error {
	query := `
		UPDATE posted_content
		SET status = $2, last_error = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, models.PostedStatusFailed, lastError)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postedContentRepository) IncrementRetry(ctx context.Context, id int64, lastError string) error {
	query := `
		UPDATE posted_content
		SET retry_count = retry_count + 1, last_error = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, lastError)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postedContentRepository) UpdateMetrics(ctx context.Context, id int64, m *platform.Metrics) error {
	query := `
		UPDATE posted_content
		SET likes = $2, comments = $3, shares = $4, impressions = $5,
			metrics_sync_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, m.Likes, m.Comments, m.Shares, m.Impressions)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
