package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/relaypost/relaypost/internal/models"
)

type LinkedAccountRepository interface {
	Create(ctx context.Context, la *models.LinkedAccount) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.LinkedAccount, error)
	GetActiveByUserAndProvider(ctx context.Context, userID int64, provider string) (*models.LinkedAccount, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.LinkedAccount, error)
	ListAutoPostByUserID(ctx context.Context, userID int64) ([]*models.LinkedAccount, error)
	ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*models.LinkedAccount, error)
	CountActiveByUserID(ctx context.Context, userID int64) (int, error)
	CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error)
	UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error
	UpdateStatus(ctx context.Context, id int64, status string) error
	UpdateProfile(ctx context.Context, id int64, la *models.LinkedAccount) error
	UpdateMetrics(ctx context.Context, id int64, followers, following, posts int64) error
	UpdateSettings(ctx context.Context, id int64, autoPost bool, contentFilters string) error
}

type linkedAccountRepository struct {
	db *sql.DB
}

func NewLinkedAccountRepository(db *sql.DB) LinkedAccountRepository {
	return &linkedAccountRepository{db: db}
}

const linkedAccountColumns = `id, user_id, provider, account_id, account_name,
	account_username, profile_picture_url, access_token, refresh_token,
	token_secret, token_expires_at, status, followers, following, posts_count,
	auto_post, content_filters, last_synced_at, created_at, updated_at`

func scanLinkedAccount(row interface{ Scan(...interface{}) error }) (*models.LinkedAccount, error) {
	var la models.LinkedAccount
	err := row.Scan(&la.ID, &la.UserID, &la.Provider, &la.AccountID, &la.AccountName,
		&la.AccountUsername, &la.ProfilePicture, &la.AccessToken, &la.RefreshToken,
		&la.TokenSecret, &la.TokenExpiresAt, &la.Status, &la.Followers, &la.Following,
		&la.PostsCount, &la.AutoPost, &la.ContentFilters, &la.LastSyncedAt,
		&la.CreatedAt, &la.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &la, nil
}

func (r *linkedAccountRepository) Create(ctx context.Context, la *models.LinkedAccount) (int64, error) {
	query := `
		INSERT INTO linked_accounts(
			user_id,
			provider,
			account_id,
			account_name,
			account_username,
			profile_picture_url,
			access_token,
			refresh_token,
			token_secret,
			token_expires_at,
			status,
			followers,
			following,
			posts_count,
			auto_post,
			content_filters
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		la.UserID,
		la.Provider,
		la.AccountID,
		la.AccountName,
		la.AccountUsername,
		la.ProfilePicture,
		la.AccessToken,
		la.RefreshToken,
		la.TokenSecret,
		la.TokenExpiresAt,
		la.Status,
		la.Followers,
		la.Following,
		la.PostsCount,
		la.AutoPost,
		la.ContentFilters,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *linkedAccountRepository) GetByID(ctx context.Context, id int64) (*models.LinkedAccount, error) {
	query := `SELECT ` + linkedAccountColumns + ` FROM linked_accounts WHERE id = $1`

	la, err := scanLinkedAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return la, nil
}

func (r *linkedAccountRepository) GetActiveByUserAndProvider(ctx context.Context, userID int64, provider string) (*models.LinkedAccount, error) {
	query := `SELECT ` + linkedAccountColumns + `
		FROM linked_accounts
		WHERE user_id = $1 AND provider = $2 AND status != $3
		ORDER BY id DESC LIMIT 1`

	la, err := scanLinkedAccount(r.db.QueryRowContext(ctx, query, userID, provider, models.AccountStatusRevoked))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return la, nil
}

func (r *linkedAccountRepository) listQuery(ctx context.Context, query string, args ...interface{}) ([]*models.LinkedAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.LinkedAccount
	for rows.Next() {
		la, err := scanLinkedAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, la)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return accounts, nil
}

func (r *linkedAccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.LinkedAccount, error) {
	query := `SELECT ` + linkedAccountColumns + `
		FROM linked_accounts
		WHERE user_id = $1 AND status != $2
		ORDER BY created_at`
	return r.listQuery(ctx, query, userID, models.AccountStatusRevoked)
}

func (r *linkedAccountRepository) ListAutoPostByUserID(ctx context.Context, userID int64) ([]*models.LinkedAccount, error) {
	query := `SELECT ` + linkedAccountColumns + `
		FROM linked_accounts
		WHERE user_id = $1 AND status = $2 AND auto_post = TRUE`
	return r.listQuery(ctx, query, userID, models.AccountStatusActive)
}

func (r *linkedAccountRepository) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*models.LinkedAccount, error) {
	query := `SELECT ` + linkedAccountColumns + `
		FROM linked_accounts
		WHERE status IN ($1, $2) AND token_expires_at IS NOT NULL AND token_expires_at < $3`
	return r.listQuery(ctx, query, models.AccountStatusActive, models.AccountStatusExpired, cutoff)
}

func (r *linkedAccountRepository) CountActiveByUserID(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM linked_accounts WHERE user_id = $1 AND status = $2`

	var count int
	err := r.db.QueryRowContext(ctx, query, userID, models.AccountStatusActive).Scan(&count)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return count, nil
}

func (r *linkedAccountRepository) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	query := `SELECT 1 FROM linked_accounts WHERE id = $1 AND user_id = $2`

	var result int
	err := r.db.QueryRowContext(ctx, query, accountID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}
	return result == 1, nil
}

func (r *linkedAccountRepository) UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	query := `
		UPDATE linked_accounts
		SET
			access_token = $2,
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			token_expires_at = $4,
			status = $5,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, accessToken, refreshToken, expiresAt, models.AccountStatusActive)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *linkedAccountRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE linked_accounts SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *linkedAccountRepository) UpdateProfile(ctx context.Context, id int64, la *models.LinkedAccount) error {
	query := `
		UPDATE linked_accounts
		SET
			account_id = $2,
			account_name = $3,
			account_username = $4,
			profile_picture_url = $5,
			access_token = $6,
			refresh_token = $7,
			token_secret = $8,
			token_expires_at = $9,
			status = $10,
			followers = $11,
			following = $12,
			posts_count = $13,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id,
		la.AccountID, la.AccountName, la.AccountUsername, la.ProfilePicture,
		la.AccessToken, la.RefreshToken, la.TokenSecret, la.TokenExpiresAt,
		la.Status, la.Followers, la.Following, la.PostsCount)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *linkedAccountRepository) UpdateMetrics(ctx context.Context, id int64, followers, following, posts int64) error {
	query := `
		UPDATE linked_accounts
		SET followers = $2, following = $3, posts_count = $4,
			last_synced_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, followers, following, posts)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *linkedAccountRepository) UpdateSettings(ctx context.Context, id int64, autoPost bool, contentFilters string) error {
	query := `
		UPDATE linked_accounts
		SET auto_post = $2, content_filters = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, autoPost, contentFilters)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
