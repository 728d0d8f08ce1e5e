package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/relaypost/relaypost/internal/models"
)

type OutboundPostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.OutboundPost) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.OutboundPost, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.OutboundPost, error)
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	AddMedia(ctx context.Context, tx *sql.Tx, item *models.MediaItem) error
	ListMedia(ctx context.Context, postID int64) ([]models.MediaItem, error)
}

type outboundPostRepository struct {
	db *sql.DB
}

func NewOutboundPostRepository(db *sql.DB) OutboundPostRepository {
	return &outboundPostRepository{db: db}
}

func (r *outboundPostRepository) Create(ctx context.Context, tx *sql.Tx, post *models.OutboundPost) (int64, error) {
	query := `
		INSERT INTO outbound_posts(user_id, text, title, source_id, scheduled_time, timezone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var err error
	var id int64
	if tx != nil {
		err = tx.QueryRowContext(ctx, query,
			post.UserID, post.Text, post.Title, post.SourceID, post.ScheduledTime, post.Timezone).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query,
			post.UserID, post.Text, post.Title, post.SourceID, post.ScheduledTime, post.Timezone).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *outboundPostRepository) GetByID(ctx context.Context, id int64) (*models.OutboundPost, error) {
	query := `
		SELECT id, user_id, text, title, source_id, scheduled_time, timezone, created_at, updated_at
		FROM outbound_posts WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var post models.OutboundPost
	err := row.Scan(&post.ID, &post.UserID, &post.Text, &post.Title, &post.SourceID,
		&post.ScheduledTime, &post.Timezone, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	media, err := r.ListMedia(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	post.Media = media

	return &post, nil
}

func (r *outboundPostRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.OutboundPost, error) {
	query := `
		SELECT id, user_id, text, title, source_id, scheduled_time, timezone, created_at, updated_at
		FROM outbound_posts WHERE user_id = $1 ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.OutboundPost
	for rows.Next() {
		var post models.OutboundPost
		err := rows.Scan(&post.ID, &post.UserID, &post.Text, &post.Title, &post.SourceID,
			&post.ScheduledTime, &post.Timezone, &post.CreatedAt, &post.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, &post)
	}
	return posts, rows.Err()
}

func (r *outboundPostRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := `SELECT 1 FROM outbound_posts WHERE id = $1 AND user_id = $2`

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}
	return result == 1, nil
}

func (r *outboundPostRepository) AddMedia(ctx context.Context, tx *sql.Tx, item *models.MediaItem) error {
	query := `
		INSERT INTO post_media(post_id, media_type, url, alt_text, display_order)
		VALUES ($1, $2, $3, $4, $5)
	`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, item.PostID, item.MediaType, item.URL, item.AltText, item.DisplayOrder)
	} else {
		_, err = r.db.ExecContext(ctx, query, item.PostID, item.MediaType, item.URL, item.AltText, item.DisplayOrder)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// ListMedia returns a post's media in display order; order is significant,
// the first item is the primary attachment.
func (r *outboundPostRepository) ListMedia(ctx context.Context, postID int64) ([]models.MediaItem, error) {
	query := `
		SELECT id, post_id, media_type, url, alt_text, display_order, created_at
		FROM post_media WHERE post_id = $1 ORDER BY display_order
	`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var items []models.MediaItem
	for rows.Next() {
		var item models.MediaItem
		err := rows.Scan(&item.ID, &item.PostID, &item.MediaType, &item.URL,
			&item.AltText, &item.DisplayOrder, &item.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
