package models

import "time"

// PostedContent is one publish attempt of one outbound post against one
// linked account. Failed attempts are kept as audit records, never deleted.
type PostedContent struct {
	ID             int64      `db:"id" json:"id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	PostID         int64      `db:"post_id" json:"post_id"`
	AccountID      int64      `db:"account_id" json:"account_id"`
	Provider       string     `db:"provider" json:"provider"`
	ProviderPostID string     `db:"provider_post_id" json:"provider_post_id"`
	URL            string     `db:"url" json:"url"`
	Status         string     `db:"status" json:"status"`
	RetryCount     int        `db:"retry_count" json:"retry_count"`
	LastError      string     `db:"last_error" json:"last_error"`
	Likes          int64      `db:"likes" json:"likes"`
	Comments       int64      `db:"comments" json:"comments"`
	Shares         int64      `db:"shares" json:"shares"`
	Impressions    int64      `db:"impressions" json:"impressions"`
	ScheduledTime  *time.Time `db:"scheduled_time" json:"scheduled_time"`
	PostedAt       *time.Time `db:"posted_at" json:"posted_at"`
	MetricsSyncAt  *time.Time `db:"metrics_sync_at" json:"metrics_sync_at"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	PostedStatusQueued  = "queued"
	PostedStatusPosting = "posting"
	PostedStatusPosted  = "posted"
	PostedStatusFailed  = "failed"
	PostedStatusDeleted = "deleted"
)
