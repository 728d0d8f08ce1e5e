package models

import (
	"time"
)

// LinkedAccount is one user's authorization grant to one external platform.
// Access and refresh tokens are stored AES-GCM encrypted.
type LinkedAccount struct {
	ID              int64      `db:"id" json:"id"`
	UserID          int64      `db:"user_id" json:"user_id"`
	Provider        string     `db:"provider" json:"provider"`
	AccountID       string     `db:"account_id" json:"account_id"`
	AccountName     string     `db:"account_name" json:"account_name"`
	AccountUsername string     `db:"account_username" json:"account_username"`
	ProfilePicture  string     `db:"profile_picture_url" json:"profile_picture"`
	AccessToken     string     `db:"access_token" json:"-"`
	RefreshToken    string     `db:"refresh_token" json:"-"`
	TokenSecret     string     `db:"token_secret" json:"-"`
	TokenExpiresAt  *time.Time `db:"token_expires_at" json:"token_expires_at"`
	Status          string     `db:"status" json:"status"`
	Followers       int64      `db:"followers" json:"followers"`
	Following       int64      `db:"following" json:"following"`
	PostsCount      int64      `db:"posts_count" json:"posts_count"`
	AutoPost        bool       `db:"auto_post" json:"auto_post"`
	ContentFilters  string     `db:"content_filters" json:"content_filters"`
	LastSyncedAt    *time.Time `db:"last_synced_at" json:"last_synced_at"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	AccountStatusPending = "pending"
	AccountStatusActive  = "active"
	AccountStatusExpired = "expired"
	AccountStatusError   = "error"
	AccountStatusRevoked = "revoked"
)
