package models

import "time"

// OutboundPost is the logical, platform-agnostic content to be published.
type OutboundPost struct {
	ID            int64      `db:"id" json:"id"`
	UserID        int64      `db:"user_id" json:"user_id"`
	Text          string     `db:"text" json:"text"`
	Title         string     `db:"title" json:"title"`
	SourceID      string     `db:"source_id" json:"source_id"`
	ScheduledTime *time.Time `db:"scheduled_time" json:"scheduled_time"`
	Timezone      string     `db:"timezone" json:"timezone"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`

	Media []MediaItem `db:"-" json:"media"`
}

// MediaItem is one ordered attachment of an outbound post. The first item
// is the primary attachment.
type MediaItem struct {
	ID           int64     `db:"id" json:"id"`
	PostID       int64     `db:"post_id" json:"post_id"`
	MediaType    string    `db:"media_type" json:"media_type"`
	URL          string    `db:"url" json:"url"`
	AltText      string    `db:"alt_text" json:"alt_text"`
	DisplayOrder int       `db:"display_order" json:"display_order"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type MediaAsset struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	FileName  string    `db:"file_name" json:"file_name"`
	FileType  string    `db:"file_type" json:"file_type"`
	FileSize  int64     `db:"file_size" json:"file_size"`
	FileURL   string    `db:"file_url" json:"file_url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)
