package models

import (
	"time"

	"gorm.io/gorm"
)

// PostStatus is the publication state of a post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusPublished PostStatus = "published"
)

// Valid reports whether s is a known status.
func (s PostStatus) Valid() bool {
	return s == PostStatusDraft || s == PostStatusPublished
}

// Post represents a blog post.
type Post struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Body        string     `gorm:"type:text;not null" json:"body"`
	Status      PostStatus `gorm:"type:varchar(16);not null;default:draft;index" json:"status"`
	PublishedAt *time.Time `json:"published_at"`
	UserID      uint       `gorm:"not null;index" json:"author_id"`
	User        *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"author,omitempty"`
	CategoryID  *uint      `gorm:"index" json:"category_id"`
	Category    *Category  `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"category,omitempty"`
	ImagePath   *string    `gorm:"size:255" json:"-"`
	Tags        []Tag      `gorm:"many2many:post_tag;" json:"tags"`
	// ImageURL is resolved from ImagePath by the blob store; not persisted
	ImageURL string `gorm:"-" json:"image_url,omitempty"`
	// LikesCount is not persisted; computed at query time
	LikesCount int `gorm:"->;-:migration" json:"likes_count"`
	// Liked indicates whether the current requesting user liked this post (computed)
	Liked     bool           `gorm:"->;-:migration" json:"liked"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ApplyStatus moves the post to status and stamps PublishedAt on every
// transition into published. PublishedAt is never cleared.
func (p *Post) ApplyStatus(status PostStatus, now time.Time) {
	if status == PostStatusPublished && p.Status != PostStatusPublished {
		stamp := now
		p.PublishedAt = &stamp
	}
	p.Status = status
}

// IsPublished reports whether the post is currently published.
func (p *Post) IsPublished() bool {
	return p.Status == PostStatusPublished
}

// PostTag is the post/tag association. CreatedAt records when the tag was
// first attached and survives re-syncs that keep the tag.
type PostTag struct {
	PostID    uint      `gorm:"primaryKey;autoIncrement:false"`
	TagID     uint      `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the join table name shared with Post.Tags.
func (PostTag) TableName() string {
	return "post_tag"
}
