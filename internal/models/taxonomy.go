package models

import "time"

// Category groups posts. A post belongs to at most one category.
type Category struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Name        string  `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Slug        string  `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Description *string `gorm:"type:text" json:"description"`
	// PostsCount is only populated when counts are requested
	PostsCount *int64    `gorm:"->;-:migration" json:"posts_count,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Tag labels posts through the post_tag association.
type Tag struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Slug string `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	// PostsCount is only populated when counts are requested
	PostsCount *int64    `gorm:"->;-:migration" json:"posts_count,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
