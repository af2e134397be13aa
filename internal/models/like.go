package models

import "time"

// Like records that a user liked a post. The (UserID, PostID) pair is the
// primary key, so a user can like a given post at most once.
type Like struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	PostID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"post_id"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	CreatedAt time.Time `json:"liked_at"`
}

// TableName returns the likes pivot table name.
func (Like) TableName() string {
	return "post_user_likes"
}
