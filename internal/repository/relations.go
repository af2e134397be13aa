package repository

import (
	"context"
	"time"

	"quill/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TagIDs returns the ids of the tags attached to postID in ascending order.
func (r *postRepository) TagIDs(ctx context.Context, postID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.PostTag{}).
		Where("post_id = ?", postID).
		Order("tag_id ASC").
		Pluck("tag_id", &ids).Error
	if err != nil {
		return nil, translate(err, "Post", postID)
	}
	return ids, nil
}

// AttachTags inserts the missing pivots and returns how many were new.
// Existing pivots, and their created_at, are left untouched.
func (r *postRepository) AttachTags(ctx context.Context, postID uint, tagIDs []uint) (int64, error) {
	if len(tagIDs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([]models.PostTag, 0, len(tagIDs))
	for _, id := range tagIDs {
		rows = append(rows, models.PostTag{PostID: postID, TagID: id, CreatedAt: now, UpdatedAt: now})
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows)
	if res.Error != nil {
		return 0, translate(res.Error, "Post", postID)
	}
	return res.RowsAffected, nil
}

// DetachTags deletes the given pivots and returns how many existed.
func (r *postRepository) DetachTags(ctx context.Context, postID uint, tagIDs []uint) (int64, error) {
	if len(tagIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("post_id = ? AND tag_id IN ?", postID, tagIDs).
		Delete(&models.PostTag{})
	if res.Error != nil {
		return 0, translate(res.Error, "Post", postID)
	}
	return res.RowsAffected, nil
}

// LikeRepository manages the post_user_likes pivot.
type LikeRepository interface {
	// Add inserts the like and reports whether it was new.
	Add(ctx context.Context, userID, postID uint) (bool, error)
	// Remove deletes the like and reports whether it existed.
	Remove(ctx context.Context, userID, postID uint) (bool, error)
	ListByPost(ctx context.Context, postID uint, page, perPage int) ([]models.Like, int64, error)
}

type likeRepository struct {
	db *gorm.DB
}

// NewLikeRepository creates a new LikeRepository
func NewLikeRepository(db *gorm.DB) LikeRepository {
	return &likeRepository{db: db}
}

func (r *likeRepository) Add(ctx context.Context, userID, postID uint) (bool, error) {
	// the primary key makes concurrent duplicates a no-op instead of an error
	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO post_user_likes (user_id, post_id, created_at) VALUES (?, ?, ?) ON CONFLICT (user_id, post_id) DO NOTHING`,
		userID, postID, time.Now().UTC(),
	)
	if res.Error != nil {
		return false, translate(res.Error, "Like", postID)
	}
	return res.RowsAffected > 0, nil
}

func (r *likeRepository) Remove(ctx context.Context, userID, postID uint) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`DELETE FROM post_user_likes WHERE user_id = ? AND post_id = ?`,
		userID, postID,
	)
	if res.Error != nil {
		return false, translate(res.Error, "Like", postID)
	}
	return res.RowsAffected > 0, nil
}

func (r *likeRepository) ListByPost(ctx context.Context, postID uint, page, perPage int) ([]models.Like, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Like{}).Where("post_id = ?", postID).Count(&total).Error; err != nil {
		return nil, 0, translate(err, "Like", postID)
	}

	limit, offset := paginate(page, perPage)
	var likes []models.Like
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("post_id = ?", postID).
		Order("created_at DESC").
		Order("user_id ASC").
		Limit(limit).
		Offset(offset).
		Find(&likes).Error
	if err != nil {
		return nil, 0, translate(err, "Like", postID)
	}
	return likes, total, nil
}
