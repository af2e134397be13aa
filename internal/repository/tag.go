package repository

import (
	"context"

	"quill/internal/models"

	"gorm.io/gorm"
)

// TagRepository defines persistence operations for tags.
type TagRepository interface {
	Create(ctx context.Context, tag *models.Tag) error
	GetByID(ctx context.Context, id uint, withCount bool) (*models.Tag, error)
	List(ctx context.Context, withCount bool) ([]models.Tag, error)
	// MostUsed returns the limit tags attached to the most non-deleted posts.
	MostUsed(ctx context.Context, limit int) ([]models.Tag, error)
	// ExistingIDs returns the subset of ids that name existing tags.
	ExistingIDs(ctx context.Context, ids []uint) ([]uint, error)
	Update(ctx context.Context, tag *models.Tag) error
	// Delete removes the tag and its post associations and returns the ids
	// of the posts that lost the tag.
	Delete(ctx context.Context, id uint) ([]uint, error)
}

type tagRepository struct {
	db *gorm.DB
}

// NewTagRepository returns a new TagRepository implementation.
func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

const tagPostsCount = "(SELECT COUNT(*) FROM post_tag JOIN posts ON posts.id = post_tag.post_id " +
	"WHERE post_tag.tag_id = tags.id AND posts.deleted_at IS NULL) AS posts_count"

func (r *tagRepository) Create(ctx context.Context, tag *models.Tag) error {
	return translate(r.db.WithContext(ctx).Create(tag).Error, "Tag", tag.Name)
}

func (r *tagRepository) GetByID(ctx context.Context, id uint, withCount bool) (*models.Tag, error) {
	db := r.db.WithContext(ctx).Model(&models.Tag{})
	if withCount {
		db = db.Select("tags.*, " + tagPostsCount)
	}

	var tag models.Tag
	if err := db.First(&tag, id).Error; err != nil {
		return nil, translate(err, "Tag", id)
	}
	return &tag, nil
}

func (r *tagRepository) List(ctx context.Context, withCount bool) ([]models.Tag, error) {
	db := r.db.WithContext(ctx).Model(&models.Tag{})
	if withCount {
		db = db.Select("tags.*, " + tagPostsCount)
	}

	var tags []models.Tag
	if err := db.Order("tags.name ASC").Find(&tags).Error; err != nil {
		return nil, translate(err, "Tag", nil)
	}
	return tags, nil
}

func (r *tagRepository) MostUsed(ctx context.Context, limit int) ([]models.Tag, error) {
	var tags []models.Tag
	err := r.db.WithContext(ctx).
		Model(&models.Tag{}).
		Select("tags.*, " + tagPostsCount).
		Order("posts_count DESC").
		Order("tags.name ASC").
		Limit(limit).
		Find(&tags).Error
	if err != nil {
		return nil, translate(err, "Tag", nil)
	}
	return tags, nil
}

func (r *tagRepository) ExistingIDs(ctx context.Context, ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return []uint{}, nil
	}
	var found []uint
	err := r.db.WithContext(ctx).
		Model(&models.Tag{}).
		Where("id IN ?", ids).
		Order("id ASC").
		Pluck("id", &found).Error
	if err != nil {
		return nil, translate(err, "Tag", nil)
	}
	return found, nil
}

func (r *tagRepository) Update(ctx context.Context, tag *models.Tag) error {
	return translate(r.db.WithContext(ctx).Save(tag).Error, "Tag", tag.ID)
}

func (r *tagRepository) Delete(ctx context.Context, id uint) ([]uint, error) {
	db := r.db.WithContext(ctx)
	var postIDs []uint
	err := db.Model(&models.PostTag{}).
		Where("tag_id = ?", id).
		Order("post_id ASC").
		Pluck("post_id", &postIDs).Error
	if err != nil {
		return nil, translate(err, "Tag", id)
	}
	if err := db.Where("tag_id = ?", id).Delete(&models.PostTag{}).Error; err != nil {
		return nil, translate(err, "Tag", id)
	}
	res := db.Delete(&models.Tag{}, id)
	if res.Error != nil {
		return nil, translate(res.Error, "Tag", id)
	}
	if res.RowsAffected == 0 {
		return nil, models.NewNotFoundError("Tag", id)
	}
	return postIDs, nil
}
