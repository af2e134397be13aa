package repository

import (
	"context"

	"quill/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CategoryListOptions controls category listings.
type CategoryListOptions struct {
	WithCount bool
	// SortBy is "name" (default) or "created_at".
	SortBy string
}

// CategoryRepository defines persistence operations for categories.
type CategoryRepository interface {
	Create(ctx context.Context, category *models.Category) error
	GetByID(ctx context.Context, id uint, withCount bool) (*models.Category, error)
	// GetForUpdate loads the category under an exclusive row lock held until
	// the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uint) (*models.Category, error)
	// GetForShare loads the category under a shared row lock, blocking a
	// concurrent GetForUpdate until the transaction ends.
	GetForShare(ctx context.Context, id uint) (*models.Category, error)
	List(ctx context.Context, opts CategoryListOptions) ([]models.Category, error)
	Update(ctx context.Context, category *models.Category) error
	Delete(ctx context.Context, id uint) error
}

type categoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository returns a new CategoryRepository implementation.
func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

const categoryPostsCount = "(SELECT COUNT(*) FROM posts WHERE posts.category_id = categories.id AND posts.deleted_at IS NULL) AS posts_count"

func (r *categoryRepository) Create(ctx context.Context, category *models.Category) error {
	return translate(r.db.WithContext(ctx).Create(category).Error, "Category", category.Name)
}

func (r *categoryRepository) GetByID(ctx context.Context, id uint, withCount bool) (*models.Category, error) {
	db := r.db.WithContext(ctx).Model(&models.Category{})
	if withCount {
		db = db.Select("categories.*, " + categoryPostsCount)
	}

	var category models.Category
	if err := db.First(&category, id).Error; err != nil {
		return nil, translate(err, "Category", id)
	}
	return &category, nil
}

func (r *categoryRepository) GetForUpdate(ctx context.Context, id uint) (*models.Category, error) {
	return r.getLocked(ctx, id, clause.LockingStrengthUpdate)
}

func (r *categoryRepository) GetForShare(ctx context.Context, id uint) (*models.Category, error) {
	return r.getLocked(ctx, id, clause.LockingStrengthShare)
}

func (r *categoryRepository) getLocked(ctx context.Context, id uint, strength string) (*models.Category, error) {
	var category models.Category
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: strength}).
		First(&category, id).Error
	if err != nil {
		return nil, translate(err, "Category", id)
	}
	return &category, nil
}

func (r *categoryRepository) List(ctx context.Context, opts CategoryListOptions) ([]models.Category, error) {
	db := r.db.WithContext(ctx).Model(&models.Category{})
	if opts.WithCount {
		db = db.Select("categories.*, " + categoryPostsCount)
	}
	switch opts.SortBy {
	case "created_at":
		db = db.Order("categories.created_at DESC").Order("categories.id DESC")
	default:
		db = db.Order("categories.name ASC")
	}

	var categories []models.Category
	if err := db.Find(&categories).Error; err != nil {
		return nil, translate(err, "Category", nil)
	}
	return categories, nil
}

func (r *categoryRepository) Update(ctx context.Context, category *models.Category) error {
	return translate(r.db.WithContext(ctx).Save(category).Error, "Category", category.ID)
}

func (r *categoryRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Category{}, id)
	if res.Error != nil {
		return translate(res.Error, "Category", id)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Category", id)
	}
	return nil
}
