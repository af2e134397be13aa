package repository

import (
	"context"
	"strings"

	"quill/internal/cache"
	"quill/internal/models"
	"quill/internal/query"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	// GetByID loads a non-deleted post with author, category, tags and like
	// details for viewerID (0 for anonymous).
	GetByID(ctx context.Context, id uint, viewerID uint) (*models.Post, error)
	// GetForUpdate loads a non-deleted post and locks its row until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uint) (*models.Post, error)
	// GetWithTrashedForUpdate is GetForUpdate including soft-deleted posts.
	GetWithTrashedForUpdate(ctx context.Context, id uint) (*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	SoftDelete(ctx context.Context, id uint) error
	ForceDelete(ctx context.Context, id uint) error
	Search(ctx context.Context, q query.PostQuery, viewerID uint) ([]*models.Post, int64, error)
	CountByCategory(ctx context.Context, categoryID uint) (int64, error)
	ClearCategory(ctx context.Context, categoryID uint) error

	TagIDs(ctx context.Context, postID uint) ([]uint, error)
	AttachTags(ctx context.Context, postID uint, tagIDs []uint) (int64, error)
	DetachTags(ctx context.Context, postID uint, tagIDs []uint) (int64, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// cachedPost keeps the fields the public JSON hides.
type cachedPost struct {
	Post      models.Post `json:"post"`
	ImagePath *string     `json:"image_path"`
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error
	return translate(err, "Post", post.ID)
}

func (r *postRepository) GetByID(ctx context.Context, id uint, viewerID uint) (*models.Post, error) {
	load := func(dest *models.Post) error {
		err := r.withDetails(r.db.WithContext(ctx).Model(&models.Post{}), viewerID).
			Scopes(preloadPostRelations).
			First(dest, id).Error
		return translate(err, "Post", id)
	}

	if viewerID != 0 {
		var post models.Post
		if err := load(&post); err != nil {
			return nil, err
		}
		return &post, nil
	}

	var entry cachedPost
	err := cache.Aside(ctx, cache.PostKey(id), &entry, cache.PostTTL, func() error {
		if err := load(&entry.Post); err != nil {
			return err
		}
		entry.ImagePath = entry.Post.ImagePath
		return nil
	})
	if err != nil {
		return nil, err
	}
	entry.Post.ImagePath = entry.ImagePath
	return &entry.Post, nil
}

func (r *postRepository) GetForUpdate(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&post, id).Error
	if err != nil {
		return nil, translate(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) GetWithTrashedForUpdate(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Unscoped().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&post, id).Error
	if err != nil {
		return nil, translate(err, "Post", id)
	}
	return &post, nil
}

// Update writes the post's own columns; associations are managed separately.
func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Save(post).Error
	return translate(err, "Post", post.ID)
}

func (r *postRepository) SoftDelete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Post{}, id)
	if res.Error != nil {
		return translate(res.Error, "Post", id)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return nil
}

// ForceDelete permanently removes a post with its tag pivots, likes and comments.
func (r *postRepository) ForceDelete(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("post_id = ?", id).Delete(&models.PostTag{}).Error; err != nil {
		return translate(err, "Post", id)
	}
	if err := db.Where("post_id = ?", id).Delete(&models.Like{}).Error; err != nil {
		return translate(err, "Post", id)
	}
	if err := db.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
		return translate(err, "Post", id)
	}

	res := db.Unscoped().Delete(&models.Post{}, id)
	if res.Error != nil {
		return translate(res.Error, "Post", id)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return nil
}

// Search returns one page of posts matching q together with the total
// number of matches.
func (r *postRepository) Search(ctx context.Context, q query.PostQuery, viewerID uint) ([]*models.Post, int64, error) {
	var total int64
	if err := applyFilters(r.db.WithContext(ctx).Model(&models.Post{}), q).Count(&total).Error; err != nil {
		return nil, 0, translate(err, "Post", nil)
	}
	if total == 0 {
		return []*models.Post{}, 0, nil
	}

	tx := r.withDetails(applyFilters(r.db.WithContext(ctx).Model(&models.Post{}), q), viewerID)
	for _, term := range q.Sort.OrderBy() {
		tx = tx.Order(term)
	}

	var posts []*models.Post
	err := tx.Scopes(preloadPostRelations).
		Limit(q.PerPage).
		Offset(q.Offset()).
		Find(&posts).Error
	if err != nil {
		return nil, 0, translate(err, "Post", nil)
	}
	return posts, total, nil
}

// applyFilters adds the WHERE clauses of q. Soft-deleted rows are excluded
// by the model scope.
func applyFilters(db *gorm.DB, q query.PostQuery) *gorm.DB {
	db = db.Where("posts.status = ?", q.Status)
	if q.OwnerID != nil {
		db = db.Where("posts.user_id = ?", *q.OwnerID)
	}
	if text := strings.TrimSpace(q.Text); text != "" {
		like := "%" + escapeLike(strings.ToLower(text)) + "%"
		db = db.Where(`(LOWER(posts.title) LIKE ? ESCAPE '\' OR LOWER(posts.body) LIKE ? ESCAPE '\')`, like, like)
	}
	if q.CategoryID != nil {
		db = db.Where("posts.category_id = ?", *q.CategoryID)
	}
	if q.AuthorID != nil {
		db = db.Where("posts.user_id = ?", *q.AuthorID)
	}
	if len(q.TagIDs) > 0 {
		db = db.Where("EXISTS (SELECT 1 FROM post_tag WHERE post_tag.post_id = posts.id AND post_tag.tag_id IN ?)", q.TagIDs)
	}
	if q.From != nil {
		db = db.Where("posts.created_at >= ?", *q.From)
	}
	if q.To != nil {
		db = db.Where("posts.created_at <= ?", *q.To)
	}
	return db
}

// withDetails selects the like count and whether viewerID liked each post.
func (r *postRepository) withDetails(db *gorm.DB, viewerID uint) *gorm.DB {
	selectQuery := "posts.*, " +
		"(SELECT COUNT(*) FROM post_user_likes WHERE post_user_likes.post_id = posts.id) AS likes_count"

	if viewerID != 0 {
		return db.Select(selectQuery+", EXISTS(SELECT 1 FROM post_user_likes WHERE post_user_likes.post_id = posts.id AND post_user_likes.user_id = ?) AS liked", viewerID)
	}
	return db.Select(selectQuery + ", false AS liked")
}

func preloadPostRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("User").
		Preload("Category").
		Preload("Tags", func(db *gorm.DB) *gorm.DB {
			return db.Order("tags.name ASC")
		})
}

func (r *postRepository) CountByCategory(ctx context.Context, categoryID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("category_id = ?", categoryID).
		Count(&count).Error
	return count, translate(err, "Category", categoryID)
}

// ClearCategory detaches every post, trashed ones included, from categoryID.
func (r *postRepository) ClearCategory(ctx context.Context, categoryID uint) error {
	err := r.db.WithContext(ctx).
		Unscoped().
		Model(&models.Post{}).
		Where("category_id = ?", categoryID).
		Update("category_id", nil).Error
	return translate(err, "Category", categoryID)
}
