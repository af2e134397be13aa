// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"quill/internal/database"
	"quill/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory SQLite database with the full schema.
// Timestamps are stored in UTC.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:quill_test_%d?mode=memory&cache=shared&_foreign_keys=1", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection so transactions and the in-memory schema are shared
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.RegisterJoinTables(db))
	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

// CreateUser inserts a user with the given role and fake identity.
func CreateUser(t *testing.T, db *gorm.DB, role models.Role) *models.User {
	t.Helper()
	user := &models.User{
		Name:     gofakeit.Name(),
		Email:    fmt.Sprintf("%d.%s", dbSeq.Add(1), gofakeit.Email()),
		Password: "not-a-real-hash",
		Role:     role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// PostOption customizes CreatePost.
type PostOption func(*models.Post)

// WithStatus sets the post status, stamping published_at when published.
func WithStatus(status models.PostStatus) PostOption {
	return func(p *models.Post) {
		p.ApplyStatus(status, time.Now().UTC())
	}
}

// WithCategory sets the post category.
func WithCategory(id uint) PostOption {
	return func(p *models.Post) { p.CategoryID = &id }
}

// WithCreatedAt pins created_at.
func WithCreatedAt(at time.Time) PostOption {
	return func(p *models.Post) { p.CreatedAt = at.UTC() }
}

// WithTitle sets the post title.
func WithTitle(title string) PostOption {
	return func(p *models.Post) { p.Title = title }
}

// WithBody sets the post body.
func WithBody(body string) PostOption {
	return func(p *models.Post) { p.Body = body }
}

// CreatePost inserts a draft post by author unless options say otherwise.
func CreatePost(t *testing.T, db *gorm.DB, author *models.User, opts ...PostOption) *models.Post {
	t.Helper()
	post := &models.Post{
		Title:  gofakeit.Sentence(5),
		Body:   gofakeit.Paragraph(1, 3, 12, " "),
		Status: models.PostStatusDraft,
		UserID: author.ID,
	}
	for _, opt := range opts {
		opt(post)
	}
	require.NoError(t, db.Omit("User", "Category", "Tags").Create(post).Error)
	return post
}

// CreateCategory inserts a category with a derived slug.
func CreateCategory(t *testing.T, db *gorm.DB, name string) *models.Category {
	t.Helper()
	category := &models.Category{Name: name, Slug: models.DeriveSlug(name)}
	require.NoError(t, db.Create(category).Error)
	return category
}

// CreateTag inserts a tag with a derived slug.
func CreateTag(t *testing.T, db *gorm.DB, name string) *models.Tag {
	t.Helper()
	tag := &models.Tag{Name: name, Slug: models.DeriveSlug(name)}
	require.NoError(t, db.Create(tag).Error)
	return tag
}

// AttachTag links post and tag directly.
func AttachTag(t *testing.T, db *gorm.DB, postID, tagID uint) {
	t.Helper()
	require.NoError(t, db.Create(&models.PostTag{PostID: postID, TagID: tagID}).Error)
}

// Like records a like directly.
func Like(t *testing.T, db *gorm.DB, userID, postID uint) {
	t.Helper()
	require.NoError(t, db.Create(&models.Like{UserID: userID, PostID: postID}).Error)
}
