package seed

import (
	"context"
	"fmt"
	"log/slog"

	"quill/internal/middleware"
	"quill/internal/models"

	"gorm.io/gorm"
)

// Options configures a seeding run.
type Options struct {
	NumUsers    int
	NumPosts    int
	ShouldClean bool
	// Seed makes runs reproducible; zero picks a random seed
	Seed int64
}

// Summary counts what a run created.
type Summary struct {
	Users      int
	Categories int
	Tags       int
	Posts      int
	Comments   int
	Likes      int
}

var (
	categoryNames = []string{
		"Engineering", "Product", "Design", "Culture", "Tutorials",
		"Announcements", "Opinion", "Case Studies",
	}
	tagNames = []string{
		"go", "postgres", "redis", "performance", "testing", "security",
		"devops", "career", "open source", "architecture", "frontend", "api",
	}
)

// Seed populates db with users, taxonomy, posts, comments and likes. The
// first two users are an admin and an editor.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Summary, error) {
	logger := middleware.Logger
	logger.InfoContext(ctx, "seeding database", "users", opts.NumUsers, "posts", opts.NumPosts, "clean", opts.ShouldClean)

	db = db.WithContext(ctx)
	if opts.ShouldClean {
		if err := ClearData(db); err != nil {
			return nil, fmt.Errorf("clear data: %w", err)
		}
	}

	f, err := NewFactory(db, opts.Seed)
	if err != nil {
		return nil, err
	}
	summary := &Summary{}

	users := make([]*models.User, 0, max(opts.NumUsers, 2))
	for i := range max(opts.NumUsers, 2) {
		role := models.RoleUser
		switch i {
		case 0:
			role = models.RoleAdmin
		case 1:
			role = models.RoleEditor
		}
		user, err := f.CreateUser(role)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		users = append(users, user)
	}
	summary.Users = len(users)

	categories := make([]models.Category, 0, len(categoryNames))
	for _, name := range categoryNames {
		category, err := f.CreateCategory(name)
		if err != nil {
			return nil, fmt.Errorf("create category %q: %w", name, err)
		}
		categories = append(categories, *category)
	}
	summary.Categories = len(categories)

	tags := make([]models.Tag, 0, len(tagNames))
	for _, name := range tagNames {
		tag, err := f.CreateTag(name)
		if err != nil {
			return nil, fmt.Errorf("create tag %q: %w", name, err)
		}
		tags = append(tags, *tag)
	}
	summary.Tags = len(tags)

	for range opts.NumPosts {
		author := users[f.faker.Number(0, len(users)-1)]
		post, err := f.CreatePost(author, categories, tags)
		if err != nil {
			return nil, fmt.Errorf("create post: %w", err)
		}
		summary.Posts++

		// only published posts take comments and likes
		if !post.IsPublished() {
			continue
		}
		for range f.faker.Number(0, 4) {
			if _, err := f.CreateComment(users[f.faker.Number(0, len(users)-1)], post); err != nil {
				return nil, fmt.Errorf("create comment: %w", err)
			}
			summary.Comments++
		}
		for _, user := range users {
			if f.faker.Number(1, 5) != 1 {
				continue
			}
			if err := f.CreateLike(user, post); err != nil {
				return nil, fmt.Errorf("create like: %w", err)
			}
			summary.Likes++
		}
	}

	logger.InfoContext(ctx, "seeding complete",
		slog.Int("users", summary.Users),
		slog.Int("posts", summary.Posts),
		slog.Int("comments", summary.Comments),
		slog.Int("likes", summary.Likes),
	)
	return summary, nil
}

// ClearData removes every row the seeder can create, children first.
func ClearData(db *gorm.DB) error {
	for _, model := range []any{
		&models.Like{},
		&models.Comment{},
		&models.PostTag{},
		&models.Post{},
		&models.Tag{},
		&models.Category{},
		&models.User{},
	} {
		// A fresh session per model keeps the statement from carrying the previous table.
		tx := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped()
		if err := tx.Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}
