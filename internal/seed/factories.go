// Package seed creates demo data for development databases. It is not used
// by the API at runtime.
package seed

import (
	"fmt"
	"strings"
	"time"

	"quill/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPassword is the password of every seeded user.
const DefaultPassword = "password123"

// Factory builds domain entities and persists them.
type Factory struct {
	db       *gorm.DB
	faker    *gofakeit.Faker
	password string
}

// NewFactory returns a Factory writing to db. A zero seed picks a random one.
func NewFactory(db *gorm.DB, seed int64) (*Factory, error) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// hash once; bcrypt per user dominates seeding time otherwise
	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}
	return &Factory{db: db, faker: gofakeit.New(seed), password: string(hashed)}, nil
}

// CreateUser persists a user with a fake identity and the default password.
func (f *Factory) CreateUser(role models.Role, overrides ...func(*models.User)) (*models.User, error) {
	user := &models.User{
		Name:     f.faker.Name(),
		Email:    strings.ToLower(fmt.Sprintf("%s.%d@%s", f.faker.Username(), f.faker.Number(100, 99999), f.faker.DomainName())),
		Password: f.password,
		Role:     role,
	}
	for _, override := range overrides {
		override(user)
	}
	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateCategory persists a category named name, or returns the existing one.
func (f *Factory) CreateCategory(name string) (*models.Category, error) {
	category := models.Category{Name: name, Slug: models.DeriveSlug(name)}
	description := f.faker.Sentence(8)
	category.Description = &description
	if err := f.db.Where(models.Category{Slug: category.Slug}).FirstOrCreate(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

// CreateTag persists a tag named name, or returns the existing one.
func (f *Factory) CreateTag(name string) (*models.Tag, error) {
	tag := models.Tag{Name: name, Slug: models.DeriveSlug(name)}
	if err := f.db.Where(models.Tag{Slug: tag.Slug}).FirstOrCreate(&tag).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

// BuildPost returns an unsaved post by author. Roughly three in four posts are
// published, with a publish date in the past year.
func (f *Factory) BuildPost(author *models.User, categories []models.Category) *models.Post {
	post := &models.Post{
		Title:  strings.TrimSuffix(f.faker.Sentence(f.faker.Number(3, 8)), "."),
		Body:   f.faker.Paragraph(f.faker.Number(2, 5), f.faker.Number(3, 6), 12, "\n\n"),
		UserID: author.ID,
	}
	if len(categories) > 0 && f.faker.Number(1, 5) > 1 {
		id := categories[f.faker.Number(0, len(categories)-1)].ID
		post.CategoryID = &id
	}

	status := models.PostStatusDraft
	if f.faker.Number(1, 4) > 1 {
		status = models.PostStatusPublished
	}
	created := f.faker.DateRange(time.Now().AddDate(-1, 0, 0), time.Now()).UTC()
	post.ApplyStatus(status, created)
	post.CreatedAt = created
	post.UpdatedAt = created
	return post
}

// CreatePost persists a post built by BuildPost and tags it.
func (f *Factory) CreatePost(author *models.User, categories []models.Category, tags []models.Tag) (*models.Post, error) {
	post := f.BuildPost(author, categories)
	if err := f.db.Omit(clause.Associations).Create(post).Error; err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return post, nil
	}

	count := f.faker.Number(0, min(3, len(tags)))
	seen := make(map[uint]bool, count)
	var pivots []models.PostTag
	for range count {
		tag := tags[f.faker.Number(0, len(tags)-1)]
		if seen[tag.ID] {
			continue
		}
		seen[tag.ID] = true
		pivots = append(pivots, models.PostTag{PostID: post.ID, TagID: tag.ID})
	}
	if len(pivots) > 0 {
		if err := f.db.Create(&pivots).Error; err != nil {
			return nil, err
		}
	}
	return post, nil
}

// CreateComment persists a comment by author on post.
func (f *Factory) CreateComment(author *models.User, post *models.Post) (*models.Comment, error) {
	comment := &models.Comment{
		Body:   f.faker.Sentence(f.faker.Number(4, 16)),
		PostID: post.ID,
		UserID: author.ID,
	}
	if err := f.db.Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// CreateLike records that user likes post. Existing likes are kept.
func (f *Factory) CreateLike(user *models.User, post *models.Post) error {
	return f.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Like{UserID: user.ID, PostID: post.ID}).Error
}
