package repository

import (
	"context"
	"testing"

	"quill/internal/models"
	"quill/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryRepository(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewCategoryRepository(db)
	posts := NewPostRepository(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, models.RoleUser)
	tech := testutil.CreateCategory(t, db, "Tech")
	art := testutil.CreateCategory(t, db, "Art")
	testutil.CreatePost(t, db, author, testutil.WithCategory(tech.ID))
	trashed := testutil.CreatePost(t, db, author, testutil.WithCategory(tech.ID))
	require.NoError(t, posts.SoftDelete(ctx, trashed.ID))

	t.Run("list sorted by name with counts", func(t *testing.T) {
		got, err := repo.List(ctx, CategoryListOptions{WithCount: true})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Art", got[0].Name)
		require.NotNil(t, got[1].PostsCount)
		assert.EqualValues(t, 1, *got[1].PostsCount)
	})

	t.Run("list without counts", func(t *testing.T) {
		got, err := repo.List(ctx, CategoryListOptions{SortBy: "created_at"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, art.ID, got[0].ID)
		assert.Nil(t, got[0].PostsCount)
	})

	t.Run("get with count", func(t *testing.T) {
		got, err := repo.GetByID(ctx, tech.ID, true)
		require.NoError(t, err)
		require.NotNil(t, got.PostsCount)
		assert.EqualValues(t, 1, *got.PostsCount)
	})

	t.Run("duplicate name is a conflict", func(t *testing.T) {
		err := repo.Create(ctx, &models.Category{Name: "Tech", Slug: "tech-2"})
		assert.True(t, models.IsCode(err, models.CodeConflict))
	})

	t.Run("delete missing", func(t *testing.T) {
		err := repo.Delete(ctx, 9999)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})
}

func TestCategoryRepository_RowLocks(t *testing.T) {
	tests := []struct {
		name   string
		get    func(CategoryRepository) (*models.Category, error)
		suffix string
	}{
		{
			name:   "for update",
			get:    func(r CategoryRepository) (*models.Category, error) { return r.GetForUpdate(context.Background(), 4) },
			suffix: `FOR UPDATE$`,
		},
		{
			name:   "for share",
			get:    func(r CategoryRepository) (*models.Category, error) { return r.GetForShare(context.Background(), 4) },
			suffix: `FOR SHARE$`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			mock.ExpectQuery(`SELECT \* FROM "categories" WHERE "categories"\."id" = \$1 .*` + tt.suffix).
				WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug"}).AddRow(4, "News", "news"))

			got, err := tt.get(NewCategoryRepository(db))
			require.NoError(t, err)
			assert.Equal(t, "news", got.Slug)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("missing row", func(t *testing.T) {
		db := testutil.NewDB(t)
		_, err := NewCategoryRepository(db).GetForUpdate(context.Background(), 999)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})
}

func TestTagRepository(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewTagRepository(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, models.RoleUser)
	p1 := testutil.CreatePost(t, db, author)
	p2 := testutil.CreatePost(t, db, author)
	popular := testutil.CreateTag(t, db, "popular")
	rare := testutil.CreateTag(t, db, "rare")
	unused := testutil.CreateTag(t, db, "unused")
	testutil.AttachTag(t, db, p1.ID, popular.ID)
	testutil.AttachTag(t, db, p2.ID, popular.ID)
	testutil.AttachTag(t, db, p2.ID, rare.ID)

	t.Run("most used", func(t *testing.T) {
		got, err := repo.MostUsed(ctx, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, popular.ID, got[0].ID)
		assert.EqualValues(t, 2, *got[0].PostsCount)
		assert.Equal(t, rare.ID, got[1].ID)
	})

	t.Run("existing ids", func(t *testing.T) {
		got, err := repo.ExistingIDs(ctx, []uint{unused.ID, 9999, popular.ID})
		require.NoError(t, err)
		assert.Equal(t, []uint{popular.ID, unused.ID}, got)
	})

	t.Run("delete cascades pivots", func(t *testing.T) {
		detached, err := repo.Delete(ctx, popular.ID)
		require.NoError(t, err)
		assert.Equal(t, []uint{p1.ID, p2.ID}, detached)

		var count int64
		db.Model(&models.PostTag{}).Where("tag_id = ?", popular.ID).Count(&count)
		assert.Zero(t, count)

		_, err = repo.GetByID(ctx, popular.ID, false)
		assert.True(t, models.IsCode(err, models.CodeNotFound))

		_, err = repo.Delete(ctx, popular.ID)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})
}

func TestUserRepository(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	ada := &models.User{Name: "Ada Lovelace", Email: " Ada@Example.com ", Password: "x", Role: models.RoleAdmin}
	require.NoError(t, repo.Create(ctx, ada))
	assert.Equal(t, "ada@example.com", ada.Email)
	require.NoError(t, repo.Create(ctx, &models.User{Name: "Grace", Email: "grace@example.com", Password: "x", Role: models.RoleUser}))

	t.Run("duplicate email", func(t *testing.T) {
		err := repo.Create(ctx, &models.User{Name: "Dup", Email: "ADA@example.com", Password: "x", Role: models.RoleUser})
		assert.True(t, models.IsCode(err, models.CodeConflict))
	})

	t.Run("get by email ignores case", func(t *testing.T) {
		got, err := repo.GetByEmail(ctx, "ADA@EXAMPLE.COM")
		require.NoError(t, err)
		assert.Equal(t, ada.ID, got.ID)
	})

	t.Run("list filters", func(t *testing.T) {
		users, total, err := repo.List(ctx, UserFilter{Role: models.RoleAdmin, Page: 1, PerPage: 15})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Equal(t, ada.ID, users[0].ID)

		users, total, err = repo.List(ctx, UserFilter{Search: "GRACE", Page: 1, PerPage: 15})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Equal(t, "Grace", users[0].Name)
	})
}
