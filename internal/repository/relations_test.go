package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"quill/internal/models"
	"quill/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestPostRepository_AttachTags(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, models.RoleUser)
	post := testutil.CreatePost(t, db, author)
	a := testutil.CreateTag(t, db, "a")
	b := testutil.CreateTag(t, db, "b")

	inserted, err := repo.AttachTags(ctx, post.ID, []uint{a.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, inserted)

	var first models.PostTag
	require.NoError(t, db.Where("post_id = ? AND tag_id = ?", post.ID, a.ID).First(&first).Error)

	time.Sleep(5 * time.Millisecond)
	inserted, err = repo.AttachTags(ctx, post.ID, []uint{a.ID, b.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, inserted)

	var again models.PostTag
	require.NoError(t, db.Where("post_id = ? AND tag_id = ?", post.ID, a.ID).First(&again).Error)
	assert.True(t, first.CreatedAt.Equal(again.CreatedAt), "existing pivot must keep created_at")

	got, err := repo.TagIDs(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID, b.ID}, got)

	inserted, err = repo.AttachTags(ctx, post.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func TestPostRepository_DetachTags(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, models.RoleUser)
	post := testutil.CreatePost(t, db, author)
	a := testutil.CreateTag(t, db, "a")
	testutil.AttachTag(t, db, post.ID, a.ID)

	removed, err := repo.DetachTags(ctx, post.ID, []uint{a.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	removed, err = repo.DetachTags(ctx, post.ID, []uint{a.ID})
	require.NoError(t, err)
	assert.Zero(t, removed)

	got, err := repo.TagIDs(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLikeRepository_AddRemove(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewLikeRepository(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, models.RoleUser)
	fan := testutil.CreateUser(t, db, models.RoleUser)
	post := testutil.CreatePost(t, db, author, testutil.WithStatus(models.PostStatusPublished))

	added, err := repo.Add(ctx, fan.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.Add(ctx, fan.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, added)

	added, err = repo.Add(ctx, author.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, added)

	likes, total, err := repo.ListByPost(ctx, post.ID, 1, 15)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, likes, 2)
	assert.NotNil(t, likes[0].User)

	removed, err := repo.Remove(ctx, fan.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Remove(ctx, fan.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestLikeRepository_SQL(t *testing.T) {
	tests := []struct {
		name   string
		run    func(LikeRepository) (bool, error)
		expect func(sqlmock.Sqlmock)
		want   bool
	}{
		{
			name: "add inserts with conflict guard",
			run:  func(r LikeRepository) (bool, error) { return r.Add(context.Background(), 1, 2) },
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(
					`INSERT INTO post_user_likes (user_id, post_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (user_id, post_id) DO NOTHING`)).
					WithArgs(1, 2, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			want: true,
		},
		{
			name: "add of an existing like affects nothing",
			run:  func(r LikeRepository) (bool, error) { return r.Add(context.Background(), 1, 2) },
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO post_user_likes`)).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			want: false,
		},
		{
			name: "remove deletes the pair",
			run:  func(r LikeRepository) (bool, error) { return r.Remove(context.Background(), 1, 2) },
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM post_user_likes WHERE user_id = $1 AND post_id = $2`)).
					WithArgs(1, 2).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			tt.expect(mock)

			got, err := tt.run(NewLikeRepository(db))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLikeRepository_DriverErrorIsInternal(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO post_user_likes`)).
		WillReturnError(errors.New("connection reset"))

	_, err := NewLikeRepository(db).Add(context.Background(), 1, 2)
	assert.True(t, models.IsCode(err, models.CodeInternal))
}

func TestPostRepository_AttachTags_SQL(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "post_tag" .* ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	inserted, err := NewPostRepository(db).AttachTags(context.Background(), 7, []uint{1, 2})
	require.NoError(t, err)
	assert.EqualValues(t, 2, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
