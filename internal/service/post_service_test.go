package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quill/internal/media"
	"quill/internal/models"
	"quill/internal/query"
	"quill/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBody = "A body that is long enough."

func TestPostService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := testutil.CreateUser(t, f.db, models.RoleUser)
	cat := testutil.CreateCategory(t, f.db, "Go")
	tag := testutil.CreateTag(t, f.db, "concurrency")

	t.Run("Draft By Default", func(t *testing.T) {
		post, err := f.posts.Create(ctx, author, CreatePostInput{Title: "First", Body: validBody})
		require.NoError(t, err)
		assert.Equal(t, models.PostStatusDraft, post.Status)
		assert.Nil(t, post.PublishedAt)
		assert.Equal(t, author.ID, post.UserID)
		require.NotNil(t, post.User)
		assert.Equal(t, author.Name, post.User.Name)
	})

	t.Run("Published With Relations", func(t *testing.T) {
		post, err := f.posts.Create(ctx, author, CreatePostInput{
			Title:      "Second",
			Body:       validBody,
			Status:     "published",
			CategoryID: &cat.ID,
			TagIDs:     []uint{tag.ID, tag.ID},
		})
		require.NoError(t, err)
		assert.Equal(t, models.PostStatusPublished, post.Status)
		assert.NotNil(t, post.PublishedAt)
		require.NotNil(t, post.Category)
		assert.Equal(t, "Go", post.Category.Name)
		require.Len(t, post.Tags, 1)
		assert.Equal(t, tag.ID, post.Tags[0].ID)
	})

	tests := []struct {
		name  string
		actor *models.User
		in    CreatePostInput
		code  string
	}{
		{"Anonymous", nil, CreatePostInput{Title: "T", Body: validBody}, models.CodeUnauthenticated},
		{"Missing Title", author, CreatePostInput{Body: validBody}, models.CodeValidation},
		{"Short Body", author, CreatePostInput{Title: "T", Body: "short"}, models.CodeValidation},
		{"Unknown Status", author, CreatePostInput{Title: "T", Body: validBody, Status: "archived"}, models.CodeValidation},
		{"Unknown Category", author, CreatePostInput{Title: "T", Body: validBody, CategoryID: ptr(uint(999))}, models.CodeValidation},
		{"Unknown Tag", author, CreatePostInput{Title: "T", Body: validBody, TagIDs: []uint{tag.ID, 999}}, models.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.posts.Create(ctx, tt.actor, tt.in)
			assertCode(t, err, tt.code)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&models.Post{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestPostService_GetVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := testutil.CreateUser(t, f.db, models.RoleUser)
	other := testutil.CreateUser(t, f.db, models.RoleUser)
	admin := testutil.CreateUser(t, f.db, models.RoleAdmin)
	draft := testutil.CreatePost(t, f.db, author)
	published := testutil.CreatePost(t, f.db, author, testutil.WithStatus(models.PostStatusPublished))

	tests := []struct {
		name    string
		actor   *models.User
		postID  uint
		visible bool
	}{
		{"Anonymous Published", nil, published.ID, true},
		{"Anonymous Draft", nil, draft.ID, false},
		{"Author Draft", author, draft.ID, true},
		{"Other Draft", other, draft.ID, false},
		{"Admin Draft", admin, draft.ID, false},
		{"Missing", author, 9999, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post, err := f.posts.Get(ctx, tt.actor, tt.postID)
			if tt.visible {
				require.NoError(t, err)
				assert.Equal(t, tt.postID, post.ID)
				return
			}
			assertCode(t, err, models.CodeNotFound)
		})
	}

	// hidden drafts and missing posts are indistinguishable
	_, err := f.posts.Get(ctx, other, draft.ID)
	assert.EqualError(t, err, models.NewNotFoundError("Post", draft.ID).Error())
}

func TestPostService_AdminDraftVisibilityFlag(t *testing.T) {
	f := newFixtureWithFlags(t, "admin_draft_visibility=on")
	author := testutil.CreateUser(t, f.db, models.RoleUser)
	admin := testutil.CreateUser(t, f.db, models.RoleAdmin)
	editor := testutil.CreateUser(t, f.db, models.RoleEditor)
	draft := testutil.CreatePost(t, f.db, author)

	_, err := f.posts.Get(context.Background(), admin, draft.ID)
	assert.NoError(t, err)
	_, err = f.posts.Get(context.Background(), editor, draft.ID)
	assertCode(t, err, models.CodeNotFound)
}

func TestPostService_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := testutil.CreateUser(t, f.db, models.RoleUser)
	other := testutil.CreateUser(t, f.db, models.RoleUser)
	editor := testutil.CreateUser(t, f.db, models.RoleEditor)
	tag := testutil.CreateTag(t, f.db, "go")

	t.Run("Editor Updates Anothers Post", func(t *testing.T) {
		post := testutil.CreatePost(t, f.db, author, testutil.WithStatus(models.PostStatusPublished))
		updated, err := f.posts.Update(ctx, editor, post.ID, UpdatePostInput{Title: ptr("Edited")})
		require.NoError(t, err)
		assert.Equal(t, "Edited", updated.Title)
		assert.Equal(t, author.ID, updated.UserID)
	})

	t.Run("Other User Forbidden", func(t *testing.T) {
		post := testutil.CreatePost(t, f.db, author, testutil.WithStatus(models.PostStatusPublished))
		_, err := f.posts.Update(ctx, other, post.ID, UpdatePostInput{Title: ptr("Hijacked")})
		assertCode(t, err, models.CodeForbidden)
	})

	t.Run("Other User On Draft Is Not Found", func(t *testing.T) {
		post := testutil.CreatePost(t, f.db, author)
		_, err := f.posts.Update(ctx, other, post.ID, UpdatePostInput{Title: ptr("Hijacked")})
		assertCode(t, err, models.CodeNotFound)
	})

	t.Run("Editor Cannot Change Tags", func(t *testing.T) {
		post := testutil.CreatePost(t, f.db, author, testutil.WithStatus(models.PostStatusPublished))
		_, err := f.posts.Update(ctx, editor, post.ID, UpdatePostInput{
			Title:  ptr("Edited with tags"),
			TagIDs: &[]uint{tag.ID},
		})
		assertCode(t, err, models.CodeForbidden)

		var reloaded models.Post
		require.NoError(t, f.db.First(&reloaded, post.ID).Error)
		assert.Equal(t, post.Title, reloaded.Title)
	})

	t.Run("Owner Syncs Tags And Clears Category", func(t *testing.T) {
		cat := testutil.CreateCategory(t, f.db, "Misc")
		post := testutil.CreatePost(t, f.db, author, testutil.WithCategory(cat.ID))
		updated, err := f.posts.Update(ctx, author, post.ID, UpdatePostInput{
			TagIDs:     &[]uint{tag.ID},
			CategoryID: NullableID{Set: true},
		})
		require.NoError(t, err)
		assert.Nil(t, updated.CategoryID)
		require.Len(t, updated.Tags, 1)
	})

	t.Run("Publishing Stamps Once", func(t *testing.T) {
		post := testutil.CreatePost(t, f.db, author)
		f.posts.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
		defer func() { f.posts.now = func() time.Time { return time.Now().UTC() } }()

		first, err := f.posts.Update(ctx, author, post.ID, UpdatePostInput{Status: ptr("published")})
		require.NoError(t, err)
		require.NotNil(t, first.PublishedAt)
		assert.True(t, first.PublishedAt.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))

		f.posts.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
		again, err := f.posts.Update(ctx, author, post.ID, UpdatePostInput{Status: ptr("published"), Title: ptr("Still out")})
		require.NoError(t, err)
		assert.True(t, again.PublishedAt.Equal(*first.PublishedAt))

		back, err := f.posts.Update(ctx, author, post.ID, UpdatePostInput{Status: ptr("draft")})
		require.NoError(t, err)
		assert.NotNil(t, back.PublishedAt)
	})

	t.Run("Invalid Input", func(t *testing.T) {
		post := testutil.CreatePost(t, f.db, author)
		_, err := f.posts.Update(ctx, author, post.ID, UpdatePostInput{Body: ptr("tiny")})
		assertCode(t, err, models.CodeValidation)
		_, err = f.posts.Update(ctx, author, post.ID, UpdatePostInput{CategoryID: NullableID{Set: true, Value: ptr(uint(404))}})
		assertCode(t, err, models.CodeValidation)
	})
}

func TestPostService_DeleteAndForceDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := testutil.CreateUser(t, f.db, models.RoleUser)
	editor := testutil.CreateUser(t, f.db, models.RoleEditor)
	admin := testutil.CreateUser(t, f.db, models.RoleAdmin)
	post := testutil.CreatePost(t, f.db, author, testutil.WithStatus(models.PostStatusPublished))

	assertCode(t, f.posts.Delete(ctx, editor, post.ID), models.CodeForbidden)
	assertCode(t, f.posts.Delete(ctx, admin, post.ID), models.CodeForbidden)
	require.NoError(t, f.posts.Delete(ctx, author, post.ID))

	_, err := f.posts.Get(ctx, author, post.ID)
	assertCode(t, err, models.CodeNotFound)
	assertCode(t, f.posts.Delete(ctx, author, post.ID), models.CodeNotFound)

	// trashed posts can still be purged by an admin
	assertCode(t, f.posts.ForceDelete(ctx, author, post.ID), models.CodeForbidden)
	require.NoError(t, f.posts.ForceDelete(ctx, admin, post.ID))

	var count int64
	require.NoError(t, f.db.Unscoped().Model(&models.Post{}).Where("id = ?", post.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPostService_List(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := testutil.CreateUser(t, f.db, models.RoleUser)
	other := testutil.CreateUser(t, f.db, models.RoleUser)
	for i := 0; i < 3; i++ {
		testutil.CreatePost(t, f.db, author, testutil.WithStatus(models.PostStatusPublished))
	}
	testutil.CreatePost(t, f.db, author)
	testutil.CreatePost(t, f.db, other)

	t.Run("Anonymous Sees Published Only", func(t *testing.T) {
		listing, err := f.posts.List(ctx, nil, query.PostParams{Status: "draft"})
		require.NoError(t, err)
		assert.Equal(t, int64(3), listing.Meta.Total)
		for _, p := range listing.Posts {
			assert.Equal(t, models.PostStatusPublished, p.Status)
		}
	})

	t.Run("Explicit Status Is Honored", func(t *testing.T) {
		listing, err := f.posts.List(ctx, author, query.PostParams{Status: "draft"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), listing.Meta.Total)
	})

	t.Run("Pagination Meta", func(t *testing.T) {
		listing, err := f.posts.List(ctx, nil, query.PostParams{PerPage: "2", Page: "2"})
		require.NoError(t, err)
		assert.Len(t, listing.Posts, 1)
		assert.Equal(t, query.Meta{CurrentPage: 2, LastPage: 2, PerPage: 2, Total: 3}, listing.Meta)
	})

	t.Run("Malformed Filter", func(t *testing.T) {
		_, err := f.posts.List(ctx, nil, query.PostParams{Category: "abc"})
		assertCode(t, err, models.CodeValidation)
	})

	t.Run("Scoped Status Filter", func(t *testing.T) {
		scoped := newFixtureWithFlags(t, "scoped_status_filter=on")
		a := testutil.CreateUser(t, scoped.db, models.RoleUser)
		b := testutil.CreateUser(t, scoped.db, models.RoleUser)
		testutil.CreatePost(t, scoped.db, a)
		testutil.CreatePost(t, scoped.db, b)

		listing, err := scoped.posts.List(ctx, a, query.PostParams{Status: "draft"})
		require.NoError(t, err)
		require.Len(t, listing.Posts, 1)
		assert.Equal(t, a.ID, listing.Posts[0].UserID)
	})
}

func TestPostService_UploadImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := testutil.CreateUser(t, f.db, models.RoleUser)
	other := testutil.CreateUser(t, f.db, models.RoleUser)
	post := testutil.CreatePost(t, f.db, author, testutil.WithStatus(models.PostStatusPublished))

	first, err := f.posts.UploadImage(ctx, author, post.ID, pngUpload(t))
	require.NoError(t, err)
	require.NotNil(t, first.ImagePath)
	assert.Equal(t, "/media/"+*first.ImagePath, first.ImageURL)
	firstPath := filepath.Join(f.blobs.Root(), filepath.FromSlash(*first.ImagePath))
	assert.FileExists(t, firstPath)

	second, err := f.posts.UploadImage(ctx, author, post.ID, pngUpload(t))
	require.NoError(t, err)
	assert.NotEqual(t, *first.ImagePath, *second.ImagePath)
	_, statErr := os.Stat(firstPath)
	assert.True(t, os.IsNotExist(statErr), "replaced image should be removed")

	_, err = f.posts.UploadImage(ctx, other, post.ID, pngUpload(t))
	assertCode(t, err, models.CodeForbidden)

	_, err = f.posts.UploadImage(ctx, author, post.ID, pngUploadWith([]byte("not an image at all")))
	assertCode(t, err, models.CodeValidation)
}

func pngUploadWith(content []byte) media.Upload {
	return media.Upload{Filename: "cover.png", ContentType: "image/png", Content: content}
}

func TestPostService_UploadImageRemovesBlobOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := testutil.CreateUser(t, f.db, models.RoleUser)

	blobs := &failingBlobs{Store: f.blobs}
	f.posts.blobs = blobs

	// the row update fails after the blob was written
	post := testutil.CreatePost(t, f.db, author)
	require.NoError(t, f.db.Exec("CREATE TRIGGER block_image BEFORE UPDATE OF image_path ON posts BEGIN SELECT RAISE(ABORT, 'blocked'); END").Error)

	_, err := f.posts.UploadImage(ctx, author, post.ID, pngUpload(t))
	require.Error(t, err)
	require.Len(t, blobs.deleted, 1)

	entries, err := os.ReadDir(filepath.Join(f.blobs.Root(), "posts"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPostService_DeleteImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := testutil.CreateUser(t, f.db, models.RoleUser)
	post := testutil.CreatePost(t, f.db, author)

	withImage, err := f.posts.UploadImage(ctx, author, post.ID, pngUpload(t))
	require.NoError(t, err)
	key := *withImage.ImagePath

	t.Run("Storage Failure Leaves Post Unchanged", func(t *testing.T) {
		f.posts.blobs = &failingBlobs{Store: f.blobs, failDelete: true}
		defer func() { f.posts.blobs = f.blobs }()

		_, err := f.posts.DeleteImage(ctx, author, post.ID)
		assertCode(t, err, models.CodeInternal)

		var reloaded models.Post
		require.NoError(t, f.db.First(&reloaded, post.ID).Error)
		require.NotNil(t, reloaded.ImagePath)
		assert.Equal(t, key, *reloaded.ImagePath)
	})

	t.Run("Removes Blob And Column", func(t *testing.T) {
		cleared, err := f.posts.DeleteImage(ctx, author, post.ID)
		require.NoError(t, err)
		assert.Nil(t, cleared.ImagePath)
		assert.Empty(t, cleared.ImageURL)
		assert.NoFileExists(t, filepath.Join(f.blobs.Root(), filepath.FromSlash(key)))
	})

	t.Run("Missing Image Is A No-op", func(t *testing.T) {
		_, err := f.posts.DeleteImage(ctx, author, post.ID)
		assert.NoError(t, err)
	})
}
