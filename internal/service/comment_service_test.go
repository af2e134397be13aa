package service

import (
	"context"
	"testing"

	"quill/internal/models"
	"quill/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := testutil.CreateUser(t, f.db, models.RoleUser)
	reader := testutil.CreateUser(t, f.db, models.RoleUser)
	published := testutil.CreatePost(t, f.db, author, testutil.WithStatus(models.PostStatusPublished))
	draft := testutil.CreatePost(t, f.db, author)

	comment, err := f.comments.Create(ctx, reader, published.ID, "  Nice read!  ")
	require.NoError(t, err)
	assert.Equal(t, "Nice read!", comment.Body)
	assert.Equal(t, reader.ID, comment.UserID)
	require.NotNil(t, comment.User)
	assert.Equal(t, reader.Name, comment.User.Name)

	tests := []struct {
		name   string
		actor  *models.User
		postID uint
		body   string
		code   string
	}{
		{"Anonymous", nil, published.ID, "Hello there", models.CodeUnauthenticated},
		{"Body Too Short", reader, published.ID, "ok", models.CodeValidation},
		{"Author On Own Draft", author, draft.ID, "Hello there", models.CodeForbidden},
		{"Reader On Hidden Draft", reader, draft.ID, "Hello there", models.CodeNotFound},
		{"Missing Post", reader, 9999, "Hello there", models.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.comments.Create(ctx, tt.actor, tt.postID, tt.body)
			assertCode(t, err, tt.code)
		})
	}
}

func TestCommentService_ListAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := testutil.CreateUser(t, f.db, models.RoleUser)
	reader := testutil.CreateUser(t, f.db, models.RoleUser)
	post := testutil.CreatePost(t, f.db, author, testutil.WithStatus(models.PostStatusPublished))
	other := testutil.CreatePost(t, f.db, author, testutil.WithStatus(models.PostStatusPublished))
	draft := testutil.CreatePost(t, f.db, author)

	var ids []uint
	for _, body := range []string{"First!", "Second.", "Third one"} {
		c, err := f.comments.Create(ctx, reader, post.ID, body)
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	page, err := f.comments.List(ctx, nil, post.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Meta.Total)
	assert.Equal(t, 2, page.Meta.LastPage)
	require.Len(t, page.Data, 2)
	assert.Equal(t, ids[0], page.Data[0].ID)

	got, err := f.comments.Get(ctx, nil, post.ID, ids[1])
	require.NoError(t, err)
	assert.Equal(t, "Second.", got.Body)

	_, err = f.comments.Get(ctx, nil, other.ID, ids[1])
	assertCode(t, err, models.CodeNotFound)

	_, err = f.comments.List(ctx, reader, draft.ID, 1, 10)
	assertCode(t, err, models.CodeNotFound)

	empty, err := f.comments.List(ctx, author, draft.ID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, empty.Data)
	assert.NotNil(t, empty.Data)
}

func TestCommentService_UpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := testutil.CreateUser(t, f.db, models.RoleUser)
	commenter := testutil.CreateUser(t, f.db, models.RoleUser)
	admin := testutil.CreateUser(t, f.db, models.RoleAdmin)
	post := testutil.CreatePost(t, f.db, author, testutil.WithStatus(models.PostStatusPublished))
	other := testutil.CreatePost(t, f.db, author, testutil.WithStatus(models.PostStatusPublished))

	comment, err := f.comments.Create(ctx, commenter, post.ID, "Original text")
	require.NoError(t, err)

	t.Run("Only The Commenter", func(t *testing.T) {
		_, err := f.comments.Update(ctx, author, post.ID, comment.ID, "Post author edit")
		assertCode(t, err, models.CodeForbidden)
		_, err = f.comments.Update(ctx, admin, post.ID, comment.ID, "Admin edit")
		assertCode(t, err, models.CodeForbidden)
		assertCode(t, f.comments.Delete(ctx, author, post.ID, comment.ID), models.CodeForbidden)
	})

	t.Run("Wrong Post", func(t *testing.T) {
		_, err := f.comments.Update(ctx, commenter, other.ID, comment.ID, "Moved?")
		assertCode(t, err, models.CodeNotFound)
	})

	t.Run("Validation", func(t *testing.T) {
		_, err := f.comments.Update(ctx, commenter, post.ID, comment.ID, " ")
		assertCode(t, err, models.CodeValidation)
	})

	updated, err := f.comments.Update(ctx, commenter, post.ID, comment.ID, "Edited text")
	require.NoError(t, err)
	assert.Equal(t, "Edited text", updated.Body)

	require.NoError(t, f.comments.Delete(ctx, commenter, post.ID, comment.ID))
	_, err = f.comments.Get(ctx, commenter, post.ID, comment.ID)
	assertCode(t, err, models.CodeNotFound)
	assertCode(t, f.comments.Delete(ctx, commenter, post.ID, comment.ID), models.CodeNotFound)
}
