package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"quill/internal/blob"
	"quill/internal/cache"
	"quill/internal/featureflags"
	"quill/internal/media"
	"quill/internal/models"
	"quill/internal/notifications"
	"quill/internal/policy"
	"quill/internal/repository"
	"quill/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	store    repository.Datastore
	blobs    *blob.LocalStore
	posts    *PostService
	comments *CommentService
	cats     *CategoryService
	tags     *TagService
	users    *UserService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithFlags(t, "")
}

func newFixtureWithFlags(t *testing.T, flags string) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	store := repository.NewDatastore(db)
	pol := policy.New(featureflags.NewManager(flags))
	blobs := blob.NewLocalStore(t.TempDir(), "/media")
	events := notifications.NewNotifier(nil)

	return &fixture{
		db:       db,
		store:    store,
		blobs:    blobs,
		posts:    NewPostService(store, pol, blobs, media.NewNormalizer(5), events),
		comments: NewCommentService(store, pol, events),
		cats:     NewCategoryService(store),
		tags:     NewTagService(store),
		users:    NewUserService(store),
	}
}

// withCache points the package cache at a miniredis instance for the test.
func withCache(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	prev := cache.GetClient()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(rdb)
	t.Cleanup(func() {
		_ = rdb.Close()
		cache.SetClient(prev)
	})
	return mr
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Truef(t, models.IsCode(err, code), "want %s, got %v", code, err)
}

func ptr[T any](v T) *T {
	return &v
}

func pngUpload(t *testing.T) media.Upload {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	img.Set(3, 3, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return media.Upload{Filename: "cover.png", ContentType: "image/png", Content: buf.Bytes()}
}

// failingBlobs wraps a store and fails selected operations.
type failingBlobs struct {
	blob.Store
	failPut    bool
	failDelete bool
	deleted    []string
}

func (f *failingBlobs) Put(ctx context.Context, data []byte, ext string) (string, error) {
	if f.failPut {
		return "", errors.New("disk full")
	}
	return f.Store.Put(ctx, data, ext)
}

func (f *failingBlobs) Delete(ctx context.Context, key string) error {
	if f.failDelete {
		return errors.New("permission denied")
	}
	f.deleted = append(f.deleted, key)
	return f.Store.Delete(ctx, key)
}
