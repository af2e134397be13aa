package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedThing struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func withMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	prev := client
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() {
		_ = client.Close()
		client = prev
	})
	return mr
}

func TestAside_MissThenHit(t *testing.T) {
	mr := withMiniredis(t)
	ctx := context.Background()
	calls := 0
	fetch := func(dest *cachedThing) func() error {
		return func() error {
			calls++
			*dest = cachedThing{ID: 1, Name: "first"}
			return nil
		}
	}

	var a cachedThing
	require.NoError(t, Aside(ctx, PostKey(1), &a, time.Minute, fetch(&a)))
	assert.Equal(t, "first", a.Name)
	assert.True(t, mr.Exists("post:1"))

	var b cachedThing
	require.NoError(t, Aside(ctx, PostKey(1), &b, time.Minute, fetch(&b)))
	assert.Equal(t, "first", b.Name)
	assert.Equal(t, 1, calls)

	InvalidatePost(ctx, 1)
	assert.False(t, mr.Exists("post:1"))
}

func TestAside_FetchErrorNotCached(t *testing.T) {
	mr := withMiniredis(t)
	boom := errors.New("boom")

	var v cachedThing
	err := Aside(context.Background(), TagsListKey, &v, time.Minute, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(TagsListKey))
}

func TestAside_NoClient(t *testing.T) {
	prev := client
	client = nil
	t.Cleanup(func() { client = prev })

	var v cachedThing
	err := Aside(context.Background(), CategoriesListKey, &v, time.Minute, func() error {
		v.Name = "direct"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "direct", v.Name)

	// no panic without a client
	Invalidate(context.Background(), CategoriesListKey)
}
