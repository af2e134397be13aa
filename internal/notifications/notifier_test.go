package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	channel string
	event   Event
}

func newSubscribedNotifier(t *testing.T) (*Notifier, <-chan received) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	out := make(chan received, 4)
	require.NoError(t, n.Subscribe(ctx, func(channel string, ev Event) {
		out <- received{channel: channel, event: ev}
	}))
	return n, out
}

func waitEvent(t *testing.T, ch <-chan received) received {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return received{}
	}
}

func TestNotifier_NilClientIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.NotPanics(t, func() {
		n.PostPublished(context.Background(), 1, 2)
		n.CommentCreated(context.Background(), 1, 2, 3, 4)
		n.PostLiked(context.Background(), 1, 2, 3)
	})
	assert.Error(t, n.Subscribe(context.Background(), func(string, Event) {}))
}

func TestUserChannel(t *testing.T) {
	tests := []struct {
		userID   uint
		expected string
	}{
		{1, "events:user:1"},
		{100, "events:user:100"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, UserChannel(tt.userID))
	}
}

func TestNotifier_PostPublished(t *testing.T) {
	n, events := newSubscribedNotifier(t)

	n.PostPublished(context.Background(), 7, 3)

	got := waitEvent(t, events)
	assert.Equal(t, PostsChannel, got.channel)
	assert.Equal(t, EventPostPublished, got.event.Type)
	assert.Equal(t, uint(7), got.event.PostID)
	assert.Equal(t, uint(3), got.event.ActorID)
	assert.False(t, got.event.OccurredAt.IsZero())
}

func TestNotifier_UserEvents(t *testing.T) {
	n, events := newSubscribedNotifier(t)

	// self-actions are not announced
	n.PostLiked(context.Background(), 5, 9, 5)
	n.PostLiked(context.Background(), 5, 9, 6)

	got := waitEvent(t, events)
	assert.Equal(t, "events:user:5", got.channel)
	assert.Equal(t, EventPostLiked, got.event.Type)
	assert.Equal(t, uint(6), got.event.ActorID)

	n.CommentCreated(context.Background(), 5, 9, 11, 6)
	got = waitEvent(t, events)
	assert.Equal(t, EventCommentCreated, got.event.Type)
	assert.Equal(t, uint(11), got.event.CommentID)
}
