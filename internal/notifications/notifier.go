// Package notifications publishes domain events into Redis channels and
// relays them to connected websocket clients.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"quill/internal/middleware"
	"quill/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Event types.
const (
	EventPostPublished  = "post.published"
	EventCommentCreated = "comment.created"
	EventPostLiked      = "post.liked"
)

// PostsChannel carries events every subscriber may see.
const PostsChannel = "events:posts"

// UserChannel returns the channel that carries events addressed to one user.
func UserChannel(userID uint) string {
	return fmt.Sprintf("%s%d", userChannelPrefix, userID)
}

const userChannelPrefix = "events:user:"

// ParseUserChannel returns the user a channel is addressed to.
func ParseUserChannel(channel string) (uint, bool) {
	raw, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Event is the JSON payload published for a domain event.
type Event struct {
	Type       string    `json:"type"`
	PostID     uint      `json:"post_id"`
	ActorID    uint      `json:"actor_id"`
	CommentID  uint      `json:"comment_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier provides helpers to publish events into Redis channels.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier. A nil client turns every publish into a no-op.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PostPublished announces that a post became visible to everyone.
func (n *Notifier) PostPublished(ctx context.Context, postID, authorID uint) {
	n.publish(ctx, PostsChannel, Event{Type: EventPostPublished, PostID: postID, ActorID: authorID})
}

// CommentCreated tells the post author about a new comment.
func (n *Notifier) CommentCreated(ctx context.Context, postAuthorID, postID, commentID, actorID uint) {
	if postAuthorID == actorID {
		return
	}
	n.publish(ctx, UserChannel(postAuthorID), Event{
		Type:      EventCommentCreated,
		PostID:    postID,
		ActorID:   actorID,
		CommentID: commentID,
	})
}

// PostLiked tells the post author about a new like.
func (n *Notifier) PostLiked(ctx context.Context, postAuthorID, postID, actorID uint) {
	if postAuthorID == actorID {
		return
	}
	n.publish(ctx, UserChannel(postAuthorID), Event{Type: EventPostLiked, PostID: postID, ActorID: actorID})
}

// publish never fails the caller; delivery problems are logged and counted.
func (n *Notifier) publish(ctx context.Context, channel string, ev Event) {
	if n == nil || n.rdb == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err == nil {
		err = n.rdb.Publish(ctx, channel, payload).Err()
	}
	if err != nil {
		observability.EventsPublished.WithLabelValues(ev.Type, "error").Inc()
		middleware.Logger.WarnContext(ctx, "event publish failed",
			"event_type", ev.Type, "channel", channel, "error", err)
		return
	}
	observability.EventsPublished.WithLabelValues(ev.Type, "ok").Inc()
}

// Subscribe listens on the posts channel and every user channel, calling
// onEvent for each decoded event until ctx is cancelled.
func (n *Notifier) Subscribe(ctx context.Context, onEvent func(channel string, ev Event)) error {
	if n == nil || n.rdb == nil {
		return fmt.Errorf("redis is not configured")
	}
	sub := n.rdb.PSubscribe(ctx, PostsChannel, userChannelPrefix+"*")
	// wait for the subscription to be confirmed so no early event is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					middleware.Logger.Warn("dropping malformed event", "channel", msg.Channel, "error", err)
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in event subscriber",
								"panic", r, "stack", string(debug.Stack()))
						}
					}()
					onEvent(msg.Channel, ev)
				}()
			}
		}
	}()

	return nil
}
