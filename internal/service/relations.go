package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"quill/internal/cache"
	"quill/internal/models"
	"quill/internal/policy"
	"quill/internal/query"
	"quill/internal/repository"
)

// LikeStatus is the like state of a post as seen by one actor.
type LikeStatus struct {
	PostID     uint `json:"post_id"`
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

// DiffTagIDs returns the ids in desired but not in current, and the ids in
// current but not in desired. Both results are sorted and free of duplicates.
func DiffTagIDs(current, desired []uint) (toAttach, toDetach []uint) {
	have := make(map[uint]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	want := make(map[uint]struct{}, len(desired))
	for _, id := range desired {
		want[id] = struct{}{}
	}

	for id := range want {
		if _, ok := have[id]; !ok {
			toAttach = append(toAttach, id)
		}
	}
	for id := range have {
		if _, ok := want[id]; !ok {
			toDetach = append(toDetach, id)
		}
	}
	slices.Sort(toAttach)
	slices.Sort(toDetach)
	return toAttach, toDetach
}

// ensureTagsExist returns ids deduplicated and sorted, or a validation error
// naming the ids that do not exist.
func ensureTagsExist(ctx context.Context, tx repository.Datastore, ids []uint) ([]uint, error) {
	unique := slices.Compact(slices.Sorted(slices.Values(ids)))
	if len(unique) == 0 {
		return nil, nil
	}
	existing, err := tx.Tags().ExistingIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	if len(existing) == len(unique) {
		return unique, nil
	}

	var missing []string
	for _, id := range unique {
		if _, found := slices.BinarySearch(existing, id); !found {
			missing = append(missing, fmt.Sprint(id))
		}
	}
	return nil, models.NewValidationError("The selected tags are invalid: " + strings.Join(missing, ", "))
}

// syncTags makes desired the exact tag set of postID. Pivots that stay keep
// their original timestamps.
func syncTags(ctx context.Context, tx repository.Datastore, postID uint, desired []uint) error {
	current, err := tx.Posts().TagIDs(ctx, postID)
	if err != nil {
		return err
	}
	toAttach, toDetach := DiffTagIDs(current, desired)
	if len(toAttach) > 0 {
		if _, err := tx.Posts().AttachTags(ctx, postID, toAttach); err != nil {
			return err
		}
	}
	if len(toDetach) > 0 {
		if _, err := tx.Posts().DetachTags(ctx, postID, toDetach); err != nil {
			return err
		}
	}
	return nil
}

// SyncTags replaces the tags of a post. Unknown tag ids reject the whole call.
func (s *PostService) SyncTags(ctx context.Context, actor *models.User, postID uint, tagIDs []uint) (*models.Post, error) {
	return s.changeTags(ctx, actor, postID, func(tx repository.Datastore) error {
		ids, err := ensureTagsExist(ctx, tx, tagIDs)
		if err != nil {
			return err
		}
		return syncTags(ctx, tx, postID, ids)
	})
}

// AttachTags adds tags to a post. Tags already attached are left alone.
func (s *PostService) AttachTags(ctx context.Context, actor *models.User, postID uint, tagIDs []uint) (*models.Post, error) {
	if len(tagIDs) == 0 {
		return nil, models.NewValidationError("tags must contain at least one id")
	}
	return s.changeTags(ctx, actor, postID, func(tx repository.Datastore) error {
		ids, err := ensureTagsExist(ctx, tx, tagIDs)
		if err != nil {
			return err
		}
		_, err = tx.Posts().AttachTags(ctx, postID, ids)
		return err
	})
}

// DetachTag removes one tag from a post. Detaching a tag the post does not
// carry is a no-op.
func (s *PostService) DetachTag(ctx context.Context, actor *models.User, postID, tagID uint) (*models.Post, error) {
	return s.changeTags(ctx, actor, postID, func(tx repository.Datastore) error {
		_, err := tx.Posts().DetachTags(ctx, postID, []uint{tagID})
		return err
	})
}

func (s *PostService) changeTags(ctx context.Context, actor *models.User, postID uint, apply func(tx repository.Datastore) error) (*models.Post, error) {
	err := s.store.WithTx(ctx, func(tx repository.Datastore) error {
		post, err := tx.Posts().GetForUpdate(ctx, postID)
		if err != nil {
			return err
		}
		if err := s.authorizePost(actor, policy.OpPostTags, post); err != nil {
			return err
		}
		return apply(tx)
	})
	if err != nil {
		return nil, err
	}
	cache.InvalidatePost(ctx, postID)
	return s.reload(ctx, actor, postID)
}

// Like records that actor likes a post. Liking twice is a Conflict.
func (s *PostService) Like(ctx context.Context, actor *models.User, postID uint) (*LikeStatus, error) {
	var authorID uint
	err := s.store.WithTx(ctx, func(tx repository.Datastore) error {
		post, err := lockVisiblePost(ctx, tx, s.policy, actor, postID)
		if err != nil {
			return err
		}
		if err := authorize(actor, policy.OpPostLike, policy.PostResource(post)); err != nil {
			return err
		}
		authorID = post.UserID

		added, err := tx.Likes().Add(ctx, actor.ID, postID)
		if err != nil {
			return err
		}
		if !added {
			return models.NewConflictError("You have already liked this post")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidatePost(ctx, postID)
	s.events.PostLiked(ctx, authorID, postID, actor.ID)
	return s.likeStatus(ctx, actor, postID)
}

// Unlike removes actor's like. Removing a like that does not exist is NotFound.
func (s *PostService) Unlike(ctx context.Context, actor *models.User, postID uint) (*LikeStatus, error) {
	err := s.store.WithTx(ctx, func(tx repository.Datastore) error {
		post, err := lockVisiblePost(ctx, tx, s.policy, actor, postID)
		if err != nil {
			return err
		}
		if err := authorize(actor, policy.OpPostLike, policy.PostResource(post)); err != nil {
			return err
		}

		removed, err := tx.Likes().Remove(ctx, actor.ID, postID)
		if err != nil {
			return err
		}
		if !removed {
			return models.NewNotFoundError("Like on post", postID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidatePost(ctx, postID)
	return s.likeStatus(ctx, actor, postID)
}

// ListLikes pages through the likes of a post actor may see, newest first.
func (s *PostService) ListLikes(ctx context.Context, actor *models.User, postID uint, page, perPage int) (query.Page[models.Like], error) {
	page, perPage = normalizePage(page, perPage)
	if _, err := s.Get(ctx, actor, postID); err != nil {
		return query.Page[models.Like]{}, err
	}
	likes, total, err := s.store.Likes().ListByPost(ctx, postID, page, perPage)
	if err != nil {
		return query.Page[models.Like]{}, err
	}
	return query.NewPage(likes, page, perPage, total), nil
}

func (s *PostService) likeStatus(ctx context.Context, actor *models.User, postID uint) (*LikeStatus, error) {
	post, err := s.store.Posts().GetByID(ctx, postID, viewerID(actor))
	if err != nil {
		return nil, err
	}
	return &LikeStatus{PostID: post.ID, Liked: post.Liked, LikesCount: post.LikesCount}, nil
}
