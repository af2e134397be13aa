package service

import (
	"context"
	"strings"

	"quill/internal/models"
	"quill/internal/notifications"
	"quill/internal/policy"
	"quill/internal/query"
	"quill/internal/repository"
)

type CommentService struct {
	store  repository.Datastore
	policy *policy.Policy
	events *notifications.Notifier
}

func NewCommentService(store repository.Datastore, pol *policy.Policy, events *notifications.Notifier) *CommentService {
	return &CommentService{store: store, policy: pol, events: events}
}

// List pages through the comments of a post actor may see, oldest first.
func (s *CommentService) List(ctx context.Context, actor *models.User, postID uint, page, perPage int) (query.Page[*models.Comment], error) {
	page, perPage = normalizePage(page, perPage)
	if _, err := s.visiblePost(ctx, actor, postID); err != nil {
		return query.Page[*models.Comment]{}, err
	}
	comments, total, err := s.store.Comments().ListByPost(ctx, postID, page, perPage)
	if err != nil {
		return query.Page[*models.Comment]{}, err
	}
	return query.NewPage(comments, page, perPage, total), nil
}

// Get returns one comment of a post. A comment that belongs to another post
// is NotFound.
func (s *CommentService) Get(ctx context.Context, actor *models.User, postID, commentID uint) (*models.Comment, error) {
	post, err := s.visiblePost(ctx, actor, postID)
	if err != nil {
		return nil, err
	}
	comment, err := s.store.Comments().GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanViewComment(actor, post, comment) {
		return nil, models.NewNotFoundError("Comment", commentID)
	}
	return comment, nil
}

// Create adds a comment to a published post. The author of a draft gets
// Forbidden; everyone else cannot see the draft and gets NotFound.
func (s *CommentService) Create(ctx context.Context, actor *models.User, postID uint, body string) (*models.Comment, error) {
	if err := authorize(actor, policy.OpCommentCreate, policy.NoResource); err != nil {
		return nil, err
	}
	if err := validateCommentBody(body); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		Body:   strings.TrimSpace(body),
		PostID: postID,
		UserID: actor.ID,
	}
	var postAuthorID uint
	err := s.store.WithTx(ctx, func(tx repository.Datastore) error {
		post, err := lockVisiblePost(ctx, tx, s.policy, actor, postID)
		if err != nil {
			return err
		}
		decision := policy.CanComment(post)
		recordDecision(policy.OpCommentCreate, decision)
		if err := decision.Err(); err != nil {
			return err
		}
		postAuthorID = post.UserID
		return tx.Comments().Create(ctx, comment)
	})
	if err != nil {
		return nil, err
	}

	s.events.CommentCreated(ctx, postAuthorID, postID, comment.ID, actor.ID)
	return s.store.Comments().GetByID(ctx, comment.ID)
}

func (s *CommentService) Update(ctx context.Context, actor *models.User, postID, commentID uint, body string) (*models.Comment, error) {
	if err := validateCommentBody(body); err != nil {
		return nil, err
	}
	err := s.mutate(ctx, actor, postID, commentID, policy.OpCommentUpdate, func(tx repository.Datastore, c *models.Comment) error {
		c.Body = strings.TrimSpace(body)
		return tx.Comments().Update(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return s.store.Comments().GetByID(ctx, commentID)
}

func (s *CommentService) Delete(ctx context.Context, actor *models.User, postID, commentID uint) error {
	return s.mutate(ctx, actor, postID, commentID, policy.OpCommentDelete, func(tx repository.Datastore, c *models.Comment) error {
		return tx.Comments().Delete(ctx, c.ID)
	})
}

// mutate locks the post and the comment, checks op and applies fn.
func (s *CommentService) mutate(
	ctx context.Context,
	actor *models.User,
	postID, commentID uint,
	op policy.Operation,
	fn func(tx repository.Datastore, c *models.Comment) error,
) error {
	return s.store.WithTx(ctx, func(tx repository.Datastore) error {
		post, err := lockVisiblePost(ctx, tx, s.policy, actor, postID)
		if err != nil {
			return err
		}
		comment, err := tx.Comments().GetForUpdate(ctx, commentID)
		if err != nil {
			return err
		}
		if !s.policy.CanViewComment(actor, post, comment) {
			return models.NewNotFoundError("Comment", commentID)
		}
		if err := authorize(actor, op, policy.CommentResource(comment)); err != nil {
			return err
		}
		return fn(tx, comment)
	})
}

func (s *CommentService) visiblePost(ctx context.Context, actor *models.User, postID uint) (*models.Post, error) {
	post, err := s.store.Posts().GetByID(ctx, postID, viewerID(actor))
	if err != nil {
		return nil, err
	}
	if !s.policy.CanView(actor, post) {
		return nil, models.NewNotFoundError("Post", postID)
	}
	return post, nil
}
