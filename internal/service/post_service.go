package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"quill/internal/blob"
	"quill/internal/cache"
	"quill/internal/media"
	"quill/internal/models"
	"quill/internal/notifications"
	"quill/internal/observability"
	"quill/internal/policy"
	"quill/internal/query"
	"quill/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

var errImageStorageDisabled = errors.New("image storage is not configured")

type PostService struct {
	store  repository.Datastore
	policy *policy.Policy
	blobs  blob.Store
	images *media.Normalizer
	events *notifications.Notifier
	now    func() time.Time
}

type CreatePostInput struct {
	Title      string
	Body       string
	Status     string
	CategoryID *uint
	TagIDs     []uint
}

// UpdatePostInput holds the fields to change; nil means unchanged. A non-nil
// TagIDs replaces the post's tags.
type UpdatePostInput struct {
	Title      *string
	Body       *string
	Status     *string
	CategoryID NullableID
	TagIDs     *[]uint
}

// PostListing is one page of posts with the criteria that produced it.
type PostListing struct {
	Posts    []*models.Post
	Meta     query.Meta
	Criteria query.PostCriteria
}

func NewPostService(
	store repository.Datastore,
	pol *policy.Policy,
	blobs blob.Store,
	images *media.Normalizer,
	events *notifications.Notifier,
) *PostService {
	return &PostService{
		store:  store,
		policy: pol,
		blobs:  blobs,
		images: images,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func viewerID(actor *models.User) uint {
	if actor == nil {
		return 0
	}
	return actor.ID
}

// List returns the posts matching params that actor may list.
func (s *PostService) List(ctx context.Context, actor *models.User, params query.PostParams) (_ *PostListing, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "List")
	defer func() { observability.EndSpan(span, err) }()

	criteria, err := query.ParsePostParams(params)
	if err != nil {
		return nil, err
	}
	q := query.Compose(actor, criteria, query.ComposeOptions{
		ScopeStatusToOwner: s.policy.ScopesStatusFilter(actor),
	})
	span.SetAttributes(
		attribute.String("query.status", string(q.Status)),
		attribute.String("query.sort", string(q.Sort)),
		attribute.Int("query.page", q.Page),
	)

	posts, total, err := s.store.Posts().Search(ctx, q, viewerID(actor))
	if err != nil {
		return nil, err
	}
	s.decorate(posts...)
	return &PostListing{
		Posts:    posts,
		Meta:     query.NewMeta(q.Page, q.PerPage, total),
		Criteria: criteria,
	}, nil
}

// Get returns post id if actor may see it. Invisible posts are NotFound.
func (s *PostService) Get(ctx context.Context, actor *models.User, id uint) (*models.Post, error) {
	post, err := s.store.Posts().GetByID(ctx, id, viewerID(actor))
	if err != nil {
		return nil, err
	}
	if !s.policy.CanView(actor, post) {
		return nil, models.NewNotFoundError("Post", id)
	}
	s.decorate(post)
	return post, nil
}

func (s *PostService) Create(ctx context.Context, actor *models.User, in CreatePostInput) (_ *models.Post, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "Create")
	defer func() { observability.EndSpan(span, err) }()

	if err := authorize(actor, policy.OpPostCreate, policy.NoResource); err != nil {
		return nil, err
	}
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	if err := validatePostBody(in.Body); err != nil {
		return nil, err
	}
	status := models.PostStatusDraft
	if strings.TrimSpace(in.Status) != "" {
		if status, err = parseStatus(in.Status); err != nil {
			return nil, err
		}
	}

	post := &models.Post{
		Title:      strings.TrimSpace(in.Title),
		Body:       in.Body,
		UserID:     actor.ID,
		CategoryID: in.CategoryID,
	}
	post.ApplyStatus(status, s.now())

	err = s.store.WithTx(ctx, func(tx repository.Datastore) error {
		if err := ensureCategoryExists(ctx, tx, in.CategoryID); err != nil {
			return err
		}
		tagIDs, err := ensureTagsExist(ctx, tx, in.TagIDs)
		if err != nil {
			return err
		}
		if err := tx.Posts().Create(ctx, post); err != nil {
			return err
		}
		if len(tagIDs) > 0 {
			if _, err := tx.Posts().AttachTags(ctx, post.ID, tagIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if post.IsPublished() {
		s.events.PostPublished(ctx, post.ID, actor.ID)
	}
	return s.reload(ctx, actor, post.ID)
}

func (s *PostService) Update(ctx context.Context, actor *models.User, id uint, in UpdatePostInput) (_ *models.Post, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "Update", attribute.Int64("post.id", int64(id)))
	defer func() { observability.EndSpan(span, err) }()

	if in.Title != nil {
		if err := validateTitle(*in.Title); err != nil {
			return nil, err
		}
	}
	if in.Body != nil {
		if err := validatePostBody(*in.Body); err != nil {
			return nil, err
		}
	}
	var status models.PostStatus
	if in.Status != nil {
		if status, err = parseStatus(*in.Status); err != nil {
			return nil, err
		}
	}

	var published bool
	err = s.store.WithTx(ctx, func(tx repository.Datastore) error {
		post, err := tx.Posts().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorizePost(actor, policy.OpPostUpdate, post); err != nil {
			return err
		}
		if in.TagIDs != nil {
			if err := s.authorizePost(actor, policy.OpPostTags, post); err != nil {
				return err
			}
		}

		if in.CategoryID.Set {
			if err := ensureCategoryExists(ctx, tx, in.CategoryID.Value); err != nil {
				return err
			}
			post.CategoryID = in.CategoryID.Value
		}
		var tagIDs []uint
		if in.TagIDs != nil {
			if tagIDs, err = ensureTagsExist(ctx, tx, *in.TagIDs); err != nil {
				return err
			}
		}

		if in.Title != nil {
			post.Title = strings.TrimSpace(*in.Title)
		}
		if in.Body != nil {
			post.Body = *in.Body
		}
		if in.Status != nil {
			wasPublished := post.IsPublished()
			post.ApplyStatus(status, s.now())
			published = !wasPublished && post.IsPublished()
		}
		if err := tx.Posts().Update(ctx, post); err != nil {
			return err
		}
		if in.TagIDs != nil {
			return syncTags(ctx, tx, post.ID, tagIDs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidatePost(ctx, id)
	if published {
		s.events.PostPublished(ctx, id, actor.ID)
	}
	return s.reload(ctx, actor, id)
}

// Delete soft-deletes a post. The image is kept so the post can be restored.
func (s *PostService) Delete(ctx context.Context, actor *models.User, id uint) error {
	err := s.store.WithTx(ctx, func(tx repository.Datastore) error {
		post, err := tx.Posts().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorizePost(actor, policy.OpPostDelete, post); err != nil {
			return err
		}
		return tx.Posts().SoftDelete(ctx, id)
	})
	if err != nil {
		return err
	}
	cache.InvalidatePost(ctx, id)
	return nil
}

// ForceDelete permanently removes a post, trashed or not, and then its image.
func (s *PostService) ForceDelete(ctx context.Context, actor *models.User, id uint) error {
	var imageKey string
	err := s.store.WithTx(ctx, func(tx repository.Datastore) error {
		post, err := tx.Posts().GetWithTrashedForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorizePost(actor, policy.OpPostForceDelete, post); err != nil {
			return err
		}
		if post.ImagePath != nil {
			imageKey = *post.ImagePath
		}
		return tx.Posts().ForceDelete(ctx, id)
	})
	if err != nil {
		return err
	}

	cache.InvalidatePost(ctx, id)
	if imageKey != "" && s.blobs != nil {
		if err := s.blobs.Delete(ctx, imageKey); err != nil {
			slog.WarnContext(ctx, "failed to delete image of removed post", "post_id", id, "key", imageKey, "err", err)
		}
	}
	return nil
}

// UploadImage replaces the post image. The new blob is written before the
// transaction commits and removed again if it does not; the old blob is only
// removed after commit.
func (s *PostService) UploadImage(ctx context.Context, actor *models.User, id uint, upload media.Upload) (_ *models.Post, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "UploadImage", attribute.Int64("post.id", int64(id)))
	defer func() { observability.EndSpan(span, err) }()

	if s.blobs == nil || s.images == nil {
		return nil, models.NewInternalError(errImageStorageDisabled)
	}

	var newKey, oldKey string
	err = s.store.WithTx(ctx, func(tx repository.Datastore) error {
		post, err := tx.Posts().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorizePost(actor, policy.OpPostImage, post); err != nil {
			return err
		}

		rendition, err := s.images.Normalize(upload)
		if err != nil {
			return err
		}
		key, err := s.blobs.Put(ctx, rendition.Data, media.Extension)
		if err != nil {
			return models.NewInternalError(err)
		}
		newKey = key

		if post.ImagePath != nil {
			oldKey = *post.ImagePath
		}
		post.ImagePath = &key
		return tx.Posts().Update(ctx, post)
	})
	if err != nil {
		if newKey != "" {
			if delErr := s.blobs.Delete(context.WithoutCancel(ctx), newKey); delErr != nil {
				slog.WarnContext(ctx, "failed to remove orphaned image", "post_id", id, "key", newKey, "err", delErr)
			}
		}
		return nil, err
	}

	cache.InvalidatePost(ctx, id)
	if oldKey != "" {
		if err := s.blobs.Delete(ctx, oldKey); err != nil {
			slog.WarnContext(ctx, "failed to delete replaced image", "post_id", id, "key", oldKey, "err", err)
		}
	}
	return s.reload(ctx, actor, id)
}

// DeleteImage removes the post image. The blob is deleted inside the
// transaction, so a storage failure leaves the post untouched. Deleting a
// missing image is a no-op.
func (s *PostService) DeleteImage(ctx context.Context, actor *models.User, id uint) (*models.Post, error) {
	if s.blobs == nil {
		return nil, models.NewInternalError(errImageStorageDisabled)
	}

	err := s.store.WithTx(ctx, func(tx repository.Datastore) error {
		post, err := tx.Posts().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorizePost(actor, policy.OpPostImage, post); err != nil {
			return err
		}
		if post.ImagePath == nil {
			return nil
		}
		if err := s.blobs.Delete(ctx, *post.ImagePath); err != nil {
			return models.NewInternalError(err)
		}
		post.ImagePath = nil
		return tx.Posts().Update(ctx, post)
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidatePost(ctx, id)
	return s.reload(ctx, actor, id)
}

// authorizePost checks op against post. A denial on a post actor cannot see
// is reported as NotFound so drafts do not leak.
func (s *PostService) authorizePost(actor *models.User, op policy.Operation, post *models.Post) error {
	err := authorize(actor, op, policy.PostResource(post))
	if err != nil && actor != nil && !s.policy.CanView(actor, post) {
		return models.NewNotFoundError("Post", post.ID)
	}
	return err
}

// lockVisiblePost loads post id under lock and hides it from actors who may
// not see it.
func lockVisiblePost(ctx context.Context, tx repository.Datastore, pol *policy.Policy, actor *models.User, id uint) (*models.Post, error) {
	post, err := tx.Posts().GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !pol.CanView(actor, post) {
		return nil, models.NewNotFoundError("Post", id)
	}
	return post, nil
}

// reload fetches the post with its relations after a mutation by actor.
func (s *PostService) reload(ctx context.Context, actor *models.User, id uint) (*models.Post, error) {
	post, err := s.store.Posts().GetByID(ctx, id, viewerID(actor))
	if err != nil {
		return nil, err
	}
	s.decorate(post)
	return post, nil
}

func (s *PostService) decorate(posts ...*models.Post) {
	if s.blobs == nil {
		return
	}
	for _, p := range posts {
		if p != nil && p.ImagePath != nil {
			p.ImageURL = s.blobs.URLFor(*p.ImagePath)
		}
	}
}

func ensureCategoryExists(ctx context.Context, tx repository.Datastore, id *uint) error {
	if id == nil {
		return nil
	}
	if _, err := tx.Categories().GetForShare(ctx, *id); err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return models.NewValidationError("The selected category_id is invalid")
		}
		return err
	}
	return nil
}
