package service

import (
	"context"
	"strings"

	"quill/internal/cache"
	"quill/internal/models"
	"quill/internal/policy"
	"quill/internal/repository"
)

const (
	DefaultMostUsedLimit = 10
	MaxMostUsedLimit     = 100
)

type TagService struct {
	store repository.Datastore
}

type TagInput struct {
	Name *string
	Slug *string
}

// TagListOptions selects a tag listing.
type TagListOptions struct {
	WithCount bool
	MostUsed  bool
	Limit     int
}

func NewTagService(store repository.Datastore) *TagService {
	return &TagService{store: store}
}

// List returns all tags by name, or the most used ones when requested. The
// plain listing is cached.
func (s *TagService) List(ctx context.Context, opts TagListOptions) ([]models.Tag, error) {
	if opts.MostUsed {
		limit := opts.Limit
		if limit <= 0 {
			limit = DefaultMostUsedLimit
		}
		return s.store.Tags().MostUsed(ctx, min(limit, MaxMostUsedLimit))
	}
	if opts.WithCount {
		return s.store.Tags().List(ctx, true)
	}

	var tags []models.Tag
	err := cache.Aside(ctx, cache.TagsListKey, &tags, cache.ListTTL, func() error {
		var err error
		tags, err = s.store.Tags().List(ctx, false)
		return err
	})
	return tags, err
}

// Get returns one tag with its post count.
func (s *TagService) Get(ctx context.Context, id uint) (*models.Tag, error) {
	return s.store.Tags().GetByID(ctx, id, true)
}

func (s *TagService) Create(ctx context.Context, actor *models.User, in TagInput) (*models.Tag, error) {
	if err := authorize(actor, policy.OpTagWrite, policy.NoResource); err != nil {
		return nil, err
	}
	if in.Name == nil {
		return nil, models.NewValidationError("name is required")
	}
	tag := &models.Tag{}
	if err := applyNameAndSlug(&tag.Name, &tag.Slug, *in.Name, in.Slug); err != nil {
		return nil, err
	}
	if err := s.store.Tags().Create(ctx, tag); err != nil {
		return nil, err
	}
	cache.InvalidateTags(ctx)
	return tag, nil
}

func (s *TagService) Update(ctx context.Context, actor *models.User, id uint, in TagInput) (*models.Tag, error) {
	if err := authorize(actor, policy.OpTagWrite, policy.NoResource); err != nil {
		return nil, err
	}

	var tag *models.Tag
	err := s.store.WithTx(ctx, func(tx repository.Datastore) error {
		var err error
		tag, err = tx.Tags().GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		if in.Name == nil && in.Slug == nil {
			return nil
		}
		name := tag.Name
		if in.Name != nil {
			name = *in.Name
		}
		slug := in.Slug
		// keep the current slug unless the name changed
		if slug == nil && strings.TrimSpace(name) == tag.Name {
			slug = &tag.Slug
		}
		if err := applyNameAndSlug(&tag.Name, &tag.Slug, name, slug); err != nil {
			return err
		}
		return tx.Tags().Update(ctx, tag)
	})
	if err != nil {
		return nil, err
	}
	cache.InvalidateTags(ctx)
	return tag, nil
}

// Delete removes a tag and its post associations.
func (s *TagService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if err := authorize(actor, policy.OpTagWrite, policy.NoResource); err != nil {
		return err
	}
	var detached []uint
	err := s.store.WithTx(ctx, func(tx repository.Datastore) error {
		var err error
		detached, err = tx.Tags().Delete(ctx, id)
		return err
	})
	if err != nil {
		return err
	}
	cache.InvalidateTags(ctx)
	for _, postID := range detached {
		cache.InvalidatePost(ctx, postID)
	}
	return nil
}
