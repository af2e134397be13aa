package service

import (
	"context"
	"strings"

	"quill/internal/cache"
	"quill/internal/models"
	"quill/internal/policy"
	"quill/internal/repository"
	"quill/internal/validation"
)

type CategoryService struct {
	store repository.Datastore
}

type CategoryInput struct {
	Name        *string
	Slug        *string
	Description NullableString
}

func NewCategoryService(store repository.Datastore) *CategoryService {
	return &CategoryService{store: store}
}

// List returns all categories. The plain name-ordered listing is cached.
func (s *CategoryService) List(ctx context.Context, opts repository.CategoryListOptions) ([]models.Category, error) {
	if opts.SortBy != "created_at" {
		opts.SortBy = "name"
	}
	if opts.WithCount || opts.SortBy != "name" {
		return s.store.Categories().List(ctx, opts)
	}

	var categories []models.Category
	err := cache.Aside(ctx, cache.CategoriesListKey, &categories, cache.ListTTL, func() error {
		var err error
		categories, err = s.store.Categories().List(ctx, opts)
		return err
	})
	return categories, err
}

// Get returns one category with its post count.
func (s *CategoryService) Get(ctx context.Context, id uint) (*models.Category, error) {
	return s.store.Categories().GetByID(ctx, id, true)
}

func (s *CategoryService) Create(ctx context.Context, actor *models.User, in CategoryInput) (*models.Category, error) {
	if err := authorize(actor, policy.OpCategoryWrite, policy.NoResource); err != nil {
		return nil, err
	}
	if in.Name == nil {
		return nil, models.NewValidationError("name is required")
	}
	category := &models.Category{Description: in.Description.Value}
	if err := applyNameAndSlug(&category.Name, &category.Slug, *in.Name, in.Slug); err != nil {
		return nil, err
	}

	if err := s.store.Categories().Create(ctx, category); err != nil {
		return nil, err
	}
	cache.InvalidateCategories(ctx)
	return category, nil
}

func (s *CategoryService) Update(ctx context.Context, actor *models.User, id uint, in CategoryInput) (*models.Category, error) {
	if err := authorize(actor, policy.OpCategoryWrite, policy.NoResource); err != nil {
		return nil, err
	}

	var category *models.Category
	err := s.store.WithTx(ctx, func(tx repository.Datastore) error {
		var err error
		category, err = tx.Categories().GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		if in.Name != nil || in.Slug != nil {
			name := category.Name
			if in.Name != nil {
				name = *in.Name
			}
			slug := in.Slug
			// keep the current slug unless the name changed
			if slug == nil && strings.TrimSpace(name) == category.Name {
				slug = &category.Slug
			}
			if err := applyNameAndSlug(&category.Name, &category.Slug, name, slug); err != nil {
				return err
			}
		}
		if in.Description.Set {
			category.Description = in.Description.Value
		}
		return tx.Categories().Update(ctx, category)
	})
	if err != nil {
		return nil, err
	}
	cache.InvalidateCategories(ctx)
	return category, nil
}

// Delete removes a category that no live post uses. Trashed posts that
// still reference it are detached.
func (s *CategoryService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if err := authorize(actor, policy.OpCategoryWrite, policy.NoResource); err != nil {
		return err
	}

	err := s.store.WithTx(ctx, func(tx repository.Datastore) error {
		// Held until commit so no post can be filed under the category
		// between the count and the delete.
		if _, err := tx.Categories().GetForUpdate(ctx, id); err != nil {
			return err
		}
		count, err := tx.Posts().CountByCategory(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return models.NewConflictError("Cannot delete a category that still has posts")
		}
		if err := tx.Posts().ClearCategory(ctx, id); err != nil {
			return err
		}
		return tx.Categories().Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	cache.InvalidateCategories(ctx)
	return nil
}

// applyNameAndSlug validates name and sets the slug, deriving it from the
// name when none is given.
func applyNameAndSlug(nameDst, slugDst *string, name string, slug *string) error {
	name = strings.TrimSpace(name)
	if err := validationErr(validation.ValidateName("name", name)); err != nil {
		return err
	}

	var resolved string
	if slug != nil && strings.TrimSpace(*slug) != "" {
		resolved = strings.TrimSpace(*slug)
		if err := validationErr(validation.ValidateSlug(resolved)); err != nil {
			return err
		}
	} else {
		resolved = models.DeriveSlug(name)
		if resolved == "" {
			return models.NewValidationError("a slug could not be derived from the name; provide one")
		}
	}

	*nameDst = name
	*slugDst = resolved
	return nil
}
