package service

import (
	"context"
	"strings"

	"quill/internal/models"
	"quill/internal/policy"
	"quill/internal/query"
	"quill/internal/repository"
)

type UserService struct {
	store repository.Datastore
}

type UpdateUserInput struct {
	Name *string
	Role *string
}

func NewUserService(store repository.Datastore) *UserService {
	return &UserService{store: store}
}

// List pages through users, filtered by role and by a name or email fragment.
func (s *UserService) List(ctx context.Context, actor *models.User, filter repository.UserFilter) (query.Page[models.User], error) {
	if err := authorize(actor, policy.OpUserManage, policy.NoResource); err != nil {
		return query.Page[models.User]{}, err
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return query.Page[models.User]{}, models.NewValidationError("role must be user, editor or admin")
	}
	filter.Page, filter.PerPage = normalizePage(filter.Page, filter.PerPage)

	users, total, err := s.store.Users().List(ctx, filter)
	if err != nil {
		return query.Page[models.User]{}, err
	}
	return query.NewPage(users, filter.Page, filter.PerPage, total), nil
}

func (s *UserService) Get(ctx context.Context, actor *models.User, id uint) (*models.User, error) {
	if err := authorize(actor, policy.OpUserManage, policy.NoResource); err != nil {
		return nil, err
	}
	return s.store.Users().GetByID(ctx, id)
}

// Update changes a user's name and role.
func (s *UserService) Update(ctx context.Context, actor *models.User, id uint, in UpdateUserInput) (*models.User, error) {
	if err := authorize(actor, policy.OpUserManage, policy.NoResource); err != nil {
		return nil, err
	}
	if in.Name != nil {
		if err := validationErr(validateUserName(*in.Name)); err != nil {
			return nil, err
		}
	}
	var role models.Role
	if in.Role != nil {
		var err error
		if role, err = ParseRole(*in.Role); err != nil {
			return nil, err
		}
	}

	var user *models.User
	err := s.store.WithTx(ctx, func(tx repository.Datastore) error {
		var err error
		user, err = tx.Users().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			user.Name = strings.TrimSpace(*in.Name)
		}
		if in.Role != nil {
			user.Role = role
		}
		return tx.Users().Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// AssignRole sets a user's role without an acting user. It is meant for
// operator tooling that already runs with full rights.
func (s *UserService) AssignRole(ctx context.Context, id uint, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, models.NewValidationError("role must be user, editor or admin")
	}
	var user *models.User
	err := s.store.WithTx(ctx, func(tx repository.Datastore) error {
		var err error
		if user, err = tx.Users().GetByID(ctx, id); err != nil {
			return err
		}
		user.Role = role
		return tx.Users().Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ParseRole validates a role name.
func ParseRole(raw string) (models.Role, error) {
	role := models.Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", models.NewValidationError("role must be user, editor or admin")
	}
	return role, nil
}
