// Package repository implements the data access layer for the application.
package repository

import (
	"context"

	"gorm.io/gorm"
)

// Datastore groups the repositories that share one connection or
// transaction.
type Datastore interface {
	Users() UserRepository
	Posts() PostRepository
	Categories() CategoryRepository
	Tags() TagRepository
	Comments() CommentRepository
	Likes() LikeRepository
	// WithTx runs fn against a Datastore bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Datastore) error) error
}

type gormStore struct {
	db *gorm.DB
}

// NewDatastore returns a GORM-backed Datastore.
func NewDatastore(db *gorm.DB) Datastore {
	return &gormStore{db: db}
}

func (s *gormStore) Users() UserRepository          { return NewUserRepository(s.db) }
func (s *gormStore) Posts() PostRepository          { return NewPostRepository(s.db) }
func (s *gormStore) Categories() CategoryRepository { return NewCategoryRepository(s.db) }
func (s *gormStore) Tags() TagRepository            { return NewTagRepository(s.db) }
func (s *gormStore) Comments() CommentRepository    { return NewCommentRepository(s.db) }
func (s *gormStore) Likes() LikeRepository          { return NewLikeRepository(s.db) }

func (s *gormStore) WithTx(ctx context.Context, fn func(tx Datastore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}
