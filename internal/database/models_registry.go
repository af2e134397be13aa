package database

import (
	"quill/internal/models"

	"gorm.io/gorm"
)

// PersistentModels returns the authoritative set of schema-managed GORM models.
// Order matters for AutoMigrate: referenced tables come first.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Category{},
		&models.Tag{},
		&models.Post{},
		&models.PostTag{},
		&models.Comment{},
		&models.Like{},
	}
}

// RegisterJoinTables tells GORM that Post.Tags goes through PostTag, so the
// pivot keeps its timestamps.
func RegisterJoinTables(db *gorm.DB) error {
	return db.SetupJoinTable(&models.Post{}, "Tags", &models.PostTag{})
}
