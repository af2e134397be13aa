// Package bootstrap connects the runtime dependencies of the API process.
package bootstrap

import (
	"errors"
	"fmt"
	"strings"

	"quill/internal/cache"
	"quill/internal/config"
	"quill/internal/database"
	"quill/internal/middleware"
	"quill/internal/models"
	"quill/internal/validation"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// InitRuntime connects to the database and Redis and, in development,
// ensures the bootstrap admin account exists. The Redis client is nil when
// Redis is unreachable.
func InitRuntime(cfg *config.Config) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	if err := ensureDevAdmin(cfg, db, bcrypt.DefaultCost); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development admin: %w", err)
	}
	return db, cache.GetClient(), nil
}

func ensureDevAdmin(cfg *config.Config, db *gorm.DB, cost int) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapAdmin {
		return nil
	}

	name := strings.TrimSpace(cfg.DevAdminName)
	if name == "" {
		name = "Quill Admin"
	}
	email := strings.ToLower(strings.TrimSpace(cfg.DevAdminEmail))
	if err := validation.ValidateEmail(email); err != nil {
		return fmt.Errorf("DEV_ADMIN_EMAIL: %w", err)
	}
	if cfg.DevAdminPassword == "" {
		return errors.New("DEV_ADMIN_PASSWORD must be set when DEV_BOOTSTRAP_ADMIN is enabled")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.DevAdminPassword), cost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var admin models.User
		findErr := tx.Where("email = ?", email).First(&admin).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			admin = models.User{
				Name:     name,
				Email:    email,
				Password: string(hashed),
				Role:     models.RoleAdmin,
			}
			return tx.Create(&admin).Error
		case findErr != nil:
			return findErr
		}

		updates := map[string]any{"role": models.RoleAdmin}
		if cfg.DevAdminForceCredentials {
			updates["name"] = name
			updates["password"] = string(hashed)
		}
		return tx.Model(&models.User{}).Where("id = ?", admin.ID).Updates(updates).Error
	})
	if err != nil {
		return err
	}

	middleware.Logger.Info("development admin bootstrap ensured", "email", email)
	return nil
}
