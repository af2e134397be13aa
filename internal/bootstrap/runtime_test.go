package bootstrap

import (
	"testing"

	"quill/internal/config"
	"quill/internal/models"
	"quill/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func devConfig() *config.Config {
	return &config.Config{
		Env:               "development",
		DevBootstrapAdmin: true,
		DevAdminName:      "Root",
		DevAdminEmail:     "Root@Quill.Local",
		DevAdminPassword:  "bootstrap-pass",
	}
}

func TestEnsureDevAdmin(t *testing.T) {
	t.Run("creates the admin", func(t *testing.T) {
		db := testutil.NewDB(t)
		require.NoError(t, ensureDevAdmin(devConfig(), db, bcrypt.MinCost))

		var admin models.User
		require.NoError(t, db.Where("email = ?", "root@quill.local").First(&admin).Error)
		assert.Equal(t, models.RoleAdmin, admin.Role)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte("bootstrap-pass")))

		// idempotent
		require.NoError(t, ensureDevAdmin(devConfig(), db, bcrypt.MinCost))
		var count int64
		require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("promotes an existing account", func(t *testing.T) {
		db := testutil.NewDB(t)
		existing := testutil.CreateUser(t, db, models.RoleUser)
		cfg := devConfig()
		cfg.DevAdminEmail = existing.Email

		require.NoError(t, ensureDevAdmin(cfg, db, bcrypt.MinCost))

		var got models.User
		require.NoError(t, db.First(&got, existing.ID).Error)
		assert.Equal(t, models.RoleAdmin, got.Role)
		assert.Equal(t, existing.Name, got.Name)
		assert.Equal(t, existing.Password, got.Password)
	})

	t.Run("force credentials", func(t *testing.T) {
		db := testutil.NewDB(t)
		existing := testutil.CreateUser(t, db, models.RoleEditor)
		cfg := devConfig()
		cfg.DevAdminEmail = existing.Email
		cfg.DevAdminForceCredentials = true

		require.NoError(t, ensureDevAdmin(cfg, db, bcrypt.MinCost))

		var got models.User
		require.NoError(t, db.First(&got, existing.ID).Error)
		assert.Equal(t, "Root", got.Name)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(got.Password), []byte("bootstrap-pass")))
	})

	t.Run("skipped outside development", func(t *testing.T) {
		db := testutil.NewDB(t)
		cfg := devConfig()
		cfg.Env = "production"
		require.NoError(t, ensureDevAdmin(cfg, db, bcrypt.MinCost))

		var count int64
		require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("password required", func(t *testing.T) {
		db := testutil.NewDB(t)
		cfg := devConfig()
		cfg.DevAdminPassword = ""
		assert.ErrorContains(t, ensureDevAdmin(cfg, db, bcrypt.MinCost), "DEV_ADMIN_PASSWORD")
	})
}
