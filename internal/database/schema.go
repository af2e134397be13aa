package database

import (
	"context"
	"fmt"
	"log/slog"

	"quill/internal/config"
	"quill/internal/middleware"

	"gorm.io/gorm"
)

const (
	SchemaModeAuto = "auto"
	SchemaModeSQL  = "sql"
	SchemaModeNone = "none"
)

// SchemaStatus describes what ApplySchema would do and, for SQL mode,
// which migrations are applied or pending.
type SchemaStatus struct {
	Mode              string
	Environment       string
	Driver            string
	AppliedVersions   []int
	PendingMigrations []Migration
}

func schemaMode(cfg *config.Config, db *gorm.DB) (string, error) {
	mode := cfg.DBSchemaMode
	if mode == "" {
		mode = SchemaModeAuto
	}
	if mode == SchemaModeSQL && db.Dialector.Name() != "postgres" {
		return "", fmt.Errorf("DB_SCHEMA_MODE=sql requires postgres, got %q", db.Dialector.Name())
	}
	switch mode {
	case SchemaModeAuto, SchemaModeSQL, SchemaModeNone:
		return mode, nil
	}
	return "", fmt.Errorf("unsupported DB_SCHEMA_MODE %q", mode)
}

// ApplySchema brings the schema up to date: versioned SQL migrations in
// "sql" mode, GORM AutoMigrate in "auto" mode, nothing in "none" mode.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	mode, err := schemaMode(cfg, db)
	if err != nil {
		return err
	}

	switch mode {
	case SchemaModeSQL:
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	case SchemaModeAuto:
		middleware.Logger.Info("Running GORM AutoMigrate", slog.String("env", cfg.Env))
		if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}
	return nil
}

// GetSchemaStatus reports the migration state for the configured mode.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	mode, err := schemaMode(cfg, db)
	if err != nil {
		return nil, err
	}

	status := &SchemaStatus{
		Mode:        mode,
		Environment: cfg.Env,
		Driver:      db.Dialector.Name(),
	}
	if mode != SchemaModeSQL {
		return status, nil
	}

	applied, err := NewMigrationStore(db).GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	status.AppliedVersions = applied

	appliedSet := make(map[int]bool, len(applied))
	for _, version := range applied {
		appliedSet[version] = true
	}
	for _, m := range GetMigrations() {
		if !appliedSet[m.Version] {
			status.PendingMigrations = append(status.PendingMigrations, m)
		}
	}
	return status, nil
}
