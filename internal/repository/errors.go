package repository

import (
	"errors"
	"fmt"
	"strings"

	"quill/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// translate maps driver and GORM errors onto the application taxonomy.
// AppErrors pass through unchanged.
func translate(err error, resource string, id any) error {
	if err == nil {
		return nil
	}

	var appErr *models.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.NewNotFoundError(resource, id)
	case isUniqueViolation(err):
		return &models.AppError{
			Code:    models.CodeConflict,
			Message: fmt.Sprintf("%s already exists", resource),
			Err:     err,
		}
	}
	return models.NewInternalError(err)
}

// isUniqueViolation detects unique constraint failures from Postgres
// (SQLSTATE 23505) and SQLite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key")
}

// escapeLike escapes LIKE wildcards in user input. Patterns built with it
// must be used with ESCAPE '\'.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func paginate(page, perPage int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	return perPage, (page - 1) * perPage
}
